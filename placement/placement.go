// Package placement chooses the default worker lane for a service that is
// added without an explicit worker.
//
// Two strategies are implemented:
//   - RoundRobin:     spreads services evenly in the order they are added
//   - ConsistentHash: the same service id always lands on the same lane for
//     a given pool size, which keeps placement stable across restarts
package placement

import "fmt"

// Picker selects a worker index in [0, n) for a service id.
// Called from AddService on arbitrary goroutines, so it must be goroutine-safe.
type Picker interface {
	Pick(serviceID any, n int) int

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

func key(serviceID any) string {
	return fmt.Sprintf("%T:%v", serviceID, serviceID)
}
