package placement

import "sync/atomic"

// RoundRobin assigns lanes in order using an atomic counter, without locks.
type RoundRobin struct {
	counter atomic.Uint64
}

func (p *RoundRobin) Pick(_ any, n int) int {
	if n <= 1 {
		return 0
	}
	return int((p.counter.Add(1) - 1) % uint64(n))
}

func (p *RoundRobin) Name() string {
	return "RoundRobin"
}
