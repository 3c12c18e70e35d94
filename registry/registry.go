// Package registry is the server directory: it maps a server id to the
// address its listener advertises, so connectors can find their peers.
package registry

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("registry: server not found")

// ServerInstance describes one running node.
type ServerInstance struct {
	ServerID int32
	Addr     string // Routable listener address, e.g. "10.0.0.5:7001"
	Workers  int
	Version  string
}

type Registry interface {
	// Register publishes inst with a TTL in seconds. Backends without expiry ignore ttl.
	Register(inst ServerInstance, ttl int64) error
	Deregister(serverID int32) error
	Discover(serverID int32) (ServerInstance, error)
	List() ([]ServerInstance, error)
	// Watch emits the full instance list whenever the directory changes,
	// until ctx is done.
	Watch(ctx context.Context) <-chan []ServerInstance
}
