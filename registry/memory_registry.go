package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRegistry is an in-process directory for tests and single-host
// clusters configured without etcd. TTLs are ignored.
type MemoryRegistry struct {
	mu        sync.RWMutex
	instances map[int32]ServerInstance
	watchers  []chan []ServerInstance
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{instances: make(map[int32]ServerInstance)}
}

func (m *MemoryRegistry) Register(inst ServerInstance, _ int64) error {
	m.mu.Lock()
	m.instances[inst.ServerID] = inst
	m.notifyLocked()
	m.mu.Unlock()
	return nil
}

func (m *MemoryRegistry) Deregister(serverID int32) error {
	m.mu.Lock()
	delete(m.instances, serverID)
	m.notifyLocked()
	m.mu.Unlock()
	return nil
}

func (m *MemoryRegistry) Discover(serverID int32) (ServerInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[serverID]
	if !ok {
		return ServerInstance{}, fmt.Errorf("%w: %d", ErrNotFound, serverID)
	}
	return inst, nil
}

func (m *MemoryRegistry) Resolve(serverID int32) (string, error) {
	inst, err := m.Discover(serverID)
	if err != nil {
		return "", err
	}
	return inst.Addr, nil
}

func (m *MemoryRegistry) List() ([]ServerInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(), nil
}

func (m *MemoryRegistry) Watch(ctx context.Context) <-chan []ServerInstance {
	ch := make(chan []ServerInstance, 1)
	m.mu.Lock()
	m.watchers = append(m.watchers, ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, w := range m.watchers {
			if w == ch {
				m.watchers = append(m.watchers[:i], m.watchers[i+1:]...)
				close(ch)
				return
			}
		}
	}()
	return ch
}

func (m *MemoryRegistry) snapshotLocked() []ServerInstance {
	out := make([]ServerInstance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerID < out[j].ServerID })
	return out
}

// notifyLocked delivers the latest snapshot, replacing a stale one a slow
// watcher has not consumed yet.
func (m *MemoryRegistry) notifyLocked() {
	if len(m.watchers) == 0 {
		return
	}
	snap := m.snapshotLocked()
	for _, w := range m.watchers {
		select {
		case <-w:
		default:
		}
		w <- snap
	}
}
