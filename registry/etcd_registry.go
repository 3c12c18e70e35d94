package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Directory layout in etcd:
//
//	Key:   /lane-rpc/servers/{ServerID}
//	Value: JSON-encoded ServerInstance
//
// Registration uses TTL-based leases: if a node crashes, the lease expires
// and its entry disappears, so peers stop dialing a dead address.
const keyPrefix = "/lane-rpc/servers/"

// EtcdRegistry implements Registry using etcd v3.
type EtcdRegistry struct {
	client  *clientv3.Client // thread-safe, shared across goroutines
	timeout time.Duration

	mu         sync.Mutex
	keepAlives map[int32]context.CancelFunc // stops lease renewal on Deregister
}

// NewEtcdRegistry creates a registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 3 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{
		client:     c,
		timeout:    3 * time.Second,
		keepAlives: make(map[int32]context.CancelFunc),
	}, nil
}

func serverKey(serverID int32) string {
	return keyPrefix + strconv.Itoa(int(serverID))
}

// Register stores inst under a lease of ttl seconds and keeps the lease
// alive in the background until Deregister or Close.
func (r *EtcdRegistry) Register(inst ServerInstance, ttl int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(inst)
	if err != nil {
		return err
	}

	if _, err = r.client.Put(ctx, serverKey(inst.ServerID), string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	// KeepAlive outlives this call, so it gets its own context.
	kaCtx, kaCancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		kaCancel()
		return err
	}

	r.mu.Lock()
	if prev, ok := r.keepAlives[inst.ServerID]; ok {
		prev()
	}
	r.keepAlives[inst.ServerID] = kaCancel
	r.mu.Unlock()

	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister stops lease renewal and deletes the entry.
func (r *EtcdRegistry) Deregister(serverID int32) error {
	r.mu.Lock()
	if cancel, ok := r.keepAlives[serverID]; ok {
		cancel()
		delete(r.keepAlives, serverID)
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	_, err := r.client.Delete(ctx, serverKey(serverID))
	return err
}

func (r *EtcdRegistry) Discover(serverID int32) (ServerInstance, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	resp, err := r.client.Get(ctx, serverKey(serverID))
	if err != nil {
		return ServerInstance{}, err
	}
	if len(resp.Kvs) == 0 {
		return ServerInstance{}, fmt.Errorf("%w: %d", ErrNotFound, serverID)
	}
	var inst ServerInstance
	if err := json.Unmarshal(resp.Kvs[0].Value, &inst); err != nil {
		return ServerInstance{}, fmt.Errorf("registry: malformed entry for server %d: %w", serverID, err)
	}
	return inst, nil
}

// Resolve returns the advertised address of serverID.
func (r *EtcdRegistry) Resolve(serverID int32) (string, error) {
	inst, err := r.Discover(serverID)
	if err != nil {
		return "", err
	}
	return inst.Addr, nil
}

// List returns all registered servers ordered by id.
func (r *EtcdRegistry) List() ([]ServerInstance, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	resp, err := r.client.Get(ctx, keyPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServerInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst ServerInstance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			continue // Skip malformed entries
		}
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].ServerID < instances[j].ServerID })
	return instances, nil
}

// Watch re-lists the directory on every change under the prefix.
// Uses etcd's Watch API (server-push) rather than polling.
func (r *EtcdRegistry) Watch(ctx context.Context) <-chan []ServerInstance {
	ch := make(chan []ServerInstance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, keyPrefix, clientv3.WithPrefix())
		for range watchChan {
			instances, err := r.List()
			if err != nil {
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Close stops all lease renewals and closes the etcd client.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	for id, cancel := range r.keepAlives {
		cancel()
		delete(r.keepAlives, id)
	}
	r.mu.Unlock()
	return r.client.Close()
}
