package registry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

const etcdAddr = "127.0.0.1:2379"

func newEtcdRegistry(t *testing.T) *EtcdRegistry {
	t.Helper()
	conn, err := net.DialTimeout("tcp", etcdAddr, 200*time.Millisecond)
	if err != nil {
		t.Skipf("etcd not reachable at %s: %v", etcdAddr, err)
	}
	conn.Close()

	reg, err := NewEtcdRegistry([]string{etcdAddr})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestRegisterAndDiscover(t *testing.T) {
	reg := newEtcdRegistry(t)

	inst1 := ServerInstance{ServerID: 9101, Addr: "127.0.0.1:8001", Workers: 4, Version: "1.0"}
	inst2 := ServerInstance{ServerID: 9102, Addr: "127.0.0.1:8002", Workers: 2, Version: "1.0"}

	if err := reg.Register(inst1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(inst2, 10); err != nil {
		t.Fatal(err)
	}
	defer reg.Deregister(inst2.ServerID)

	got, err := reg.Discover(inst1.ServerID)
	if err != nil {
		t.Fatal(err)
	}
	if got != inst1 {
		t.Fatalf("expect %+v, got %+v", inst1, got)
	}

	addr, err := reg.Resolve(inst2.ServerID)
	if err != nil || addr != inst2.Addr {
		t.Fatalf("expect %s, got %s (%v)", inst2.Addr, addr, err)
	}

	if err := reg.Deregister(inst1.ServerID); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if _, err := reg.Discover(inst1.ServerID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expect ErrNotFound after deregister, got %v", err)
	}
}

func TestEtcdWatch(t *testing.T) {
	reg := newEtcdRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := reg.Watch(ctx)
	time.Sleep(100 * time.Millisecond)

	inst := ServerInstance{ServerID: 9103, Addr: "127.0.0.1:8003"}
	if err := reg.Register(inst, 10); err != nil {
		t.Fatal(err)
	}
	defer reg.Deregister(inst.ServerID)

	select {
	case list := <-ch:
		found := false
		for _, s := range list {
			if s.ServerID == inst.ServerID {
				found = true
			}
		}
		if !found {
			t.Fatalf("expect watch snapshot to contain server %d, got %+v", inst.ServerID, list)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not fire")
	}
}
