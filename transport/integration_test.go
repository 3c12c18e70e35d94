package transport_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"lane-rpc/middleware"
	"lane-rpc/registry"
	"lane-rpc/server"
	"lane-rpc/transport"
)

type Arith struct {
	server.BaseService
	calls int
}

func (a *Arith) Add(x, y int64) (int64, error) {
	a.calls++
	return x + y, nil
}

func (a *Arith) Multiply(x, y int64) (int64, error) { return x * y, nil }

func (a *Arith) Calls() (int, error) { return a.calls, nil }

// node bundles one LocalServer with its listener and connectors.
type node struct {
	server     *server.LocalServer
	listener   *transport.Listener
	connectors map[int32]*transport.TCPConnector
}

// directory is a registry that connectors can also resolve through.
type directory interface {
	registry.Registry
	transport.Resolver
}

// startCluster starts a full mesh of nodes with ids 1..n, resolving each
// other through reg.
func startCluster(tb testing.TB, reg directory, n int, setup func(id int32, s *server.LocalServer)) []*node {
	tb.Helper()
	nodes := make([]*node, n)
	for i := range nodes {
		id := int32(i + 1)
		nd := &node{connectors: make(map[int32]*transport.TCPConnector)}
		var conns []server.Connector
		var tcp []*transport.TCPConnector
		for peer := int32(1); peer <= int32(n); peer++ {
			if peer == id {
				continue
			}
			c := transport.NewTCPConnector(id, peer, reg, transport.WithHeartbeat(20*time.Millisecond, 3), transport.WithDialRate(50, 1))
			nd.connectors[peer] = c
			conns = append(conns, c)
			tcp = append(tcp, c)
		}

		l, err := transport.Listen("127.0.0.1:0", id, nil, tcp...)
		if err != nil {
			tb.Fatal(err)
		}
		nd.listener = l

		s, err := server.NewLocalServer(id, 2, conns,
			server.WithUpdateInterval(10*time.Millisecond),
			server.WithCallTTL(2*time.Second),
			server.WithRegistry(reg, l.Addr().String()),
			server.WithMiddleware(middleware.RecoveryMiddleware(), middleware.LoggingMiddleware()),
		)
		if err != nil {
			tb.Fatal(err)
		}
		nd.server = s
		if setup != nil {
			setup(id, s)
		}
		go l.Serve(s.Handle())
		nodes[i] = nd
	}

	for _, nd := range nodes {
		if err := nd.server.Start(); err != nil {
			tb.Fatal(err)
		}
	}
	tb.Cleanup(func() {
		for _, nd := range nodes {
			nd.server.Shutdown(3 * time.Second)
			nd.listener.Close()
		}
	})
	return nodes
}

func waitConnected(tb testing.TB, nodes []*node) {
	tb.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for _, nd := range nodes {
		for _, c := range nd.connectors {
			for !c.Connected() {
				if time.Now().After(deadline) {
					tb.Fatalf("connector to %d never connected", c.RemoteID())
				}
				time.Sleep(10 * time.Millisecond)
			}
		}
	}
}

func addArith(id int32, s *server.LocalServer) {
	svc := &Arith{}
	svc.ServiceID = fmt.Sprintf("arith-%d", id)
	if err := s.AddService(svc); err != nil {
		panic(err)
	}
}

// TestTwoNodeCall: node 1 → TCPConnector → node 2 Listener → lane → Response → node 1 lane
func TestTwoNodeCall(t *testing.T) {
	nodes := startCluster(t, registry.NewMemoryRegistry(), 2, addArith)
	waitConnected(t, nodes)
	ctx := context.Background()

	got, err := nodes[0].server.Call(ctx, 2, "arith-2", "Add", 3, 5)
	if err != nil {
		t.Fatalf("Call Add failed: %v", err)
	}
	if got != int64(8) {
		t.Fatalf("Add: expect 8, got %v", got)
	}

	got, err = nodes[1].server.Call(ctx, 1, "arith-1", "Multiply", 4, 6)
	if err != nil {
		t.Fatalf("Call Multiply failed: %v", err)
	}
	if got != int64(24) {
		t.Fatalf("Multiply: expect 24, got %v", got)
	}

	// service state lives on its lane across calls
	for i := 0; i < 10; i++ {
		if _, err := nodes[0].server.Call(ctx, 2, "arith-2", "Add", i, i*10); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	got, err = nodes[0].server.Call(ctx, 2, "arith-2", "Calls")
	if err != nil || got != int64(11) {
		t.Fatalf("Calls: expect 11, got %v (%v)", got, err)
	}
}

func TestHeartbeatMeasuresRTT(t *testing.T) {
	nodes := startCluster(t, registry.NewMemoryRegistry(), 2, nil)
	waitConnected(t, nodes)

	c := nodes[0].connectors[2]
	deadline := time.Now().Add(2 * time.Second)
	for c.RTT() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no pong observed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCallToUnknownServiceTimesOut(t *testing.T) {
	nodes := startCluster(t, registry.NewMemoryRegistry(), 2, addArith)
	waitConnected(t, nodes)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := nodes[0].server.Call(ctx, 2, "missing", "Add", 1, 2); err == nil {
		t.Fatal("expect an error for a service nobody hosts")
	}
}

func TestLostLinkDetected(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	nodes := startCluster(t, reg, 2, addArith)
	waitConnected(t, nodes)

	// Drop every connection node 2 holds; node 1 must redial.
	for _, c := range nodes[1].connectors {
		c.Close()
	}
	nodes[1].listener.Close()

	deadline := time.Now().Add(2 * time.Second)
	for nodes[0].connectors[2].Connected() {
		if time.Now().After(deadline) {
			t.Fatal("node 1 did not notice the lost link")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestFullIntegrationWithEtcd runs the same call with etcd as the directory.
func TestFullIntegrationWithEtcd(t *testing.T) {
	conn, err := net.DialTimeout("tcp", "127.0.0.1:2379", 200*time.Millisecond)
	if err != nil {
		t.Skipf("etcd not reachable: %v", err)
	}
	conn.Close()

	reg, err := registry.NewEtcdRegistry([]string{"127.0.0.1:2379"})
	if err != nil {
		t.Fatalf("failed to connect etcd: %v", err)
	}
	defer reg.Close()

	nodes := startCluster(t, reg, 2, addArith)
	waitConnected(t, nodes)

	got, err := nodes[0].server.Call(context.Background(), 2, "arith-2", "Add", 3, 5)
	if err != nil || got != int64(8) {
		t.Fatalf("Add via etcd: expect 8, got %v (%v)", got, err)
	}
}

func BenchmarkRemoteCall(b *testing.B) {
	nodes := startCluster(b, registry.NewMemoryRegistry(), 2, addArith)
	waitConnected(b, nodes)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := nodes[0].server.Call(ctx, 2, "arith-2", "Add", 1, 2); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConcurrentRemoteCall(b *testing.B) {
	nodes := startCluster(b, registry.NewMemoryRegistry(), 2, addArith)
	waitConnected(b, nodes)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := nodes[0].server.Call(ctx, 2, "arith-2", "Add", 1, 2); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
