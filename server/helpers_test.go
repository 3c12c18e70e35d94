package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lane-rpc/codec"
	"lane-rpc/protocol"
)

// recorder collects lifecycle events from services across lanes.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) count(e string) int {
	n := 0
	for _, got := range r.snapshot() {
		if got == e {
			n++
		}
	}
	return n
}

type calculator struct {
	BaseService
	rec   *recorder
	block chan struct{} // Destroy waits on it when set
}

func newCalculator(id any, rec *recorder) *calculator {
	c := &calculator{rec: rec}
	c.ServiceID = id
	return c
}

func (c *calculator) Init() {
	if w := c.Worker(); w != nil && w.running.Load() {
		c.rec.add("init")
		return
	}
	c.rec.add("init-before-loop")
}

func (c *calculator) Destroy() {
	c.rec.add("destroy")
	if c.block != nil {
		<-c.block
	}
}

func (c *calculator) Add(a, b int64) (int64, error) { return a + b, nil }

func (c *calculator) Div(a, b int64) (int64, error) {
	if b == 0 {
		return 0, errors.New("division by zero")
	}
	return a / b, nil
}

func (c *calculator) Touch(ctx context.Context) error {
	c.rec.add("call")
	return nil
}

func (c *calculator) Boom() error { panic("boom") }

// mockConnector is a testify mock of Connector.
type mockConnector struct {
	mock.Mock
	remote  int32
	updates atomic.Int32
}

func newMockConnector(remote int32) *mockConnector {
	c := &mockConnector{remote: remote}
	c.On("Start", mock.Anything).Return(nil).Maybe()
	c.On("Update").Maybe()
	return c
}

func (m *mockConnector) RemoteID() int32 { return m.remote }

func (m *mockConnector) Start(d protocol.Dispatcher) error { return m.Called(d).Error(0) }

func (m *mockConnector) Update() {
	m.updates.Add(1)
	m.Called()
}

func (m *mockConnector) SendProtocol(target int32, p protocol.Protocol) error {
	return m.Called(target, p).Error(0)
}

// pipeConnector hands envelopes straight to a peer server after a codec
// round trip, standing in for a network link.
type pipeConnector struct {
	remote int32
	codec  *codec.ObjectCodec
	peer   atomic.Pointer[ProtocolHandle]
	pongs  atomic.Int32
}

func (p *pipeConnector) RemoteID() int32 { return p.remote }

func (p *pipeConnector) Start(protocol.Dispatcher) error { return nil }

func (p *pipeConnector) Update() {}

func (p *pipeConnector) SendProtocol(_ int32, msg protocol.Protocol) error {
	data, err := p.codec.Encode(msg)
	if err != nil {
		return err
	}
	var out any
	if err := p.codec.Decode(data, &out); err != nil {
		return err
	}
	p.peer.Load().Dispatch(out.(protocol.Protocol))
	return nil
}

func (p *pipeConnector) ObservePong(*protocol.PingPong) { p.pongs.Add(1) }

func newTestServer(t *testing.T, id int32, workers int, connectors []Connector, opts ...Option) *LocalServer {
	t.Helper()
	opts = append([]Option{
		WithUpdateInterval(10 * time.Millisecond),
		WithCallTTL(200 * time.Millisecond),
	}, opts...)
	s, err := NewLocalServer(id, workers, connectors, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown(time.Second) })
	return s
}

func startServer(t *testing.T, s *LocalServer) {
	t.Helper()
	require.NoError(t, s.Start())
}

// onLane runs fn on w and waits for it.
func onLane(t *testing.T, w *Worker, fn func()) {
	t.Helper()
	done := make(chan struct{})
	w.Execute(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("worker %d did not run task", w.id)
	}
}
