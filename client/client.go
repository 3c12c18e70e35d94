package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lane-rpc/server"
	"lane-rpc/transport"
)

const (
	DefaultCallTTL        = 5 * time.Second
	DefaultUpdateInterval = 20 * time.Millisecond
	shutdownTimeout       = 3 * time.Second
)

// Client is a caller-only node. It runs a single-lane LocalServer that hosts
// no services and dials every server it talks to. The servers must declare
// the client id as an accept-only peer so responses can find their way back.
type Client struct {
	id         int32
	server     *server.LocalServer
	connectors map[int32]*transport.TCPConnector
}

type options struct {
	callTTL        time.Duration
	updateInterval time.Duration
	connOpts       []transport.ConnectorOption
}

type Option func(*options)

// WithCallTTL bounds how long a call waits for its response.
func WithCallTTL(d time.Duration) Option {
	return func(o *options) { o.callTTL = d }
}

// WithUpdateInterval sets the tick that drives redials, heartbeats and
// the pending-call sweep.
func WithUpdateInterval(d time.Duration) Option {
	return func(o *options) { o.updateInterval = d }
}

// WithConnectorOptions passes options to every TCP connector.
func WithConnectorOptions(opts ...transport.ConnectorOption) Option {
	return func(o *options) { o.connOpts = append(o.connOpts, opts...) }
}

// NewClient starts a client with server id id that can reach the listed
// servers through resolver.
func NewClient(id int32, resolver transport.Resolver, servers []int32, opts ...Option) (*Client, error) {
	if resolver == nil {
		return nil, errors.New("client: nil resolver")
	}
	if len(servers) == 0 {
		return nil, errors.New("client: no servers to call")
	}
	o := options{callTTL: DefaultCallTTL, updateInterval: DefaultUpdateInterval}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{id: id, connectors: make(map[int32]*transport.TCPConnector, len(servers))}
	conns := make([]server.Connector, 0, len(servers))
	for _, target := range servers {
		tc := transport.NewTCPConnector(id, target, resolver, o.connOpts...)
		c.connectors[target] = tc
		conns = append(conns, tc)
	}

	s, err := server.NewLocalServer(id, 1, conns,
		server.WithCallTTL(o.callTTL),
		server.WithUpdateInterval(o.updateInterval),
	)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	if err := s.Start(); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	c.server = s
	return c, nil
}

func (c *Client) ID() int32 { return c.id }

// WaitConnected blocks until every connector has a link or ctx ends.
func (c *Client) WaitConnected(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		ready := true
		for _, tc := range c.connectors {
			if !tc.Connected() {
				ready = false
				break
			}
		}
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Call invokes method on the service serviceID hosted by server target.
func (c *Client) Call(ctx context.Context, target int32, serviceID any, method string, args ...any) (any, error) {
	if _, ok := c.connectors[target]; !ok {
		return nil, fmt.Errorf("%w: %d", transport.ErrUnknownServer, target)
	}
	return c.server.Call(ctx, target, serviceID, method, args...)
}

// Invoke is Call with a "service.Method" name, for string service ids.
func (c *Client) Invoke(ctx context.Context, target int32, serviceMethod string, args ...any) (any, error) {
	dot := strings.LastIndex(serviceMethod, ".")
	if dot <= 0 || dot == len(serviceMethod)-1 {
		return nil, fmt.Errorf("invalid serviceMethod format: %v", serviceMethod)
	}
	return c.Call(ctx, target, serviceMethod[:dot], serviceMethod[dot+1:], args...)
}

// Close stops the lane, failing calls still in flight, and closes every connection.
func (c *Client) Close() error {
	return c.server.Shutdown(shutdownTimeout)
}
