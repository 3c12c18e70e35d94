package transport

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"lane-rpc/codec"
	"lane-rpc/protocol"
)

const (
	DefaultDialTimeout       = 3 * time.Second
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultMaxMissedPongs    = 3
)

// TCPConnector is the link from this server to one remote server.
//
// With a Resolver it dials lazily from Update, throttled by a token bucket.
// Without one it only accepts: the Listener attaches the connection the
// remote server opens. Either way there is at most one active link.
type TCPConnector struct {
	localID  int32
	remoteID int32
	resolver Resolver
	codec    *codec.ObjectCodec

	dialTimeout time.Duration
	heartbeat   time.Duration
	maxMissed   int
	limiter     *rate.Limiter

	dispatcher protocol.Dispatcher
	dialing    atomic.Bool
	rtt        atomic.Int64

	mu       sync.Mutex
	link     *link
	closed   bool
	lastPing time.Time
	missed   int
}

// ConnectorOption configures a TCPConnector.
type ConnectorOption func(*TCPConnector)

func WithDialTimeout(d time.Duration) ConnectorOption {
	return func(c *TCPConnector) { c.dialTimeout = d }
}

// WithHeartbeat pings every interval and drops the link after maxMissed
// unanswered pings. A zero interval disables heartbeats.
func WithHeartbeat(interval time.Duration, maxMissed int) ConnectorOption {
	return func(c *TCPConnector) {
		c.heartbeat = interval
		if maxMissed > 0 {
			c.maxMissed = maxMissed
		}
	}
}

// WithDialRate limits dial attempts to r per second with the given burst.
func WithDialRate(r float64, burst int) ConnectorOption {
	return func(c *TCPConnector) { c.limiter = rate.NewLimiter(rate.Limit(r), burst) }
}

// WithCodec sets the codec shared with the Listener. It must be built on
// protocol.Registry, which protocol.NewCodec does.
func WithCodec(cdc *codec.ObjectCodec) ConnectorOption {
	return func(c *TCPConnector) {
		if cdc != nil {
			c.codec = cdc
		}
	}
}

// NewTCPConnector creates the connector from localID to remoteID. A nil
// resolver makes it accept-only.
func NewTCPConnector(localID, remoteID int32, resolver Resolver, opts ...ConnectorOption) *TCPConnector {
	c := &TCPConnector{
		localID:     localID,
		remoteID:    remoteID,
		resolver:    resolver,
		codec:       protocol.NewCodec(),
		dialTimeout: DefaultDialTimeout,
		heartbeat:   DefaultHeartbeatInterval,
		maxMissed:   DefaultMaxMissedPongs,
		limiter:     rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TCPConnector) logPrefix() string {
	return fmt.Sprintf("[TCPConnector %d->%d]", c.localID, c.remoteID)
}

func (c *TCPConnector) RemoteID() int32 { return c.remoteID }

// Start records the dispatcher and makes a first connection attempt.
// A peer that is not up yet is not an error; Update keeps retrying.
func (c *TCPConnector) Start(d protocol.Dispatcher) error {
	if d == nil {
		return errors.New("transport: nil dispatcher")
	}
	c.mu.Lock()
	c.dispatcher = d
	c.mu.Unlock()

	if c.resolver != nil && c.limiter.Allow() {
		if err := c.connect(); err != nil {
			log.Printf("%s initial connect: %v", c.logPrefix(), err)
		}
	}
	return nil
}

// Update redials a missing link and drives the heartbeat.
func (c *TCPConnector) Update() {
	c.mu.Lock()
	if c.closed || c.dispatcher == nil {
		c.mu.Unlock()
		return
	}
	l := c.link
	if l == nil {
		c.mu.Unlock()
		c.redial()
		return
	}

	if c.heartbeat <= 0 || time.Since(c.lastPing) < c.heartbeat {
		c.mu.Unlock()
		return
	}
	if c.missed >= c.maxMissed {
		c.mu.Unlock()
		log.Printf("%s %d pongs missed, dropping connection", c.logPrefix(), c.maxMissed)
		c.drop(l)
		return
	}
	c.missed++
	c.lastPing = time.Now()
	c.mu.Unlock()

	ping := &protocol.PingPong{Base: protocol.Base{ServerID: c.localID}, Time: time.Now().UnixNano()}
	if err := l.write(c.codec, ping); err != nil {
		log.Printf("%s ping: %v", c.logPrefix(), err)
		c.drop(l)
	}
}

// redial connects in the background so a slow dial never stalls the tick.
func (c *TCPConnector) redial() {
	if c.resolver == nil || !c.limiter.Allow() || !c.dialing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.dialing.Store(false)
		if err := c.connect(); err != nil {
			log.Printf("%s connect: %v", c.logPrefix(), err)
		}
	}()
}

func (c *TCPConnector) connect() error {
	addr, err := c.resolver.Resolve(c.remoteID)
	if err != nil {
		return err
	}
	conn, err := net.DialTimeout("tcp", addr, c.dialTimeout)
	if err != nil {
		return err
	}

	l := &link{conn: conn}
	hs := &protocol.Handshake{Base: protocol.Base{ServerID: c.localID}, Token: uuid.NewString()}
	if err := l.write(c.codec, hs); err != nil {
		conn.Close()
		return err
	}
	if !c.install(l) {
		conn.Close()
		return nil
	}
	log.Printf("%s connected to %s (token %s)", c.logPrefix(), addr, hs.Token)
	return nil
}

// attach adopts a connection the remote server opened. It reports false
// when this connector already has a link or is closed.
func (c *TCPConnector) attach(conn net.Conn) bool {
	if !c.install(&link{conn: conn}) {
		return false
	}
	log.Printf("%s attached inbound connection from %s", c.logPrefix(), conn.RemoteAddr())
	return true
}

func (c *TCPConnector) install(l *link) bool {
	c.mu.Lock()
	if c.closed || c.link != nil || c.dispatcher == nil {
		c.mu.Unlock()
		return false
	}
	c.link = l
	c.missed = 0
	c.lastPing = time.Now()
	d := c.dispatcher
	c.mu.Unlock()

	go c.readLoop(l, d)
	return true
}

func (c *TCPConnector) readLoop(l *link, d protocol.Dispatcher) {
	err := serve(l.conn, c.codec, d, c.logPrefix())
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if !closed {
		log.Printf("%s connection lost: %v", c.logPrefix(), err)
	}
	c.drop(l)
}

// drop closes l and clears it if it is still the active link.
func (c *TCPConnector) drop(l *link) {
	c.mu.Lock()
	if c.link == l {
		c.link = nil
	}
	c.mu.Unlock()
	l.conn.Close()
}

// SendProtocol writes p as one frame on the active link.
func (c *TCPConnector) SendProtocol(target int32, p protocol.Protocol) error {
	if target != c.remoteID {
		return fmt.Errorf("%w: connector for %d asked to reach %d", ErrUnknownServer, c.remoteID, target)
	}
	c.mu.Lock()
	l, closed := c.link, c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if l == nil {
		return fmt.Errorf("%w: server %d", ErrNotConnected, c.remoteID)
	}
	if err := l.write(c.codec, p); err != nil {
		c.drop(l)
		return err
	}
	return nil
}

// ObservePong resets the missed-pong count and records the round trip.
func (c *TCPConnector) ObservePong(p *protocol.PingPong) {
	c.mu.Lock()
	c.missed = 0
	c.mu.Unlock()
	if p.Time > 0 {
		c.rtt.Store(time.Now().UnixNano() - p.Time)
	}
}

// Connected reports whether a link is up.
func (c *TCPConnector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

// RTT returns the last measured heartbeat round trip.
func (c *TCPConnector) RTT() time.Duration {
	return time.Duration(c.rtt.Load())
}

func (c *TCPConnector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	l := c.link
	c.link = nil
	c.mu.Unlock()
	if l != nil {
		return l.conn.Close()
	}
	return nil
}
