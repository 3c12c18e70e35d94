package transport

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"lane-rpc/codec"
	"lane-rpc/protocol"
)

// Listener accepts connections from remote servers. The first frame of a
// connection must be a Handshake; the connection is then handed to the
// connector for that server if it has no link, or read here otherwise.
type Listener struct {
	localID    int32
	ln         net.Listener
	codec      *codec.ObjectCodec
	connectors map[int32]*TCPConnector

	// handshakeTimeout bounds the wait for the first frame.
	handshakeTimeout time.Duration

	shutdown atomic.Bool
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// Listen binds addr. cdc may be nil for the default protocol codec; it must
// match the codec of the connectors.
func Listen(addr string, localID int32, cdc *codec.ObjectCodec, connectors ...*TCPConnector) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if cdc == nil {
		cdc = protocol.NewCodec()
	}
	l := &Listener{
		localID:    localID,
		ln:         ln,
		codec:      cdc,
		connectors: make(map[int32]*TCPConnector, len(connectors)),
		conns:      make(map[net.Conn]struct{}),

		handshakeTimeout: DefaultDialTimeout,
	}
	for _, c := range connectors {
		l.connectors[c.RemoteID()] = c
	}
	return l, nil
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

func (l *Listener) logPrefix() string {
	return fmt.Sprintf("[Listener-%d]", l.localID)
}

// Serve runs the accept loop until Close. One goroutine per connection.
func (l *Listener) Serve(d protocol.Dispatcher) error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			// Close makes Accept fail; that is not an error for the caller.
			if l.shutdown.Load() {
				return nil
			}
			return err
		}
		l.track(conn, true)
		l.wg.Add(1)
		go l.handleConn(conn, d)
	}
}

func (l *Listener) track(conn net.Conn, add bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if add {
		l.conns[conn] = struct{}{}
	} else {
		delete(l.conns, conn)
	}
}

func (l *Listener) handleConn(conn net.Conn, d protocol.Dispatcher) {
	defer l.wg.Done()
	owned := true
	defer func() {
		l.track(conn, false)
		if owned {
			conn.Close()
		}
	}()

	conn.SetReadDeadline(time.Now().Add(l.handshakeTimeout))
	p, decodeErr, err := readEnvelope(conn, l.codec)
	conn.SetReadDeadline(time.Time{})
	if err == nil && decodeErr != nil {
		err = decodeErr
	}
	if err != nil {
		log.Printf("%s handshake from %s: %v", l.logPrefix(), conn.RemoteAddr(), err)
		return
	}
	hs, ok := p.(*protocol.Handshake)
	if !ok {
		log.Printf("%s %s opened with %T instead of a handshake", l.logPrefix(), conn.RemoteAddr(), p)
		return
	}
	d.Dispatch(hs)

	if c, ok := l.connectors[hs.ServerID]; ok && c.attach(conn) {
		owned = false
		return
	}

	err = serve(conn, l.codec, d, l.logPrefix())
	if !l.shutdown.Load() && !errors.Is(err, net.ErrClosed) {
		log.Printf("%s connection from server %d closed: %v", l.logPrefix(), hs.ServerID, err)
	}
}

// Close stops accepting, closes the connections read here and waits for
// their goroutines. Attached connections belong to their connectors.
func (l *Listener) Close() error {
	l.shutdown.Store(true)
	err := l.ln.Close()
	l.mu.Lock()
	for conn := range l.conns {
		conn.Close()
	}
	l.mu.Unlock()
	l.wg.Wait()
	return err
}
