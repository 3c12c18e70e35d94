// Package transport moves protocol envelopes between servers over TCP.
//
// Every connection starts with a Handshake frame carrying the dialer's
// server id. After that both sides may write frames; a single goroutine
// reads each connection, since frame boundaries are only recoverable by
// reading the stream in order.
//
//	node 1                                   node 2
//	TCPConnector(1→2) ──dial, Handshake{1}──► Listener
//	                  ◄── frames both ways ──  (attached to TCPConnector(2→1)
//	                                            when it has no link of its own)
package transport

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"lane-rpc/codec"
	"lane-rpc/protocol"
)

var (
	ErrUnknownServer = errors.New("transport: unknown server")
	ErrNotConnected  = errors.New("transport: not connected")
	ErrClosed        = errors.New("transport: closed")
)

// Resolver maps a server id to a dialable address. registry.EtcdRegistry
// and registry.MemoryRegistry satisfy it.
type Resolver interface {
	Resolve(serverID int32) (string, error)
}

// StaticResolver is a fixed id → address table, typically built from config.
type StaticResolver map[int32]string

func (r StaticResolver) Resolve(serverID int32) (string, error) {
	addr, ok := r[serverID]
	if !ok || addr == "" {
		return "", fmt.Errorf("%w: %d", ErrUnknownServer, serverID)
	}
	return addr, nil
}

// link is one TCP connection. Writers share it under writeMu so frames
// from concurrent lanes never interleave.
type link struct {
	conn    net.Conn
	writeMu sync.Mutex
}

func (l *link) write(cdc *codec.ObjectCodec, p protocol.Protocol) error {
	kind, err := protocol.KindOf(p)
	if err != nil {
		return err
	}
	body, err := cdc.Encode(p)
	if err != nil {
		return err
	}
	header := protocol.Header{
		CodecType: byte(cdc.Type()),
		Kind:      kind,
		BodyLen:   uint32(len(body)),
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return protocol.WriteFrame(l.conn, &header, body)
}

// readEnvelope reads and decodes the next frame. A frame whose body cannot
// be decoded yields a non-nil decodeErr and leaves the stream usable.
func readEnvelope(r io.Reader, cdc *codec.ObjectCodec) (p protocol.Protocol, decodeErr, err error) {
	header, body, err := protocol.ReadFrame(r)
	if err != nil {
		return nil, nil, err
	}
	if header.CodecType != byte(cdc.Type()) {
		return nil, fmt.Errorf("unsupported codec type %d", header.CodecType), nil
	}
	var v any
	if err := cdc.Decode(body, &v); err != nil {
		return nil, err, nil
	}
	p, ok := v.(protocol.Protocol)
	if !ok {
		return nil, fmt.Errorf("frame body is %T, not an envelope", v), nil
	}
	if kind, _ := protocol.KindOf(p); kind != header.Kind {
		return nil, fmt.Errorf("frame kind %d does not match envelope %T", header.Kind, p), nil
	}
	return p, nil, nil
}

// serve reads envelopes from conn and dispatches them until the stream fails.
// Bad frames, and frames whose decoding or dispatch panics, are logged and skipped.
func serve(conn net.Conn, cdc *codec.ObjectCodec, d protocol.Dispatcher, prefix string) error {
	for {
		if err := serveFrame(conn, cdc, d, prefix); err != nil {
			return err
		}
	}
}

// serveFrame handles one frame. The body is read in full before decoding,
// so a panic leaves the stream at the next frame boundary.
func serveFrame(conn net.Conn, cdc *codec.ObjectCodec, d protocol.Dispatcher, prefix string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("%s frame from %s panicked, skipped: %v", prefix, conn.RemoteAddr(), r)
			err = nil
		}
	}()
	p, decodeErr, err := readEnvelope(conn, cdc)
	if err != nil {
		return err
	}
	if decodeErr != nil {
		log.Printf("%s skip frame from %s: %v", prefix, conn.RemoteAddr(), decodeErr)
		return nil
	}
	d.Dispatch(p)
	return nil
}
