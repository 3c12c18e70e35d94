// Package protocol defines the built-in wire envelopes exchanged between
// servers, the fixed registry that decodes them, CallID correlation tokens,
// and the transport frame that carries an encoded envelope on a stream.
//
// Every envelope embeds Base, so the originating server id is always the
// first field on the wire; a variant's own fields follow in declaration order.
package protocol

import (
	"fmt"

	"lane-rpc/codec"
)

// Fixed registry ids.
const (
	HandshakeID int32 = 1
	PingPongID  int32 = 2
	RequestID   int32 = 3
	ResponseID  int32 = 4
)

// Protocol is a wire envelope.
type Protocol interface {
	codec.Transferable
	Origin() int32
}

// Dispatcher receives envelopes decoded from a connector.
type Dispatcher interface {
	Dispatch(p Protocol)
}

// Base carries the id of the server that produced the envelope.
type Base struct {
	ServerID int32
}

func (b *Base) Origin() int32 { return b.ServerID }

func (b *Base) TransferTo(w *codec.Writer) error {
	return w.Write(b.ServerID)
}

func (b *Base) TransferFrom(r *codec.Reader) (err error) {
	b.ServerID, err = codec.ReadAs[int32](r)
	return err
}

var registry = newRegistry()

// newRegistry builds the fixed envelope registry once, at package init,
// before any worker or connector can decode.
func newRegistry() *codec.Registry {
	reg := codec.NewRegistry("protocol")
	reg.MustRegister(HandshakeID, func() codec.Transferable { return &Handshake{} })
	reg.MustRegister(PingPongID, func() codec.Transferable { return &PingPong{} })
	reg.MustRegister(RequestID, func() codec.Transferable { return &Request{} })
	reg.MustRegister(ResponseID, func() codec.Transferable { return &Response{} })
	return reg
}

// Registry returns the fixed envelope registry.
func Registry() *codec.Registry { return registry }

// KindOf returns the registry id of p.
func KindOf(p Protocol) (int32, error) {
	id, ok := registry.IDOf(p)
	if !ok {
		return 0, fmt.Errorf("protocol: %T is not a registered envelope", p)
	}
	return id, nil
}

// NewCodec returns an object codec bound to the fixed envelope registry.
func NewCodec(opts ...codec.Option) *codec.ObjectCodec {
	return codec.NewObjectCodec(registry, opts...)
}
