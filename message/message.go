// Package message defines framed messages: self-describing payloads whose
// frame format is owned by the application rather than by the object codec.
//
// The object codec never interprets a frame. It peeks the leading id, asks a
// Factory for an empty placeholder, and lets the placeholder consume its whole
// frame (id included) from the buffer.
package message

import (
	"fmt"

	"lane-rpc/buffer"
)

// Message is a framed payload. Encode writes the complete frame starting
// with the int32 id; Decode consumes the complete frame including that id.
type Message interface {
	ID() int32
	Encode(buf *buffer.Buffer) error
	Decode(buf *buffer.Buffer) error
}

// Factory returns an empty Message for the given id.
type Factory func(id int32) (Message, error)

// FactoryOf builds a Factory from a table of constructors.
func FactoryOf(ctors map[int32]func() Message) Factory {
	return func(id int32) (Message, error) {
		ctor, ok := ctors[id]
		if !ok {
			return nil, fmt.Errorf("message: no constructor for id %d", id)
		}
		return ctor(), nil
	}
}
