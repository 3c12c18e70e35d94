package message

import (
	"fmt"

	"lane-rpc/buffer"
)

// Frame is the default framed message:
//
//	┌────────┬─────────┬──────────────┐
//	│ id     │ bodyLen │ body ...     │
//	│ int32  │ int32   │ bodyLen bytes│
//	└────────┴─────────┴──────────────┘
type Frame struct {
	MsgID int32
	Body  []byte
}

// NewFrameFactory returns a Factory that produces an empty Frame for any id.
func NewFrameFactory() Factory {
	return func(id int32) (Message, error) {
		return &Frame{MsgID: id}, nil
	}
}

func (f *Frame) ID() int32 { return f.MsgID }

func (f *Frame) Encode(buf *buffer.Buffer) error {
	buf.WriteInt32(f.MsgID)
	buf.WriteBytes(f.Body)
	return nil
}

func (f *Frame) Decode(buf *buffer.Buffer) error {
	id, err := buf.ReadInt32()
	if err != nil {
		return err
	}
	if f.MsgID != 0 && id != f.MsgID {
		return fmt.Errorf("message: frame id %d does not match placeholder %d", id, f.MsgID)
	}
	f.MsgID = id
	f.Body, err = buf.ReadBytes()
	return err
}
