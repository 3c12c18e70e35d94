// Package buffer provides the byte cursor the object codec reads and writes.
//
// All fixed-width values are big-endian (network byte order). Strings and raw
// byte blocks are prefixed with an int32 length. A single bookmark (Mark/Reset)
// lets a reader peek at a header and rewind without consuming it.
//
//	write side: append-only, grows as needed
//	read side:  off advances on every Read*, Mark saves off, Reset restores it
package buffer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrNegativeLength is returned when a length prefix on the wire is negative.
var ErrNegativeLength = errors.New("buffer: negative length prefix")

// Buffer is a growable byte slice with an independent read offset.
// It is not safe for concurrent use.
type Buffer struct {
	buf  []byte
	off  int // Read offset
	mark int // Saved read offset, -1 when unset
}

// New returns a Buffer whose unread portion is data.
// The buffer takes ownership of data.
func New(data []byte) *Buffer {
	return &Buffer{buf: data, mark: -1}
}

// Bytes returns the unread portion of the buffer.
func (b *Buffer) Bytes() []byte { return b.buf[b.off:] }

// Len returns the number of unread bytes.
func (b *Buffer) Len() int { return len(b.buf) - b.off }

// Mark remembers the current read offset.
func (b *Buffer) Mark() { b.mark = b.off }

// Reset rewinds the read offset to the last Mark. Without a mark it is a no-op.
func (b *Buffer) Reset() {
	if b.mark >= 0 {
		b.off = b.mark
		b.mark = -1
	}
}

func (b *Buffer) next(n int) ([]byte, error) {
	if n > b.Len() {
		return nil, fmt.Errorf("buffer: need %d bytes, have %d: %w", n, b.Len(), io.ErrUnexpectedEOF)
	}
	p := b.buf[b.off : b.off+n]
	b.off += n
	return p, nil
}

func (b *Buffer) WriteInt8(v int8) { b.buf = append(b.buf, byte(v)) }

func (b *Buffer) WriteBool(v bool) {
	if v {
		b.buf = append(b.buf, 1)
	} else {
		b.buf = append(b.buf, 0)
	}
}

func (b *Buffer) WriteInt16(v int16) { b.buf = binary.BigEndian.AppendUint16(b.buf, uint16(v)) }

func (b *Buffer) WriteInt32(v int32) { b.buf = binary.BigEndian.AppendUint32(b.buf, uint32(v)) }

func (b *Buffer) WriteInt64(v int64) { b.buf = binary.BigEndian.AppendUint64(b.buf, uint64(v)) }

func (b *Buffer) WriteFloat32(v float32) {
	b.buf = binary.BigEndian.AppendUint32(b.buf, math.Float32bits(v))
}

func (b *Buffer) WriteFloat64(v float64) {
	b.buf = binary.BigEndian.AppendUint64(b.buf, math.Float64bits(v))
}

// WriteString writes an int32 byte length followed by the UTF-8 bytes.
func (b *Buffer) WriteString(s string) {
	b.WriteInt32(int32(len(s)))
	b.buf = append(b.buf, s...)
}

// WriteBytes writes an int32 length followed by p.
func (b *Buffer) WriteBytes(p []byte) {
	b.WriteInt32(int32(len(p)))
	b.buf = append(b.buf, p...)
}

// WriteRaw appends p without a length prefix.
func (b *Buffer) WriteRaw(p []byte) { b.buf = append(b.buf, p...) }

func (b *Buffer) ReadInt8() (int8, error) {
	p, err := b.next(1)
	if err != nil {
		return 0, err
	}
	return int8(p[0]), nil
}

func (b *Buffer) ReadBool() (bool, error) {
	p, err := b.next(1)
	if err != nil {
		return false, err
	}
	return p[0] != 0, nil
}

func (b *Buffer) ReadInt16() (int16, error) {
	p, err := b.next(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(p)), nil
}

func (b *Buffer) ReadInt32() (int32, error) {
	p, err := b.next(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(p)), nil
}

func (b *Buffer) ReadInt64() (int64, error) {
	p, err := b.next(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(p)), nil
}

func (b *Buffer) ReadFloat32() (float32, error) {
	p, err := b.next(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(p)), nil
}

func (b *Buffer) ReadFloat64() (float64, error) {
	p, err := b.next(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(p)), nil
}

// ReadLength reads an int32 length prefix and rejects negative values.
func (b *Buffer) ReadLength() (int, error) {
	n, err := b.ReadInt32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeLength, n)
	}
	return int(n), nil
}

func (b *Buffer) ReadString() (string, error) {
	n, err := b.ReadLength()
	if err != nil {
		return "", err
	}
	p, err := b.next(n)
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// ReadBytes reads a length-prefixed block. The result is a copy.
func (b *Buffer) ReadBytes() ([]byte, error) {
	n, err := b.ReadLength()
	if err != nil {
		return nil, err
	}
	p, err := b.next(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, p)
	return out, nil
}

// ReadRaw consumes exactly n bytes without a length prefix. The result is a copy.
func (b *Buffer) ReadRaw(n int) ([]byte, error) {
	p, err := b.next(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, p)
	return out, nil
}
