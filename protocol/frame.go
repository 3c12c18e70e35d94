package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Transport frame: a fixed 10-byte header followed by a codec-encoded envelope.
// The receiver reads the header first to learn the body length, then reads
// exactly that many bytes, which keeps frame boundaries intact on a stream
// even when one body fails to decode.
//
//	0      3  4  5  6          10
//	┌──────┬──┬──┬──┬──────────┬───────────────┐
//	│magic │v │ct│k │ bodyLen  │    body ...    │
//	│ lrp  │01│  │  │ uint32   │ bodyLen bytes  │
//	└──────┴──┴──┴──┴──────────┴───────────────┘
const (
	MagicNumber byte = 0x6c // 'l'
	MagicByte2  byte = 0x72 // 'r'
	MagicByte3  byte = 0x70 // 'p'
	Version     byte = 0x01
	HeaderSize  int  = 10 // 3 (magic) + 1 (version) + 1 (codec) + 1 (kind) + 4 (bodyLen)

	// MaxBodyLen bounds the allocation a peer can force with one header.
	MaxBodyLen uint32 = 16 << 20
)

// Header is the fixed frame header.
type Header struct {
	CodecType byte  // Body codec, see codec.CodecType
	Kind      int32 // Envelope registry id (HandshakeID..ResponseID)
	BodyLen   uint32
}

// WriteFrame writes a complete frame (header + body) to w.
// The caller must serialize concurrent writers on the same stream.
func WriteFrame(w io.Writer, h *Header, body []byte) error {
	buf := make([]byte, HeaderSize, HeaderSize+len(body))

	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.Kind)
	binary.BigEndian.PutUint32(buf[6:10], h.BodyLen)

	// One write per frame so a partial failure never leaves a header without its body queued.
	_, err := w.Write(append(buf, body...))
	return err
}

// ReadFrame reads a complete frame (header + body) from r.
func ReadFrame(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}

	kind := int32(headerBuf[5])
	if kind < HandshakeID || kind > ResponseID {
		return nil, nil, fmt.Errorf("unsupported envelope kind: %d", kind)
	}

	bodyLen := binary.BigEndian.Uint32(headerBuf[6:10])
	if bodyLen > MaxBodyLen {
		return nil, nil, fmt.Errorf("body length %d exceeds limit %d", bodyLen, MaxBodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		CodecType: headerBuf[4],
		Kind:      kind,
		BodyLen:   bodyLen,
	}, body, nil
}
