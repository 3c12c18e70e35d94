package codec

import (
	"bytes"
	"encoding/gob"
)

// GobCodec serializes with encoding/gob. It is the default blob codec:
// concrete types carried inside a Blob must be registered with
// RegisterBlobType on both ends, and the format is only as stable as the
// Go types it was produced from.
type GobCodec struct{}

// RegisterBlobType makes the concrete type of v known to the gob blob codec.
func RegisterBlobType(v any) {
	gob.Register(v)
}

func (c *GobCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *GobCodec) Decode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (c *GobCodec) Type() CodecType {
	return CodecTypeGob
}
