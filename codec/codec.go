// Package codec implements the self-describing object codec and the codecs
// that back its opaque blob escape hatch.
//
// Every encoded value starts with an int32 Tag drawn from a closed set. The
// tag alone selects the decoded Go shape, so the wire form is independent of
// the container type the sender happened to use. Open-ended polymorphism goes
// through two id → factory registries (protocol envelopes and application
// transferables) instead of a schema compiler.
package codec

// CodecType identifies a body codec on the transport frame.
type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeGob    CodecType = 1
	CodecTypeObject CodecType = 2
)

// Codec turns a value into bytes and back.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=Gob, 2=Object
}

// GetCodec returns a stateless codec for the blob escape hatch.
// The object codec needs registries and is built with NewObjectCodec instead.
func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}

	return &GobCodec{}
}
