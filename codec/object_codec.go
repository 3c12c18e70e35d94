package codec

import (
	"errors"
	"fmt"
	"reflect"

	"lane-rpc/buffer"
	"lane-rpc/message"
)

// ObjectCodec is the tagged object codec. It is safe for concurrent use once
// its registries are populated; each Encode/Decode works on its own buffer.
type ObjectCodec struct {
	protocols     *Registry
	transferables *Registry
	enums         *EnumTable
	messages      message.Factory
	blob          Codec
}

// Option configures an ObjectCodec.
type Option func(*ObjectCodec)

// WithTransferables sets the pluggable registry for application types.
func WithTransferables(reg *Registry) Option {
	return func(c *ObjectCodec) { c.transferables = reg }
}

// WithEnums sets the table used to resolve enum constants by name.
func WithEnums(t *EnumTable) Option {
	return func(c *ObjectCodec) { c.enums = t }
}

// WithMessages sets the factory for framed messages.
func WithMessages(f message.Factory) Option {
	return func(c *ObjectCodec) { c.messages = f }
}

// WithBlobCodec replaces the default gob codec behind Blob values.
func WithBlobCodec(blob Codec) Option {
	return func(c *ObjectCodec) { c.blob = blob }
}

// NewObjectCodec builds a codec over the fixed protocol registry.
func NewObjectCodec(protocols *Registry, opts ...Option) *ObjectCodec {
	c := &ObjectCodec{
		protocols:     protocols,
		transferables: NewRegistry("transferable"),
		enums:         NewEnumTable(),
		blob:          &GobCodec{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transferables returns the pluggable registry.
func (c *ObjectCodec) Transferables() *Registry { return c.transferables }

// Enums returns the enum table.
func (c *ObjectCodec) Enums() *EnumTable { return c.enums }

func (c *ObjectCodec) NewWriter(buf *buffer.Buffer) *Writer {
	return &Writer{buf: buf, codec: c}
}

func (c *ObjectCodec) NewReader(buf *buffer.Buffer) *Reader {
	return &Reader{buf: buf, codec: c}
}

// Encode returns the tagged encoding of v.
func (c *ObjectCodec) Encode(v any) ([]byte, error) {
	buf := buffer.New(nil)
	if err := c.NewWriter(buf).Write(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads one tagged value from data into v, which must be a non-nil
// pointer. *any receives the value as decoded; any other pointer receives
// it if the decoded value is assignable to the pointed-to type.
func (c *ObjectCodec) Decode(data []byte, v any) error {
	val, err := c.NewReader(buffer.New(data)).Read()
	if err != nil {
		return err
	}
	if p, ok := v.(*any); ok {
		*p = val
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return decodeError(tagNone, errors.New("target must be a non-nil pointer"))
	}
	elem := rv.Elem()
	if val == nil {
		elem.SetZero()
		return nil
	}
	dv := reflect.ValueOf(val)
	if !dv.Type().AssignableTo(elem.Type()) {
		return decodeError(tagNone, fmt.Errorf("cannot assign %T to %s", val, elem.Type()))
	}
	elem.Set(dv)
	return nil
}

func (c *ObjectCodec) Type() CodecType {
	return CodecTypeObject
}
