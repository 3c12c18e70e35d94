package codec

import (
	"container/list"
	"errors"
	"fmt"
	"reflect"

	"lane-rpc/buffer"
)

// Reader decodes values from a buffer. Obtain one from ObjectCodec.NewReader.
type Reader struct {
	buf   *buffer.Buffer
	codec *ObjectCodec
}

// Buffer exposes the underlying cursor for Transferables that need raw access.
func (r *Reader) Buffer() *buffer.Buffer { return r.buf }

// Read decodes the next tagged value. Every failure is a *DecodeError.
func (r *Reader) Read() (any, error) {
	raw, err := r.buf.ReadInt32()
	if err != nil {
		return nil, decodeError(tagNone, err)
	}
	tag := Tag(raw)
	v, err := r.readTagged(tag)
	if err != nil {
		return nil, decodeError(tag, err)
	}
	return v, nil
}

// ReadAs decodes the next value and asserts its type. A null decodes to the
// zero value of T.
func ReadAs[T any](r *Reader) (T, error) {
	var zero T
	v, err := r.Read()
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, decodeError(tagNone, fmt.Errorf("expected %s, got %T", reflect.TypeOf((*T)(nil)).Elem(), v))
	}
	return t, nil
}

func (r *Reader) readTagged(tag Tag) (any, error) {
	switch tag {
	case TagNull:
		return nil, nil
	case TagByte:
		return r.buf.ReadInt8()
	case TagByteArray:
		return r.buf.ReadBytes()
	case TagBool:
		return r.buf.ReadBool()
	case TagBoolArray:
		return readArray(r, r.buf.ReadBool)
	case TagShort:
		return r.buf.ReadInt16()
	case TagShortArray:
		return readArray(r, r.buf.ReadInt16)
	case TagInt:
		return r.buf.ReadInt32()
	case TagOptionalInt:
		return readOptional(r, r.buf.ReadInt32)
	case TagIntArray:
		return readArray(r, r.buf.ReadInt32)
	case TagLong:
		return r.buf.ReadInt64()
	case TagOptionalLong:
		return readOptional(r, r.buf.ReadInt64)
	case TagLongArray:
		return readArray(r, r.buf.ReadInt64)
	case TagFloat:
		return r.buf.ReadFloat32()
	case TagFloatArray:
		return readArray(r, r.buf.ReadFloat32)
	case TagDouble:
		return r.buf.ReadFloat64()
	case TagOptionalDouble:
		return readOptional(r, r.buf.ReadFloat64)
	case TagDoubleArray:
		return readArray(r, r.buf.ReadFloat64)
	case TagString:
		return r.buf.ReadString()
	case TagStringArray:
		return readArray(r, r.buf.ReadString)
	case TagObject:
		return struct{}{}, nil
	case TagObjectArray:
		return r.readElems()
	case TagEnum:
		return r.readEnum()
	case TagList:
		elems, err := r.readElems()
		return List(elems), err
	case TagSortedSet:
		elems, err := r.readElems()
		if err != nil {
			return nil, err
		}
		return NewSortedSet(elems...), nil
	case TagHashSet:
		return r.readHashSet()
	case TagLinkedList:
		elems, err := r.readElems()
		if err != nil {
			return nil, err
		}
		l := list.New()
		for _, e := range elems {
			l.PushBack(e)
		}
		return l, nil
	case TagDeque:
		elems, err := r.readElems()
		return Deque(elems), err
	case TagHashMap:
		m := make(map[any]any)
		return m, r.readEntries(func(k, v any) { m[k] = v })
	case TagSortedMap:
		m := make(SortedMap)
		return m, r.readEntries(func(k, v any) { m[k] = v })
	case TagProtocol:
		return r.readRegistered(r.codec.protocols)
	case TagTransferable:
		return r.readRegistered(r.codec.transferables)
	case TagMessage:
		return r.readMessage()
	case TagBlob:
		return r.readBlob()
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownTag, int32(tag))
}

// length reads an element count and rejects counts the remaining bytes cannot hold.
func (r *Reader) length() (int, error) {
	n, err := r.buf.ReadLength()
	if err != nil {
		return 0, err
	}
	if n > r.buf.Len() {
		return 0, fmt.Errorf("length %d exceeds %d remaining bytes", n, r.buf.Len())
	}
	return n, nil
}

func (r *Reader) readElems() ([]any, error) {
	n, err := r.length()
	if err != nil {
		return nil, err
	}
	elems := make([]any, n)
	for i := range elems {
		if elems[i], err = r.Read(); err != nil {
			return nil, err
		}
	}
	return elems, nil
}

func (r *Reader) readHashSet() (HashSet, error) {
	elems, err := r.readElems()
	if err != nil {
		return nil, err
	}
	s := make(HashSet, len(elems))
	for _, e := range elems {
		if !hashable(e) {
			return nil, fmt.Errorf("set element of type %T is not comparable", e)
		}
		s[e] = struct{}{}
	}
	return s, nil
}

func (r *Reader) readEntries(put func(k, v any)) error {
	n, err := r.length()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		k, err := r.Read()
		if err != nil {
			return err
		}
		if !hashable(k) {
			return fmt.Errorf("map key of type %T is not comparable", k)
		}
		v, err := r.Read()
		if err != nil {
			return err
		}
		put(k, v)
	}
	return nil
}

func (r *Reader) readEnum() (Enum, error) {
	typeName, err := r.buf.ReadString()
	if err != nil {
		return nil, err
	}
	name, err := r.buf.ReadString()
	if err != nil {
		return nil, err
	}
	return r.codec.enums.Resolve(typeName, name)
}

func (r *Reader) readRegistered(reg *Registry) (Transferable, error) {
	id, err := r.buf.ReadInt32()
	if err != nil {
		return nil, err
	}
	t, err := reg.Create(id)
	if err != nil {
		return nil, err
	}
	if err := t.TransferFrom(r); err != nil {
		return nil, err
	}
	return t, nil
}

// readMessage peeks the frame id, then lets the placeholder consume the whole frame.
func (r *Reader) readMessage() (any, error) {
	if r.codec.messages == nil {
		return nil, errors.New("no message factory configured")
	}
	r.buf.Mark()
	id, err := r.buf.ReadInt32()
	r.buf.Reset()
	if err != nil {
		return nil, err
	}
	msg, err := r.codec.messages(id)
	if err != nil {
		return nil, err
	}
	if err := msg.Decode(r.buf); err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *Reader) readBlob() (Blob, error) {
	data, err := r.buf.ReadBytes()
	if err != nil {
		return Blob{}, err
	}
	var env blobEnvelope
	if err := r.codec.blob.Decode(data, &env); err != nil {
		return Blob{}, fmt.Errorf("blob: %w", err)
	}
	return Blob{Value: env.V}, nil
}

func readArray[T any](r *Reader, get func() (T, error)) ([]T, error) {
	n, err := r.length()
	if err != nil {
		return nil, err
	}
	out := make([]T, n)
	for i := range out {
		if out[i], err = get(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readOptional[T int32 | int64 | float64](r *Reader, get func() (T, error)) (Optional[T], error) {
	valid, err := r.buf.ReadBool()
	if err != nil || !valid {
		return Optional[T]{}, err
	}
	v, err := get()
	return Optional[T]{Value: v, Valid: true}, err
}

// hashable checks the dynamic value: a struct with an interface field is
// comparable by type yet panics as a map key when the field holds a slice.
func hashable(v any) bool {
	return v == nil || reflect.ValueOf(v).Comparable()
}
