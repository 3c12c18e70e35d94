package codec

import (
	"container/list"
	"fmt"
	"reflect"
	"slices"

	"lane-rpc/buffer"
	"lane-rpc/message"
)

// Writer encodes values onto a buffer. Obtain one from ObjectCodec.NewWriter.
type Writer struct {
	buf   *buffer.Buffer
	codec *ObjectCodec
}

// Buffer exposes the underlying cursor for Transferables that need raw access.
func (w *Writer) Buffer() *buffer.Buffer { return w.buf }

func (w *Writer) tag(t Tag) { w.buf.WriteInt32(int32(t)) }

// WriteAll writes each value in order and stops at the first error.
func (w *Writer) WriteAll(values ...any) error {
	for _, v := range values {
		if err := w.Write(v); err != nil {
			return err
		}
	}
	return nil
}

// Write encodes v with its tag.
func (w *Writer) Write(v any) error {
	if isNil(v) {
		w.tag(TagNull)
		return nil
	}

	switch x := v.(type) {
	case int8:
		w.tag(TagByte)
		w.buf.WriteInt8(x)
	case []byte:
		w.tag(TagByteArray)
		w.buf.WriteBytes(x)
	case bool:
		w.tag(TagBool)
		w.buf.WriteBool(x)
	case []bool:
		w.tag(TagBoolArray)
		writeArray(w, x, w.buf.WriteBool)
	case int16:
		w.tag(TagShort)
		w.buf.WriteInt16(x)
	case []int16:
		w.tag(TagShortArray)
		writeArray(w, x, w.buf.WriteInt16)
	case int32:
		w.tag(TagInt)
		w.buf.WriteInt32(x)
	case Optional[int32]:
		w.tag(TagOptionalInt)
		writeOptional(w, x, w.buf.WriteInt32)
	case []int32:
		w.tag(TagIntArray)
		writeArray(w, x, w.buf.WriteInt32)
	case int64:
		w.tag(TagLong)
		w.buf.WriteInt64(x)
	case int:
		// Go int has no fixed width; it travels as long and decodes as int64.
		w.tag(TagLong)
		w.buf.WriteInt64(int64(x))
	case Optional[int64]:
		w.tag(TagOptionalLong)
		writeOptional(w, x, w.buf.WriteInt64)
	case []int64:
		w.tag(TagLongArray)
		writeArray(w, x, w.buf.WriteInt64)
	case float32:
		w.tag(TagFloat)
		w.buf.WriteFloat32(x)
	case []float32:
		w.tag(TagFloatArray)
		writeArray(w, x, w.buf.WriteFloat32)
	case float64:
		w.tag(TagDouble)
		w.buf.WriteFloat64(x)
	case Optional[float64]:
		w.tag(TagOptionalDouble)
		writeOptional(w, x, w.buf.WriteFloat64)
	case []float64:
		w.tag(TagDoubleArray)
		writeArray(w, x, w.buf.WriteFloat64)
	case string:
		w.tag(TagString)
		w.buf.WriteString(x)
	case []string:
		w.tag(TagStringArray)
		writeArray(w, x, w.buf.WriteString)
	case struct{}:
		w.tag(TagObject)
	case []any:
		w.tag(TagObjectArray)
		return w.writeElems(x)
	case Enum:
		w.tag(TagEnum)
		w.buf.WriteString(x.EnumType())
		w.buf.WriteString(x.EnumName())
	case List:
		w.tag(TagList)
		return w.writeElems(x)
	case SortedSet:
		w.tag(TagSortedSet)
		sorted := slices.Clone(x)
		slices.SortFunc(sorted, compareKeys)
		return w.writeElems(sorted)
	case HashSet:
		w.tag(TagHashSet)
		w.buf.WriteInt32(int32(len(x)))
		for k := range x {
			if err := w.Write(k); err != nil {
				return err
			}
		}
	case *list.List:
		w.tag(TagLinkedList)
		w.buf.WriteInt32(int32(x.Len()))
		for e := x.Front(); e != nil; e = e.Next() {
			if err := w.Write(e.Value); err != nil {
				return err
			}
		}
	case Deque:
		w.tag(TagDeque)
		return w.writeElems(x)
	case map[any]any:
		w.tag(TagHashMap)
		w.buf.WriteInt32(int32(len(x)))
		for k, val := range x {
			if err := w.WriteAll(k, val); err != nil {
				return err
			}
		}
	case SortedMap:
		w.tag(TagSortedMap)
		w.buf.WriteInt32(int32(len(x)))
		for _, k := range x.Keys() {
			if err := w.WriteAll(k, x[k]); err != nil {
				return err
			}
		}
	case message.Message:
		w.tag(TagMessage)
		return x.Encode(w.buf)
	case Blob:
		return w.writeBlob(x)
	case Transferable:
		return w.writeTransferable(x)
	default:
		return w.writeReflect(v)
	}
	return nil
}

func (w *Writer) writeElems(elems []any) error {
	w.buf.WriteInt32(int32(len(elems)))
	for _, e := range elems {
		if err := w.Write(e); err != nil {
			return err
		}
	}
	return nil
}

// writeTransferable prefers the protocol registry so envelopes keep their own tag.
func (w *Writer) writeTransferable(t Transferable) error {
	if id, ok := w.codec.protocols.IDOf(t); ok {
		w.tag(TagProtocol)
		w.buf.WriteInt32(id)
		return t.TransferTo(w)
	}
	if id, ok := w.codec.transferables.IDOf(t); ok {
		w.tag(TagTransferable)
		w.buf.WriteInt32(id)
		return t.TransferTo(w)
	}
	return fmt.Errorf("%w: %T is not registered", ErrUnsupportedType, t)
}

func (w *Writer) writeBlob(b Blob) error {
	data, err := w.codec.blob.Encode(blobEnvelope{V: b.Value})
	if err != nil {
		return fmt.Errorf("codec: encode blob %T: %w", b.Value, err)
	}
	w.tag(TagBlob)
	w.buf.WriteBytes(data)
	return nil
}

// writeReflect covers slices and maps of element types without a dedicated tag.
func (w *Writer) writeReflect(v any) error {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		w.tag(TagList)
		w.buf.WriteInt32(int32(rv.Len()))
		for i := 0; i < rv.Len(); i++ {
			if err := w.Write(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		w.tag(TagHashMap)
		w.buf.WriteInt32(int32(rv.Len()))
		iter := rv.MapRange()
		for iter.Next() {
			if err := w.WriteAll(iter.Key().Interface(), iter.Value().Interface()); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

func writeArray[T any](w *Writer, values []T, put func(T)) {
	w.buf.WriteInt32(int32(len(values)))
	for _, v := range values {
		put(v)
	}
}

func writeOptional[T int32 | int64 | float64](w *Writer, o Optional[T], put func(T)) {
	w.buf.WriteBool(o.Valid)
	if o.Valid {
		put(o.Value)
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
