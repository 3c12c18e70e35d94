package codec

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// Optional carries a value that may be absent.
type Optional[T int32 | int64 | float64] struct {
	Value T
	Valid bool
}

func Some[T int32 | int64 | float64](v T) Optional[T] { return Optional[T]{Value: v, Valid: true} }

func None[T int32 | int64 | float64]() Optional[T] { return Optional[T]{} }

// List is an ordered, index-addressed sequence (wire: list).
type List []any

// Deque is a double-ended queue; the wire keeps front-to-back order.
type Deque []any

// HashSet is an unordered set of comparable values.
type HashSet map[any]struct{}

func NewHashSet(items ...any) HashSet {
	s := make(HashSet, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

// SortedSet holds distinct values in ascending order. Build it with
// NewSortedSet; the encoder sorts again so a hand-built literal still
// goes out in order.
type SortedSet []any

func NewSortedSet(items ...any) SortedSet {
	s := slices.Clone(items)
	slices.SortFunc(s, compareKeys)
	return slices.CompactFunc(s, func(a, b any) bool { return compareKeys(a, b) == 0 })
}

// SortedMap is a map whose entries are encoded and iterated in key order.
type SortedMap map[any]any

// Keys returns the keys in ascending order.
func (m SortedMap) Keys() []any {
	keys := make([]any, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// Blob is the opaque escape hatch: Value travels as a length-prefixed
// block produced by the blob codec. It is not portable across versions
// of the types it carries.
type Blob struct {
	Value any
}

type blobEnvelope struct {
	V any
}

// keyRank orders values of different kinds: nil < bool < integers < floats < strings < rest.
func keyRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return 2
	case float32, float64:
		return 3
	case string:
		return 4
	default:
		return 5
	}
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	}
	return 0
}

// compareInts orders unsigned values above MaxInt64 after every int64.
func compareInts(a, b any) int {
	ua, bigA := bigUnsigned(a)
	ub, bigB := bigUnsigned(b)
	switch {
	case bigA && bigB:
		return cmp.Compare(ua, ub)
	case bigA:
		return 1
	case bigB:
		return -1
	}
	return cmp.Compare(asInt64(a), asInt64(b))
}

func bigUnsigned(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint:
		return uint64(x), uint64(x) > math.MaxInt64
	case uint64:
		return x, x > math.MaxInt64
	}
	return 0, false
}

func asFloat64(v any) float64 {
	switch x := v.(type) {
	case float32:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

// compareKeys is the total order used by SortedSet and SortedMap.
func compareKeys(a, b any) int {
	ra, rb := keyRank(a), keyRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case 0:
		return 0
	case 1:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case 2:
		return compareInts(a, b)
	case 3:
		return cmp.Compare(asFloat64(a), asFloat64(b))
	case 4:
		return cmp.Compare(a.(string), b.(string))
	default:
		return cmp.Compare(fmt.Sprintf("%T:%v", a, a), fmt.Sprintf("%T:%v", b, b))
	}
}
