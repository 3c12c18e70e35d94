package codec

import "strconv"

// Tag is the int32 discriminator written in front of every encoded value.
type Tag int32

const (
	TagNull Tag = iota
	TagByte
	TagByteArray
	TagBool
	TagBoolArray
	TagShort
	TagShortArray
	TagInt
	TagOptionalInt
	TagIntArray
	TagLong
	TagOptionalLong
	TagLongArray
	TagFloat
	TagFloatArray
	TagDouble
	TagOptionalDouble
	TagDoubleArray
	TagString
	TagStringArray
	TagObject
	TagObjectArray
	TagEnum
	TagList
	TagSortedSet
	TagHashSet
	TagLinkedList
	TagDeque
	TagHashMap
	TagSortedMap
	TagProtocol
	TagTransferable
	TagMessage
	TagBlob

	tagCount
)

// tagNone marks errors that are not tied to a single wire tag.
const tagNone Tag = -1

var tagNames = [tagCount]string{
	"null", "byte", "byte[]", "bool", "bool[]", "short", "short[]",
	"int", "optional<int>", "int[]", "long", "optional<long>", "long[]",
	"float", "float[]", "double", "optional<double>", "double[]",
	"string", "string[]", "object", "object[]", "enum",
	"list", "sorted-set", "hash-set", "linked-list", "deque",
	"hash-map", "sorted-map", "protocol", "transferable", "message", "blob",
}

// Valid reports whether t belongs to the closed tag set.
func (t Tag) Valid() bool { return t >= 0 && t < tagCount }

func (t Tag) String() string {
	if t.Valid() {
		return tagNames[t]
	}
	if t == tagNone {
		return "value"
	}
	return "Tag(" + strconv.Itoa(int(t)) + ")"
}
