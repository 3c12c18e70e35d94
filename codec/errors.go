package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode matches every error returned by the decode path.
	ErrDecode = errors.New("codec: decode failed")

	ErrUnknownTag      = errors.New("codec: unknown type tag")
	ErrUnknownID       = errors.New("codec: no factory registered for id")
	ErrDuplicateID     = errors.New("codec: duplicate registry id")
	ErrUnsupportedType = errors.New("codec: unsupported type")
	ErrUnknownEnum     = errors.New("codec: unknown enum constant")
)

// DecodeError is the single error kind produced while decoding.
// It aborts only the decode operation that raised it.
type DecodeError struct {
	Tag Tag
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: decode %s failed: %v", e.Tag, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// decodeError wraps err once; nested reads keep the innermost tag.
func decodeError(tag Tag, err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{Tag: tag, Err: err}
}
