package wire

import (
	"errors"
	"fmt"
)

// Sentinel errors for the wire codec.
var (
	// ErrStringTooLong indicates a string length above MaxStringLength.
	ErrStringTooLong = errors.New("string too long")

	// ErrNegativeLength indicates a negative string length.
	ErrNegativeLength = errors.New("negative string length")
)

// PrefixError reports an unknown string encoding prefix.
type PrefixError struct {
	Prefix byte
}

func (e *PrefixError) Error() string {
	return fmt.Sprintf("unknown string prefix %q", e.Prefix)
}

// KindError reports an enumerated field outside its valid range.
type KindError struct {
	Field string
	Value int32
}

func (e *KindError) Error() string {
	return fmt.Sprintf("invalid %s %d", e.Field, e.Value)
}
