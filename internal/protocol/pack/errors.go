package pack

import (
	"errors"
	"fmt"
)

var (
	ErrCodec              = errors.New("pack: codec error")
	ErrInvalidSignature   = errors.New("pack: invalid signature")
	ErrTruncated          = errors.New("pack: truncated data")
	ErrInvalidBool        = errors.New("pack: invalid bool value")
	ErrMalformedPacked    = errors.New("pack: malformed packed integer")
	ErrUnterminatedString = errors.New("pack: unterminated string")
	ErrInvalidUTF8        = errors.New("pack: invalid utf-8")
	ErrValueType          = errors.New("pack: value type mismatch")
	ErrValueRange         = errors.New("pack: value out of range")
	ErrArity              = errors.New("pack: value count mismatch")
)

// CodecError reports where in a payload encoding or decoding failed.
// Every CodecError matches ErrCodec.
type CodecError struct {
	Op     string
	Format string
	Offset int
	Err    error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("pack: %s %s at offset %d: %v", e.Op, e.Format, e.Offset, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

func (e *CodecError) Is(target error) bool { return target == ErrCodec }

func decodeErr(n Node, off int, err error) error {
	var ce *CodecError
	if errors.As(err, &ce) {
		return err
	}
	return &CodecError{Op: "decode", Format: n.String(), Offset: off, Err: err}
}

func encodeErr(n Node, off int, err error) error {
	var ce *CodecError
	if errors.As(err, &ce) {
		return err
	}
	return &CodecError{Op: "encode", Format: n.String(), Offset: off, Err: err}
}
