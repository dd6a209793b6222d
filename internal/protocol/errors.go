package protocol

import "errors"

var (
	ErrEmptyFrame       = errors.New("protocol: empty frame")
	ErrInvalidHeader    = errors.New("protocol: invalid header flag bits")
	ErrInvalidIID       = errors.New("protocol: interface id out of range")
	ErrMalformedCommand = errors.New("protocol: malformed command")
)
