package frame

import (
	"errors"
	"fmt"

	"github.com/sigurn/crc16"
)

const (
	Flag      byte = 0x7E
	Escape    byte = 0x7D
	EscapeXOR byte = 0x20

	// FCSLen is the trailing CRC-16/X.25 checksum, little-endian.
	FCSLen = 2
)

var (
	// ErrIntegrity marks a frame that was dropped. The stream itself is
	// still usable; decoding resumes at the next flag byte.
	ErrIntegrity      = errors.New("frame: integrity error")
	ErrChecksum       = fmt.Errorf("%w: checksum mismatch", ErrIntegrity)
	ErrShortFrame     = fmt.Errorf("%w: frame shorter than checksum", ErrIntegrity)
	ErrFrameTooLarge  = fmt.Errorf("%w: frame too large", ErrIntegrity)
	ErrDanglingEscape = fmt.Errorf("%w: escape before flag", ErrIntegrity)

	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrEmptyPayload    = errors.New("frame: empty payload")
)

var fcsTable = crc16.MakeTable(crc16.CRC16_X_25)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxFrameLen int
}

func DefaultLimits() Limits {
	return Limits{
		MaxFrameLen: 2048,
	}
}

func (l Limits) maxFrameLen() int {
	if l.MaxFrameLen <= 0 {
		return DefaultLimits().MaxFrameLen
	}
	return l.MaxFrameLen
}

// Checksum returns the frame check sequence for payload.
func Checksum(payload []byte) uint16 {
	return crc16.Checksum(payload, fcsTable)
}

// Encode wraps payload in flags, appends the checksum and escapes every
// byte that could be mistaken for framing or software flow control.
func Encode(payload []byte) []byte {
	fcs := Checksum(payload)
	out := make([]byte, 0, len(payload)+len(payload)/8+6)
	out = append(out, Flag)
	for _, b := range payload {
		out = appendEscaped(out, b)
	}
	out = appendEscaped(out, byte(fcs))
	out = appendEscaped(out, byte(fcs>>8))
	return append(out, Flag)
}

func appendEscaped(dst []byte, b byte) []byte {
	if needsEscape(b) {
		return append(dst, Escape, b^EscapeXOR)
	}
	return append(dst, b)
}

func needsEscape(b byte) bool {
	switch b {
	case Flag, Escape, 0x11, 0x13, 0xF8:
		return true
	default:
		return false
	}
}
