package pack

import (
	"encoding/binary"
	"math"
)

// MaxPackedLen is the longest packed encoding of a uint32.
const MaxPackedLen = 5

// AppendPacked appends v as a packed unsigned integer: base-128, least
// significant group first, high bit set on every byte but the last.
func AppendPacked(dst []byte, v uint32) []byte {
	return binary.AppendUvarint(dst, uint64(v))
}

// DecodePacked reads one packed unsigned integer from b and returns it
// with the number of bytes consumed.
func DecodePacked(b []byte) (uint32, int, error) {
	v, n, err := decodePacked(b)
	if err != nil {
		return 0, 0, &CodecError{Op: "decode", Format: "i", Err: err}
	}
	return v, n, nil
}

func decodePacked(b []byte) (uint32, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrTruncated
	}
	limit := b
	if len(limit) > MaxPackedLen {
		limit = limit[:MaxPackedLen]
	}
	v, n := binary.Uvarint(limit)
	if n == 0 && len(limit) < MaxPackedLen {
		return 0, 0, ErrTruncated
	}
	if n <= 0 || v > math.MaxUint32 {
		return 0, 0, ErrMalformedPacked
	}
	return uint32(v), n, nil
}
