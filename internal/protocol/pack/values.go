package pack

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"strings"
)

// EUI64 is an 8-byte extended unique identifier ('E').
type EUI64 [8]byte

// EUI48 is a 6-byte extended unique identifier ('e').
type EUI48 [6]byte

func (e EUI64) String() string { return hex.EncodeToString(e[:]) }
func (e EUI48) String() string { return hex.EncodeToString(e[:]) }

func (e EUI64) MarshalText() ([]byte, error) { return []byte(e.String()), nil }
func (e EUI48) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// Uint returns v as an unsigned integer. Any Go integer kind is accepted,
// as are integral float64 and json.Number values from JSON input.
func Uint(v any) (uint64, error) {
	switch x := v.(type) {
	case uint8:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint64:
		return x, nil
	case uint:
		return uint64(x), nil
	case int, int8, int16, int32, int64:
		i, _ := Int(x)
		if i < 0 {
			return 0, fmt.Errorf("%w: %d", ErrValueRange, i)
		}
		return uint64(i), nil
	case float64:
		if x < 0 || x != math.Trunc(x) || x >= math.MaxUint64 {
			return 0, fmt.Errorf("%w: %v", ErrValueRange, x)
		}
		return uint64(x), nil
	case json.Number:
		u, err := strconv.ParseUint(x.String(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrValueRange, x.String())
		}
		return u, nil
	default:
		return 0, fmt.Errorf("%w: want integer, got %T", ErrValueType, v)
	}
}

// Int returns v as a signed integer, with the same leniency as Uint.
func Int(v any) (int64, error) {
	switch x := v.(type) {
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case uint8, uint16, uint32, uint64, uint:
		u, _ := Uint(x)
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d", ErrValueRange, u)
		}
		return int64(u), nil
	case float64:
		if x != math.Trunc(x) || x < math.MinInt64 || x >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: %v", ErrValueRange, x)
		}
		return int64(x), nil
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrValueRange, x.String())
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: want integer, got %T", ErrValueType, v)
	}
}

// Bool returns v as a bool.
func Bool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	default:
		u, err := Uint(v)
		if err != nil {
			return false, fmt.Errorf("%w: want bool, got %T", ErrValueType, v)
		}
		switch u {
		case 0:
			return false, nil
		case 1:
			return true, nil
		default:
			return false, ErrInvalidBool
		}
	}
}

// Bytes returns v as raw data. Strings are taken as hex.
func Bytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		b, err := hex.DecodeString(strings.ReplaceAll(x, ":", ""))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValueType, err)
		}
		return b, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: want bytes, got %T", ErrValueType, v)
	}
}

// Text returns v as a string.
func Text(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case fmt.Stringer:
		return x.String(), nil
	default:
		return "", fmt.Errorf("%w: want string, got %T", ErrValueType, v)
	}
}

// List returns v as a slice of values.
func List(v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case nil:
		return nil, nil
	case []uint8:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, nil
	case []uint32:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: want list, got %T", ErrValueType, v)
	}
}

func addr(v any) (netip.Addr, error) {
	switch x := v.(type) {
	case netip.Addr:
		if !x.Is6() {
			return netip.Addr{}, fmt.Errorf("%w: %s is not ipv6", ErrValueType, x)
		}
		return x, nil
	case string:
		a, err := netip.ParseAddr(x)
		if err != nil || !a.Is6() {
			return netip.Addr{}, fmt.Errorf("%w: %q is not ipv6", ErrValueType, x)
		}
		return a, nil
	default:
		return netip.Addr{}, fmt.Errorf("%w: want ipv6 address, got %T", ErrValueType, v)
	}
}

func eui(v any, size int) ([]byte, error) {
	switch x := v.(type) {
	case EUI64:
		v = x[:]
	case EUI48:
		v = x[:]
	}
	b, err := Bytes(v)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, fmt.Errorf("%w: eui length %d, want %d", ErrValueRange, len(b), size)
	}
	return b, nil
}
