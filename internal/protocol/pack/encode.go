package pack

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// Encode packs v according to sig. A single-element signature takes the
// bare value; longer signatures take a []any with one entry per element.
func Encode(sig Signature, v any) ([]byte, error) {
	return AppendEncode(nil, sig, v)
}

// AppendEncode is Encode appending to dst.
func AppendEncode(dst []byte, sig Signature, v any) ([]byte, error) {
	if sig.Empty() && v != nil {
		return nil, &CodecError{Op: "encode", Format: sig.raw, Err: fmt.Errorf("%w: value given for an empty signature", ErrArity)}
	}
	vals, err := spread(sig.nodes, v)
	if err != nil {
		return nil, &CodecError{Op: "encode", Format: sig.raw, Err: err}
	}
	return encodeSeq(dst, sig.nodes, vals)
}

// spread maps a caller value onto a node sequence.
func spread(nodes []Node, v any) ([]any, error) {
	switch len(nodes) {
	case 0:
		return nil, nil
	case 1:
		return []any{v}, nil
	}
	vals, err := List(v)
	if err != nil {
		return nil, err
	}
	if len(vals) != len(nodes) {
		return nil, fmt.Errorf("%w: got %d values for %d elements", ErrArity, len(vals), len(nodes))
	}
	return vals, nil
}

func encodeSeq(dst []byte, nodes []Node, vals []any) ([]byte, error) {
	var err error
	for i, n := range nodes {
		off := len(dst)
		dst, err = encodeNode(dst, n, vals[i])
		if err != nil {
			return nil, encodeErr(n, off, err)
		}
	}
	return dst, nil
}

func encodeNode(dst []byte, n Node, v any) ([]byte, error) {
	switch n.Kind {
	case KindVoid:
		return dst, nil
	case KindBool:
		b, err := Bool(v)
		if err != nil {
			return nil, err
		}
		if b {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil
	case KindUint8, KindUint16, KindUint32, KindUint64:
		u, err := Uint(v)
		if err != nil {
			return nil, err
		}
		return appendUint(dst, n.Kind, u)
	case KindInt8, KindInt16, KindInt32, KindInt64:
		i, err := Int(v)
		if err != nil {
			return nil, err
		}
		return appendInt(dst, n.Kind, i)
	case KindPacked:
		u, err := Uint(v)
		if err != nil {
			return nil, err
		}
		if u > math.MaxUint32 {
			return nil, fmt.Errorf("%w: %d", ErrValueRange, u)
		}
		return AppendPacked(dst, uint32(u)), nil
	case KindIPv6:
		a, err := addr(v)
		if err != nil {
			return nil, err
		}
		b := a.As16()
		return append(dst, b[:]...), nil
	case KindEUI64:
		b, err := eui(v, 8)
		if err != nil {
			return nil, err
		}
		return append(dst, b...), nil
	case KindEUI48:
		b, err := eui(v, 6)
		if err != nil {
			return nil, err
		}
		return append(dst, b...), nil
	case KindUTF8:
		s, err := Text(v)
		if err != nil {
			return nil, err
		}
		if !utf8.ValidString(s) {
			return nil, ErrInvalidUTF8
		}
		if strings.IndexByte(s, 0) >= 0 {
			return nil, fmt.Errorf("%w: embedded nul", ErrValueRange)
		}
		dst = append(dst, s...)
		return append(dst, 0), nil
	case KindShortUTF8:
		s, err := Text(v)
		if err != nil {
			return nil, err
		}
		if !utf8.ValidString(s) {
			return nil, ErrInvalidUTF8
		}
		if len(s) > math.MaxUint8 {
			return nil, fmt.Errorf("%w: string length %d", ErrValueRange, len(s))
		}
		dst = append(dst, byte(len(s)))
		return append(dst, s...), nil
	case KindData:
		b, err := Bytes(v)
		if err != nil {
			return nil, err
		}
		if len(b) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: data length %d", ErrValueRange, len(b))
		}
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(b)))
		return append(dst, b...), nil
	case KindGreedyData:
		b, err := Bytes(v)
		if err != nil {
			return nil, err
		}
		return append(dst, b...), nil
	case KindStruct:
		vals, err := structValues(n, v)
		if err != nil {
			return nil, err
		}
		body, err := encodeSeq(nil, n.Fields, vals)
		if err != nil {
			return nil, err
		}
		if len(body) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: struct length %d", ErrValueRange, len(body))
		}
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(body)))
		return append(dst, body...), nil
	case KindArray:
		items, err := List(v)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			vals, err := spread(n.Fields, item)
			if err != nil {
				return nil, err
			}
			dst, err = encodeSeq(dst, n.Fields, vals)
			if err != nil {
				return nil, err
			}
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrInvalidSignature, n.Kind)
	}
}

// structValues always takes a []any, even for one-field structs, so
// decoded structs can be fed straight back in.
func structValues(n Node, v any) ([]any, error) {
	vals, err := List(v)
	if err != nil {
		return nil, err
	}
	if len(vals) != len(n.Fields) {
		return nil, fmt.Errorf("%w: got %d values for %s", ErrArity, len(vals), n)
	}
	return vals, nil
}

func appendUint(dst []byte, k Kind, u uint64) ([]byte, error) {
	switch k {
	case KindUint8:
		if u > math.MaxUint8 {
			return nil, fmt.Errorf("%w: %d", ErrValueRange, u)
		}
		return append(dst, byte(u)), nil
	case KindUint16:
		if u > math.MaxUint16 {
			return nil, fmt.Errorf("%w: %d", ErrValueRange, u)
		}
		return binary.LittleEndian.AppendUint16(dst, uint16(u)), nil
	case KindUint32:
		if u > math.MaxUint32 {
			return nil, fmt.Errorf("%w: %d", ErrValueRange, u)
		}
		return binary.LittleEndian.AppendUint32(dst, uint32(u)), nil
	default:
		return binary.LittleEndian.AppendUint64(dst, u), nil
	}
}

func appendInt(dst []byte, k Kind, i int64) ([]byte, error) {
	switch k {
	case KindInt8:
		if i < math.MinInt8 || i > math.MaxInt8 {
			return nil, fmt.Errorf("%w: %d", ErrValueRange, i)
		}
		return append(dst, byte(int8(i))), nil
	case KindInt16:
		if i < math.MinInt16 || i > math.MaxInt16 {
			return nil, fmt.Errorf("%w: %d", ErrValueRange, i)
		}
		return binary.LittleEndian.AppendUint16(dst, uint16(int16(i))), nil
	case KindInt32:
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, fmt.Errorf("%w: %d", ErrValueRange, i)
		}
		return binary.LittleEndian.AppendUint32(dst, uint32(int32(i))), nil
	default:
		return binary.LittleEndian.AppendUint64(dst, uint64(i)), nil
	}
}
