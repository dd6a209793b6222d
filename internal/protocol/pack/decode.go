package pack

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/netip"
	"unicode/utf8"
)

// Decode unpacks b according to sig and returns the value with the number
// of bytes consumed. Single-element signatures yield the bare value,
// longer ones a []any. b is never retained: data values are copies.
func Decode(sig Signature, b []byte) (any, int, error) {
	vals, n, err := decodeSeq(sig.nodes, b, 0)
	if err != nil {
		return nil, 0, err
	}
	return gather(sig.nodes, vals), n, nil
}

func gather(nodes []Node, vals []any) any {
	switch len(nodes) {
	case 0:
		return nil
	case 1:
		return vals[0]
	default:
		return vals
	}
}

// decodeSeq decodes nodes from b. base is the offset of b within the
// top-level payload, for error reporting.
func decodeSeq(nodes []Node, b []byte, base int) ([]any, int, error) {
	vals := make([]any, 0, len(nodes))
	pos := 0
	for _, n := range nodes {
		v, used, err := decodeNode(n, b[pos:], base+pos)
		if err != nil {
			return nil, 0, decodeErr(n, base+pos, err)
		}
		vals = append(vals, v)
		pos += used
	}
	return vals, pos, nil
}

func decodeNode(n Node, b []byte, off int) (any, int, error) {
	if w := fixedWidth(n.Kind); len(b) < w {
		return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, w, len(b))
	}
	switch n.Kind {
	case KindVoid:
		return nil, 0, nil
	case KindBool:
		switch b[0] {
		case 0:
			return false, 1, nil
		case 1:
			return true, 1, nil
		default:
			return nil, 0, fmt.Errorf("%w: 0x%02x", ErrInvalidBool, b[0])
		}
	case KindUint8:
		return b[0], 1, nil
	case KindInt8:
		return int8(b[0]), 1, nil
	case KindUint16:
		return binary.LittleEndian.Uint16(b), 2, nil
	case KindInt16:
		return int16(binary.LittleEndian.Uint16(b)), 2, nil
	case KindUint32:
		return binary.LittleEndian.Uint32(b), 4, nil
	case KindInt32:
		return int32(binary.LittleEndian.Uint32(b)), 4, nil
	case KindUint64:
		return binary.LittleEndian.Uint64(b), 8, nil
	case KindInt64:
		return int64(binary.LittleEndian.Uint64(b)), 8, nil
	case KindPacked:
		v, used, err := decodePacked(b)
		if err != nil {
			return nil, 0, err
		}
		return v, used, nil
	case KindIPv6:
		return netip.AddrFrom16([16]byte(b[:16])), 16, nil
	case KindEUI64:
		return EUI64(b[:8]), 8, nil
	case KindEUI48:
		return EUI48(b[:6]), 6, nil
	case KindUTF8:
		end := bytes.IndexByte(b, 0)
		if end < 0 {
			return nil, 0, ErrUnterminatedString
		}
		if !utf8.Valid(b[:end]) {
			return nil, 0, ErrInvalidUTF8
		}
		return string(b[:end]), end + 1, nil
	case KindShortUTF8:
		size := int(b[0])
		if len(b) < 1+size {
			return nil, 0, fmt.Errorf("%w: string length %d, have %d", ErrTruncated, size, len(b)-1)
		}
		if !utf8.Valid(b[1 : 1+size]) {
			return nil, 0, ErrInvalidUTF8
		}
		return string(b[1 : 1+size]), 1 + size, nil
	case KindData:
		size := int(binary.LittleEndian.Uint16(b))
		if len(b) < 2+size {
			return nil, 0, fmt.Errorf("%w: data length %d, have %d", ErrTruncated, size, len(b)-2)
		}
		return bytes.Clone(b[2 : 2+size]), 2 + size, nil
	case KindGreedyData:
		out := make([]byte, len(b))
		copy(out, b)
		return out, len(b), nil
	case KindStruct:
		size := int(binary.LittleEndian.Uint16(b))
		if len(b) < 2+size {
			return nil, 0, fmt.Errorf("%w: struct length %d, have %d", ErrTruncated, size, len(b)-2)
		}
		// Trailing bytes inside a struct belong to fields this host does
		// not know about yet.
		vals, _, err := decodeSeq(n.Fields, b[2:2+size], off+2)
		if err != nil {
			return nil, 0, err
		}
		return vals, 2 + size, nil
	case KindArray:
		items := []any{}
		pos := 0
		for pos < len(b) {
			vals, used, err := decodeSeq(n.Fields, b[pos:], off+pos)
			if err != nil {
				return nil, 0, err
			}
			items = append(items, gather(n.Fields, vals))
			pos += used
		}
		return items, pos, nil
	default:
		return nil, 0, fmt.Errorf("%w: kind %d", ErrInvalidSignature, n.Kind)
	}
}

func fixedWidth(k Kind) int {
	switch k {
	case KindBool, KindUint8, KindInt8, KindShortUTF8:
		return 1
	case KindUint16, KindInt16, KindData, KindStruct:
		return 2
	case KindUint32, KindInt32:
		return 4
	case KindUint64, KindInt64, KindEUI64:
		return 8
	case KindEUI48:
		return 6
	case KindIPv6:
		return 16
	default:
		return 0
	}
}
