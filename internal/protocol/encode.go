package protocol

import "github.com/danmuck/spinelctl/internal/protocol/pack"

// EncodeFrame renders f as header byte, packed command id, then the
// packed property id (for property commands) and payload.
func EncodeFrame(f Frame) []byte {
	return AppendFrame(make([]byte, 0, 4+len(f.Command.Payload)), f)
}

// AppendFrame is EncodeFrame appending to dst.
func AppendFrame(dst []byte, f Frame) []byte {
	dst = append(dst, f.Header.Byte())
	dst = pack.AppendPacked(dst, uint32(f.Command.ID))
	if f.Command.ID.HasProperty() {
		dst = pack.AppendPacked(dst, uint32(f.Command.Property))
	}
	return append(dst, f.Command.Payload...)
}

// NewGet builds a PROP_VALUE_GET command.
func NewGet(prop PropertyID) Command {
	return Command{ID: CmdPropValueGet, Property: prop}
}

// NewSet builds a PROP_VALUE_SET command carrying an encoded value.
func NewSet(prop PropertyID, value []byte) Command {
	return Command{ID: CmdPropValueSet, Property: prop, Payload: value}
}

// NewInsert builds a PROP_VALUE_INSERT command carrying an encoded value.
func NewInsert(prop PropertyID, value []byte) Command {
	return Command{ID: CmdPropValueInsert, Property: prop, Payload: value}
}

// NewRemove builds a PROP_VALUE_REMOVE command carrying an encoded value.
func NewRemove(prop PropertyID, value []byte) Command {
	return Command{ID: CmdPropValueRemove, Property: prop, Payload: value}
}

// NewIs builds a PROP_VALUE_IS command, as sent by devices.
func NewIs(prop PropertyID, value []byte) Command {
	return Command{ID: CmdPropValueIs, Property: prop, Payload: value}
}

// NewLastStatus builds a PROP_VALUE_IS(LAST_STATUS) command.
func NewLastStatus(s Status) Command {
	return NewIs(PropLastStatus, pack.AppendPacked(nil, uint32(s)))
}
