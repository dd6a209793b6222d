package protocol

import (
	"bytes"
	"fmt"

	"github.com/danmuck/spinelctl/internal/protocol/pack"
)

// DecodeFrame parses one de-framed Spinel message. Unknown command ids
// decode with their remaining bytes as payload. When the header is valid
// but the command is not, the parsed header is still returned alongside
// the error so the caller can route the failure.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	h, err := ParseHeader(b[0])
	if err != nil {
		return Frame{}, err
	}
	rest := b[1:]

	id, n, err := pack.DecodePacked(rest)
	if err != nil {
		return Frame{Header: h}, fmt.Errorf("%w: command id: %w", ErrMalformedCommand, err)
	}
	rest = rest[n:]
	cmd := Command{ID: CommandID(id)}

	if cmd.ID.HasProperty() {
		prop, n, err := pack.DecodePacked(rest)
		if err != nil {
			return Frame{Header: h}, fmt.Errorf("%w: %s property id: %w", ErrMalformedCommand, cmd.ID, err)
		}
		cmd.Property = PropertyID(prop)
		rest = rest[n:]
	}
	cmd.Payload = bytes.Clone(rest)
	return Frame{Header: h, Command: cmd}, nil
}

// LastStatus decodes the status carried by a PROP_VALUE_IS(LAST_STATUS)
// command.
func (c Command) LastStatus() (Status, bool) {
	if c.ID != CmdPropValueIs || c.Property != PropLastStatus {
		return 0, false
	}
	v, _, err := pack.DecodePacked(c.Payload)
	if err != nil {
		return 0, false
	}
	return Status(v), true
}
