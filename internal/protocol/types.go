package protocol

import "fmt"

const (
	// HeaderFlag occupies bits 7-6 of every Spinel header byte.
	HeaderFlag     byte = 0x80
	headerFlagMask byte = 0xC0
	headerIIDShift      = 4
	headerIIDMask  byte = 0x30
	headerTIDMask  byte = 0x0F

	// MaxTID is the largest transaction id. TID 0 is reserved for
	// unsolicited frames.
	MaxTID = 15
	MaxIID = 3
)

// Header is the single Spinel header byte.
type Header struct {
	IID uint8
	TID uint8
}

// Byte packs h. Out-of-range fields are masked.
func (h Header) Byte() byte {
	return HeaderFlag | (h.IID<<headerIIDShift)&headerIIDMask | h.TID&headerTIDMask
}

// Unsolicited reports whether h marks a notification.
func (h Header) Unsolicited() bool { return h.TID == 0 }

func (h Header) String() string {
	return fmt.Sprintf("iid=%d tid=%d", h.IID, h.TID)
}

// ParseHeader unpacks a header byte, rejecting bytes without the flag.
func ParseHeader(b byte) (Header, error) {
	if b&headerFlagMask != HeaderFlag {
		return Header{}, fmt.Errorf("%w: 0x%02x", ErrInvalidHeader, b)
	}
	return Header{
		IID: (b & headerIIDMask) >> headerIIDShift,
		TID: b & headerTIDMask,
	}, nil
}

// Command is one decoded Spinel command. Property is only meaningful when
// ID.HasProperty(); Payload holds whatever follows the property id (or
// the command id, for commands without one).
type Command struct {
	ID       CommandID
	Property PropertyID
	Payload  []byte
}

func (c Command) String() string {
	if c.ID.HasProperty() {
		return fmt.Sprintf("%s %s len=%d", c.ID, c.Property, len(c.Payload))
	}
	return fmt.Sprintf("%s len=%d", c.ID, len(c.Payload))
}

// Frame is one complete Spinel message, without HDLC framing.
type Frame struct {
	Header  Header
	Command Command
}
