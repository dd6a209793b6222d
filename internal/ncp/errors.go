package ncp

import (
	"errors"
	"fmt"

	"github.com/danmuck/spinelctl/internal/protocol"
)

var (
	ErrProtocolMismatch = errors.New("ncp: reply does not match request")
	ErrDeviceStatus     = errors.New("ncp: device reported failure")
	ErrUnknownProperty  = errors.New("ncp: unknown property")
)

// MismatchError is a reply whose command or property differs from what the
// request asked for.
type MismatchError struct {
	Want protocol.Command
	Got  protocol.Command
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("ncp: expected %s %s, got %s %s",
		e.Want.ID, e.Want.Property, e.Got.ID, e.Got.Property)
}

func (e *MismatchError) Is(target error) bool { return target == ErrProtocolMismatch }

// StatusError carries a non-zero LAST_STATUS returned in place of a value.
type StatusError struct {
	Op       protocol.CommandID
	Property protocol.PropertyID
	Status   protocol.Status
}

func (e *StatusError) Error() string {
	if e.Op.HasProperty() {
		return fmt.Sprintf("ncp: %s %s: %s", e.Op, e.Property, e.Status)
	}
	return fmt.Sprintf("ncp: %s: %s", e.Op, e.Status)
}

func (e *StatusError) Is(target error) bool { return target == ErrDeviceStatus }

// IsStatus reports whether err is a device status failure with code st.
func IsStatus(err error, st protocol.Status) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == st
}
