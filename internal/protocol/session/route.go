package session

import "github.com/danmuck/spinelctl/internal/protocol"

type RouteKind uint8

const (
	RouteNotification RouteKind = iota
	RouteReply
)

func (k RouteKind) String() string {
	if k == RouteReply {
		return "reply"
	}
	return "notification"
}

// Route is where an inbound frame goes.
type Route struct {
	Kind RouteKind
	TID  uint8
}

// Classify routes by header alone: tid 0 is unsolicited, anything else
// answers the transaction holding that id.
func Classify(h protocol.Header) Route {
	if h.Unsolicited() {
		return Route{Kind: RouteNotification}
	}
	return Route{Kind: RouteReply, TID: h.TID}
}

// ResetReason reports whether f announces a device reset: an unsolicited
// RESET, or an unsolicited LAST_STATUS carrying a reset-range status.
func ResetReason(f protocol.Frame) (protocol.Status, bool) {
	if !f.Header.Unsolicited() {
		return 0, false
	}
	if f.Command.ID == protocol.CmdReset {
		return protocol.StatusResetUnknown, true
	}
	if st, ok := f.Command.LastStatus(); ok && st.IsReset() {
		return st, true
	}
	return 0, false
}
