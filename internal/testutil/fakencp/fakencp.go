// Package fakencp simulates a Spinel device on the far end of a net.Pipe.
package fakencp

import (
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/danmuck/spinelctl/internal/protocol"
	"github.com/danmuck/spinelctl/internal/protocol/frame"
)

// Request is one frame the host sent, with its de-framed bytes.
type Request struct {
	Frame   protocol.Frame
	Payload []byte
}

// Device answers property commands from an in-memory table. In hold mode
// requests are queued for the test to answer by hand instead.
type Device struct {
	conn net.Conn
	w    *frame.Writer

	mu      sync.Mutex
	props   map[protocol.PropertyID][]byte
	rejects map[protocol.PropertyID]protocol.Status
	hold    bool

	requests chan Request
	done     chan struct{}
}

// New starts a device and returns it with the host end of the link. Both
// ends are closed when the test finishes.
func New(t testing.TB) (*Device, net.Conn) {
	t.Helper()
	host, dev := net.Pipe()
	d := &Device{
		conn:     dev,
		w:        frame.NewWriter(dev, frame.DefaultLimits()),
		props:    map[protocol.PropertyID][]byte{},
		rejects:  map[protocol.PropertyID]protocol.Status{},
		requests: make(chan Request, 64),
		done:     make(chan struct{}),
	}
	go d.serve()
	t.Cleanup(func() {
		_ = host.Close()
		_ = dev.Close()
		<-d.done
	})
	return d, host
}

// SetProperty stores the packed value returned for GET.
func (d *Device) SetProperty(prop protocol.PropertyID, value []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.props[prop] = append([]byte(nil), value...)
}

func (d *Device) Property(prop protocol.PropertyID) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.props[prop]
	return v, ok
}

// Reject makes every command on prop fail with status.
func (d *Device) Reject(prop protocol.PropertyID, status protocol.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rejects[prop] = status
}

// Hold switches between automatic replies and manual ones.
func (d *Device) Hold(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hold = on
}

// Requests yields held requests in arrival order.
func (d *Device) Requests() <-chan Request { return d.requests }

// Reply answers req with cmd on the same header.
func (d *Device) Reply(req Request, cmd protocol.Command) error {
	return d.send(protocol.Frame{Header: req.Frame.Header, Command: cmd})
}

// Notify sends cmd unsolicited on tid 0.
func (d *Device) Notify(cmd protocol.Command) error {
	return d.send(protocol.Frame{Command: cmd})
}

// Send writes an arbitrary frame.
func (d *Device) Send(f protocol.Frame) error {
	return d.send(f)
}

// WriteRaw writes bytes to the link without framing.
func (d *Device) WriteRaw(b []byte) error {
	_, err := d.conn.Write(b)
	return err
}

// Done is closed once the device stopped reading.
func (d *Device) Done() <-chan struct{} { return d.done }

func (d *Device) send(f protocol.Frame) error {
	return d.w.WriteFrame(protocol.EncodeFrame(f))
}

func (d *Device) serve() {
	defer close(d.done)
	r := frame.NewReader(d.conn, frame.DefaultLimits())
	for {
		payload, err := r.ReadFrame()
		if err != nil {
			if errors.Is(err, frame.ErrIntegrity) || errors.Is(err, frame.ErrIdle) {
				continue
			}
			// io.EOF or io.ErrClosedPipe once the test tears down.
			return
		}
		f, err := protocol.DecodeFrame(payload)
		if err != nil {
			continue
		}

		d.mu.Lock()
		hold := d.hold
		d.mu.Unlock()
		if hold {
			d.requests <- Request{Frame: f, Payload: payload}
			continue
		}
		reply, ok := d.answer(f)
		if !ok {
			continue
		}
		// Written from its own goroutine so a host that is busy writing
		// cannot deadlock the pipe.
		go func() { _ = d.send(reply) }()
	}
}

// answer builds the automatic reply for f. RESET is answered with an
// unsolicited reset status, as firmware does after rebooting.
func (d *Device) answer(f protocol.Frame) (protocol.Frame, bool) {
	cmd := f.Command
	out := protocol.Frame{Header: f.Header}

	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.rejects[cmd.Property]; ok && cmd.ID.HasProperty() {
		out.Command = protocol.NewLastStatus(st)
		return out, true
	}

	switch cmd.ID {
	case protocol.CmdNoop:
		out.Command = protocol.NewLastStatus(protocol.StatusOK)
	case protocol.CmdReset:
		return protocol.Frame{Command: protocol.NewLastStatus(protocol.StatusResetSoftware)}, true
	case protocol.CmdPropValueGet:
		v, ok := d.props[cmd.Property]
		if !ok {
			out.Command = protocol.NewLastStatus(protocol.StatusPropNotFound)
			break
		}
		out.Command = protocol.NewIs(cmd.Property, v)
	case protocol.CmdPropValueSet:
		d.props[cmd.Property] = append([]byte(nil), cmd.Payload...)
		out.Command = protocol.NewIs(cmd.Property, cmd.Payload)
	case protocol.CmdPropValueInsert:
		d.props[cmd.Property] = append(d.props[cmd.Property], cmd.Payload...)
		out.Command = protocol.Command{ID: protocol.CmdPropValueInserted, Property: cmd.Property, Payload: cmd.Payload}
	case protocol.CmdPropValueRemove:
		out.Command = protocol.Command{ID: protocol.CmdPropValueRemoved, Property: cmd.Property, Payload: cmd.Payload}
	case protocol.CmdPropValueIs, protocol.CmdPropValueInserted, protocol.CmdPropValueRemoved:
		return protocol.Frame{}, false
	default:
		out.Command = protocol.NewLastStatus(protocol.StatusInvalidCommand)
	}
	return out, true
}
