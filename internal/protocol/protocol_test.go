package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/spinelctl/internal/protocol/pack"
	"github.com/danmuck/spinelctl/internal/testutil/testlog"
)

func TestEncodeFrameWireBytes(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		in   Frame
		want []byte
	}{
		{"noop", Frame{Header: Header{TID: 1}, Command: Command{ID: CmdNoop}}, []byte{0x81, 0x00}},
		{"get phy chan", Frame{Header: Header{TID: 1}, Command: NewGet(PropPHYChan)}, []byte{0x81, 0x02, 0x21}},
		{"set with value", Frame{Header: Header{TID: 3}, Command: NewSet(PropPHYChan, []byte{11})}, []byte{0x83, 0x03, 0x21, 0x0b}},
		{"iid and tid", Frame{Header: Header{IID: 2, TID: 15}, Command: NewGet(PropStreamLog)}, []byte{0xaf, 0x02, 0x74}},
		{"wide property", Frame{Header: Header{TID: 1}, Command: NewGet(PropertyID(0x1500))}, []byte{0x81, 0x02, 0x80, 0x2a}},
	}
	for _, tc := range cases {
		got := EncodeFrame(tc.in)
		if !bytes.Equal(got, tc.want) {
			t.Fatalf("%s: got % x want % x", tc.name, got, tc.want)
		}
	}
}

func TestDecodeFramePropertyValueIs(t *testing.T) {
	testlog.Start(t)
	f, err := DecodeFrame([]byte{0x81, 0x06, 0x21, 0x0b})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Header.TID != 1 || f.Header.IID != 0 {
		t.Fatalf("unexpected header: %+v", f.Header)
	}
	if f.Command.ID != CmdPropValueIs || f.Command.Property != PropPHYChan {
		t.Fatalf("unexpected command: %s", f.Command)
	}
	if !bytes.Equal(f.Command.Payload, []byte{0x0b}) {
		t.Fatalf("unexpected payload: % x", f.Command.Payload)
	}
}

func TestDecodeFrameRoundTripsEncode(t *testing.T) {
	testlog.Start(t)
	in := Frame{Header: Header{IID: 1, TID: 7}, Command: NewInsert(PropMACScanMask, []byte{11, 12})}
	out, err := DecodeFrame(EncodeFrame(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Header != in.Header || out.Command.ID != in.Command.ID || out.Command.Property != in.Command.Property {
		t.Fatalf("mismatch: got %+v want %+v", out, in)
	}
	if !bytes.Equal(out.Command.Payload, in.Command.Payload) {
		t.Fatalf("payload mismatch: % x", out.Command.Payload)
	}
}

func TestDecodeFrameUnknownCommandKeepsPayload(t *testing.T) {
	testlog.Start(t)
	f, err := DecodeFrame([]byte{0x80, 0x7f, 0x01, 0x02})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Command.ID.Known() {
		t.Fatalf("expected unknown command, got %s", f.Command.ID)
	}
	if f.Command.ID != 0x7f || !bytes.Equal(f.Command.Payload, []byte{1, 2}) {
		t.Fatalf("unexpected command: %s payload=% x", f.Command, f.Command.Payload)
	}
	if !f.Header.Unsolicited() {
		t.Fatalf("expected tid 0")
	}
}

func TestDecodeFrameRejectsBadHeader(t *testing.T) {
	testlog.Start(t)
	for _, b := range []byte{0x00, 0x41, 0xc1} {
		if _, err := DecodeFrame([]byte{b, 0x00}); !errors.Is(err, ErrInvalidHeader) {
			t.Fatalf("header 0x%02x: expected ErrInvalidHeader, got %v", b, err)
		}
	}
	if _, err := DecodeFrame(nil); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("expected ErrEmptyFrame, got %v", err)
	}
}

func TestDecodeFrameMalformedCommandKeepsHeader(t *testing.T) {
	testlog.Start(t)
	f, err := DecodeFrame([]byte{0x84, 0x02})
	if !errors.Is(err, ErrMalformedCommand) {
		t.Fatalf("expected ErrMalformedCommand, got %v", err)
	}
	if !errors.Is(err, pack.ErrTruncated) {
		t.Fatalf("expected truncated cause, got %v", err)
	}
	if f.Header.TID != 4 {
		t.Fatalf("expected header to survive, got %+v", f.Header)
	}
}

func TestLastStatusAndResetRange(t *testing.T) {
	testlog.Start(t)
	cmd := NewLastStatus(StatusResetSoftware)
	st, ok := cmd.LastStatus()
	if !ok || st != StatusResetSoftware {
		t.Fatalf("unexpected status: %v %v", st, ok)
	}
	if !st.IsReset() || StatusBusy.IsReset() {
		t.Fatalf("reset range misclassified")
	}
	if st.String() != "RESET_SOFTWARE" || Status(99).String() != "STATUS(99)" {
		t.Fatalf("unexpected names: %s %s", st, Status(99))
	}
	if _, ok := NewGet(PropLastStatus).LastStatus(); ok {
		t.Fatalf("GET must not carry a status")
	}
}
