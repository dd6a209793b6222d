package serial

import (
	"errors"
	"testing"
	"time"

	"github.com/danmuck/spinelctl/internal/testutil/testlog"
	goserial "go.bug.st/serial"
)

type fakePort struct {
	goserial.Port
	timeout    time.Duration
	dtr, rts   bool
	flushed    bool
	closed     bool
	timeoutErr error
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return p.timeoutErr
}

func (p *fakePort) SetDTR(v bool) error { p.dtr = v; return nil }

func (p *fakePort) SetRTS(v bool) error { p.rts = v; return nil }

func (p *fakePort) ResetInputBuffer() error { p.flushed = true; return nil }

func (p *fakePort) Close() error { p.closed = true; return nil }

func withFakeOpen(t *testing.T, port *fakePort, openErr error) *goserial.Mode {
	t.Helper()
	var got goserial.Mode
	prev := openPort
	openPort = func(path string, mode *goserial.Mode) (goserial.Port, error) {
		got = *mode
		if openErr != nil {
			return nil, openErr
		}
		return port, nil
	}
	t.Cleanup(func() { openPort = prev })
	return &got
}

func TestOpenConfiguresPort(t *testing.T) {
	testlog.Start(t)
	port := &fakePort{}
	mode := withFakeOpen(t, port, nil)

	cfg := DefaultConfig()
	cfg.Path = "/dev/ttyACM0"
	cfg.Baud = 460800
	cfg.ReadTimeout = 50 * time.Millisecond
	if _, err := Open(cfg); err != nil {
		t.Fatalf("open: %v", err)
	}
	if mode.BaudRate != 460800 || mode.DataBits != 8 || mode.Parity != goserial.NoParity || mode.StopBits != goserial.OneStopBit {
		t.Fatalf("unexpected mode: %+v", *mode)
	}
	if port.timeout != 50*time.Millisecond || !port.dtr || !port.rts || !port.flushed {
		t.Fatalf("port not configured: %+v", port)
	}
}

func TestOpenWithoutLineAssertion(t *testing.T) {
	testlog.Start(t)
	port := &fakePort{}
	withFakeOpen(t, port, nil)

	if _, err := Open(Config{Path: "/dev/ttyUSB0"}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if port.dtr || port.rts {
		t.Fatalf("lines asserted without AssertLines")
	}
	if port.timeout != DefaultConfig().ReadTimeout {
		t.Fatalf("expected default read timeout, got %s", port.timeout)
	}
}

func TestOpenErrors(t *testing.T) {
	testlog.Start(t)
	if _, err := Open(Config{}); !errors.Is(err, ErrNoPort) {
		t.Fatalf("expected ErrNoPort, got %v", err)
	}

	openErr := errors.New("no such device")
	withFakeOpen(t, nil, openErr)
	if _, err := Open(Config{Path: "/dev/missing"}); !errors.Is(err, openErr) {
		t.Fatalf("expected wrapped open error, got %v", err)
	}
}

func TestOpenClosesPortWhenTimeoutFails(t *testing.T) {
	testlog.Start(t)
	port := &fakePort{timeoutErr: errors.New("unsupported")}
	withFakeOpen(t, port, nil)

	if _, err := Open(Config{Path: "/dev/ttyS0"}); err == nil {
		t.Fatalf("expected error")
	}
	if !port.closed {
		t.Fatalf("port leaked after failed setup")
	}
}

func TestModeForRejectsBadFraming(t *testing.T) {
	testlog.Start(t)
	cases := []Config{
		{Baud: 115200, DataBits: 9, Parity: "none", StopBits: 1},
		{Baud: 115200, DataBits: 8, Parity: "mark", StopBits: 1},
		{Baud: 115200, DataBits: 8, Parity: "none", StopBits: 3},
	}
	for _, cfg := range cases {
		if _, err := modeFor(cfg); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
	mode, err := modeFor(Config{Baud: 9600, DataBits: 7, Parity: "E", StopBits: 2})
	if err != nil {
		t.Fatalf("modeFor: %v", err)
	}
	if mode.Parity != goserial.EvenParity || mode.StopBits != goserial.TwoStopBits || mode.DataBits != 7 {
		t.Fatalf("unexpected mode: %+v", *mode)
	}
}
