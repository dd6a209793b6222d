package frame

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/danmuck/spinelctl/internal/testutil/testlog"
)

func TestChecksumIsX25(t *testing.T) {
	testlog.Start(t)
	if got := Checksum([]byte("123456789")); got != 0x906e {
		t.Fatalf("unexpected check value: 0x%04x", got)
	}
}

func TestEncodeKnownFrames(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		payload []byte
		want    []byte
	}{
		{[]byte{0x81, 0x00}, []byte{0x7e, 0x81, 0x00, 0x53, 0x9a, 0x7e}},
		{[]byte{0x81, 0x02, 0x02}, []byte{0x7e, 0x81, 0x02, 0x02, 0x5e, 0x80, 0x7e}},
		{[]byte{0x81, 0x02, 0x21}, []byte{0x7e, 0x81, 0x02, 0x21, 0xc7, 0x93, 0x7e}},
		{[]byte{0x81, 0x06, 0x21, 0x0b}, []byte{0x7e, 0x81, 0x06, 0x21, 0x0b, 0xea, 0x9f, 0x7e}},
	}
	for _, tc := range cases {
		if got := Encode(tc.payload); !bytes.Equal(got, tc.want) {
			t.Fatalf("encode % x: got % x want % x", tc.payload, got, tc.want)
		}
	}
}

func TestEncodeEscapesReservedBytes(t *testing.T) {
	testlog.Start(t)
	payload := []byte{0x80, 0x7e, 0x7d, 0x11, 0x13, 0xf8, 0x20}
	enc := Encode(payload)
	if bytes.IndexByte(enc[1:len(enc)-1], Flag) >= 0 {
		t.Fatalf("flag byte leaked into body: % x", enc)
	}
	out, err := NewReader(bytes.NewReader(enc), DefaultLimits()).ReadFrame()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("payload mismatch: got % x want % x", out, payload)
	}
}

func TestDeframingReproducesArbitraryPayloads(t *testing.T) {
	testlog.Start(t)
	var stream bytes.Buffer
	var payloads [][]byte
	for n := 1; n <= 64; n++ {
		p := make([]byte, n)
		for i := range p {
			p[i] = byte((n*31 + i*7) ^ 0x7e)
		}
		payloads = append(payloads, p)
		stream.Write(Encode(p))
	}
	r := NewReader(iotest.OneByteReader(&stream), DefaultLimits())
	for i, want := range payloads {
		got, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d: got % x want % x", i, got, want)
		}
	}
	if _, err := r.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestSingleBitFlipIsRejected(t *testing.T) {
	testlog.Start(t)
	payload := []byte{0x81, 0x06, 0x21, 0x0b, 0x7e, 0x00}
	fcs := Checksum(payload)
	raw := append(append([]byte{}, payload...), byte(fcs), byte(fcs>>8))

	for bit := 0; bit < len(raw)*8; bit++ {
		flipped := append([]byte{}, raw...)
		flipped[bit/8] ^= 1 << (bit % 8)

		wire := []byte{Flag}
		for _, b := range flipped {
			wire = appendEscaped(wire, b)
		}
		wire = append(wire, Flag)

		var got [][]byte
		var errs []error
		NewDecoder(DefaultLimits()).Push(wire, func(p []byte, err error) {
			if err != nil {
				errs = append(errs, err)
				return
			}
			got = append(got, p)
		})
		if len(got) != 0 {
			t.Fatalf("bit %d: corrupted frame accepted: % x", bit, got[0])
		}
		if len(errs) != 1 || !errors.Is(errs[0], ErrChecksum) {
			t.Fatalf("bit %d: expected one checksum error, got %v", bit, errs)
		}
	}
}

func TestReaderDiscardsLeadingNoiseAndResyncs(t *testing.T) {
	testlog.Start(t)
	var stream bytes.Buffer
	stream.Write([]byte{0x01, 0x02, 0x03})
	stream.Write([]byte{Flag, 0x81, 0x02})
	stream.Write(Encode([]byte{0x82, 0x00}))
	r := NewReader(&stream, DefaultLimits())

	_, err := r.ReadFrame()
	if !errors.Is(err, ErrShortFrame) || !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected short frame integrity error, got %v", err)
	}
	got, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("read after resync: %v", err)
	}
	if !bytes.Equal(got, []byte{0x82, 0x00}) {
		t.Fatalf("unexpected payload: % x", got)
	}
}

func TestReaderReportsOversizeFrame(t *testing.T) {
	testlog.Start(t)
	limits := Limits{MaxFrameLen: 4}
	var stream bytes.Buffer
	stream.Write(Encode([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}))
	stream.Write(Encode([]byte{1, 2}))
	r := NewReader(&stream, limits)
	if _, err := r.ReadFrame(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	got, err := r.ReadFrame()
	if err != nil || !bytes.Equal(got, []byte{1, 2}) {
		t.Fatalf("expected recovery, got % x %v", got, err)
	}
}

func TestReaderDanglingEscape(t *testing.T) {
	testlog.Start(t)
	r := NewReader(bytes.NewReader([]byte{Flag, 0x81, Escape, Flag}), DefaultLimits())
	if _, err := r.ReadFrame(); !errors.Is(err, ErrDanglingEscape) {
		t.Fatalf("expected ErrDanglingEscape, got %v", err)
	}
}

type stallReader struct {
	err error
}

func (s stallReader) Read([]byte) (int, error) { return 0, s.err }

func TestReaderIdleOnStall(t *testing.T) {
	testlog.Start(t)
	if _, err := NewReader(stallReader{}, DefaultLimits()).ReadFrame(); !errors.Is(err, ErrIdle) {
		t.Fatalf("expected ErrIdle for empty read, got %v", err)
	}
	if _, err := NewReader(stallReader{err: os.ErrDeadlineExceeded}, DefaultLimits()).ReadFrame(); !errors.Is(err, ErrIdle) {
		t.Fatalf("expected ErrIdle for deadline, got %v", err)
	}
	if _, err := NewReader(stallReader{err: io.ErrClosedPipe}, DefaultLimits()).ReadFrame(); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected stream error, got %v", err)
	}
}

func TestWriterDoesNotInterleaveFrames(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	w := NewWriter(&buf, DefaultLimits())

	const writers, each = 8, 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id byte) {
			defer wg.Done()
			payload := bytes.Repeat([]byte{0x80 | id, 0x7e, 0x7d}, 20)
			for j := 0; j < each; j++ {
				if err := w.WriteFrame(payload); err != nil {
					t.Errorf("write: %v", err)
					return
				}
			}
		}(byte(i))
	}
	wg.Wait()

	r := NewReader(&buf, DefaultLimits())
	for n := 0; n < writers*each; n++ {
		p, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", n, err)
		}
		if len(p) != 60 {
			t.Fatalf("frame %d: unexpected length %d", n, len(p))
		}
	}
}

func TestWriterRejectsBadPayloads(t *testing.T) {
	testlog.Start(t)
	w := NewWriter(io.Discard, Limits{MaxFrameLen: 8})
	if err := w.WriteFrame(nil); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
	if err := w.WriteFrame(make([]byte, 9)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}
