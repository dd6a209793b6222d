package frame

import (
	"errors"
	"io"
	"os"
	"sync"
)

// ErrIdle is returned by Reader.ReadFrame when the underlying read timed
// out or returned no data. It lets the read loop check for shutdown.
var ErrIdle = errors.New("frame: read idle")

const readChunk = 256

type result struct {
	payload []byte
	err     error
}

// Reader yields frames from a byte stream. It is not safe for concurrent
// use; one reader task owns it.
type Reader struct {
	r       io.Reader
	dec     *Decoder
	chunk   []byte
	pending []result
}

func NewReader(r io.Reader, limits Limits) *Reader {
	return &Reader{
		r:     r,
		dec:   NewDecoder(limits),
		chunk: make([]byte, readChunk),
	}
}

// ReadFrame returns the next verified payload. Errors matching
// ErrIntegrity and ErrIdle are per-frame and the caller may keep reading;
// any other error comes from the underlying stream.
func (r *Reader) ReadFrame() ([]byte, error) {
	for len(r.pending) == 0 {
		n, err := r.r.Read(r.chunk)
		if n > 0 {
			r.dec.Push(r.chunk[:n], r.collect)
		}
		if err != nil {
			if len(r.pending) > 0 {
				// Deliver what already decoded; the error repeats on the
				// next read.
				break
			}
			if isTimeout(err) {
				return nil, ErrIdle
			}
			return nil, err
		}
		if n == 0 {
			return nil, ErrIdle
		}
	}
	next := r.pending[0]
	r.pending = r.pending[1:]
	return next.payload, next.err
}

func (r *Reader) collect(payload []byte, err error) {
	r.pending = append(r.pending, result{payload: payload, err: err})
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// Writer serializes whole frames onto a shared stream so bytes of two
// frames never interleave.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	limits Limits
}

func NewWriter(w io.Writer, limits Limits) *Writer {
	return &Writer{w: w, limits: limits}
}

// WriteFrame frames payload and writes it with a single call under the
// write lock.
func (w *Writer) WriteFrame(payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if len(payload) > w.limits.maxFrameLen() {
		return ErrPayloadTooLarge
	}
	buf := Encode(payload)

	w.mu.Lock()
	defer w.mu.Unlock()
	for len(buf) > 0 {
		n, err := w.w.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}
