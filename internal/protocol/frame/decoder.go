package frame

// Decoder reassembles frames from arbitrarily split chunks of a byte
// stream. Bytes before the first flag are discarded; a flag always
// terminates the frame in progress.
type Decoder struct {
	limits   Limits
	buf      []byte
	synced   bool
	escaped  bool
	overflow bool
}

func NewDecoder(limits Limits) *Decoder {
	return &Decoder{limits: limits}
}

// Push feeds raw bytes. emit is called once per completed frame with
// either a verified payload (checksum stripped, caller owns it) or an
// integrity error.
func (d *Decoder) Push(p []byte, emit func(payload []byte, err error)) {
	limit := d.limits.maxFrameLen() + FCSLen
	for _, b := range p {
		if b == Flag {
			if d.synced {
				d.finish(emit)
			}
			d.synced = true
			continue
		}
		if !d.synced || d.overflow {
			continue
		}
		if b == Escape {
			d.escaped = true
			continue
		}
		if d.escaped {
			b ^= EscapeXOR
			d.escaped = false
		}
		if len(d.buf) >= limit {
			d.overflow = true
			continue
		}
		d.buf = append(d.buf, b)
	}
}

// Reset drops any partial frame and waits for the next flag.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.synced = false
	d.escaped = false
	d.overflow = false
}

func (d *Decoder) finish(emit func([]byte, error)) {
	buf, escaped, overflow := d.buf, d.escaped, d.overflow
	d.buf = d.buf[:0]
	d.escaped = false
	d.overflow = false

	switch {
	case overflow:
		emit(nil, ErrFrameTooLarge)
	case escaped:
		emit(nil, ErrDanglingEscape)
	case len(buf) == 0:
		// Back-to-back flags delimit nothing.
	case len(buf) <= FCSLen:
		emit(nil, ErrShortFrame)
	default:
		n := len(buf) - FCSLen
		got := uint16(buf[n]) | uint16(buf[n+1])<<8
		if got != Checksum(buf[:n]) {
			emit(nil, ErrChecksum)
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		emit(payload, nil)
	}
}
