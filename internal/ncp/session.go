package ncp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/danmuck/spinelctl/internal/observability"
	"github.com/danmuck/spinelctl/internal/protocol"
	"github.com/danmuck/spinelctl/internal/protocol/frame"
	"github.com/danmuck/spinelctl/internal/protocol/pack"
	"github.com/danmuck/spinelctl/internal/protocol/schema"
	"github.com/danmuck/spinelctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// Session drives one device over a duplex byte stream. Any number of
// goroutines may call its methods concurrently.
type Session struct {
	cfg  session.Config
	rw   io.ReadWriter
	reg  *schema.Registry
	corr *session.Correlator
	bus  *bus

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	err       error
	version   negotiated
}

// negotiated is the protocol version last read from the device and the
// reset epoch it was read in.
type negotiated struct {
	major, minor uint32
	epoch        uint64
	ok           bool
}

// Open starts the reader on rw and returns a ready session. A nil reg uses
// the standard descriptor table. When rw implements SetReadDeadline each
// read is bounded by cfg.ReadTimeout; otherwise rw itself must return
// periodically (a serial port opened with a read timeout does).
func Open(rw io.ReadWriter, cfg session.Config, reg *schema.Registry) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	if reg == nil {
		reg = schema.Default()
	}
	limits := frame.Limits{MaxFrameLen: cfg.MaxFrameLen}

	s := &Session{
		cfg:  cfg,
		rw:   rw,
		reg:  reg,
		bus:  newBus(cfg.NotifyBuffer),
		done: make(chan struct{}),
	}
	s.corr = session.NewCorrelator(frame.NewWriter(rw, limits), cfg, s.publish)
	go s.readLoop(frame.NewReader(rw, limits))

	log.Debug().Msgf("ncp.Open iid=%d max_in_flight=%d timeout=%s", cfg.IID, cfg.MaxInFlight, cfg.RequestTimeout)
	return s, nil
}

func (s *Session) readLoop(r *frame.Reader) {
	defer close(s.done)
	defer s.bus.close()

	dl, _ := s.rw.(deadliner)
	backoff := session.NewBackoff(s.cfg.Backoff, s.cfg.MaxReadErrors)
	for {
		select {
		case <-s.corr.Closed():
			return
		default:
		}
		if dl != nil {
			_ = dl.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}

		payload, err := r.ReadFrame()
		switch {
		case err == nil:
			backoff.Succeed()
			s.corr.Dispatch(payload)
		case errors.Is(err, frame.ErrIdle):
		case errors.Is(err, frame.ErrIntegrity):
			observability.RecordIntegrityError(integrityReason(err))
			log.Warn().Err(err).Msg("ncp.readLoop dropped frame")
		case isClosed(err):
			s.fail(err)
			return
		default:
			delay, attempt, ok := backoff.Fail()
			if !ok {
				s.fail(fmt.Errorf("ncp: %d consecutive read errors: %w", attempt-1, err))
				return
			}
			log.Warn().Err(err).Msgf("ncp.readLoop read error attempt=%d retry_in=%s", attempt, delay)
			select {
			case <-time.After(delay):
			case <-s.corr.Closed():
				return
			}
		}
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed)
}

func integrityReason(err error) string {
	switch {
	case errors.Is(err, frame.ErrChecksum):
		return "checksum"
	case errors.Is(err, frame.ErrFrameTooLarge):
		return "too_large"
	case errors.Is(err, frame.ErrShortFrame):
		return "short"
	case errors.Is(err, frame.ErrDanglingEscape):
		return "dangling_escape"
	default:
		return "other"
	}
}

// fail ends the session because the transport went away.
func (s *Session) fail(err error) {
	select {
	case <-s.corr.Closed():
		return
	default:
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	log.Error().Err(err).Msg("ncp.readLoop transport lost")
	s.corr.Close()
}

// Close fails every outstanding call with session.ErrSessionClosed, ends
// all subscriptions and closes rw when it implements io.Closer.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.corr.Close()
		s.bus.close()
		c, closable := s.rw.(io.Closer)
		if closable {
			err = c.Close()
		}
		if _, ok := s.rw.(deadliner); ok || closable {
			<-s.done
		}
		log.Debug().Msg("ncp.Close session closed")
	})
	return err
}

// Done is closed once the reader has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the transport error that ended the session, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Registry() *schema.Registry { return s.reg }

func (s *Session) Stats() session.Stats { return s.corr.Stats() }

// Epoch counts device resets seen by this session.
func (s *Session) Epoch() uint64 { return s.corr.Epoch() }

// LastResetReason is the status carried by the most recent reset.
func (s *Session) LastResetReason() protocol.Status { return s.corr.Stats().LastReset }

// Subscribe registers a notification stream. With props given, only
// property notifications for those ids are delivered.
func (s *Session) Subscribe(props ...protocol.PropertyID) *Subscription {
	return s.bus.subscribe(props)
}

func (s *Session) publish(f protocol.Frame, epoch uint64) {
	n := Notification{
		Epoch:   epoch,
		Header:  f.Header,
		Command: f.Command,
		Raw:     f.Command.Payload,
	}
	if f.Command.ID.HasProperty() {
		n.Property = f.Command.Property
		n.Name = s.reg.Name(n.Property)
		if d, ok := s.reg.Lookup(n.Property); ok {
			n.Value, n.Err = decodeValue(d, f.Command.Payload)
		}
	}
	s.bus.publish(n)
}

// Lookup resolves a property name or numeric id.
func (s *Session) Lookup(ref string) (schema.Descriptor, error) {
	d, ok := s.reg.Resolve(ref)
	if !ok {
		return schema.Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownProperty, ref)
	}
	return d, nil
}

func (s *Session) descriptor(prop protocol.PropertyID) (schema.Descriptor, error) {
	d, ok := s.reg.Lookup(prop)
	if !ok {
		return schema.Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownProperty, prop)
	}
	return d, nil
}

func decodeValue(d schema.Descriptor, payload []byte) (any, error) {
	v, _, err := pack.Decode(d.Signature, payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", d.Name, err)
	}
	return v, nil
}

// Get reads prop and decodes it with its descriptor.
func (s *Session) Get(ctx context.Context, prop protocol.PropertyID) (any, error) {
	d, err := s.descriptor(prop)
	if err != nil {
		return nil, err
	}
	raw, err := s.GetRaw(ctx, prop)
	if err != nil {
		return nil, err
	}
	return decodeValue(d, raw)
}

// GetRaw reads prop and returns its packed value.
func (s *Session) GetRaw(ctx context.Context, prop protocol.PropertyID) ([]byte, error) {
	reply, err := s.transact(ctx, protocol.NewGet(prop), protocol.CmdPropValueIs)
	if err != nil {
		return nil, err
	}
	return reply.Payload, nil
}

// Set writes value to prop. The device confirms by echoing the property.
func (s *Session) Set(ctx context.Context, prop protocol.PropertyID, value any) error {
	payload, err := s.encode(prop, value)
	if err != nil {
		return err
	}
	return s.SetRaw(ctx, prop, payload)
}

// SetRaw writes an already packed value.
func (s *Session) SetRaw(ctx context.Context, prop protocol.PropertyID, payload []byte) error {
	_, err := s.transact(ctx, protocol.NewSet(prop, payload), protocol.CmdPropValueIs)
	return err
}

// Insert adds value to a list property.
func (s *Session) Insert(ctx context.Context, prop protocol.PropertyID, value any) error {
	payload, err := s.encodeItem(prop, value)
	if err != nil {
		return err
	}
	_, err = s.transact(ctx, protocol.NewInsert(prop, payload), protocol.CmdPropValueInserted)
	return err
}

// Remove deletes value from a list property.
func (s *Session) Remove(ctx context.Context, prop protocol.PropertyID, value any) error {
	payload, err := s.encodeItem(prop, value)
	if err != nil {
		return err
	}
	_, err = s.transact(ctx, protocol.NewRemove(prop, payload), protocol.CmdPropValueRemoved)
	return err
}

// encode packs value with the full signature of prop.
func (s *Session) encode(prop protocol.PropertyID, value any) ([]byte, error) {
	d, err := s.descriptor(prop)
	if err != nil {
		return nil, err
	}
	return encodeWith(d, d.Signature, value)
}

// encodeItem packs one list entry: array properties take a single
// element on insert and remove.
func (s *Session) encodeItem(prop protocol.PropertyID, value any) ([]byte, error) {
	d, err := s.descriptor(prop)
	if err != nil {
		return nil, err
	}
	return encodeWith(d, d.Signature.Element(), value)
}

func encodeWith(d schema.Descriptor, sig pack.Signature, value any) ([]byte, error) {
	out, err := pack.Encode(sig, value)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", d.Name, err)
	}
	return out, nil
}

// transact submits cmd and checks the reply shape: want for the same
// property, or a LAST_STATUS. A non-zero status becomes a StatusError; a
// zero status is accepted as success for writes.
func (s *Session) transact(ctx context.Context, cmd protocol.Command, want protocol.CommandID) (protocol.Command, error) {
	reply, err := s.corr.Submit(ctx, cmd)
	if err != nil {
		return protocol.Command{}, err
	}
	if reply.ID == want && reply.Property == cmd.Property {
		return reply, nil
	}
	if st, ok := reply.LastStatus(); ok {
		if st != protocol.StatusOK {
			return protocol.Command{}, &StatusError{Op: cmd.ID, Property: cmd.Property, Status: st}
		}
		if cmd.ID != protocol.CmdPropValueGet {
			return reply, nil
		}
	}
	return protocol.Command{}, &MismatchError{
		Want: protocol.Command{ID: want, Property: cmd.Property},
		Got:  reply,
	}
}
