package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/spinelctl/internal/observability"
	"github.com/danmuck/spinelctl/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	ErrTimeout         = errors.New("session: transaction timed out")
	ErrTooManyInFlight = errors.New("session: too many transactions in flight")
	ErrDeviceReset     = errors.New("session: device reset")
	ErrSessionClosed   = errors.New("session: closed")
)

// FrameWriter sends one de-framed Spinel message. Implementations must
// serialize concurrent calls.
type FrameWriter interface {
	WriteFrame(payload []byte) error
}

// NotifyFunc receives unsolicited frames in arrival order together with
// the reset epoch current at delivery.
type NotifyFunc func(f protocol.Frame, epoch uint64)

// Stats is a point-in-time view of the correlator.
type Stats struct {
	InFlight      int
	Queued        int
	Sent          uint64
	Replies       uint64
	Notifications uint64
	Orphaned      uint64
	Timeouts      uint64
	Resets        uint64
	DecodeErrors  uint64
	Epoch         uint64
	LastReset     protocol.Status
}

// Call is one outstanding transaction.
type Call struct {
	TID     uint8
	Epoch   uint64
	Command protocol.Command

	sentAt time.Time
	done   chan struct{}
	reply  protocol.Command
	err    error
}

// Done is closed once the call has resolved.
func (c *Call) Done() <-chan struct{} { return c.done }

// Result returns the reply or the terminal error. Only valid after Done.
func (c *Call) Result() (protocol.Command, error) {
	return c.reply, c.err
}

// Wait blocks for the result. Abandoning the wait through ctx does not
// free the transaction id; it stays held until the device answers or the
// transaction times out.
func (c *Call) Wait(ctx context.Context) (protocol.Command, error) {
	select {
	case <-c.done:
		return c.reply, c.err
	case <-ctx.Done():
		return protocol.Command{}, ctx.Err()
	}
}

func (c *Call) finish(reply protocol.Command, err error) {
	c.reply = reply
	c.err = err
	close(c.done)
}

// slot holds one transaction id. call is nil while the id is reserved
// for a caller that has not sent yet.
type slot struct {
	call  *Call
	timer *time.Timer
}

type waiter struct {
	ready chan uint8
}

// Correlator is the sole owner of the transaction table for one link.
type Correlator struct {
	cfg    Config
	out    FrameWriter
	notify NotifyFunc

	mu      sync.Mutex
	slots   [protocol.MaxTID + 1]*slot
	stale   [protocol.MaxTID + 1]time.Time
	held    int
	waiters []*waiter
	epoch   uint64
	closed  bool
	closing chan struct{}
	resetCh chan struct{}
	stats   Stats
}

func NewCorrelator(out FrameWriter, cfg Config, notify NotifyFunc) *Correlator {
	return &Correlator{
		cfg:     cfg.WithDefaults(),
		out:     out,
		notify:  notify,
		closing: make(chan struct{}),
		resetCh: make(chan struct{}),
	}
}

// Submit sends cmd and waits for its reply.
func (c *Correlator) Submit(ctx context.Context, cmd protocol.Command) (protocol.Command, error) {
	call, err := c.Start(ctx, cmd)
	if err != nil {
		return protocol.Command{}, err
	}
	return call.Wait(ctx)
}

// Start allocates the lowest free transaction id, waiting in FIFO order
// when none is free, then sends cmd. The returned Call always resolves:
// with a reply, ErrTimeout, ErrDeviceReset or ErrSessionClosed.
func (c *Correlator) Start(ctx context.Context, cmd protocol.Command) (*Call, error) {
	tid, err := c.acquire(ctx)
	if err != nil {
		observability.RecordTransaction(cmd.ID.String(), observability.OutcomeRejected, 0)
		return nil, err
	}

	call := &Call{TID: tid, Command: cmd, done: make(chan struct{})}
	s := &slot{call: call}

	c.mu.Lock()
	if c.closed {
		c.releaseLocked(tid)
		c.mu.Unlock()
		return nil, ErrSessionClosed
	}
	call.Epoch = c.epoch
	call.sentAt = time.Now()
	c.slots[tid] = s
	s.timer = time.AfterFunc(c.cfg.RequestTimeout, func() { c.expire(tid, s) })
	c.stats.Sent++
	c.mu.Unlock()

	payload := protocol.EncodeFrame(protocol.Frame{
		Header:  protocol.Header{IID: c.cfg.IID, TID: tid},
		Command: cmd,
	})
	log.Trace().Msgf("session.Start tid=%d %s", tid, cmd)
	if err := c.out.WriteFrame(payload); err != nil {
		err = fmt.Errorf("session: send %s: %w", cmd.ID, err)
		c.resolve(tid, s, protocol.Command{}, err, observability.OutcomeError)
		return nil, err
	}
	observability.RecordFrame(observability.DirectionTX)
	return call, nil
}

// Send writes an unsolicited command on tid 0. No reply is tracked.
func (c *Correlator) Send(cmd protocol.Command) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	payload := protocol.EncodeFrame(protocol.Frame{
		Header:  protocol.Header{IID: c.cfg.IID},
		Command: cmd,
	})
	if err := c.out.WriteFrame(payload); err != nil {
		return fmt.Errorf("session: send %s: %w", cmd.ID, err)
	}
	observability.RecordFrame(observability.DirectionTX)
	return nil
}

func (c *Correlator) acquire(ctx context.Context) (uint8, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrSessionClosed
	}
	if tid, ok := c.reserveLocked(); ok {
		c.mu.Unlock()
		return tid, nil
	}
	if c.cfg.QueueDepth < 0 || len(c.waiters) >= c.cfg.QueueDepth {
		err := fmt.Errorf("%w: held=%d queued=%d", ErrTooManyInFlight, c.held, len(c.waiters))
		c.mu.Unlock()
		return 0, err
	}
	w := &waiter{ready: make(chan uint8, 1)}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	timer := time.NewTimer(c.cfg.QueueTimeout)
	defer timer.Stop()

	var err error
	select {
	case tid := <-w.ready:
		return tid, nil
	case <-ctx.Done():
		err = ctx.Err()
	case <-timer.C:
		err = fmt.Errorf("%w: no free id after %s", ErrTooManyInFlight, c.cfg.QueueTimeout)
	case <-c.closing:
		err = ErrSessionClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dequeueLocked(w) {
		return 0, err
	}
	// An id was handed over while giving up; pass it on.
	c.releaseLocked(<-w.ready)
	return 0, err
}

// reserveLocked takes the lowest free id, passing over ids whose last
// holder timed out recently so a late reply to them cannot land on a new
// caller. Those ids are used only when nothing else is free.
func (c *Correlator) reserveLocked() (uint8, bool) {
	if c.held >= c.cfg.MaxInFlight {
		return 0, false
	}
	now := time.Now()
	pick, fallback := uint8(0), uint8(0)
	for tid := uint8(1); tid <= protocol.MaxTID; tid++ {
		if c.slots[tid] != nil {
			continue
		}
		if now.Before(c.stale[tid]) {
			if fallback == 0 {
				fallback = tid
			}
			continue
		}
		pick = tid
		break
	}
	if pick == 0 {
		pick = fallback
	}
	if pick == 0 {
		return 0, false
	}
	c.stale[pick] = time.Time{}
	c.slots[pick] = &slot{}
	c.held++
	observability.SetInFlight(c.held)
	return pick, true
}

func (c *Correlator) dequeueLocked(w *waiter) bool {
	for i, q := range c.waiters {
		if q == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// releaseLocked frees tid, handing an id straight to the oldest waiter
// when there is one. A quarantined tid stays free and the waiter gets
// another unused id; the quarantined one is handed over only when no
// other id is free.
func (c *Correlator) releaseLocked(tid uint8) {
	if c.slots[tid] == nil {
		return
	}
	if !c.closed && len(c.waiters) > 0 {
		w := c.waiters[0]
		c.waiters = c.waiters[1:]
		next := tid
		if time.Now().Before(c.stale[tid]) {
			if alt := c.unusedLocked(tid); alt != 0 {
				c.slots[tid] = nil
				next = alt
			}
		}
		c.stale[next] = time.Time{}
		c.slots[next] = &slot{}
		w.ready <- next
		return
	}
	c.slots[tid] = nil
	c.held--
	observability.SetInFlight(c.held)
}

// unusedLocked returns the lowest free, unquarantined id other than skip,
// or 0. It ignores the in-flight cap; callers swap one held id for another.
func (c *Correlator) unusedLocked(skip uint8) uint8 {
	now := time.Now()
	for tid := uint8(1); tid <= protocol.MaxTID; tid++ {
		if tid == skip || c.slots[tid] != nil || now.Before(c.stale[tid]) {
			continue
		}
		return tid
	}
	return 0
}

// resolve completes the call in s if s still holds tid. The identity
// check keeps a stale timer or late reply from touching a newer holder
// of the same id.
func (c *Correlator) resolve(tid uint8, s *slot, reply protocol.Command, err error, outcome string) bool {
	c.mu.Lock()
	if c.slots[tid] != s || s.call == nil {
		c.mu.Unlock()
		return false
	}
	s.timer.Stop()
	switch outcome {
	case observability.OutcomeOK:
		c.stats.Replies++
	case observability.OutcomeTimeout:
		c.stats.Timeouts++
		c.stale[tid] = time.Now().Add(c.cfg.RequestTimeout)
	}
	c.releaseLocked(tid)
	c.mu.Unlock()

	s.call.finish(reply, err)
	observability.RecordTransaction(s.call.Command.ID.String(), outcome, time.Since(s.call.sentAt))
	return true
}

func (c *Correlator) expire(tid uint8, s *slot) {
	err := fmt.Errorf("%w: tid=%d after %s", ErrTimeout, tid, c.cfg.RequestTimeout)
	if c.resolve(tid, s, protocol.Command{}, err, observability.OutcomeTimeout) {
		log.Warn().Msgf("session.expire tid=%d %s timed out", tid, s.call.Command.ID)
	}
}

func (c *Correlator) lookup(tid uint8) *slot {
	if tid == 0 || tid > protocol.MaxTID {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[tid]
}

// Dispatch decodes one inbound payload and routes it. A command that
// fails to decode on a held id fails that transaction; anything else
// undecodable is counted and dropped.
func (c *Correlator) Dispatch(payload []byte) {
	observability.RecordFrame(observability.DirectionRX)
	f, err := protocol.DecodeFrame(payload)
	if err != nil {
		c.mu.Lock()
		c.stats.DecodeErrors++
		c.mu.Unlock()
		if errors.Is(err, protocol.ErrMalformedCommand) && !f.Header.Unsolicited() && f.Header.IID == c.cfg.IID {
			if s := c.lookup(f.Header.TID); s != nil && c.resolve(f.Header.TID, s, protocol.Command{}, err, observability.OutcomeError) {
				return
			}
		}
		log.Warn().Err(err).Msgf("session.Dispatch dropped frame len=%d", len(payload))
		return
	}
	c.Deliver(f)
}

// Deliver routes a decoded frame.
func (c *Correlator) Deliver(f protocol.Frame) {
	r := Classify(f.Header)
	if r.Kind == RouteNotification {
		if reason, ok := ResetReason(f); ok {
			c.deviceReset(reason)
		}
		c.mu.Lock()
		c.stats.Notifications++
		epoch := c.epoch
		c.mu.Unlock()
		if c.notify != nil {
			c.notify(f, epoch)
		}
		return
	}

	if f.Header.IID == c.cfg.IID {
		if s := c.lookup(r.TID); s != nil && c.resolve(r.TID, s, f.Command, nil, observability.OutcomeOK) {
			return
		}
	}
	c.mu.Lock()
	c.stats.Orphaned++
	if c.slots[r.TID] == nil {
		c.stale[r.TID] = time.Time{}
	}
	c.mu.Unlock()
	observability.RecordOrphanedReply()
	log.Warn().Msgf("session.Deliver orphaned reply %s %s", f.Header, f.Command)
}

// deviceReset fails every sent transaction with ErrDeviceReset and moves
// to a new epoch. Ids reserved by callers that have not sent yet stay
// reserved; those callers send into the new epoch.
func (c *Correlator) deviceReset(reason protocol.Status) {
	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.stats.Resets++
	c.stats.LastReset = reason
	c.stale = [protocol.MaxTID + 1]time.Time{}
	var victims []*Call
	for tid := uint8(1); tid <= protocol.MaxTID; tid++ {
		s := c.slots[tid]
		if s == nil || s.call == nil {
			continue
		}
		s.timer.Stop()
		victims = append(victims, s.call)
		c.releaseLocked(tid)
	}
	close(c.resetCh)
	c.resetCh = make(chan struct{})
	c.mu.Unlock()

	err := fmt.Errorf("%w: %s", ErrDeviceReset, reason)
	for _, call := range victims {
		call.finish(protocol.Command{}, err)
		observability.RecordTransaction(call.Command.ID.String(), observability.OutcomeReset, time.Since(call.sentAt))
	}
	observability.RecordDeviceReset(reason.String())
	log.Info().Msgf("session.deviceReset reason=%s epoch=%d failed=%d", reason, epoch, len(victims))
}

// ResetSignal returns a channel closed at the next device reset.
func (c *Correlator) ResetSignal() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetCh
}

// Epoch counts device resets observed on this link.
func (c *Correlator) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

func (c *Correlator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stats
	st.InFlight = c.held
	st.Queued = len(c.waiters)
	st.Epoch = c.epoch
	return st
}

// Close fails every outstanding and queued caller with ErrSessionClosed.
// Later calls fail immediately.
func (c *Correlator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.closing)
	var victims []*Call
	for tid := range c.slots {
		s := c.slots[tid]
		if s == nil {
			continue
		}
		if s.timer != nil {
			s.timer.Stop()
		}
		if s.call != nil {
			victims = append(victims, s.call)
		}
		c.slots[tid] = nil
	}
	c.held = 0
	observability.SetInFlight(0)
	c.mu.Unlock()

	for _, call := range victims {
		call.finish(protocol.Command{}, ErrSessionClosed)
		observability.RecordTransaction(call.Command.ID.String(), observability.OutcomeClosed, time.Since(call.sentAt))
	}
}

// Closed is closed once Close has run.
func (c *Correlator) Closed() <-chan struct{} {
	return c.closing
}
