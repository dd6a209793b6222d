package ncp

import (
	"context"
	"sync"

	"github.com/danmuck/spinelctl/internal/observability"
	"github.com/danmuck/spinelctl/internal/protocol"
	"github.com/danmuck/spinelctl/internal/protocol/session"
)

// Notification is one unsolicited frame. Value holds the decoded property
// value when the property has a descriptor; Err is set when decoding it
// failed, in which case Raw still carries the payload.
type Notification struct {
	Epoch    uint64
	Header   protocol.Header
	Command  protocol.Command
	Property protocol.PropertyID
	Name     string
	Value    any
	Raw      []byte
	Err      error
}

// Subscription is an independent stream of notifications. A subscriber
// that falls behind loses its oldest backlog, never blocking the reader
// or other subscribers.
type Subscription struct {
	C <-chan Notification

	ch     chan Notification
	filter map[protocol.PropertyID]bool
	bus    *bus
	once   sync.Once
}

// Next blocks for the next notification. It returns
// session.ErrSessionClosed once the session is gone.
func (s *Subscription) Next(ctx context.Context) (Notification, error) {
	select {
	case n, ok := <-s.ch:
		if !ok {
			return Notification{}, session.ErrSessionClosed
		}
		return n, nil
	case <-ctx.Done():
		return Notification{}, ctx.Err()
	}
}

// Close detaches the subscription and closes C.
func (s *Subscription) Close() {
	s.bus.remove(s)
}

func (s *Subscription) wants(n Notification) bool {
	if len(s.filter) == 0 {
		return true
	}
	return n.Command.ID.HasProperty() && s.filter[n.Property]
}

// bus fans notifications out to subscribers in registration order.
type bus struct {
	mu     sync.Mutex
	subs   []*Subscription
	buffer int
	closed bool
}

func newBus(buffer int) *bus {
	if buffer < 1 {
		buffer = 1
	}
	return &bus{buffer: buffer}
}

func (b *bus) subscribe(props []protocol.PropertyID) *Subscription {
	ch := make(chan Notification, b.buffer)
	s := &Subscription{C: ch, ch: ch, bus: b}
	if len(props) > 0 {
		s.filter = make(map[protocol.PropertyID]bool, len(props))
		for _, p := range props {
			s.filter[p] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		s.once.Do(func() {})
		return s
	}
	b.subs = append(b.subs, s)
	return s
}

func (b *bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, q := range b.subs {
		if q == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	s.once.Do(func() { close(s.ch) })
}

func (b *bus) publish(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if !s.wants(n) {
			continue
		}
		offer(s.ch, n)
	}
}

// offer sends n, evicting the oldest queued notification while ch is full.
func offer(ch chan Notification, n Notification) {
	for {
		select {
		case ch <- n:
			return
		default:
		}
		select {
		case <-ch:
			observability.RecordNotificationDropped()
		default:
		}
	}
}

func (b *bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		s.once.Do(func() { close(s.ch) })
	}
	b.subs = nil
}
