package session

import (
	"fmt"
	"time"

	"github.com/danmuck/spinelctl/internal/protocol"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines per-link transaction limits and timeouts.
type Config struct {
	// IID is the interface id stamped on outbound headers.
	IID uint8
	// RequestTimeout bounds each transaction from send to reply.
	RequestTimeout time.Duration
	// MaxInFlight caps concurrently held transaction ids (1..15).
	MaxInFlight int
	// QueueDepth caps callers waiting for a free id. Negative disables
	// waiting: a full id space fails immediately.
	QueueDepth int
	// QueueTimeout bounds how long a caller waits for a free id.
	QueueTimeout time.Duration
	// ReadTimeout bounds each transport read so the reader can notice
	// shutdown.
	ReadTimeout time.Duration
	// NotifyBuffer is the per-subscriber notification backlog.
	NotifyBuffer int
	// MaxReadErrors is how many consecutive transport read errors the
	// reader tolerates before ending the session.
	MaxReadErrors int
	// MaxFrameLen bounds one de-framed message.
	MaxFrameLen int
	Backoff     BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		RequestTimeout: 2 * time.Second,
		MaxInFlight:    protocol.MaxTID,
		QueueDepth:     32,
		QueueTimeout:   2 * time.Second,
		ReadTimeout:    100 * time.Millisecond,
		NotifyBuffer:   32,
		MaxReadErrors:  5,
		MaxFrameLen:    2048,
		Backoff: BackoffConfig{
			InitialDelay: 50 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig and clamps
// MaxInFlight to the transaction id space.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.MaxInFlight <= 0 || c.MaxInFlight > protocol.MaxTID {
		c.MaxInFlight = d.MaxInFlight
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = d.QueueDepth
	}
	if c.QueueTimeout <= 0 {
		c.QueueTimeout = c.RequestTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.NotifyBuffer <= 0 {
		c.NotifyBuffer = d.NotifyBuffer
	}
	if c.MaxReadErrors <= 0 {
		c.MaxReadErrors = d.MaxReadErrors
	}
	if c.MaxFrameLen <= 0 {
		c.MaxFrameLen = d.MaxFrameLen
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = d.Backoff
	}
	return c
}

func (c Config) Validate() error {
	if c.IID > protocol.MaxIID {
		return fmt.Errorf("%w: %d", protocol.ErrInvalidIID, c.IID)
	}
	if c.MaxInFlight < 0 || c.MaxInFlight > protocol.MaxTID {
		return fmt.Errorf("session config max_in_flight must be 1..%d, got %d", protocol.MaxTID, c.MaxInFlight)
	}
	if c.RequestTimeout < 0 || c.QueueTimeout < 0 || c.ReadTimeout < 0 {
		return fmt.Errorf("session config timeouts must not be negative")
	}
	return nil
}
