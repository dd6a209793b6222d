// Package serial opens the UART or USB CDC link to a Spinel device.
package serial

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	goserial "go.bug.st/serial"
)

var ErrNoPort = errors.New("serial: no port configured")

// Config describes one serial link. ReadTimeout bounds every Read so the
// session reader can notice shutdown; a timed out Read returns 0, nil.
type Config struct {
	Path        string
	Baud        int
	DataBits    int
	Parity      string
	StopBits    int
	ReadTimeout time.Duration
	// AssertLines raises DTR and RTS after open. USB CDC ACM firmware
	// commonly waits for DTR before talking.
	AssertLines bool
}

func DefaultConfig() Config {
	return Config{
		Baud:        115200,
		DataBits:    8,
		Parity:      "none",
		StopBits:    1,
		ReadTimeout: 100 * time.Millisecond,
		AssertLines: true,
	}
}

// WithDefaults fills zero fields from DefaultConfig. AssertLines is kept
// as given.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Baud <= 0 {
		c.Baud = d.Baud
	}
	if c.DataBits == 0 {
		c.DataBits = d.DataBits
	}
	if strings.TrimSpace(c.Parity) == "" {
		c.Parity = d.Parity
	}
	if c.StopBits == 0 {
		c.StopBits = d.StopBits
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	return c
}

// openPort is swapped in tests.
var openPort = goserial.Open

// Open opens and configures the port. The caller owns the returned port
// and closes it.
func Open(cfg Config) (goserial.Port, error) {
	cfg = cfg.WithDefaults()
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, ErrNoPort
	}
	mode, err := modeFor(cfg)
	if err != nil {
		return nil, err
	}

	port, err := openPort(cfg.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Path, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("serial: read timeout %s: %w", cfg.Path, err)
	}
	if cfg.AssertLines {
		if err := port.SetDTR(true); err != nil {
			log.Warn().Err(err).Msgf("serial.Open set DTR path=%s", cfg.Path)
		}
		if err := port.SetRTS(true); err != nil {
			log.Warn().Err(err).Msgf("serial.Open set RTS path=%s", cfg.Path)
		}
	}
	// Drop whatever the device printed before we attached.
	_ = port.ResetInputBuffer()

	log.Info().Msgf("serial.Open path=%s baud=%d mode=%d%s%d", cfg.Path, mode.BaudRate, mode.DataBits, parityChar(cfg.Parity), cfg.StopBits)
	return port, nil
}

func modeFor(cfg Config) (*goserial.Mode, error) {
	mode := &goserial.Mode{
		BaudRate: cfg.Baud,
		DataBits: cfg.DataBits,
	}
	if cfg.DataBits < 5 || cfg.DataBits > 8 {
		return nil, fmt.Errorf("serial: data bits must be 5..8, got %d", cfg.DataBits)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Parity)) {
	case "none", "n":
		mode.Parity = goserial.NoParity
	case "even", "e":
		mode.Parity = goserial.EvenParity
	case "odd", "o":
		mode.Parity = goserial.OddParity
	default:
		return nil, fmt.Errorf("serial: unknown parity %q", cfg.Parity)
	}

	switch cfg.StopBits {
	case 1:
		mode.StopBits = goserial.OneStopBit
	case 2:
		mode.StopBits = goserial.TwoStopBits
	default:
		return nil, fmt.Errorf("serial: stop bits must be 1 or 2, got %d", cfg.StopBits)
	}
	return mode, nil
}

func parityChar(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "N"
	}
	return strings.ToUpper(p[:1])
}
