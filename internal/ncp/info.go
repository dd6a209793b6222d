package ncp

import (
	"context"
	"fmt"

	"github.com/danmuck/spinelctl/internal/protocol"
	"github.com/danmuck/spinelctl/internal/protocol/pack"
	"github.com/danmuck/spinelctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Info identifies the attached device.
type Info struct {
	ProtocolMajor uint32   `json:"protocol_major"`
	ProtocolMinor uint32   `json:"protocol_minor"`
	NCPVersion    string   `json:"ncp_version"`
	InterfaceType uint32   `json:"interface_type"`
	Capabilities  []uint32 `json:"capabilities"`
}

// Noop checks that the device is answering.
func (s *Session) Noop(ctx context.Context) error {
	cmd := protocol.Command{ID: protocol.CmdNoop}
	reply, err := s.corr.Submit(ctx, cmd)
	if err != nil {
		return err
	}
	st, ok := reply.LastStatus()
	if !ok {
		return &MismatchError{Want: protocol.NewLastStatus(protocol.StatusOK), Got: reply}
	}
	if st != protocol.StatusOK {
		return &StatusError{Op: cmd.ID, Status: st}
	}
	return nil
}

// Reset asks the device to reboot and waits until it announces the reset.
// Calls outstanding at that moment fail with session.ErrDeviceReset.
func (s *Session) Reset(ctx context.Context) (protocol.Status, error) {
	signal := s.corr.ResetSignal()
	if err := s.corr.Send(protocol.Command{ID: protocol.CmdReset}); err != nil {
		return 0, err
	}
	select {
	case <-signal:
		reason := s.LastResetReason()
		log.Info().Msgf("ncp.Reset device back reason=%s epoch=%d", reason, s.Epoch())
		return reason, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.corr.Closed():
		return 0, session.ErrSessionClosed
	}
}

// ProtocolVersion reads the device's protocol version and records it as
// the negotiated version for the current reset epoch.
func (s *Session) ProtocolVersion(ctx context.Context) (major, minor uint32, err error) {
	epoch := s.Epoch()
	v, err := s.Get(ctx, protocol.PropProtocolVersion)
	if err != nil {
		return 0, 0, err
	}
	parts, ok := v.([]any)
	if !ok || len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: protocol version %v", ErrProtocolMismatch, v)
	}
	if major, err = uint32Of(parts[0]); err != nil {
		return 0, 0, err
	}
	if minor, err = uint32Of(parts[1]); err != nil {
		return 0, 0, err
	}

	s.mu.Lock()
	s.version = negotiated{major: major, minor: minor, epoch: epoch, ok: true}
	s.mu.Unlock()
	log.Debug().Msgf("ncp.ProtocolVersion %d.%d epoch=%d", major, minor, epoch)
	return major, minor, nil
}

// Negotiated returns the recorded protocol version. ok is false until one
// has been read in the current reset epoch.
func (s *Session) Negotiated() (major, minor uint32, ok bool) {
	s.mu.Lock()
	v := s.version
	s.mu.Unlock()
	if !v.ok || v.epoch != s.Epoch() {
		return 0, 0, false
	}
	return v.major, v.minor, true
}

// Negotiate returns the recorded protocol version, querying the device
// when none was read since the last reset.
func (s *Session) Negotiate(ctx context.Context) (major, minor uint32, err error) {
	if major, minor, ok := s.Negotiated(); ok {
		return major, minor, nil
	}
	return s.ProtocolVersion(ctx)
}

func (s *Session) NCPVersion(ctx context.Context) (string, error) {
	v, err := s.Get(ctx, protocol.PropNCPVersion)
	if err != nil {
		return "", err
	}
	return pack.Text(v)
}

func (s *Session) InterfaceType(ctx context.Context) (uint32, error) {
	v, err := s.Get(ctx, protocol.PropInterfaceType)
	if err != nil {
		return 0, err
	}
	return uint32Of(v)
}

// Capabilities lists the capability codes the device advertises.
func (s *Session) Capabilities(ctx context.Context) ([]uint32, error) {
	v, err := s.Get(ctx, protocol.PropCaps)
	if err != nil {
		return nil, err
	}
	items, err := pack.List(v)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, len(items))
	for _, item := range items {
		c, err := uint32Of(item)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// LastStatus reads the status of the most recent operation.
func (s *Session) LastStatus(ctx context.Context) (protocol.Status, error) {
	v, err := s.Get(ctx, protocol.PropLastStatus)
	if err != nil {
		return 0, err
	}
	n, err := uint32Of(v)
	return protocol.Status(n), err
}

// Identify collects the identity properties in one pass.
func (s *Session) Identify(ctx context.Context) (Info, error) {
	var info Info
	var err error
	if info.ProtocolMajor, info.ProtocolMinor, err = s.ProtocolVersion(ctx); err != nil {
		return info, err
	}
	if info.NCPVersion, err = s.NCPVersion(ctx); err != nil {
		return info, err
	}
	if info.InterfaceType, err = s.InterfaceType(ctx); err != nil {
		return info, err
	}
	if info.Capabilities, err = s.Capabilities(ctx); err != nil {
		return info, err
	}
	return info, nil
}

func uint32Of(v any) (uint32, error) {
	n, err := pack.Uint(v)
	if err != nil {
		return 0, err
	}
	if n > 1<<32-1 {
		return 0, fmt.Errorf("%w: %d", pack.ErrValueRange, n)
	}
	return uint32(n), nil
}
