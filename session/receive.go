package session

import (
	"github.com/pkg/errors"
	"github.com/rigado/rfcomm"
	"github.com/rigado/rfcomm/frame"
	"github.com/rigado/rfcomm/mcc"
)

// handleFrame dispatches one received SDU. Caller holds s.mu.
func (s *Session) handleFrame(b []byte) {
	f, err := frame.Unmarshal(b)
	if err != nil {
		reason := "malformed"
		if errors.Cause(err) == frame.ErrBadFCS {
			reason = "fcs"
		}
		s.log.Debugf("rx drop %d bytes: %v", len(b), err)
		s.cfg.Metrics.FrameDropped(reason)
		return
	}
	s.log.Debugf("rx %s", f)
	s.cfg.Metrics.FrameReceived(f.Type)

	if s.state == StateDisconnected {
		s.cfg.Metrics.FrameDropped("closed")
		return
	}

	if f.DLCI == 0 {
		s.handleMux(f)
		return
	}

	if s.state != StateConnected {
		s.log.Debugf("rx %s on dlci %d in session state %s, dropped", f.Type, f.DLCI, s.state)
		s.cfg.Metrics.FrameDropped("state")
		return
	}

	switch f.Type {
	case frame.SABM:
		s.handleSABM(f.DLCI)
	case frame.UA:
		if d := s.dlcs[f.DLCI]; d != nil {
			d.handleUA()
		}
	case frame.DM:
		if d := s.dlcs[f.DLCI]; d != nil {
			d.handleDM()
		}
	case frame.DISC:
		if d := s.dlcs[f.DLCI]; d != nil {
			s.sendResponse(frame.UA, f.DLCI)
			d.drop()
		} else {
			s.sendResponse(frame.DM, f.DLCI)
		}
	case frame.UIH:
		d := s.dlcs[f.DLCI]
		if d == nil {
			s.sendResponse(frame.DM, f.DLCI)
			return
		}
		d.handleData(f)
	default:
		s.cfg.Metrics.FrameDropped("type")
	}
}

// handleMux handles frames on DLCI 0.
func (s *Session) handleMux(f *frame.Frame) {
	switch f.Type {
	case frame.SABM:
		switch {
		case s.state == StateInit && s.role == rfcomm.RoleAcceptor:
			s.sendResponse(frame.UA, 0)
			s.enterConnected()
		case s.state == StateConnected:
			s.sendResponse(frame.UA, 0)
		}

	case frame.UA:
		switch s.state {
		case StateConnecting:
			s.enterConnected()
		case StateDisconnecting:
			s.finish()
		}

	case frame.DM:
		switch s.state {
		case StateConnecting, StateDisconnecting:
			s.log.Debugf("multiplexer refused in state %s", s.state)
			s.finish()
		}

	case frame.DISC:
		switch s.state {
		case StateConnected, StateDisconnecting:
			s.sendResponse(frame.UA, 0)
			s.finish()
		default:
			s.sendResponse(frame.DM, 0)
		}

	case frame.UIH:
		if s.state != StateConnected {
			s.cfg.Metrics.FrameDropped("state")
			return
		}
		m, cmd, err := mcc.Decode(f.Payload)
		if err != nil {
			s.log.Debugf("rx control: %v", err)
			s.cfg.Metrics.FrameDropped("malformed")
			return
		}
		s.handleControl(m, cmd)
	}
}

// handleSABM handles a channel open request from the peer.
func (s *Session) handleSABM(dlci uint8) {
	d := s.dlcs[dlci]
	if d == nil {
		// The peer skipped parameter negotiation.
		d = s.accept(dlci, 0)
		if d == nil {
			s.sendResponse(frame.DM, dlci)
			return
		}
		// Without PN both sides use the default N1.
		d.setMTU(min(d.mtu, rfcomm.DefaultMTU))
	}
	d.handleSABM()
}

// accept creates an acceptor DLC for dlci if a server takes it.
func (s *Session) accept(dlci uint8, mtu int) *DLC {
	channel := dlci >> 1
	if channel < rfcomm.MinChannel || channel > rfcomm.MaxChannel || !remoteDLCI(s.role, dlci) {
		s.log.Debugf("dlci %d not valid for the peer", dlci)
		return nil
	}
	if s.cfg.Servers == nil {
		return nil
	}
	policy, ok := s.cfg.Servers.Lookup(channel)
	if !ok {
		s.log.Debugf("no server on channel %d", channel)
		return nil
	}

	a, ok := policy(Request{Session: s, Channel: channel, DLCI: dlci, MTU: mtu})
	if !ok || a.Handler == nil {
		s.log.Debugf("server on channel %d rejected dlci %d", channel, dlci)
		return nil
	}

	d := newDLC(s, dlci, rfcomm.RoleAcceptor, a.Security, a.MTU, a.Handler)
	s.addDLC(d)
	return d
}
