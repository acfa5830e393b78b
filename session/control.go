package session

import (
	"github.com/rigado/rfcomm"
	"github.com/rigado/rfcomm/frame"
	"github.com/rigado/rfcomm/mcc"
)

// handleControl processes one multiplexer control message. Caller holds s.mu.
func (s *Session) handleControl(m mcc.Message, cmd bool) {
	s.log.Debugf("rx control %s cmd %t", m.Type(), cmd)

	switch m := m.(type) {
	case *mcc.PN:
		if cmd {
			s.handlePNCommand(m)
		} else {
			s.handlePNResponse(m)
		}
	case *mcc.MSC:
		if cmd {
			s.handleMSC(m)
		}
	case *mcc.RLS:
		if cmd {
			s.sendControl(m, false)
		}
	case *mcc.RPN:
		if !cmd {
			return
		}
		if m.Request {
			def := mcc.DefaultRPN(m.DLCI)
			s.sendControl(&def, false)
			return
		}
		// All port settings are accepted.
		s.sendControl(m, false)
	case *mcc.Test:
		if cmd {
			s.sendControl(m, false)
		}
	case *mcc.FCOn:
		if cmd {
			s.handleAggregate(true)
		}
	case *mcc.FCOff:
		if cmd {
			s.handleAggregate(false)
		}
	case *mcc.NSC:
		s.log.Warnf("peer does not support command 0x%02x", m.Command)
	case *mcc.Unknown:
		if cmd {
			s.sendControl(&mcc.NSC{Command: m.Code}, false)
		}
	}
}

func (s *Session) handlePNCommand(pn *mcc.PN) {
	d := s.dlcs[pn.DLCI]
	if d == nil {
		if pn.MTU == 0 || int(pn.MTU) > rfcomm.MaxMTU {
			s.log.Debugf("pn dlci %d: invalid mtu %d", pn.DLCI, pn.MTU)
			s.sendResponse(frame.DM, pn.DLCI)
			return
		}
		if d = s.accept(pn.DLCI, int(pn.MTU)); d == nil {
			s.sendResponse(frame.DM, pn.DLCI)
			return
		}

		if int(pn.MTU) < d.mtu {
			d.setMTU(int(pn.MTU))
		}
		s.resolveFlow(pn.CreditBased(true))
		if s.flow.getMode() == FlowCreditBased {
			d.setTxCredits(int(pn.Credits))
		}
		d.setState(StateConfig)
		s.sendPN(d, false)
		return
	}

	if pn.MTU == 0 {
		d.log.Debugf("pn with mtu 0 ignored in state %s", d.state)
		return
	}
	switch d.state {
	case StateInit, StateConfig:
		if int(pn.MTU) < d.mtu {
			d.setMTU(int(pn.MTU))
		}
	}
	s.sendPN(d, false)
}

func (s *Session) handlePNResponse(pn *mcc.PN) {
	d := s.dlcs[pn.DLCI]
	if d == nil || d.role != rfcomm.RoleInitiator || d.state != StateConfig {
		s.log.Debugf("unexpected pn response for dlci %d", pn.DLCI)
		return
	}

	if pn.MTU > 0 && int(pn.MTU) < d.mtu {
		d.setMTU(int(pn.MTU))
	}
	s.resolveFlow(pn.CreditBased(false))
	if s.flow.getMode() == FlowCreditBased {
		d.setTxCredits(int(pn.Credits))
	}

	s.sendCommand(frame.SABM, d.dlci)
	d.setState(StateConnecting)
	d.timer.start(s.cfg.ConnTimeout, d.timeout)
}

// sendPN sends our parameters for d. Credit based flow control is offered
// while the DLC is being configured and the session has not settled on the
// legacy mode.
func (s *Session) sendPN(d *DLC, command bool) {
	pn := &mcc.PN{DLCI: d.dlci, MTU: uint16(d.mtu)}
	if d.state == StateConfig && s.flow.getMode() != FlowNotSupported {
		// k only holds part of a larger window. The rest is granted once
		// the channel is connected.
		d.rxCredits = min(s.cfg.Credits, mcc.PNMaxCredits)
		pn.Credits = uint8(d.rxCredits)
		if command {
			pn.FlowCtrl = mcc.PNCreditCommand
		} else {
			pn.FlowCtrl = mcc.PNCreditResponse
		}
	}
	s.sendControl(pn, command)
}

func (s *Session) handleMSC(m *mcc.MSC) {
	d := s.dlcs[m.DLCI]
	if d == nil {
		return
	}
	// With credit based flow control the FC bit carries no meaning.
	if s.flow.getMode() == FlowNotSupported {
		d.setRemoteFC(m.FlowControl())
	}
	s.sendControl(&mcc.MSC{DLCI: m.DLCI, Signals: m.Signals, HasBreak: m.HasBreak, Break: m.Break}, false)
}
