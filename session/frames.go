package session

import (
	"github.com/pkg/errors"
	"github.com/rigado/rfcomm"
	"github.com/rigado/rfcomm/frame"
	"github.com/rigado/rfcomm/mcc"
)

// C/R bit of the address octet [TS 07.10 5.2.1.2]. Commands carry 1 when sent
// by the initiator, responses the inverse. UIH frames always use the
// command value.
func (s *Session) cmdCR() bool  { return s.role == rfcomm.RoleInitiator }
func (s *Session) respCR() bool { return s.role == rfcomm.RoleAcceptor }

func (s *Session) write(f *frame.Frame, mtu int) error {
	b, err := f.Marshal(mtu)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", f.Type)
	}
	s.log.Debugf("tx %s", f)
	if err := s.t.Send(b); err != nil {
		return errors.Wrapf(err, "send %s", f.Type)
	}
	s.cfg.Metrics.FrameSent(f.Type)
	return nil
}

func (s *Session) sendCommand(t frame.Type, dlci uint8) {
	f := &frame.Frame{Header: frame.Header{DLCI: dlci, CR: s.cmdCR(), Type: t, PF: true}}
	if err := s.write(f, 0); err != nil {
		s.log.Warnf("%v", err)
	}
}

func (s *Session) sendResponse(t frame.Type, dlci uint8) {
	f := &frame.Frame{Header: frame.Header{DLCI: dlci, CR: s.respCR(), Type: t, PF: true}}
	if err := s.write(f, 0); err != nil {
		s.log.Warnf("%v", err)
	}
}

// sendControl sends a control message on DLCI 0.
func (s *Session) sendControl(m mcc.Message, command bool) {
	f := &frame.Frame{
		Header:  frame.Header{DLCI: 0, CR: s.cmdCR(), Type: frame.UIH},
		Payload: mcc.Encode(m, command),
	}
	if err := s.write(f, frame.MaxLen); err != nil {
		s.log.Warnf("%s: %v", m.Type(), err)
	}
}

// sendCredits grants n credits on dlci with an empty UIH frame.
func (s *Session) sendCredits(dlci uint8, n uint8) error {
	f := &frame.Frame{
		Header:     frame.Header{DLCI: dlci, CR: s.cmdCR(), Type: frame.UIH},
		HasCredits: true,
		Credits:    n,
	}
	return s.write(f, 0)
}

// sendData sends one UIH data frame. It does not take s.mu.
func (s *Session) sendData(dlci uint8, data []byte, mtu int) error {
	f := &frame.Frame{
		Header:  frame.Header{DLCI: dlci, CR: s.cmdCR(), Type: frame.UIH},
		Payload: data,
	}
	return s.write(f, mtu)
}
