// Package session implements the RFCOMM multiplexer: the session and DLC
// state machines and both flow control disciplines.
package session

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/rfcomm"
	"github.com/rigado/rfcomm/frame"
)

// Session is one multiplexer bound to a single lower-layer connection.
//
// All receive processing, timer expiries and state changes run under mu, one
// event at a time. Handler callbacks queued while mu is held are dispatched
// after it is released.
type Session struct {
	mu sync.Mutex

	t    rfcomm.Transport
	role rfcomm.Role
	cfg  Config
	log  rfcomm.Logger

	state State
	mtu   int
	flow  flow
	dlcs  map[uint8]*DLC
	timer timer

	pending []func()
	done    chan struct{}
}

// New creates a session in StateInit. Lower-layer events must be delivered
// through the rfcomm.TransportEvents methods.
func New(t rfcomm.Transport, role rfcomm.Role, cfg Config) *Session {
	cfg.setDefaults()
	s := &Session{
		t:     t,
		role:  role,
		cfg:   cfg,
		log:   cfg.Logger.ChildLogger(map[string]interface{}{"role": role.String()}),
		state: StateInit,
		mtu:   rfcomm.DefaultMTU,
		dlcs:  make(map[uint8]*DLC),
		done:  make(chan struct{}),
	}
	s.timer.s = s
	return s
}

// run executes fn with the session lock held, then dispatches queued callbacks.
func (s *Session) run(fn func()) {
	s.mu.Lock()
	fn()
	p := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, f := range p {
		f()
	}
}

// notify queues a callback for dispatch once the lock is released.
func (s *Session) notify(f func()) {
	s.pending = append(s.pending, f)
}

// Role returns the fixed role of the local side.
func (s *Session) Role() rfcomm.Role { return s.role }

// Transport returns the lower-layer channel of the session.
func (s *Session) Transport() rfcomm.Transport { return s.t }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MTU returns the largest information field the session can carry.
func (s *Session) MTU() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mtu
}

// FlowMode returns the negotiated flow control discipline.
func (s *Session) FlowMode() FlowMode { return s.flow.getMode() }

// Done is closed when the session reaches StateDisconnected.
func (s *Session) Done() <-chan struct{} { return s.done }

// DLC returns the channel with the given DLCI, or nil.
func (s *Session) DLC(dlci uint8) *DLC {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dlcs[dlci]
}

// DLCs returns the live channels ordered by DLCI.
func (s *Session) DLCs() []*DLC {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedDLCs()
}

func (s *Session) sortedDLCs() []*DLC {
	out := make([]*DLC, 0, len(s.dlcs))
	for _, d := range s.dlcs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].dlci < out[j].dlci })
	return out
}

func (s *Session) setState(st State) {
	if s.state == st {
		return
	}
	s.log.Debugf("session %s -> %s", s.state, st)
	s.state = st
}

// Connected implements rfcomm.TransportEvents.
func (s *Session) Connected() {
	s.run(func() {
		if s.state != StateInit {
			s.log.Warnf("lower layer connected in state %s", s.state)
			return
		}

		s.mtu = s.t.MTU() - frame.Overhead
		if s.mtu > rfcomm.MaxMTU {
			s.mtu = rfcomm.MaxMTU
		}
		if s.mtu <= 0 {
			s.log.Errorf("lower layer mtu %d too small", s.t.MTU())
			s.finish()
			return
		}

		if s.role == rfcomm.RoleInitiator {
			s.sendCommand(frame.SABM, 0)
			s.setState(StateConnecting)
		}
		// The acceptor waits for SABM on DLCI 0.
		s.timer.start(s.cfg.ConnTimeout, s.connectTimeout)
	})
}

// Disconnected implements rfcomm.TransportEvents.
func (s *Session) Disconnected() {
	s.run(func() {
		s.log.Debug("lower layer disconnected")
		s.teardown()
	})
}

// Receive implements rfcomm.TransportEvents.
func (s *Session) Receive(b []byte) {
	s.run(func() {
		s.handleFrame(b)
	})
}

// EncryptionChanged implements rfcomm.TransportEvents. Channels waiting on
// security are re-evaluated; a non-zero status fails them.
func (s *Session) EncryptionChanged(status uint8) {
	s.run(func() {
		for _, d := range s.sortedDLCs() {
			if d.state != StateSecurityPending {
				continue
			}
			if status != 0 {
				d.securityFailed()
				continue
			}
			switch s.cfg.Security.CheckAuthorization(d.level) {
			case rfcomm.SecurityAuthorized:
				d.securityPassed()
			case rfcomm.SecurityRejected:
				d.securityFailed()
			}
		}
	})
}

// Open creates a DLC towards the peer's server channel. The handler learns
// the outcome through Connected or Disconnected.
func (s *Session) Open(channel uint8, level rfcomm.SecurityLevel, mtu int, h Handler) (*DLC, error) {
	if channel < rfcomm.MinChannel || channel > rfcomm.MaxChannel {
		return nil, errors.Wrapf(rfcomm.ErrInvalidChannel, "channel %d", channel)
	}
	if mtu < 0 || mtu > rfcomm.MaxMTU {
		return nil, errors.Wrapf(rfcomm.ErrTooLarge, "mtu %d", mtu)
	}
	if h == nil {
		return nil, errors.New("nil handler")
	}

	var d *DLC
	var err error
	s.run(func() {
		switch s.state {
		case StateInit, StateConnecting, StateConnected:
		default:
			err = errors.Wrapf(rfcomm.ErrNotConnected, "session %s", s.state)
			return
		}

		dlci := localDLCI(s.role, channel)
		if _, ok := s.dlcs[dlci]; ok {
			err = errors.Wrapf(rfcomm.ErrAlreadyOpen, "dlci %d", dlci)
			return
		}

		d = newDLC(s, dlci, rfcomm.RoleInitiator, level, mtu, h)
		s.addDLC(d)
		if s.state == StateConnected {
			d.start()
		}
	})
	return d, err
}

// Close closes the multiplexer. Only allowed once every DLC is gone.
func (s *Session) Close() error {
	var err error
	s.run(func() {
		if len(s.dlcs) > 0 {
			err = errors.Wrapf(rfcomm.ErrBusy, "%d channels open", len(s.dlcs))
			return
		}
		switch s.state {
		case StateConnected:
			s.disconnect()
		case StateInit, StateConnecting:
			s.finish()
		}
	})
	return err
}

func (s *Session) addDLC(d *DLC) {
	s.dlcs[d.dlci] = d
	if s.state == StateConnected {
		// A new channel cancels a pending idle disconnect.
		s.timer.stop()
	}
}

func (s *Session) removeDLC(d *DLC) {
	if s.dlcs[d.dlci] != d {
		return
	}
	delete(s.dlcs, d.dlci)
	if len(s.dlcs) == 0 && s.state == StateConnected {
		s.timer.start(s.cfg.IdleTimeout, s.idleTimeout)
	}
}

// enterConnected moves the multiplexer to Connected and starts channels that
// were opened while it was being set up.
func (s *Session) enterConnected() {
	s.timer.stop()
	s.setState(StateConnected)
	for _, d := range s.sortedDLCs() {
		if d.state == StateInit && d.role == rfcomm.RoleInitiator {
			d.start()
		}
	}
	if len(s.dlcs) == 0 && s.role == rfcomm.RoleInitiator {
		s.timer.start(s.cfg.IdleTimeout, s.idleTimeout)
	}
}

// disconnect starts a local multiplexer close.
func (s *Session) disconnect() {
	s.sendCommand(frame.DISC, 0)
	s.setState(StateDisconnecting)
	s.timer.start(s.cfg.DiscTimeout, s.finish)
}

func (s *Session) connectTimeout() {
	s.log.Warnf("no response in state %s", s.state)
	s.finish()
}

func (s *Session) idleTimeout() {
	if s.state != StateConnected || len(s.dlcs) > 0 {
		return
	}
	s.log.Debug("idle, closing multiplexer")
	s.disconnect()
}

// finish tears the session down and releases the lower layer.
func (s *Session) finish() {
	if s.state == StateDisconnected {
		return
	}
	s.teardown()
	if err := s.t.Disconnect(); err != nil {
		s.log.Warnf("lower layer disconnect: %v", err)
	}
}

// teardown drops every channel and enters the terminal state.
func (s *Session) teardown() {
	if s.state == StateDisconnected {
		return
	}
	s.timer.stop()
	s.setState(StateDisconnected)
	for _, d := range s.sortedDLCs() {
		d.drop()
	}
	s.flow.open()
	close(s.done)
	if s.cfg.OnClose != nil {
		s.notify(func() { s.cfg.OnClose(s) })
	}
}

// localDLCI returns the DLCI of a channel opened from this side. The
// direction bit keeps both peers from allocating the same DLCI [RFCOMM 5.4].
func localDLCI(role rfcomm.Role, channel uint8) uint8 {
	d := channel << 1
	if role == rfcomm.RoleAcceptor {
		d |= 1
	}
	return d
}

// remoteDLCI reports whether dlci has the direction bit the peer uses.
func remoteDLCI(role rfcomm.Role, dlci uint8) bool {
	return (dlci&1 == 1) == (role == rfcomm.RoleInitiator)
}
