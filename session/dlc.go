package session

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/rfcomm"
	"github.com/rigado/rfcomm/frame"
	"github.com/rigado/rfcomm/mcc"
)

// DLC is one data link connection multiplexed over a Session.
//
// state, mtu, the send queue, the tx credits and the remote FC flag are
// guarded by mu and shared with the send worker. Writers additionally hold
// the session lock. rxCredits and the timer belong to the session context.
type DLC struct {
	s     *Session
	dlci  uint8
	role  rfcomm.Role
	level rfcomm.SecurityLevel
	h     Handler
	log   rfcomm.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	state     State
	mtu       int
	queue     [][]byte
	txCredits int
	remoteFC  bool

	rxCredits int
	timer     timer

	// reqMTU is the MTU asked for by the owner, 0 for the session MTU.
	reqMTU int
}

func newDLC(s *Session, dlci uint8, role rfcomm.Role, level rfcomm.SecurityLevel, mtu int, h Handler) *DLC {
	d := &DLC{
		s:      s,
		dlci:   dlci,
		role:   role,
		level:  level,
		h:      h,
		log:    s.log.ChildLogger(map[string]interface{}{"dlci": dlci}),
		state:  StateInit,
		reqMTU: mtu,
	}
	d.mtu = d.localMTU()
	d.cond = sync.NewCond(&d.mu)
	d.timer.s = s
	d.timer.start(s.cfg.ConnTimeout, d.timeout)
	return d
}

// DLCI returns the data link connection identifier.
func (d *DLC) DLCI() uint8 { return d.dlci }

// Channel returns the server channel number.
func (d *DLC) Channel() uint8 { return d.dlci >> 1 }

// Role returns whether the local side opened the channel.
func (d *DLC) Role() rfcomm.Role { return d.role }

// Session returns the multiplexer the channel runs on.
func (d *DLC) Session() *Session { return d.s }

// State returns the current lifecycle state.
func (d *DLC) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// MTU returns the negotiated maximum payload of one Send.
func (d *DLC) MTU() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mtu
}

// TxCredits returns the credits granted by the peer and not yet used.
func (d *DLC) TxCredits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.txCredits
}

// RxCredits returns the credits granted to the peer and not yet used.
func (d *DLC) RxCredits() int {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	return d.rxCredits
}

// Send queues data for transmission. It never blocks on flow control.
func (d *DLC) Send(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateConnected, StateUserDisconnect:
	default:
		return errors.Wrapf(rfcomm.ErrNotConnected, "dlci %d %s", d.dlci, d.state)
	}
	if len(data) > d.mtu {
		return errors.Wrapf(rfcomm.ErrTooLarge, "%d bytes, mtu %d", len(data), d.mtu)
	}
	if len(d.queue) >= d.s.cfg.SendQueueSize {
		return rfcomm.ErrQueueFull
	}

	d.queue = append(d.queue, append([]byte(nil), data...))
	d.cond.Broadcast()
	return nil
}

// Close disconnects the channel. Data already queued is sent first.
func (d *DLC) Close() error {
	var err error
	d.s.run(func() {
		err = d.close()
	})
	return err
}

// SecurityResult delivers the outcome of a security check that returned
// rfcomm.SecurityPending.
func (d *DLC) SecurityResult(passed bool) {
	d.s.run(func() {
		if d.state != StateSecurityPending {
			return
		}
		if passed {
			d.securityPassed()
		} else {
			d.securityFailed()
		}
	})
}

// SetModemStatus sends the V.24 signals in an MSC command.
func (d *DLC) SetModemStatus(signals uint8) error {
	var err error
	d.s.run(func() {
		switch d.state {
		case StateConnected, StateUserDisconnect:
			d.s.sendControl(&mcc.MSC{DLCI: d.dlci, Signals: signals}, true)
		default:
			err = errors.Wrapf(rfcomm.ErrNotConnected, "dlci %d %s", d.dlci, d.state)
		}
	})
	return err
}

func (d *DLC) String() string {
	return fmt.Sprintf("dlc %d (%s)", d.dlci, d.role)
}

// setState changes the state and wakes the send worker. Caller holds s.mu.
func (d *DLC) setState(st State) {
	d.mu.Lock()
	if d.state != st {
		d.log.Debugf("%s -> %s", d.state, st)
		d.state = st
		d.cond.Broadcast()
	}
	d.mu.Unlock()
}

// localMTU is the largest payload the local side proposes.
func (d *DLC) localMTU() int {
	if d.reqMTU > 0 && d.reqMTU < d.s.mtu {
		return d.reqMTU
	}
	return d.s.mtu
}

func (d *DLC) setMTU(mtu int) {
	d.mu.Lock()
	d.mtu = mtu
	d.mu.Unlock()
}

// start runs the security check of a locally opened channel once the
// multiplexer is up.
func (d *DLC) start() {
	switch r := d.s.cfg.Security.CheckAuthorization(d.level); r {
	case rfcomm.SecurityAuthorized:
		d.configure()
	case rfcomm.SecurityPending:
		d.setState(StateSecurityPending)
	default:
		d.log.Infof("security %s", r)
		d.drop()
	}
}

// configure sends the PN command of a locally opened channel.
func (d *DLC) configure() {
	// The session MTU may have changed since Open.
	d.setMTU(d.localMTU())
	d.setState(StateConfig)
	d.s.sendPN(d, true)
}

func (d *DLC) securityPassed() {
	if d.role == rfcomm.RoleAcceptor {
		d.s.sendResponse(frame.UA, d.dlci)
		d.connected()
		return
	}
	d.configure()
}

func (d *DLC) securityFailed() {
	d.log.Infof("security check failed")
	if d.role == rfcomm.RoleAcceptor {
		d.s.sendResponse(frame.DM, d.dlci)
	}
	d.drop()
}

func (d *DLC) handleSABM() {
	if d.role != rfcomm.RoleAcceptor {
		return
	}
	switch d.state {
	case StateInit, StateConfig:
	default:
		return
	}

	switch r := d.s.cfg.Security.CheckAuthorization(d.level); r {
	case rfcomm.SecurityAuthorized:
		d.s.sendResponse(frame.UA, d.dlci)
		d.connected()
	case rfcomm.SecurityPending:
		d.setState(StateSecurityPending)
	default:
		d.log.Infof("security %s", r)
		d.s.sendResponse(frame.DM, d.dlci)
		d.drop()
	}
}

func (d *DLC) handleUA() {
	switch d.state {
	case StateConnecting:
		d.connected()
	case StateDisconnecting:
		d.drop()
	}
}

func (d *DLC) handleDM() {
	d.log.Debugf("dm in state %s", d.state)
	d.drop()
}

func (d *DLC) handleData(f *frame.Frame) {
	switch d.state {
	case StateConnected, StateUserDisconnect:
	default:
		d.s.cfg.Metrics.FrameDropped("state")
		return
	}

	credit := d.s.flow.getMode() == FlowCreditBased
	if f.HasCredits && credit {
		d.addTxCredits(int(f.Credits))
	}
	if len(f.Payload) == 0 {
		return
	}

	if credit {
		if d.rxCredits <= 0 {
			d.log.Warn("data received without credits")
			d.disconnect()
			return
		}
		d.rxCredits--
	}

	data := append([]byte(nil), f.Payload...)
	d.s.notify(func() { d.h.Received(d, data) })

	if credit {
		d.replenish()
	}
}

// connected enters Connected and starts the send worker.
func (d *DLC) connected() {
	d.timer.stop()
	d.s.resolveFlow(false)
	d.setState(StateConnected)
	d.s.sendControl(&mcc.MSC{DLCI: d.dlci, Signals: mcc.DefaultSignals}, true)
	if d.s.flow.getMode() == FlowCreditBased {
		// The PN credit field is too small for larger windows.
		d.grant()
	}

	go d.txLoop()

	d.s.cfg.Metrics.DLCConnected()
	d.s.notify(func() { d.h.Connected(d) })
}

// close handles a local close request.
func (d *DLC) close() error {
	switch d.state {
	case StateConnected:
		// The worker sends DISC once the queue has drained.
		d.setState(StateUserDisconnect)
		d.timer.start(d.s.cfg.DiscTimeout, d.timeout)
	case StateSecurityPending:
		if d.role == rfcomm.RoleAcceptor {
			d.s.sendResponse(frame.DM, d.dlci)
		}
		d.drop()
	case StateInit:
		d.drop()
	case StateConfig, StateConnecting:
		d.disconnect()
	case StateUserDisconnect, StateDisconnecting:
	default:
		return errors.Wrapf(rfcomm.ErrNotConnected, "dlci %d %s", d.dlci, d.state)
	}
	return nil
}

// disconnect sends DISC and waits for UA or the disconnect timeout.
func (d *DLC) disconnect() {
	d.setState(StateDisconnecting)
	d.s.sendCommand(frame.DISC, d.dlci)
	d.timer.start(d.s.cfg.DiscTimeout, d.timeout)
}

func (d *DLC) timeout() {
	d.log.Warnf("timeout in state %s", d.state)
	if d.state == StateSecurityPending && d.role == rfcomm.RoleAcceptor {
		d.s.sendResponse(frame.DM, d.dlci)
	}
	d.drop()
}

// drop moves the channel to Disconnected, removes it from the session and
// notifies the handler.
func (d *DLC) drop() {
	if d.state == StateDisconnected {
		return
	}
	wasOpen := d.state == StateConnected || d.state == StateUserDisconnect
	d.timer.stop()

	d.mu.Lock()
	d.state = StateDisconnected
	d.queue = nil
	d.cond.Broadcast()
	d.mu.Unlock()
	d.log.Debug("disconnected")

	d.s.removeDLC(d)
	if wasOpen {
		d.s.cfg.Metrics.DLCDisconnected()
	}
	d.s.notify(func() { d.h.Disconnected(d) })
}
