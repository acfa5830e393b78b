package session

import (
	"sync/atomic"

	"github.com/rigado/rfcomm/mcc"
)

// maxTxCredits bounds the credits a peer may accumulate on one DLC.
const maxTxCredits = 0xffff

// flow holds the session-wide flow control state. mode is written once,
// from the session context, and read by the send workers.
type flow struct {
	mode    atomic.Int32
	blocked atomic.Bool // aggregate gate closed by FCOFF
}

func (f *flow) getMode() FlowMode { return FlowMode(f.mode.Load()) }

func (f *flow) open() { f.blocked.Store(false) }

// resolveFlow fixes the session flow mode on the first negotiation. Later
// calls leave it unchanged.
func (s *Session) resolveFlow(credit bool) {
	m := FlowNotSupported
	if credit {
		m = FlowCreditBased
	}
	if s.flow.mode.CompareAndSwap(int32(FlowUnknown), int32(m)) {
		s.log.Debugf("flow control %s", m)
	}
}

// canSend reports whether the worker of d may transmit. Caller holds d.mu.
func (s *Session) canSend(d *DLC) bool {
	if s.flow.getMode() == FlowCreditBased {
		return d.txCredits > 0
	}
	return !s.flow.blocked.Load() && !d.remoteFC
}

// consume accounts for one transmitted frame. Caller holds d.mu.
func (s *Session) consume(d *DLC) {
	if s.flow.getMode() == FlowCreditBased {
		d.txCredits--
	}
}

// setAggregate opens or closes the gate shared by all DLCs of the session.
func (s *Session) setAggregate(open bool) {
	s.flow.blocked.Store(!open)
	for _, d := range s.dlcs {
		d.mu.Lock()
		d.cond.Broadcast()
		d.mu.Unlock()
	}
}

func (s *Session) handleAggregate(open bool) {
	if s.flow.getMode() == FlowCreditBased {
		s.log.Debugf("aggregate flow control (open %t) ignored in credit based mode", open)
		return
	}
	s.setAggregate(open)
	if open {
		s.sendControl(&mcc.FCOn{}, false)
	} else {
		s.sendControl(&mcc.FCOff{}, false)
	}
}

// refund returns the credit of a frame that never reached the wire.
func (s *Session) refund(d *DLC) {
	if s.flow.getMode() != FlowCreditBased {
		return
	}
	d.mu.Lock()
	if d.txCredits < maxTxCredits {
		d.txCredits++
	}
	d.cond.Broadcast()
	d.mu.Unlock()
}

func (d *DLC) setTxCredits(n int) {
	d.mu.Lock()
	d.txCredits = n
	d.cond.Broadcast()
	d.mu.Unlock()
}

func (d *DLC) addTxCredits(n int) {
	d.mu.Lock()
	d.txCredits += n
	if d.txCredits > maxTxCredits {
		d.log.Warnf("tx credits overflow, clamped to %d", maxTxCredits)
		d.txCredits = maxTxCredits
	}
	d.cond.Broadcast()
	d.mu.Unlock()
}

func (d *DLC) setRemoteFC(on bool) {
	d.mu.Lock()
	d.remoteFC = on
	d.cond.Broadcast()
	d.mu.Unlock()
}

// replenish tops the peer's credits back up to the window once they fall to
// the low-water mark.
func (d *DLC) replenish() {
	if d.rxCredits > d.s.cfg.Credits/2 {
		return
	}
	d.grant()
}

// grant raises the peer's credits to the full window.
func (d *DLC) grant() {
	n := d.s.cfg.Credits - d.rxCredits
	if n <= 0 {
		return
	}
	if err := d.s.sendCredits(d.dlci, uint8(n)); err != nil {
		d.log.Warnf("credits: %v", err)
		return
	}
	d.rxCredits += n
	d.s.cfg.Metrics.CreditsGranted(n)
}
