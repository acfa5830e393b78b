package session

import (
	"time"

	"github.com/benbjohnson/clock"
)

// timer is a restartable one-shot whose expiry runs in the session's
// exclusive context. A generation counter discards expiries that raced with
// stop or a restart.
type timer struct {
	s   *Session
	t   *clock.Timer
	gen uint64
}

// start arms the timer, replacing any pending expiry. Caller holds s.mu.
func (tm *timer) start(d time.Duration, fn func()) {
	tm.stop()
	gen := tm.gen
	tm.t = tm.s.cfg.Clock.AfterFunc(d, func() {
		tm.s.run(func() {
			if tm.gen != gen {
				return
			}
			tm.t = nil
			fn()
		})
	})
}

// stop cancels a pending expiry. Caller holds s.mu.
func (tm *timer) stop() {
	if tm.t != nil {
		tm.t.Stop()
		tm.t = nil
	}
	tm.gen++
}

func (tm *timer) armed() bool { return tm.t != nil }
