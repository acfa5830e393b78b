package rfcomm

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// Configurer is implemented by the engine to accept configuration options.
type Configurer interface {
	SetLogger(Logger) error
	SetClock(clock.Clock) error
	SetCredits(window int) error
	SetTimeouts(conn, disc, idle time.Duration) error
	SetSecurity(SecurityChecker) error
	SetSendQueueSize(n int) error
	SetMetrics(prometheus.Registerer) error
}

// An Option is a configuration function, which configures the engine.
type Option func(Configurer) error

// OptLogger overrides the package logger for one engine.
func OptLogger(l Logger) Option {
	return func(opt Configurer) error {
		return opt.SetLogger(l)
	}
}

// OptClock sets the clock that drives response, disconnect and idle timers.
func OptClock(c clock.Clock) Option {
	return func(opt Configurer) error {
		return opt.SetClock(c)
	}
}

// OptCredits sets the local receive credit window used in credit based flow control.
func OptCredits(window int) Option {
	return func(opt Configurer) error {
		return opt.SetCredits(window)
	}
}

// OptTimeouts overrides the connect, disconnect and idle timeouts. Zero keeps the default.
func OptTimeouts(conn, disc, idle time.Duration) Option {
	return func(opt Configurer) error {
		return opt.SetTimeouts(conn, disc, idle)
	}
}

// OptSecurity sets the security subsystem consulted before channels open.
func OptSecurity(s SecurityChecker) Option {
	return func(opt Configurer) error {
		return opt.SetSecurity(s)
	}
}

// OptSendQueueSize bounds the per-channel outbound queue.
func OptSendQueueSize(n int) Option {
	return func(opt Configurer) error {
		return opt.SetSendQueueSize(n)
	}
}

// OptMetrics registers protocol counters with r.
func OptMetrics(r prometheus.Registerer) Option {
	return func(opt Configurer) error {
		return opt.SetMetrics(r)
	}
}
