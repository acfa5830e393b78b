package engine

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rigado/rfcomm"
)

// SetLogger overrides the package logger for this engine.
func (e *Engine) SetLogger(l rfcomm.Logger) error {
	if l == nil {
		return fmt.Errorf("nil logger")
	}
	e.cfg.Logger = l
	return nil
}

// SetClock sets the clock driving all protocol timers.
func (e *Engine) SetClock(c clock.Clock) error {
	if c == nil {
		return fmt.Errorf("nil clock")
	}
	e.cfg.Clock = c
	return nil
}

// SetCredits sets the receive credit window of each channel.
func (e *Engine) SetCredits(window int) error {
	if window < 1 || window > 0xff {
		return fmt.Errorf("credit window %d out of range 1..255", window)
	}
	e.cfg.Credits = window
	return nil
}

// SetTimeouts overrides the connect, disconnect and idle timeouts. Zero keeps the current value.
func (e *Engine) SetTimeouts(conn, disc, idle time.Duration) error {
	if conn < 0 || disc < 0 || idle < 0 {
		return fmt.Errorf("negative timeout")
	}
	if conn > 0 {
		e.cfg.ConnTimeout = conn
	}
	if disc > 0 {
		e.cfg.DiscTimeout = disc
	}
	if idle > 0 {
		e.cfg.IdleTimeout = idle
	}
	return nil
}

// SetSecurity sets the security subsystem queried before channels open.
func (e *Engine) SetSecurity(s rfcomm.SecurityChecker) error {
	if s == nil {
		return fmt.Errorf("nil security checker")
	}
	e.cfg.Security = s
	return nil
}

// SetSendQueueSize bounds the outbound queue of each channel.
func (e *Engine) SetSendQueueSize(n int) error {
	if n < 1 {
		return fmt.Errorf("invalid send queue size %d", n)
	}
	e.cfg.SendQueueSize = n
	return nil
}

// SetMetrics registers the engine's Prometheus collectors with r.
func (e *Engine) SetMetrics(r prometheus.Registerer) error {
	m, err := NewMetrics(r)
	if err != nil {
		return err
	}
	e.metrics = m
	return nil
}
