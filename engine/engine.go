// Package engine is the top-level RFCOMM handle: it owns the server registry,
// creates one multiplexer session per lower-layer connection and exposes the
// channel API.
package engine

import (
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rigado/rfcomm"
	"github.com/rigado/rfcomm/session"
)

// Engine binds sessions to lower-layer transports.
type Engine struct {
	sync.Mutex

	cfg     session.Config
	log     rfcomm.Logger
	reg     *Registry
	metrics *Metrics

	// Transports are used as keys and must be comparable, typically pointers.
	sessions map[rfcomm.Transport]*session.Session
}

var _ rfcomm.Configurer = (*Engine)(nil)

// New returns an engine configured by opts.
func New(opts ...rfcomm.Option) (*Engine, error) {
	e := &Engine{
		cfg: session.Config{
			Logger:        rfcomm.GetLogger(),
			Clock:         clock.New(),
			Security:      rfcomm.AllowAll,
			Credits:       rfcomm.DefaultCredits,
			SendQueueSize: rfcomm.DefaultSendQueueSize,
			ConnTimeout:   rfcomm.DefaultConnTimeout,
			DiscTimeout:   rfcomm.DefaultDiscTimeout,
			IdleTimeout:   rfcomm.DefaultIdleTimeout,
		},
		reg:      NewRegistry(),
		sessions: make(map[rfcomm.Transport]*session.Session),
	}
	if err := e.Option(opts...); err != nil {
		return nil, errors.Wrap(err, "can't set options")
	}
	e.log = e.cfg.Logger.ChildLogger(map[string]interface{}{"module": "rfcomm"})
	return e, nil
}

// Option applies opts in order and stops at the first failure.
func (e *Engine) Option(opts ...rfcomm.Option) error {
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns the server registry shared by all sessions.
func (e *Engine) Registry() *Registry { return e.reg }

// RegisterServer accepts inbound channels on channel through policy.
func (e *Engine) RegisterServer(channel uint8, policy session.AcceptPolicy) error {
	if err := e.reg.Register(channel, policy); err != nil {
		return err
	}
	e.log.Debugf("server registered on channel %d", channel)
	return nil
}

// UnregisterServer stops accepting new channels on channel.
func (e *Engine) UnregisterServer(channel uint8) {
	if e.reg.Unregister(channel) {
		e.log.Debugf("server unregistered from channel %d", channel)
	}
}

// Dial returns the initiator session on t, creating it and requesting the
// lower-layer connection if there is none.
func (e *Engine) Dial(t rfcomm.Transport) (*session.Session, error) {
	e.Lock()
	if s, ok := e.sessions[t]; ok {
		e.Unlock()
		return s, nil
	}
	s := e.newSession(t, rfcomm.RoleInitiator)
	e.Unlock()

	if err := t.Connect(s); err != nil {
		e.remove(s)
		return nil, errors.Wrap(err, "can't connect lower layer")
	}
	return s, nil
}

// Accept binds an acceptor session to an incoming lower-layer connection.
func (e *Engine) Accept(t rfcomm.Transport) (*session.Session, error) {
	e.Lock()
	if _, ok := e.sessions[t]; ok {
		e.Unlock()
		return nil, errors.Wrap(rfcomm.ErrBusy, "transport already has a session")
	}
	s := e.newSession(t, rfcomm.RoleAcceptor)
	e.Unlock()

	if err := t.Connect(s); err != nil {
		e.remove(s)
		return nil, errors.Wrap(err, "can't bind lower layer")
	}
	return s, nil
}

// Open opens channel on the session running over t, dialing it if needed.
func (e *Engine) Open(t rfcomm.Transport, channel uint8, level rfcomm.SecurityLevel, mtu int, h session.Handler) (*session.DLC, error) {
	s, err := e.Dial(t)
	if err != nil {
		return nil, err
	}
	return s.Open(channel, level, mtu, h)
}

// Close closes d after its queued data is sent.
func (e *Engine) Close(d *session.DLC) error { return d.Close() }

// Send queues data on d.
func (e *Engine) Send(d *session.DLC, data []byte) error { return d.Send(data) }

// Sessions returns the live sessions.
func (e *Engine) Sessions() []*session.Session {
	e.Lock()
	defer e.Unlock()
	out := make([]*session.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	return out
}

// newSession creates and tracks a session. Caller holds the engine lock.
func (e *Engine) newSession(t rfcomm.Transport, role rfcomm.Role) *session.Session {
	cfg := e.cfg
	cfg.Logger = e.log
	cfg.Servers = e.reg
	if e.metrics != nil {
		cfg.Metrics = e.metrics
	}
	cfg.OnClose = e.remove

	s := session.New(t, role, cfg)
	e.sessions[t] = s
	e.metrics.sessionOpened()
	e.log.Debugf("new %s session", role)
	return s
}

func (e *Engine) remove(s *session.Session) {
	e.Lock()
	defer e.Unlock()
	if e.sessions[s.Transport()] != s {
		return
	}
	delete(e.sessions, s.Transport())
	e.metrics.sessionClosed()
}
