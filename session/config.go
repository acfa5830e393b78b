package session

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rigado/rfcomm"
	"github.com/rigado/rfcomm/frame"
)

// Handler receives the asynchronous outcomes of one DLC. Callbacks are
// invoked outside of the session lock and may call back into the DLC.
type Handler interface {
	Connected(d *DLC)
	Disconnected(d *DLC)
	Received(d *DLC, data []byte)
	SendComplete(d *DLC)
	// SendFailed reports queued data the lower layer did not take. It is
	// not retried.
	SendFailed(d *DLC, data []byte, err error)
}

// HandlerFuncs adapts optional functions to a Handler.
type HandlerFuncs struct {
	OnConnected    func(d *DLC)
	OnDisconnected func(d *DLC)
	OnReceived     func(d *DLC, data []byte)
	OnSendComplete func(d *DLC)
	OnSendFailed   func(d *DLC, data []byte, err error)
}

func (h HandlerFuncs) Connected(d *DLC) {
	if h.OnConnected != nil {
		h.OnConnected(d)
	}
}

func (h HandlerFuncs) Disconnected(d *DLC) {
	if h.OnDisconnected != nil {
		h.OnDisconnected(d)
	}
}

func (h HandlerFuncs) Received(d *DLC, data []byte) {
	if h.OnReceived != nil {
		h.OnReceived(d, data)
	}
}

func (h HandlerFuncs) SendComplete(d *DLC) {
	if h.OnSendComplete != nil {
		h.OnSendComplete(d)
	}
}

func (h HandlerFuncs) SendFailed(d *DLC, data []byte, err error) {
	if h.OnSendFailed != nil {
		h.OnSendFailed(d, data, err)
	}
}

// Request describes an inbound channel open.
type Request struct {
	Session *Session
	Channel uint8
	DLCI    uint8
	// MTU proposed by the peer, 0 when the peer skipped parameter negotiation.
	MTU int
}

// Acceptance is what a server returns to take an inbound channel.
type Acceptance struct {
	Handler  Handler
	Security rfcomm.SecurityLevel
	// MTU is the largest frame the server accepts, 0 for the session MTU.
	MTU int
}

// AcceptPolicy decides on an inbound channel open. It runs in the receive
// context and must not block or call into the session.
type AcceptPolicy func(req Request) (Acceptance, bool)

// ServerLookup resolves server channels to their accept policy.
type ServerLookup interface {
	Lookup(channel uint8) (AcceptPolicy, bool)
}

// Metrics counts protocol events. All methods must be safe for concurrent use.
type Metrics interface {
	FrameReceived(t frame.Type)
	FrameSent(t frame.Type)
	FrameDropped(reason string)
	CreditsGranted(n int)
	DLCConnected()
	DLCDisconnected()
}

type nopMetrics struct{}

func (nopMetrics) FrameReceived(frame.Type) {}
func (nopMetrics) FrameSent(frame.Type)     {}
func (nopMetrics) FrameDropped(string)      {}
func (nopMetrics) CreditsGranted(int)       {}
func (nopMetrics) DLCConnected()            {}
func (nopMetrics) DLCDisconnected()         {}

// Config carries the collaborators and tunables shared by all sessions of an engine.
type Config struct {
	Logger   rfcomm.Logger
	Clock    clock.Clock
	Security rfcomm.SecurityChecker
	Servers  ServerLookup
	Metrics  Metrics

	// Credits is the local receive credit window of each DLC.
	Credits       int
	SendQueueSize int

	ConnTimeout time.Duration
	DiscTimeout time.Duration
	IdleTimeout time.Duration

	// OnClose is called once the session reaches StateDisconnected.
	OnClose func(s *Session)
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = rfcomm.GetLogger()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Security == nil {
		c.Security = rfcomm.AllowAll
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
	if c.Credits <= 0 || c.Credits > 0xff {
		c.Credits = rfcomm.DefaultCredits
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = rfcomm.DefaultSendQueueSize
	}
	if c.ConnTimeout <= 0 {
		c.ConnTimeout = rfcomm.DefaultConnTimeout
	}
	if c.DiscTimeout <= 0 {
		c.DiscTimeout = rfcomm.DefaultDiscTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = rfcomm.DefaultIdleTimeout
	}
}
