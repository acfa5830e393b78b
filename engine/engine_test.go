package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rigado/rfcomm"
	"github.com/rigado/rfcomm/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopTransport is one end of an in-memory lower-layer link. Events are
// delivered in order from a goroutine per end.
type loopTransport struct {
	mtu  int
	peer *loopTransport
	in   chan func()
	done chan struct{}

	mu     sync.Mutex
	events rfcomm.TransportEvents
}

func newLoop(t *testing.T) (*loopTransport, *loopTransport) {
	done := make(chan struct{})
	a := &loopTransport{mtu: rfcomm.DefaultL2CAPMTU, in: make(chan func(), 1024), done: done}
	b := &loopTransport{mtu: rfcomm.DefaultL2CAPMTU, in: make(chan func(), 1024), done: done}
	a.peer, b.peer = b, a
	for _, l := range []*loopTransport{a, b} {
		go func(l *loopTransport) {
			for {
				select {
				case fn := <-l.in:
					fn()
				case <-l.done:
					return
				}
			}
		}(l)
	}
	t.Cleanup(func() { close(done) })
	return a, b
}

func (l *loopTransport) post(fn func()) {
	select {
	case l.in <- fn:
	case <-l.done:
	}
}

func (l *loopTransport) sink() rfcomm.TransportEvents {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events
}

func (l *loopTransport) Connect(ev rfcomm.TransportEvents) error {
	l.mu.Lock()
	l.events = ev
	l.mu.Unlock()
	l.post(ev.Connected)
	return nil
}

func (l *loopTransport) Disconnect() error {
	for _, end := range []*loopTransport{l, l.peer} {
		end := end
		end.post(func() {
			if ev := end.sink(); ev != nil {
				ev.Disconnected()
			}
		})
	}
	return nil
}

func (l *loopTransport) Send(b []byte) error {
	c := append([]byte(nil), b...)
	p := l.peer
	p.post(func() {
		if ev := p.sink(); ev != nil {
			ev.Receive(c)
		}
	})
	return nil
}

func (l *loopTransport) MTU() int { return l.mtu }

type failingTransport struct{ loopTransport }

func (f *failingTransport) Connect(rfcomm.TransportEvents) error { return errors.New("page timeout") }

// events collects handler callbacks on channels.
type events struct {
	connected    chan *session.DLC
	disconnected chan *session.DLC
	received     chan []byte
}

func newEvents() *events {
	return &events{
		connected:    make(chan *session.DLC, 8),
		disconnected: make(chan *session.DLC, 8),
		received:     make(chan []byte, 64),
	}
}

func (ev *events) handler(echo bool) session.Handler {
	return session.HandlerFuncs{
		OnConnected:    func(d *session.DLC) { ev.connected <- d },
		OnDisconnected: func(d *session.DLC) { ev.disconnected <- d },
		OnReceived: func(d *session.DLC, b []byte) {
			ev.received <- b
			if echo {
				d.Send(b)
			}
		},
	}
}

func waitDLC(t *testing.T, ch chan *session.DLC, what string) *session.DLC {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for "+what)
	}
	return nil
}

func waitData(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for data")
	}
	return nil
}

func newEngine(t *testing.T, opts ...rfcomm.Option) *Engine {
	t.Helper()
	e, err := New(append([]rfcomm.Option{rfcomm.OptLogger(rfcomm.NopLogger())}, opts...)...)
	require.NoError(t, err)
	return e
}

func TestEndToEnd(t *testing.T) {
	reg := prometheus.NewRegistry()
	client := newEngine(t, rfcomm.OptTimeouts(0, 0, 20*time.Millisecond), rfcomm.OptMetrics(reg))
	server := newEngine(t)

	srvEvents := newEvents()
	require.NoError(t, server.RegisterServer(3, func(req session.Request) (session.Acceptance, bool) {
		return session.Acceptance{Handler: srvEvents.handler(true)}, true
	}))

	a, b := newLoop(t)
	_, err := server.Accept(b)
	require.NoError(t, err)

	cliEvents := newEvents()
	d, err := client.Open(a, 3, rfcomm.SecurityL2, 0, cliEvents.handler(false))
	require.NoError(t, err)
	require.Equal(t, d, waitDLC(t, cliEvents.connected, "client connect"))
	srv := waitDLC(t, srvEvents.connected, "server connect")

	assert.Equal(t, uint8(6), d.DLCI())
	assert.Equal(t, uint8(6), srv.DLCI())
	assert.Equal(t, session.FlowCreditBased, d.Session().FlowMode())
	assert.Equal(t, session.FlowCreditBased, srv.Session().FlowMode())
	assert.Equal(t, rfcomm.DefaultL2CAPMTU-6, d.MTU())

	// More messages than one credit window.
	for i := 0; i < 20; i++ {
		msg := []byte{byte(i), 'x'}
		require.NoError(t, client.Send(d, msg))
		assert.Equal(t, msg, waitData(t, srvEvents.received))
		assert.Equal(t, msg, waitData(t, cliEvents.received))
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(client.metrics.DLCsActive))
	require.NoError(t, client.Close(d))
	waitDLC(t, cliEvents.disconnected, "client disconnect")
	waitDLC(t, srvEvents.disconnected, "server disconnect")

	// The idle client closes the multiplexer.
	require.Eventually(t, func() bool {
		return len(client.Sessions()) == 0 && len(server.Sessions()) == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, float64(0), testutil.ToFloat64(client.metrics.DLCsActive))
	assert.Equal(t, float64(0), testutil.ToFloat64(client.metrics.SessionsActive))
	assert.Equal(t, float64(2), testutil.ToFloat64(client.metrics.FramesSent.WithLabelValues("SABM")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(client.metrics.FramesReceived.WithLabelValues("UIH")), float64(20))
	assert.Greater(t, testutil.ToFloat64(client.metrics.CreditsGrantedTotal), float64(0))
	assert.Zero(t, testutil.ToFloat64(client.metrics.FramesDropped.WithLabelValues("fcs")))
}

func TestDialReusesSession(t *testing.T) {
	e := newEngine(t)
	a, _ := newLoop(t)

	s1, err := e.Dial(a)
	require.NoError(t, err)
	s2, err := e.Dial(a)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
	assert.Len(t, e.Sessions(), 1)
	assert.Equal(t, rfcomm.RoleInitiator, s1.Role())

	_, err = e.Accept(a)
	assert.Equal(t, rfcomm.ErrBusy, errors.Cause(err))
}

func TestDialFailure(t *testing.T) {
	e := newEngine(t)
	_, err := e.Dial(&failingTransport{})
	assert.Error(t, err)
	assert.Empty(t, e.Sessions())

	_, err = e.Open(&failingTransport{}, 1, rfcomm.SecurityL0, 0, session.HandlerFuncs{})
	assert.Error(t, err)
}

func TestRejectedChannel(t *testing.T) {
	client := newEngine(t)
	server := newEngine(t)
	require.NoError(t, server.RegisterServer(3, func(session.Request) (session.Acceptance, bool) {
		return session.Acceptance{}, false
	}))

	a, b := newLoop(t)
	_, err := server.Accept(b)
	require.NoError(t, err)

	ev := newEvents()
	for _, ch := range []uint8{3, 4} {
		d, err := client.Open(a, ch, rfcomm.SecurityL0, 0, ev.handler(false))
		require.NoError(t, err)
		assert.Equal(t, d, waitDLC(t, ev.disconnected, "refusal"))
		assert.Equal(t, session.StateDisconnected, d.State())
	}
	assert.Empty(t, ev.connected)
}

func TestOptions(t *testing.T) {
	_, err := New(rfcomm.OptCredits(0))
	assert.Error(t, err)
	_, err = New(rfcomm.OptSendQueueSize(0))
	assert.Error(t, err)
	_, err = New(rfcomm.OptTimeouts(-time.Second, 0, 0))
	assert.Error(t, err)
	_, err = New(rfcomm.OptSecurity(nil))
	assert.Error(t, err)

	reg := prometheus.NewRegistry()
	_, err = New(rfcomm.OptMetrics(reg))
	require.NoError(t, err)
	// Registering the same collectors twice fails.
	_, err = New(rfcomm.OptMetrics(reg))
	assert.Error(t, err)

	e := newEngine(t, rfcomm.OptCredits(3), rfcomm.OptTimeouts(time.Second, 0, 0))
	assert.Equal(t, 3, e.cfg.Credits)
	assert.Equal(t, time.Second, e.cfg.ConnTimeout)
	assert.Equal(t, rfcomm.DefaultDiscTimeout, e.cfg.DiscTimeout)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.FrameReceived(0)
	m.FrameSent(0)
	m.FrameDropped("fcs")
	m.CreditsGranted(3)
	m.DLCConnected()
	m.DLCDisconnected()
	m.sessionOpened()
	m.sessionClosed()
}
