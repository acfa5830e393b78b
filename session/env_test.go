package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rigado/rfcomm"
	"github.com/rigado/rfcomm/frame"
	"github.com/rigado/rfcomm/mcc"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mtu  int
	sent chan []byte

	failSend    atomic.Bool
	disconnects atomic.Int32
}

func (t *fakeTransport) Connect(rfcomm.TransportEvents) error { return nil }

func (t *fakeTransport) Disconnect() error {
	t.disconnects.Add(1)
	return nil
}

func (t *fakeTransport) Send(b []byte) error {
	if t.failSend.Load() {
		return errors.New("link down")
	}
	t.sent <- append([]byte(nil), b...)
	return nil
}

func (t *fakeTransport) MTU() int { return t.mtu }

type serverMap map[uint8]AcceptPolicy

func (m serverMap) Lookup(channel uint8) (AcceptPolicy, bool) {
	p, ok := m[channel]
	return p, ok
}

// recorder is a Handler that counts callbacks.
type recorder struct {
	mu           sync.Mutex
	connected    int
	disconnected int
	completed    int
	failed       [][]byte
	data         [][]byte
}

func (r *recorder) Connected(*DLC) {
	r.mu.Lock()
	r.connected++
	r.mu.Unlock()
}

func (r *recorder) Disconnected(*DLC) {
	r.mu.Lock()
	r.disconnected++
	r.mu.Unlock()
}

func (r *recorder) Received(_ *DLC, b []byte) {
	r.mu.Lock()
	r.data = append(r.data, b)
	r.mu.Unlock()
}

func (r *recorder) SendComplete(*DLC) {
	r.mu.Lock()
	r.completed++
	r.mu.Unlock()
}

func (r *recorder) SendFailed(_ *DLC, b []byte, _ error) {
	r.mu.Lock()
	r.failed = append(r.failed, b)
	r.mu.Unlock()
}

func (r *recorder) counts() (connected, disconnected int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected, r.disconnected
}

func (r *recorder) received() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.data...)
}

func (r *recorder) completions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

func (r *recorder) failures() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.failed...)
}

// env drives one Session from the peer's side of the wire.
type env struct {
	t       *testing.T
	tr      *fakeTransport
	clk     *clock.Mock
	servers serverMap
	s       *Session
}

func newEnv(t *testing.T, role rfcomm.Role, mods ...func(*Config)) *env {
	tr := &fakeTransport{mtu: 1000, sent: make(chan []byte, 256)}
	clk := clock.NewMock()
	servers := serverMap{}

	cfg := Config{
		Logger:  rfcomm.NopLogger(),
		Clock:   clk,
		Servers: servers,
	}
	for _, m := range mods {
		m(&cfg)
	}

	e := &env{t: t, tr: tr, clk: clk, servers: servers, s: New(tr, role, cfg)}
	t.Cleanup(e.s.Disconnected)
	return e
}

func (e *env) peerCmdCR() bool  { return e.s.Role() == rfcomm.RoleAcceptor }
func (e *env) peerRespCR() bool { return e.s.Role() == rfcomm.RoleInitiator }

func (e *env) recvFrame(f *frame.Frame) {
	e.t.Helper()
	b, err := f.Marshal(frame.MaxLen)
	require.NoError(e.t, err)
	e.s.Receive(b)
}

func (e *env) recvCmd(typ frame.Type, dlci uint8) {
	e.t.Helper()
	e.recvFrame(&frame.Frame{Header: frame.Header{DLCI: dlci, CR: e.peerCmdCR(), Type: typ, PF: true}})
}

func (e *env) recvResp(typ frame.Type, dlci uint8) {
	e.t.Helper()
	e.recvFrame(&frame.Frame{Header: frame.Header{DLCI: dlci, CR: e.peerRespCR(), Type: typ, PF: true}})
}

func (e *env) recvControl(m mcc.Message, cmd bool) {
	e.t.Helper()
	e.recvFrame(&frame.Frame{
		Header:  frame.Header{DLCI: 0, CR: e.peerCmdCR(), Type: frame.UIH},
		Payload: mcc.Encode(m, cmd),
	})
}

func (e *env) dataFrame(dlci uint8, p []byte) []byte {
	e.t.Helper()
	f := &frame.Frame{Header: frame.Header{DLCI: dlci, CR: e.peerCmdCR(), Type: frame.UIH}, Payload: p}
	b, err := f.Marshal(frame.MaxLen)
	require.NoError(e.t, err)
	return b
}

func (e *env) recvData(dlci uint8, p []byte) {
	e.t.Helper()
	e.s.Receive(e.dataFrame(dlci, p))
}

func (e *env) recvCredits(dlci uint8, n uint8) {
	e.t.Helper()
	e.recvFrame(&frame.Frame{
		Header:     frame.Header{DLCI: dlci, CR: e.peerCmdCR(), Type: frame.UIH},
		HasCredits: true,
		Credits:    n,
	})
}

func (e *env) nextRaw() []byte {
	e.t.Helper()
	select {
	case b := <-e.tr.sent:
		return b
	case <-time.After(time.Second):
		require.FailNow(e.t, "no frame sent")
	}
	return nil
}

func (e *env) next() *frame.Frame {
	e.t.Helper()
	f, err := frame.Unmarshal(e.nextRaw())
	require.NoError(e.t, err)
	return f
}

func (e *env) expect(typ frame.Type, dlci uint8) *frame.Frame {
	e.t.Helper()
	f := e.next()
	require.Equal(e.t, typ, f.Type, "got %s", f)
	require.Equal(e.t, dlci, f.DLCI, "got %s", f)
	return f
}

func (e *env) expectControl() (mcc.Message, bool) {
	e.t.Helper()
	f := e.expect(frame.UIH, 0)
	m, cmd, err := mcc.Decode(f.Payload)
	require.NoError(e.t, err)
	return m, cmd
}

func (e *env) expectNone() {
	e.t.Helper()
	select {
	case b := <-e.tr.sent:
		f, err := frame.Unmarshal(b)
		require.FailNowf(e.t, "unexpected frame", "%v %v", f, err)
	case <-time.After(50 * time.Millisecond):
	}
}

// connect brings the multiplexer up.
func (e *env) connect() {
	e.t.Helper()
	e.s.Connected()
	if e.s.Role() == rfcomm.RoleInitiator {
		e.expect(frame.SABM, 0)
		e.recvResp(frame.UA, 0)
	} else {
		e.recvCmd(frame.SABM, 0)
		e.expect(frame.UA, 0)
	}
	require.Equal(e.t, StateConnected, e.s.State())
}

func creditPN(mtu uint16, credits uint8) mcc.PN {
	return mcc.PN{MTU: mtu, FlowCtrl: mcc.PNCreditResponse, Credits: credits}
}

// open opens a channel from the local side and answers the negotiation with resp.
func (e *env) open(channel uint8, mtu int, resp mcc.PN) (*DLC, *recorder) {
	e.t.Helper()
	rec := &recorder{}
	d, err := e.s.Open(channel, rfcomm.SecurityL2, mtu, rec)
	require.NoError(e.t, err)

	m, cmd := e.expectControl()
	require.True(e.t, cmd)
	require.Equal(e.t, d.DLCI(), m.(*mcc.PN).DLCI)

	resp.DLCI = d.DLCI()
	e.recvControl(&resp, false)
	e.expect(frame.SABM, d.DLCI())
	e.recvResp(frame.UA, d.DLCI())

	m, cmd = e.expectControl()
	require.True(e.t, cmd)
	require.Equal(e.t, d.DLCI(), m.(*mcc.MSC).DLCI)

	c, _ := rec.counts()
	require.Equal(e.t, 1, c)
	require.Equal(e.t, StateConnected, d.State())
	return d, rec
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond, msg)
}
