package session

import (
	"testing"

	"github.com/rigado/rfcomm"
	"github.com/rigado/rfcomm/frame"
	"github.com/rigado/rfcomm/mcc"
	"github.com/stretchr/testify/assert"
)

func TestControlEchoes(t *testing.T) {
	e := newEnv(t, rfcomm.RoleAcceptor)
	e.connect()

	full := mcc.RPN{DLCI: 10, BaudRate: 0x07, LineSettings: 0x03, FlowControl: 0x01, XOn: 0x11, XOff: 0x13, Mask: 0x0001}
	def := mcc.DefaultRPN(10)
	tests := []struct {
		name string
		in   mcc.Message
		want mcc.Message
	}{
		{"rls", &mcc.RLS{DLCI: 10, Status: 0x03}, &mcc.RLS{DLCI: 10, Status: 0x03}},
		{"test", &mcc.Test{Data: []byte("abc")}, &mcc.Test{Data: []byte("abc")}},
		{"rpn request", &mcc.RPN{DLCI: 10, Request: true}, &def},
		{"rpn", &full, &full},
		{"unknown", &mcc.Unknown{Code: 0x4f}, &mcc.NSC{Command: 0x4f}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e.t = t
			e.recvControl(tt.in, true)
			m, cmd := e.expectControl()
			assert.False(t, cmd)
			assert.Equal(t, tt.want, m)
		})
	}
}

func TestControlResponsesConsumed(t *testing.T) {
	e := newEnv(t, rfcomm.RoleInitiator)
	e.connect()

	e.recvControl(&mcc.RLS{DLCI: 2}, false)
	e.recvControl(&mcc.Test{Data: []byte("x")}, false)
	e.recvControl(&mcc.RPN{DLCI: 2, Request: true}, false)
	e.recvControl(&mcc.FCOff{}, false)
	e.recvControl(&mcc.Unknown{Code: 0x4d}, false)
	e.recvControl(&mcc.NSC{Command: 0x83}, false)
	e.recvControl(&mcc.NSC{Command: 0x83}, true)
	e.expectNone()
	assert.Equal(t, StateConnected, e.s.State())
}

func TestControlDropped(t *testing.T) {
	e := newEnv(t, rfcomm.RoleAcceptor)
	e.s.Connected()

	// Multiplexer not up yet.
	e.recvControl(&mcc.Test{Data: []byte("x")}, true)
	e.expectNone()

	e.recvCmd(frame.SABM, 0)
	e.expect(frame.UA, 0)

	// Truncated PN.
	e.recvFrame(&frame.Frame{Header: frame.Header{DLCI: 0, Type: frame.UIH}, Payload: []byte{0x83, 0x11, 0x0c}})
	// MSC for a channel that does not exist.
	e.recvControl(&mcc.MSC{DLCI: 12, Signals: mcc.DefaultSignals}, true)
	e.expectNone()
	assert.Equal(t, FlowUnknown, e.s.FlowMode())
}
