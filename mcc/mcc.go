// Package mcc implements the multiplexer control channel messages carried in
// UIH frames on DLCI 0 [TS 07.10 5.4.6].
package mcc

import (
	"fmt"

	"github.com/pkg/errors"
)

// Type is the 6 bit control message type.
type Type uint8

const (
	TypePN    Type = 0x20
	TypeMSC   Type = 0x38
	TypeRLS   Type = 0x14
	TypeRPN   Type = 0x24
	TypeTest  Type = 0x08
	TypeFCOn  Type = 0x28
	TypeFCOff Type = 0x18
	TypeNSC   Type = 0x04
)

func (t Type) String() string {
	switch t {
	case TypePN:
		return "PN"
	case TypeMSC:
		return "MSC"
	case TypeRLS:
		return "RLS"
	case TypeRPN:
		return "RPN"
	case TypeTest:
		return "TEST"
	case TypeFCOn:
		return "FCON"
	case TypeFCOff:
		return "FCOFF"
	case TypeNSC:
		return "NSC"
	default:
		return fmt.Sprintf("mcc(0x%02x)", uint8(t))
	}
}

const (
	eaBit = 0x01
	crBit = 0x02
)

// PN convergence layer values selecting credit based flow control [RFCOMM 5.5.3].
const (
	PNCreditCommand  = 0xf0
	PNCreditResponse = 0xe0

	// PNMaxCredits is the largest initial credit count the 3-bit k field holds.
	PNMaxCredits = 0x07
)

// V.24 signal bits of MSC.
const (
	SignalFC  = 0x02
	SignalRTC = 0x04
	SignalRTR = 0x08
	SignalIC  = 0x40
	SignalDV  = 0x80

	DefaultSignals = eaBit | SignalRTC | SignalRTR | SignalDV
)

// RPN defaults.
const (
	RPNBaud9600 = 0x03
	RPNLine8N1  = 0x03
	RPNXOn      = 0x11
	RPNXOff     = 0x13
	RPNMaskAll  = 0x3f7f
)

var ErrShortMessage = errors.New("control message truncated")

// Encode builds the information field of a control message.
func Encode(m Message, command bool) []byte {
	body := m.Marshal()

	code := byte(m.Type())<<2 | eaBit
	if command {
		code |= crBit
	}
	if u, ok := m.(*Unknown); ok {
		code = u.Code
	}

	b := make([]byte, 0, 3+len(body))
	b = append(b, code)
	if len(body) <= 0x7f {
		b = append(b, byte(len(body))<<1|eaBit)
	} else {
		b = append(b, byte(len(body)<<1), byte(len(body)>>7))
	}
	return append(b, body...)
}

// Decode parses the information field of a control message. command reports
// the C/R bit of the type octet. Messages of unknown type decode to *Unknown.
func Decode(b []byte) (m Message, command bool, err error) {
	if len(b) < 2 {
		return nil, false, ErrShortMessage
	}

	code := b[0]
	command = code&crBit != 0

	n := int(b[1] >> 1)
	hdr := 2
	if b[1]&eaBit == 0 {
		if len(b) < 3 {
			return nil, false, ErrShortMessage
		}
		n |= int(b[2]) << 7
		hdr = 3
	}
	if len(b) < hdr+n {
		return nil, false, errors.Wrapf(ErrShortMessage, "want %d bytes, have %d", n, len(b)-hdr)
	}
	body := b[hdr : hdr+n]

	switch Type(code >> 2) {
	case TypePN:
		m = &PN{}
	case TypeMSC:
		m = &MSC{}
	case TypeRLS:
		m = &RLS{}
	case TypeRPN:
		m = &RPN{}
	case TypeTest:
		m = &Test{}
	case TypeFCOn:
		m = &FCOn{}
	case TypeFCOff:
		m = &FCOff{}
	case TypeNSC:
		m = &NSC{}
	default:
		m = &Unknown{Code: code}
	}

	if err := m.Unmarshal(body); err != nil {
		return nil, command, errors.Wrapf(err, "decode %s", Type(code>>2))
	}
	return m, command, nil
}
