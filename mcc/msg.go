package mcc

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Message is a multiplexer control command or response body.
type Message interface {
	Type() Type
	Marshal() []byte
	Unmarshal(b []byte) error
}

// PN implements DLC parameter negotiation [TS 07.10 5.4.6.3.1, RFCOMM 5.5.3].
type PN struct {
	DLCI       uint8
	FlowCtrl   uint8 // I bits; 0xF0/0xE0 request/confirm credit based flow control
	Priority   uint8
	AckTimer   uint8
	MTU        uint16
	MaxRetrans uint8
	Credits    uint8 // initial credits k, 0..7, valid with credit based flow control
}

const pnLen = 8

// Type returns the message type of PN.
func (m PN) Type() Type { return TypePN }

// Marshal serializes the parameters into binary form.
func (m *PN) Marshal() []byte {
	c := *m
	c.Credits &= PNMaxCredits
	buf := bytes.NewBuffer(make([]byte, 0, pnLen))
	binary.Write(buf, binary.LittleEndian, &c)
	return buf.Bytes()
}

// Unmarshal de-serializes the binary data and stores the result in the receiver.
func (m *PN) Unmarshal(b []byte) error {
	if len(b) != pnLen {
		return fmt.Errorf("pn: want %d bytes, have %d", pnLen, len(b))
	}
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, m); err != nil {
		return err
	}
	m.DLCI &= 0x3f
	m.Credits &= PNMaxCredits
	return nil
}

// CreditBased reports whether the PN requests or confirms credit based flow control.
func (m *PN) CreditBased(command bool) bool {
	if command {
		return m.FlowCtrl == PNCreditCommand
	}
	return m.FlowCtrl == PNCreditResponse
}

// MSC implements the modem status command [TS 07.10 5.4.6.3.7].
type MSC struct {
	DLCI     uint8
	Signals  uint8
	HasBreak bool
	Break    uint8
}

// Type returns the message type of MSC.
func (m MSC) Type() Type { return TypeMSC }

// Marshal serializes the parameters into binary form.
func (m *MSC) Marshal() []byte {
	b := []byte{dlciField(m.DLCI), m.Signals | eaBit}
	if m.HasBreak {
		b = append(b, m.Break|eaBit)
	}
	return b
}

// Unmarshal de-serializes the binary data and stores the result in the receiver.
func (m *MSC) Unmarshal(b []byte) error {
	if len(b) < 2 || len(b) > 3 {
		return fmt.Errorf("msc: invalid length %d", len(b))
	}
	m.DLCI = dlciFromField(b[0])
	m.Signals = b[1]
	m.HasBreak = len(b) == 3
	if m.HasBreak {
		m.Break = b[2]
	}
	return nil
}

// FlowControl reports whether the sender asks us to stop sending on the DLC.
func (m *MSC) FlowControl() bool { return m.Signals&SignalFC != 0 }

// RLS implements the remote line status command [TS 07.10 5.4.6.3.10].
type RLS struct {
	DLCI   uint8
	Status uint8
}

// Type returns the message type of RLS.
func (m RLS) Type() Type { return TypeRLS }

// Marshal serializes the parameters into binary form.
func (m *RLS) Marshal() []byte { return []byte{dlciField(m.DLCI), m.Status} }

// Unmarshal de-serializes the binary data and stores the result in the receiver.
func (m *RLS) Unmarshal(b []byte) error {
	if len(b) != 2 {
		return fmt.Errorf("rls: invalid length %d", len(b))
	}
	m.DLCI = dlciFromField(b[0])
	m.Status = b[1]
	return nil
}

// RPN implements the remote port negotiation command [TS 07.10 5.4.6.3.9].
// A request carries only the DLCI.
type RPN struct {
	DLCI    uint8
	Request bool

	BaudRate     uint8
	LineSettings uint8
	FlowControl  uint8
	XOn          uint8
	XOff         uint8
	Mask         uint16
}

const rpnLen = 8

// DefaultRPN returns the port settings reported when nothing was configured.
func DefaultRPN(dlci uint8) RPN {
	return RPN{
		DLCI:         dlci,
		BaudRate:     RPNBaud9600,
		LineSettings: RPNLine8N1,
		XOn:          RPNXOn,
		XOff:         RPNXOff,
		Mask:         RPNMaskAll,
	}
}

// Type returns the message type of RPN.
func (m RPN) Type() Type { return TypeRPN }

// Marshal serializes the parameters into binary form.
func (m *RPN) Marshal() []byte {
	if m.Request {
		return []byte{dlciField(m.DLCI)}
	}
	b := []byte{dlciField(m.DLCI), m.BaudRate, m.LineSettings, m.FlowControl, m.XOn, m.XOff, 0, 0}
	binary.LittleEndian.PutUint16(b[6:], m.Mask)
	return b
}

// Unmarshal de-serializes the binary data and stores the result in the receiver.
func (m *RPN) Unmarshal(b []byte) error {
	switch len(b) {
	case 1:
		*m = RPN{DLCI: dlciFromField(b[0]), Request: true}
	case rpnLen:
		*m = RPN{
			DLCI:         dlciFromField(b[0]),
			BaudRate:     b[1],
			LineSettings: b[2],
			FlowControl:  b[3],
			XOn:          b[4],
			XOff:         b[5],
			Mask:         binary.LittleEndian.Uint16(b[6:]),
		}
	default:
		return fmt.Errorf("rpn: invalid length %d", len(b))
	}
	return nil
}

// Test carries opaque data the peer echoes back [TS 07.10 5.4.6.3.4].
type Test struct {
	Data []byte
}

// Type returns the message type of Test.
func (m Test) Type() Type { return TypeTest }

// Marshal serializes the parameters into binary form.
func (m *Test) Marshal() []byte { return append([]byte(nil), m.Data...) }

// Unmarshal de-serializes the binary data and stores the result in the receiver.
func (m *Test) Unmarshal(b []byte) error {
	m.Data = append([]byte(nil), b...)
	return nil
}

// FCOn asks the peer to resume sending on all DLCs [TS 07.10 5.4.6.3.5].
type FCOn struct{}

// Type returns the message type of FCOn.
func (m FCOn) Type() Type { return TypeFCOn }

// Marshal serializes the parameters into binary form.
func (m *FCOn) Marshal() []byte { return nil }

// Unmarshal de-serializes the binary data and stores the result in the receiver.
func (m *FCOn) Unmarshal(b []byte) error { return emptyBody("fcon", b) }

// FCOff asks the peer to stop sending on all DLCs [TS 07.10 5.4.6.3.6].
type FCOff struct{}

// Type returns the message type of FCOff.
func (m FCOff) Type() Type { return TypeFCOff }

// Marshal serializes the parameters into binary form.
func (m *FCOff) Marshal() []byte { return nil }

// Unmarshal de-serializes the binary data and stores the result in the receiver.
func (m *FCOff) Unmarshal(b []byte) error { return emptyBody("fcoff", b) }

// NSC reports a command type the sender does not support [TS 07.10 5.4.6.3.8].
type NSC struct {
	// Command is the type octet of the rejected message, C/R and EA bits included.
	Command uint8
}

// Type returns the message type of NSC.
func (m NSC) Type() Type { return TypeNSC }

// Marshal serializes the parameters into binary form.
func (m *NSC) Marshal() []byte { return []byte{m.Command} }

// Unmarshal de-serializes the binary data and stores the result in the receiver.
func (m *NSC) Unmarshal(b []byte) error {
	if len(b) != 1 {
		return fmt.Errorf("nsc: invalid length %d", len(b))
	}
	m.Command = b[0]
	return nil
}

// Unknown holds a message of a type this implementation does not handle.
type Unknown struct {
	Code uint8 // raw type octet
	Data []byte
}

// Type returns the 6 bit message type.
func (m Unknown) Type() Type { return Type(m.Code >> 2) }

// Marshal serializes the parameters into binary form.
func (m *Unknown) Marshal() []byte { return append([]byte(nil), m.Data...) }

// Unmarshal de-serializes the binary data and stores the result in the receiver.
func (m *Unknown) Unmarshal(b []byte) error {
	m.Data = append([]byte(nil), b...)
	return nil
}

func emptyBody(name string, b []byte) error {
	if len(b) != 0 {
		return fmt.Errorf("%s: unexpected %d byte body", name, len(b))
	}
	return nil
}

// dlciField formats a DLCI the way MSC, RLS and RPN carry it: as an address octet with C/R set.
func dlciField(dlci uint8) uint8 { return (dlci&0x3f)<<2 | crBit | eaBit }

func dlciFromField(b uint8) uint8 { return b >> 2 }
