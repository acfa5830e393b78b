// Package frame encodes and decodes TS 07.10 basic option frames as used by RFCOMM.
package frame

import (
	"fmt"

	"github.com/pkg/errors"
)

// Type is the frame type carried in the control field, with the P/F bit cleared.
type Type uint8

// Frame types [TS 07.10 5.2.1.3].
const (
	SABM Type = 0x2f
	UA   Type = 0x63
	DM   Type = 0x0f
	DISC Type = 0x43
	UIH  Type = 0xef
)

func (t Type) String() string {
	switch t {
	case SABM:
		return "SABM"
	case UA:
		return "UA"
	case DM:
		return "DM"
	case DISC:
		return "DISC"
	case UIH:
		return "UIH"
	default:
		return fmt.Sprintf("type(0x%02x)", uint8(t))
	}
}

const (
	pfBit = 0x10
	eaBit = 0x01
	crBit = 0x02

	// MaxLen is the largest information field the two octet length form carries.
	MaxLen = 0x7fff
	// maxShortLen is the largest length encoded in a single octet.
	maxShortLen = 0x7f

	// MaxHeaderSize is address, control and a two octet length.
	MaxHeaderSize = 4
	// Overhead is the worst case framing around an information field:
	// header, credit octet and FCS.
	Overhead = MaxHeaderSize + 1 + 1
)

var (
	ErrShortFrame    = errors.New("frame too short")
	ErrFrameTooLarge = errors.New("frame too large")
	ErrLength        = errors.New("length field mismatch")
	ErrBadFCS        = errors.New("fcs mismatch")
	ErrAddress       = errors.New("address extension bit not set")
)

// Header holds the decoded address, control and length fields.
type Header struct {
	DLCI uint8
	CR   bool
	Type Type
	PF   bool
	Len  int
}

func b2u(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Address packs the address octet.
func Address(dlci uint8, cr bool) byte {
	return (dlci&0x3f)<<2 | b2u(cr)<<1 | eaBit
}

// Control packs the control octet.
func Control(t Type, pf bool) byte {
	return byte(t)&^pfBit | b2u(pf)<<4
}

// EncodeHeader packs h into its wire form.
func EncodeHeader(h Header) ([]byte, error) {
	if h.Len < 0 || h.Len > MaxLen {
		return nil, errors.Wrapf(ErrFrameTooLarge, "length %d", h.Len)
	}
	if h.DLCI > 0x3f {
		return nil, fmt.Errorf("invalid dlci %d", h.DLCI)
	}

	b := make([]byte, 0, MaxHeaderSize)
	b = append(b, Address(h.DLCI, h.CR), Control(h.Type, h.PF))
	if h.Len <= maxShortLen {
		b = append(b, byte(h.Len)<<1|eaBit)
	} else {
		// The first octet carries the low 7 bits with EA cleared, the second the high 8.
		b = append(b, byte(h.Len<<1), byte(h.Len>>7))
	}
	return b, nil
}

// DecodeHeader parses the header at the start of b and returns its size.
func DecodeHeader(b []byte) (Header, int, error) {
	if len(b) < 3 {
		return Header{}, 0, ErrShortFrame
	}
	if b[0]&eaBit == 0 {
		return Header{}, 0, ErrAddress
	}

	h := Header{
		DLCI: b[0] >> 2,
		CR:   b[0]&crBit != 0,
		Type: Type(b[1] &^ pfBit),
		PF:   b[1]&pfBit != 0,
	}

	if b[2]&eaBit != 0 {
		h.Len = int(b[2] >> 1)
		return h, 3, nil
	}

	if len(b) < 4 {
		return Header{}, 0, ErrShortFrame
	}
	h.Len = int(b[2]>>1) | int(b[3])<<7
	return h, 4, nil
}

// Frame is a single RFCOMM frame.
type Frame struct {
	Header

	// HasCredits marks a UIH frame with P/F set whose information field
	// starts with a credit octet [RFCOMM 6.5.2].
	HasCredits bool
	Credits    uint8

	Payload []byte
}

// Marshal serializes the frame. The payload may not exceed mtu.
func (f *Frame) Marshal(mtu int) ([]byte, error) {
	if len(f.Payload) > mtu {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%d bytes, mtu %d", len(f.Payload), mtu)
	}

	h := f.Header
	h.Len = len(f.Payload)
	if f.HasCredits {
		h.PF = true
	}
	hdr, err := EncodeHeader(h)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(hdr)+2+len(f.Payload))
	out = append(out, hdr...)
	if f.HasCredits {
		out = append(out, f.Credits)
	}
	out = append(out, f.Payload...)
	out = append(out, FCS(hdr[:fcsLen(h.Type, len(hdr))]))
	return out, nil
}

// Unmarshal parses and validates one frame. The returned payload aliases b.
func Unmarshal(b []byte) (*Frame, error) {
	h, n, err := DecodeHeader(b)
	if err != nil {
		return nil, err
	}
	if len(b) < n+1 {
		return nil, ErrShortFrame
	}

	info := b[n : len(b)-1]
	f := &Frame{Header: h}
	switch {
	case len(info) == h.Len:
		f.Payload = info
	case h.Type == UIH && h.PF && len(info) == h.Len+1:
		f.HasCredits = true
		f.Credits = info[0]
		f.Payload = info[1:]
	default:
		return nil, errors.Wrapf(ErrLength, "length field %d, info field %d", h.Len, len(info))
	}

	if !CheckFCS(b[:fcsLen(h.Type, n)], b[len(b)-1]) {
		return nil, ErrBadFCS
	}
	return f, nil
}

func fcsLen(t Type, hdrLen int) int {
	if t == UIH {
		return FCSCoverage(t)
	}
	return hdrLen
}

func (f *Frame) String() string {
	s := fmt.Sprintf("%s dlci %d cr %d pf %d len %d", f.Type, f.DLCI, b2u(f.CR), b2u(f.PF), len(f.Payload))
	if f.HasCredits {
		s += fmt.Sprintf(" credits %d", f.Credits)
	}
	return s
}
