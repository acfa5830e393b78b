package stream

import (
	"encoding/binary"
	"time"
)

const (
	sduPacket    = 0x02
	headerLength = 3
)

// assembler rebuilds SDUs from arbitrary read boundaries. Bytes before a
// start indicator are discarded, and a partial SDU older than timeout is
// abandoned.
type assembler struct {
	b        []byte
	deadline time.Time
	timeout  time.Duration
	maxLen   int
	out      func(sdu []byte)

	// dropped counts bytes discarded while hunting for a start indicator
	// or because an SDU was oversized.
	dropped int
}

func newAssembler(maxLen int, timeout time.Duration, out func([]byte)) *assembler {
	return &assembler{
		b:       make([]byte, 0, 256),
		timeout: timeout,
		maxLen:  maxLen,
		out:     out,
	}
}

func (a *assembler) Assemble(b []byte) {
	if len(a.b) != 0 && a.timeout > 0 && time.Now().After(a.deadline) {
		a.dropped += len(a.b)
		a.reset()
	}

	for len(b) != 0 {
		if len(a.b) == 0 {
			b = a.waitStart(b)
			continue
		}

		n := a.need()
		if n > len(b) {
			n = len(b)
		}
		a.b = append(a.b, b[:n]...)
		b = b[n:]

		if len(a.b) == headerLength && a.length() > a.maxLen {
			// Not a plausible header, resync on the next indicator.
			a.dropped++
			rem := append([]byte(nil), a.b[1:]...)
			a.reset()
			b = append(rem, b...)
			continue
		}
		if len(a.b) >= headerLength && a.need() == 0 {
			sdu := make([]byte, a.length())
			copy(sdu, a.b[headerLength:])
			a.reset()
			a.out(sdu)
		}
	}
}

// waitStart skips to the next start indicator and returns the rest of b.
func (a *assembler) waitStart(b []byte) []byte {
	for i, v := range b {
		if v == sduPacket {
			a.dropped += i
			a.b = append(a.b, v)
			a.deadline = time.Now().Add(a.timeout)
			return b[i+1:]
		}
	}
	a.dropped += len(b)
	return nil
}

func (a *assembler) length() int {
	return int(binary.LittleEndian.Uint16(a.b[1:headerLength]))
}

// need returns how many more bytes complete the header or the SDU.
func (a *assembler) need() int {
	if len(a.b) < headerLength {
		return headerLength - len(a.b)
	}
	return headerLength + a.length() - len(a.b)
}

func (a *assembler) reset() {
	a.b = a.b[:0]
	a.deadline = time.Time{}
}

// encode prepends the SDU header to b.
func encode(b []byte) []byte {
	out := make([]byte, headerLength+len(b))
	out[0] = sduPacket
	binary.LittleEndian.PutUint16(out[1:], uint16(len(b)))
	copy(out[headerLength:], b)
	return out
}
