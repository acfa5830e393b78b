package rfcomm

import (
	"fmt"
	"time"
)

// Role of the local device on a multiplexer session. The initiator is the
// side that opened the lower-layer connection and sent SABM on DLCI 0.
type Role uint8

const (
	RoleInitiator Role = iota
	RoleAcceptor
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleAcceptor:
		return "acceptor"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Server channel numbers [RFCOMM 5.4].
const (
	MinChannel = 1
	MaxChannel = 30
)

const (
	// DefaultMTU is the N1 value assumed when nothing else was negotiated [TS 07.10 5.7.2].
	DefaultMTU = 127
	// MaxMTU is the largest information field a 15-bit length can carry.
	MaxMTU = 32767

	// DefaultL2CAPMTU is the minimum lower-layer MTU a BR/EDR L2CAP channel supports.
	DefaultL2CAPMTU = 672

	// DefaultCredits is the local receive credit window of a DLC.
	DefaultCredits = 7

	DefaultSendQueueSize = 64

	DefaultConnTimeout = 60 * time.Second
	DefaultDiscTimeout = 20 * time.Second
	DefaultIdleTimeout = 2 * time.Second
)
