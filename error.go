package rfcomm

import "github.com/pkg/errors"

// Errors returned synchronously to callers. Compare with errors.Cause.
var (
	ErrNotConnected   = errors.New("dlc not connected")
	ErrTooLarge       = errors.New("data exceeds negotiated mtu")
	ErrQueueFull      = errors.New("send queue full")
	ErrAlreadyOpen    = errors.New("channel already open")
	ErrInvalidChannel = errors.New("invalid server channel")
	ErrChannelInUse   = errors.New("server channel already registered")
	ErrBusy           = errors.New("session busy")
	ErrSecurity       = errors.New("security check rejected")
	ErrClosed         = errors.New("transport closed")
)

// IsRetryable reports whether err is a resource exhaustion error that may
// succeed when retried later.
func IsRetryable(err error) bool {
	switch errors.Cause(err) {
	case ErrQueueFull, ErrBusy:
		return true
	}
	return false
}
