package rfcomm

import "fmt"

// SecurityLevel mirrors the BR/EDR security levels a channel can require.
type SecurityLevel uint8

const (
	SecurityL0 SecurityLevel = iota // no security, SDP only
	SecurityL1                      // no encryption required
	SecurityL2                      // encryption, unauthenticated
	SecurityL3                      // encryption, authenticated
	SecurityL4                      // secure connections
)

// SecurityResult is the outcome of an authorization query.
type SecurityResult uint8

const (
	SecurityAuthorized SecurityResult = iota
	SecurityPending
	SecurityRejected
)

func (r SecurityResult) String() string {
	switch r {
	case SecurityAuthorized:
		return "authorized"
	case SecurityPending:
		return "pending"
	case SecurityRejected:
		return "rejected"
	default:
		return fmt.Sprintf("security(%d)", uint8(r))
	}
}

// SecurityChecker is implemented by the security subsystem. A Pending result
// is followed later by DLC.SecurityResult or by an encryption change event on
// the lower transport.
type SecurityChecker interface {
	CheckAuthorization(level SecurityLevel) SecurityResult
}

// SecurityFunc adapts a plain function to a SecurityChecker.
type SecurityFunc func(level SecurityLevel) SecurityResult

func (f SecurityFunc) CheckAuthorization(level SecurityLevel) SecurityResult { return f(level) }

// AllowAll authorizes every request immediately.
var AllowAll SecurityChecker = SecurityFunc(func(SecurityLevel) SecurityResult { return SecurityAuthorized })
