package session

import "fmt"

// State is the lifecycle state of a Session or a DLC. Sessions only use a subset.
type State uint8

const (
	StateIdle State = iota
	StateInit
	StateSecurityPending
	StateConnecting
	StateConfig
	StateConnected
	StateUserDisconnect
	StateDisconnecting
	StateDisconnected
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateInit:            "init",
	StateSecurityPending: "security-pending",
	StateConnecting:      "connecting",
	StateConfig:          "config",
	StateConnected:       "connected",
	StateUserDisconnect:  "user-disconnect",
	StateDisconnecting:   "disconnecting",
	StateDisconnected:    "disconnected",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// FlowMode is the flow control discipline of a session.
type FlowMode int32

const (
	FlowUnknown FlowMode = iota
	FlowCreditBased
	FlowNotSupported
)

func (m FlowMode) String() string {
	switch m {
	case FlowUnknown:
		return "unknown"
	case FlowCreditBased:
		return "credit-based"
	case FlowNotSupported:
		return "aggregate"
	default:
		return fmt.Sprintf("flow(%d)", int32(m))
	}
}
