package types

import "time"

// Fixed request deadlines. Pairing waits longer because the remote device may
// ask a human to approve the connection.
const (
	ConnectTimeout = 20 * time.Second
	RequestTimeout = 15 * time.Second
)

// State is a lifecycle state of the session controller.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateReady
	StateError
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StateChange is delivered to observers on every transition.
type StateChange struct {
	State   State
	Session *Session // copy of the current session, nil when none
	Err     string
}

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }
