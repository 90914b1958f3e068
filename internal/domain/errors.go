package domain

import "errors"

var (
	// ErrInvalidPairingURI is returned for malformed pairing URIs.
	ErrInvalidPairingURI = errors.New("invalid pairing uri")
	// ErrMissingEndpoint is returned when a pairing URI names no relay.
	ErrMissingEndpoint = errors.New("pairing uri has no relay endpoint")
	// ErrAlreadyConnecting is returned when a pairing attempt is in flight.
	ErrAlreadyConnecting = errors.New("pairing already in progress")
	// ErrNotPaired is returned by capability calls while no session is ready.
	ErrNotPaired = errors.New("no paired remote signer")
	// ErrTimeout is returned when the remote signer did not answer in time.
	ErrTimeout = errors.New("remote signer request timed out")
	// ErrDecode marks inbound messages that could not be decrypted or parsed.
	// It is logged and never returned to callers.
	ErrDecode = errors.New("undecodable inbound message")
	// ErrDisconnected rejects every pending request on teardown.
	ErrDisconnected = errors.New("session disconnected")
	// ErrUnknownRequest is returned when awaiting an id that was never issued
	// or has already been collected.
	ErrUnknownRequest = errors.New("unknown request id")
	// ErrBadSignedEvent is returned when a signed event from the remote signer
	// fails verification.
	ErrBadSignedEvent = errors.New("remote signer returned an invalid event")
	// ErrRemote matches every RemoteError via errors.Is.
	ErrRemote = errors.New("remote signer error")
)

// RemoteError carries an error message reported by the remote signer.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "remote signer: " + e.Message }

// Is lets errors.Is(err, ErrRemote) match any RemoteError.
func (e *RemoteError) Is(target error) bool { return target == ErrRemote }
