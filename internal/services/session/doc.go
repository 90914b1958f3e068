// Package session owns the lifecycle of the single pairing with a remote
// signer.
//
// A Service moves between idle, connecting, ready and error. Connect runs the
// pairing handshake (connect, then get_public_key) over a fresh ephemeral key
// and only persists the session once both succeed. Bootstrap restores a
// persisted session without repeating the handshake. Disconnect rejects every
// pending request, forgets the session and stops listening.
//
// Every call made through the capability adapter goes through Call, which
// refuses to send anything unless the session is ready.
package session
