// Package correlator matches responses from a remote signer to the requests
// that are waiting for them.
//
// # Lifecycle
//
// Issue registers a pending entry and arms its timer before the request is
// handed to the transport, so a response can never arrive for an unknown id.
// Await blocks until the entry is settled and then forgets it.
//
// An entry is settled exactly once, by whichever comes first: Resolve, Reject,
// its timer, the caller's context or CancelAll. Later attempts are no-ops and
// report false.
package correlator
