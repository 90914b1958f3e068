// Package app wires application dependencies for the CLI.
//
// It loads Config, builds the session store backend, the relay pool, the
// transport and the session controller, and exposes them via Wire. App adds
// the host-facing glue on top: restoring a stored session at start-up and
// keeping the signer slot in step with the session state.
package app
