// Package identity generates the ephemeral client key pairs bunkerlink uses
// for each pairing and fingerprints keys for display.
//
// It also holds the passphrase policy applied when the session store is
// sealed with a passphrase.
package identity
