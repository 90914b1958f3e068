// Package memzero wipes key material once it is no longer needed.
package memzero

import "crypto/subtle"

// Zero overwrites b with zeros. The copy goes through crypto/subtle so the
// compiler cannot drop it as a dead store.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}

// Key wipes a fixed-size secret such as a private key or a conversation key.
func Key(k *[32]byte) {
	if k != nil {
		Zero(k[:])
	}
}
