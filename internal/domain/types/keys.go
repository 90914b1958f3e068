package types

import (
	"encoding/hex"
	"fmt"
)

// KeySize is the length in bytes of x-only public keys and private scalars.
const KeySize = 32

// PublicKey is a secp256k1 x-only public key.
type PublicKey [KeySize]byte

// Slice returns the key as a []byte.
func (p PublicKey) Slice() []byte { return p[:] }

// String returns the canonical 64-character lower-case hex form.
func (p PublicKey) String() string { return hex.EncodeToString(p[:]) }

// IsZero reports whether the key is unset.
func (p PublicKey) IsZero() bool { return p == PublicKey{} }

// MarshalText encodes the key as hex.
func (p PublicKey) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText decodes a 64-character hex key.
func (p *PublicKey) UnmarshalText(b []byte) error {
	k, err := ParsePublicKey(string(b))
	if err != nil {
		return err
	}
	*p = k
	return nil
}

// ParsePublicKey decodes a 64-character hex string. It checks length and
// encoding only; curve membership is checked by the crypto package.
func ParsePublicKey(s string) (PublicKey, error) {
	var out PublicKey
	if err := decodeHex32(s, out[:]); err != nil {
		return PublicKey{}, fmt.Errorf("public key: %w", err)
	}
	return out, nil
}

// PrivateKey is a secp256k1 private scalar.
type PrivateKey [KeySize]byte

// Slice returns the key as a []byte.
func (k PrivateKey) Slice() []byte { return k[:] }

// Hex returns the key as hex. Named differently from String so the secret is
// never printed by accident through %v.
func (k PrivateKey) Hex() string { return hex.EncodeToString(k[:]) }

// String redacts the key.
func (k PrivateKey) String() string { return "PrivateKey(redacted)" }

// IsZero reports whether the key is unset.
func (k PrivateKey) IsZero() bool { return k == PrivateKey{} }

// ParsePrivateKey decodes a 64-character hex string.
func ParsePrivateKey(s string) (PrivateKey, error) {
	var out PrivateKey
	if err := decodeHex32(s, out[:]); err != nil {
		return PrivateKey{}, fmt.Errorf("private key: %w", err)
	}
	return out, nil
}

// KeyPair is a private key with its derived x-only public key.
type KeyPair struct {
	Private PrivateKey
	Public  PublicKey
}

func decodeHex32(s string, dst []byte) error {
	if len(s) != 2*KeySize {
		return fmt.Errorf("want %d hex characters, got %d", 2*KeySize, len(s))
	}
	n, err := hex.Decode(dst, []byte(s))
	if err != nil {
		return err
	}
	if n != KeySize {
		return fmt.Errorf("want %d bytes, got %d", KeySize, n)
	}
	return nil
}
