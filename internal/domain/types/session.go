package types

import (
	"slices"
	"time"
)

// PairingScheme names the form of pairing URI a descriptor was parsed from.
type PairingScheme string

const (
	SchemeBunker       PairingScheme = "bunker"
	SchemeNostrConnect PairingScheme = "nostrconnect"
)

// ConnectionDescriptor is the parsed form of a pairing URI.
type ConnectionDescriptor struct {
	Scheme      PairingScheme
	RemoteKey   PublicKey
	Relays      []string
	Secret      string
	Permissions []string
	Name        string
}

// Session is the single active pairing with a remote signer.
//
// ClientKey is generated locally for this session and is only ever used to
// address and decrypt bus traffic. UserKey stays zero until the remote signer
// has confirmed it.
type Session struct {
	RemoteKey   PublicKey
	Relays      []string
	ClientKey   KeyPair
	UserKey     PublicKey
	Secret      string
	Permissions []string
	Name        string
	LastContact time.Time
}

// Paired reports whether the remote signer has confirmed a user key.
func (s Session) Paired() bool { return !s.UserKey.IsZero() }

// Clone returns a deep copy.
func (s Session) Clone() Session {
	s.Relays = slices.Clone(s.Relays)
	s.Permissions = slices.Clone(s.Permissions)
	return s
}
