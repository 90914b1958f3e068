package domain

import (
	interfaces "bunkerlink/internal/domain/interfaces"
	types "bunkerlink/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	PublicKey            = types.PublicKey
	PrivateKey           = types.PrivateKey
	KeyPair              = types.KeyPair
	Fingerprint          = types.Fingerprint
	State                = types.State
	StateChange          = types.StateChange
	PairingScheme        = types.PairingScheme
	ConnectionDescriptor = types.ConnectionDescriptor
	Session              = types.Session
	Tag                  = types.Tag
	Event                = types.Event
	UnsignedEvent        = types.UnsignedEvent
	Filter               = types.Filter
	Request              = types.Request
	Response             = types.Response
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	KeyValueStore   = interfaces.KeyValueStore
	SessionStore    = interfaces.SessionStore
	Bus             = interfaces.Bus
	Subscription    = interfaces.Subscription
	Cipher          = interfaces.Cipher
	Resolver        = interfaces.Resolver
	Transport       = interfaces.Transport
	IdentityService = interfaces.IdentityService
	RemoteSigner    = interfaces.RemoteSigner
)

const (
	StateIdle       = types.StateIdle
	StateConnecting = types.StateConnecting
	StateReady      = types.StateReady
	StateError      = types.StateError

	SchemeBunker       = types.SchemeBunker
	SchemeNostrConnect = types.SchemeNostrConnect

	KeySize        = types.KeySize
	ConnectTimeout = types.ConnectTimeout
	RequestTimeout = types.RequestTimeout
)

// ParsePublicKey decodes a 64-character hex public key.
func ParsePublicKey(s string) (PublicKey, error) { return types.ParsePublicKey(s) }

// ParsePrivateKey decodes a 64-character hex private key.
func ParsePrivateKey(s string) (PrivateKey, error) { return types.ParsePrivateKey(s) }
