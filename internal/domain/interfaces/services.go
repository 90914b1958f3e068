package interfaces

import (
	"context"

	domaintypes "bunkerlink/internal/domain/types"
)

// IdentityService generates the per-session ephemeral key pair.
type IdentityService interface {
	GenerateKeyPair() (domaintypes.KeyPair, error)
	FingerprintKey(key domaintypes.PublicKey) domaintypes.Fingerprint
}

// RemoteSigner is the capability surface the host application calls.
type RemoteSigner interface {
	GetIdentity(ctx context.Context) (domaintypes.PublicKey, error)
	Sign(ctx context.Context, event domaintypes.UnsignedEvent) (domaintypes.Event, error)
	EncryptFor(ctx context.Context, peer domaintypes.PublicKey, plaintext string) (string, error)
	DecryptFrom(ctx context.Context, peer domaintypes.PublicKey, ciphertext string) (string, error)
	Relays() []string
}
