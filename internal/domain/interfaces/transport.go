package interfaces

import (
	"context"

	domaintypes "bunkerlink/internal/domain/types"
)

// Bus is the publish/subscribe transport the remote signer listens on.
// Endpoints are relay addresses; an empty list means every endpoint the bus
// knows about.
type Bus interface {
	Publish(ctx context.Context, endpoints []string, event domaintypes.Event) error
	// Subscribe delivers matching events to handler until the returned
	// Subscription is closed. handler may be called concurrently and more
	// than once for the same event.
	Subscribe(
		ctx context.Context,
		endpoints []string,
		filter domaintypes.Filter,
		handler func(domaintypes.Event),
	) (Subscription, error)
}

// Subscription is a live Bus subscription.
type Subscription interface {
	Close() error
}

// Cipher encrypts payloads between two keys.
type Cipher interface {
	Encrypt(
		sender domaintypes.PrivateKey,
		recipient domaintypes.PublicKey,
		plaintext string,
	) (string, error)
	Decrypt(
		recipient domaintypes.PrivateKey,
		sender domaintypes.PublicKey,
		ciphertext string,
	) (string, error)
}

// Resolver settles pending requests by id. Both methods report false when
// the id is unknown or already settled.
type Resolver interface {
	Resolve(id, result string) bool
	Reject(id string, err error) bool
}

// Transport moves requests to the remote signer of one session and feeds
// responses back into a Resolver.
type Transport interface {
	// Activate starts listening for responses addressed to session's client
	// key. A previous activation is replaced.
	Activate(ctx context.Context, session domaintypes.Session, resolver Resolver) error
	// Send encrypts req for the remote signer and publishes it.
	Send(ctx context.Context, req domaintypes.Request) error
	// Deactivate stops listening. It is safe to call when inactive.
	Deactivate() error
}
