package signer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bunkerlink/internal/crypto"
	"bunkerlink/internal/domain"
	"bunkerlink/internal/protocol/nip46"
)

// Backend is the session a capability call runs against.
type Backend interface {
	// Call sends method to the remote signer and waits for its result. It
	// fails with domain.ErrNotPaired unless the session is ready.
	Call(ctx context.Context, method string, params []string, timeout time.Duration) (string, error)
	// UserKey returns the confirmed user key or domain.ErrNotPaired.
	UserKey() (domain.PublicKey, error)
	// Relays returns the relays of the current session.
	Relays() []string
}

// Adapter makes remote signing operations look local.
type Adapter struct {
	backend Backend
	now     func() time.Time
}

// New returns an adapter over backend.
func New(backend Backend) *Adapter {
	return &Adapter{backend: backend, now: time.Now}
}

// GetIdentity returns the user's public key as confirmed during pairing.
func (a *Adapter) GetIdentity(ctx context.Context) (domain.PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return domain.PublicKey{}, err
	}
	return a.backend.UserKey()
}

// Sign asks the remote signer to sign ev as the user. The returned event is
// verified before it is handed back.
func (a *Adapter) Sign(ctx context.Context, ev domain.UnsignedEvent) (domain.Event, error) {
	user, err := a.backend.UserKey()
	if err != nil {
		return domain.Event{}, err
	}
	if ev.CreatedAt == 0 {
		ev.CreatedAt = a.now().Unix()
	}
	if ev.Tags == nil {
		ev.Tags = []domain.Tag{}
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return domain.Event{}, err
	}

	res, err := a.backend.Call(ctx, nip46.MethodSignEvent, []string{string(payload)}, domain.RequestTimeout)
	if err != nil {
		return domain.Event{}, err
	}

	var signed domain.Event
	if err := json.Unmarshal([]byte(res), &signed); err != nil {
		return domain.Event{}, fmt.Errorf("%w: %v", domain.ErrBadSignedEvent, err)
	}
	switch {
	case signed.PubKey != user.String():
		return domain.Event{}, fmt.Errorf("%w: signed by %s", domain.ErrBadSignedEvent, signed.PubKey)
	case signed.Kind != ev.Kind || signed.Content != ev.Content:
		return domain.Event{}, fmt.Errorf("%w: content changed", domain.ErrBadSignedEvent)
	}
	if err := crypto.VerifyEvent(signed); err != nil {
		return domain.Event{}, fmt.Errorf("%w: %v", domain.ErrBadSignedEvent, err)
	}
	return signed, nil
}

// EncryptFor encrypts plaintext from the user to peer.
func (a *Adapter) EncryptFor(ctx context.Context, peer domain.PublicKey, plaintext string) (string, error) {
	return a.backend.Call(ctx, nip46.MethodNIP44Encrypt, []string{peer.String(), plaintext}, domain.RequestTimeout)
}

// DecryptFrom decrypts ciphertext sent to the user by peer.
func (a *Adapter) DecryptFrom(ctx context.Context, peer domain.PublicKey, ciphertext string) (string, error) {
	return a.backend.Call(ctx, nip46.MethodNIP44Decrypt, []string{peer.String(), ciphertext}, domain.RequestTimeout)
}

// Ping checks that the remote signer is answering.
func (a *Adapter) Ping(ctx context.Context) error {
	res, err := a.backend.Call(ctx, nip46.MethodPing, nil, domain.RequestTimeout)
	if err != nil {
		return err
	}
	if res != "pong" {
		return fmt.Errorf("unexpected ping result %q", res)
	}
	return nil
}

// Relays returns the relays the session talks through, for display.
func (a *Adapter) Relays() []string { return a.backend.Relays() }

var _ domain.RemoteSigner = (*Adapter)(nil)
