package identity

import (
	"fmt"
	"unicode"

	"bunkerlink/internal/crypto"
	"bunkerlink/internal/domain"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)
)

// Service creates the per-session client keys used to talk to a remote
// signer. The keys are never the user's identity; they only address and
// decrypt bus traffic for one pairing.
type Service struct{}

// New returns an identity service.
func New() *Service { return &Service{} }

// GenerateKeyPair returns a fresh secp256k1 key pair.
func (s *Service) GenerateKeyPair() (domain.KeyPair, error) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return domain.KeyPair{}, fmt.Errorf("generate client key: %w", err)
	}
	return kp, nil
}

// FingerprintKey returns a short fingerprint of key for display.
func (s *Service) FingerprintKey(key domain.PublicKey) domain.Fingerprint {
	return domain.Fingerprint(crypto.Fingerprint(key))
}

// ValidatePassphrase enforces the strength policy for passphrases that seal
// the session store.
func ValidatePassphrase(passphrase string) error {
	if !isSecurePassphrase(passphrase) {
		return ErrWeakPassphrase
	}
	return nil
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
