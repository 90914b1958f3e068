package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"bunkerlink/internal/domain"
)

const (
	// The current supported version of the sealed value format.
	sealedFormatVersion = 1
)

// ErrWrongPassphrase is returned when the passphrase is incorrect or the
// sealed value has been modified / corrupted.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted value")

// envelope is the stored JSON structure holding the ciphertext and KDF parameters.
type envelope struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

// scryptParams are the key derivation costs used for new envelopes.
type scryptParams struct{ N, R, P int }

func defaultScryptParams() scryptParams { return scryptParams{N: 1 << 15, R: 8, P: 1} }

// seal derives a key from passphrase and seals raw into a JSON envelope. The
// key name is bound as associated data so envelopes cannot be swapped between
// keys.
func seal(passphrase, name string, raw []byte, kdf scryptParams) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), salt[:], kdf.N, kdf.R, kdf.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte // zero nonce; salt-bound key is single use
	ct := aead.Seal(nil, nonce[:], raw, associatedData(salt[:], name))

	return json.Marshal(envelope{
		V:      sealedFormatVersion,
		Salt:   salt[:],
		N:      kdf.N,
		R:      kdf.R,
		P:      kdf.P,
		Cipher: ct,
	})
}

// open decrypts an envelope produced by seal.
func open(passphrase, name string, b []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrongPassphrase, err)
	}
	if env.V > sealedFormatVersion {
		return nil, fmt.Errorf("unsupported sealed value version %d", env.V)
	}

	key, err := scrypt.Key([]byte(passphrase), env.Salt, env.N, env.R, env.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], env.Cipher, associatedData(env.Salt, name))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}

func associatedData(salt []byte, name string) []byte {
	ad := make([]byte, 0, len(salt)+len(name))
	ad = append(ad, salt...)
	return append(ad, name...)
}

// SealedKV encrypts every value before handing it to the wrapped store.
type SealedKV struct {
	inner      domain.KeyValueStore
	passphrase string
	kdf        scryptParams
}

// NewSealedKV wraps inner. An empty passphrase is rejected.
func NewSealedKV(inner domain.KeyValueStore, passphrase string) (*SealedKV, error) {
	if passphrase == "" {
		return nil, errors.New("sealed store requires a passphrase")
	}
	return &SealedKV{inner: inner, passphrase: passphrase, kdf: defaultScryptParams()}, nil
}

func (s *SealedKV) Get(key string) ([]byte, bool, error) {
	b, ok, err := s.inner.Get(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	pt, err := open(s.passphrase, key, b)
	if err != nil {
		return nil, false, err
	}
	return pt, true, nil
}

func (s *SealedKV) Put(key string, value []byte) error {
	b, err := seal(s.passphrase, key, value, s.kdf)
	if err != nil {
		return err
	}
	return s.inner.Put(key, b)
}

func (s *SealedKV) Delete(key string) error { return s.inner.Delete(key) }

func (s *SealedKV) Close() error { return s.inner.Close() }

var _ domain.KeyValueStore = (*SealedKV)(nil)
