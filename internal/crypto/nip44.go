package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"

	"bunkerlink/internal/domain"
	"bunkerlink/internal/util/memzero"
)

const (
	nip44Version    = 2
	nip44Salt       = "nip44-v2"
	nip44NonceSize  = 32
	nip44MACSize    = 32
	minPlaintextLen = 1
	maxPlaintextLen = 65535
)

var (
	// ErrPlaintextSize is returned for empty or oversized plaintexts.
	ErrPlaintextSize = errors.New("nip44: plaintext must be 1..65535 bytes")
	// ErrCiphertext is returned for payloads that fail to decode or authenticate.
	ErrCiphertext = errors.New("nip44: invalid payload")
)

// NIP44 implements domain.Cipher with NIP-44 version 2: secp256k1 ECDH,
// HKDF-SHA256, ChaCha20 and HMAC-SHA256, base64 on the wire.
type NIP44 struct {
	// Rand is the nonce source; crypto/rand when nil.
	Rand io.Reader
}

// Encrypt seals plaintext from sender to recipient.
func (n NIP44) Encrypt(sender domain.PrivateKey, recipient domain.PublicKey, plaintext string) (string, error) {
	ck, err := ConversationKey(sender, recipient)
	if err != nil {
		return "", err
	}
	defer memzero.Key(&ck)

	var nonce [nip44NonceSize]byte
	if _, err := io.ReadFull(n.rand(), nonce[:]); err != nil {
		return "", err
	}
	return encryptWithNonce(ck, nonce, plaintext)
}

// Decrypt opens a payload sent by sender to recipient.
func (NIP44) Decrypt(recipient domain.PrivateKey, sender domain.PublicKey, payload string) (string, error) {
	ck, err := ConversationKey(recipient, sender)
	if err != nil {
		return "", err
	}
	defer memzero.Key(&ck)
	return decryptWithKey(ck, payload)
}

func (n NIP44) rand() io.Reader {
	if n.Rand != nil {
		return n.Rand
	}
	return rand.Reader
}

// ConversationKey derives the symmetric key shared by priv and pub. It is the
// same in both directions.
func ConversationKey(priv domain.PrivateKey, pub domain.PublicKey) ([32]byte, error) {
	var out [32]byte
	shared, err := sharedX(priv, pub)
	if err != nil {
		return out, err
	}
	defer memzero.Zero(shared)
	prk := hkdf.Extract(sha256.New, shared, []byte(nip44Salt))
	copy(out[:], prk)
	memzero.Zero(prk)
	return out, nil
}

func encryptWithNonce(ck [32]byte, nonce [nip44NonceSize]byte, plaintext string) (string, error) {
	padded, err := pad(plaintext)
	if err != nil {
		return "", err
	}
	chachaKey, chachaNonce, hmacKey, err := messageKeys(ck, nonce[:])
	if err != nil {
		return "", err
	}
	defer memzero.Zero(chachaKey)
	defer memzero.Zero(hmacKey)

	c, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", err
	}
	ct := make([]byte, len(padded))
	c.XORKeyStream(ct, padded)
	memzero.Zero(padded)

	mac := hmacAAD(hmacKey, nonce[:], ct)

	out := make([]byte, 0, 1+nip44NonceSize+len(ct)+nip44MACSize)
	out = append(out, nip44Version)
	out = append(out, nonce[:]...)
	out = append(out, ct...)
	out = append(out, mac...)
	return base64.StdEncoding.EncodeToString(out), nil
}

func decryptWithKey(ck [32]byte, payload string) (string, error) {
	if len(payload) == 0 || payload[0] == '#' {
		return "", fmt.Errorf("%w: unknown version", ErrCiphertext)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	// version + nonce + at least one padded block + mac
	if len(raw) < 1+nip44NonceSize+2+32+nip44MACSize {
		return "", fmt.Errorf("%w: too short", ErrCiphertext)
	}
	if raw[0] != nip44Version {
		return "", fmt.Errorf("%w: version %d", ErrCiphertext, raw[0])
	}
	nonce := raw[1 : 1+nip44NonceSize]
	ct := raw[1+nip44NonceSize : len(raw)-nip44MACSize]
	mac := raw[len(raw)-nip44MACSize:]

	chachaKey, chachaNonce, hmacKey, err := messageKeys(ck, nonce)
	if err != nil {
		return "", err
	}
	defer memzero.Zero(chachaKey)
	defer memzero.Zero(hmacKey)

	if !hmac.Equal(mac, hmacAAD(hmacKey, nonce, ct)) {
		return "", fmt.Errorf("%w: mac", ErrCiphertext)
	}
	c, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", err
	}
	padded := make([]byte, len(ct))
	c.XORKeyStream(padded, ct)
	defer memzero.Zero(padded)
	return unpad(padded)
}

func messageKeys(ck [32]byte, nonce []byte) (chachaKey, chachaNonce, hmacKey []byte, err error) {
	r := hkdf.Expand(sha256.New, ck[:], nonce)
	keys := make([]byte, 76)
	if _, err = io.ReadFull(r, keys); err != nil {
		return nil, nil, nil, err
	}
	return keys[0:32], keys[32:44], keys[44:76], nil
}

func hmacAAD(key, aad, msg []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(aad)
	h.Write(msg)
	return h.Sum(nil)
}

// PaddedLen returns the padded length for an unpadded plaintext length.
func PaddedLen(n int) int {
	if n <= 32 {
		return 32
	}
	nextPower := 1 << bits.Len(uint(n-1))
	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}
	return chunk * ((n-1)/chunk + 1)
}

func pad(plaintext string) ([]byte, error) {
	n := len(plaintext)
	if n < minPlaintextLen || n > maxPlaintextLen {
		return nil, ErrPlaintextSize
	}
	out := make([]byte, 2+PaddedLen(n))
	binary.BigEndian.PutUint16(out, uint16(n))
	copy(out[2:], plaintext)
	return out, nil
}

func unpad(padded []byte) (string, error) {
	n := int(binary.BigEndian.Uint16(padded))
	if n < minPlaintextLen || 2+n > len(padded) || len(padded) != 2+PaddedLen(n) {
		return "", fmt.Errorf("%w: padding", ErrCiphertext)
	}
	return string(padded[2 : 2+n]), nil
}

var _ domain.Cipher = NIP44{}
