package crypto

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"bunkerlink/internal/domain"
	"bunkerlink/internal/util/memzero"
)

var (
	// ErrInvalidPrivateKey is returned for scalars that are zero or not below the group order.
	ErrInvalidPrivateKey = errors.New("invalid secp256k1 private key")
	// ErrInvalidPublicKey is returned for x coordinates that are not on the curve.
	ErrInvalidPublicKey = errors.New("invalid secp256k1 public key")
)

// GenerateKeyPair returns a fresh secp256k1 key pair.
func GenerateKeyPair() (domain.KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return domain.KeyPair{}, err
	}
	defer priv.Zero()

	var kp domain.KeyPair
	raw := priv.Serialize()
	copy(kp.Private[:], raw)
	memzero.Zero(raw)
	copy(kp.Public[:], schnorr.SerializePubKey(priv.PubKey()))
	return kp, nil
}

// DeriveKeyPair rebuilds the key pair for a stored private key.
func DeriveKeyPair(priv domain.PrivateKey) (domain.KeyPair, error) {
	if err := ValidatePrivateKey(priv); err != nil {
		return domain.KeyPair{}, err
	}
	sk, pk := btcec.PrivKeyFromBytes(priv.Slice())
	defer sk.Zero()

	kp := domain.KeyPair{Private: priv}
	copy(kp.Public[:], schnorr.SerializePubKey(pk))
	return kp, nil
}

// ValidatePrivateKey checks that priv is a usable scalar.
func ValidatePrivateKey(priv domain.PrivateKey) error {
	var s secp256k1.ModNScalar
	overflow := s.SetByteSlice(priv.Slice())
	defer s.Zero()
	if overflow || s.IsZero() {
		return ErrInvalidPrivateKey
	}
	return nil
}

// ValidatePublicKey checks that pub is the x coordinate of a curve point.
func ValidatePublicKey(pub domain.PublicKey) error {
	if _, err := schnorr.ParsePubKey(pub.Slice()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return nil
}

// sharedX computes the ECDH shared x coordinate between priv and the even-y
// lift of pub.
func sharedX(priv domain.PrivateKey, pub domain.PublicKey) ([]byte, error) {
	if err := ValidatePrivateKey(priv); err != nil {
		return nil, err
	}
	pk, err := schnorr.ParsePubKey(pub.Slice())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	sk := secp256k1.PrivKeyFromBytes(priv.Slice())
	defer sk.Zero()
	return secp256k1.GenerateSharedSecret(sk, pk), nil
}
