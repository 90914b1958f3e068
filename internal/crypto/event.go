package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"bunkerlink/internal/domain"
)

// ErrBadEvent is returned when an event's id or signature does not verify.
var ErrBadEvent = errors.New("event id or signature mismatch")

// SerializeEvent returns the canonical array form hashed into the event id:
// [0, pubkey, created_at, kind, tags, content].
func SerializeEvent(ev domain.Event) ([]byte, error) {
	tags := ev.Tags
	if tags == nil {
		tags = []domain.Tag{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]any{0, ev.PubKey, ev.CreatedAt, ev.Kind, tags, ev.Content}); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// EventID returns the sha256 of the canonical serialization.
func EventID(ev domain.Event) ([32]byte, error) {
	raw, err := SerializeEvent(ev)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(raw), nil
}

// SignEvent sets PubKey, ID and Sig on ev using priv.
func SignEvent(priv domain.PrivateKey, ev *domain.Event) error {
	kp, err := DeriveKeyPair(priv)
	if err != nil {
		return err
	}
	ev.PubKey = kp.Public.String()
	if ev.Tags == nil {
		ev.Tags = []domain.Tag{}
	}
	id, err := EventID(*ev)
	if err != nil {
		return err
	}
	sk, _ := btcec.PrivKeyFromBytes(priv.Slice())
	defer sk.Zero()
	sig, err := schnorr.Sign(sk, id[:])
	if err != nil {
		return fmt.Errorf("sign event: %w", err)
	}
	ev.ID = hex.EncodeToString(id[:])
	ev.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// VerifyEvent checks that ev.ID matches its content and that ev.Sig is a
// valid BIP-340 signature by ev.PubKey.
func VerifyEvent(ev domain.Event) error {
	id, err := EventID(ev)
	if err != nil {
		return err
	}
	if hex.EncodeToString(id[:]) != ev.ID {
		return fmt.Errorf("%w: id", ErrBadEvent)
	}
	pub, err := domain.ParsePublicKey(ev.PubKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	pk, err := schnorr.ParsePubKey(pub.Slice())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	rawSig, err := hex.DecodeString(ev.Sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	sig, err := schnorr.ParseSignature(rawSig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	if !sig.Verify(id[:], pk) {
		return fmt.Errorf("%w: signature", ErrBadEvent)
	}
	return nil
}
