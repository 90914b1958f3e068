// Package crypto exposes the primitives bunkerlink needs to talk to a remote
// signer.
//
// Contents
//
//   - secp256k1 key generation and validation (GenerateKeyPair,
//     DeriveKeyPair, ValidatePrivateKey, ValidatePublicKey)
//   - Event ids and BIP-340 signatures (EventID, SignEvent, VerifyEvent)
//   - NIP-44 version 2 payload encryption (NIP44, ConversationKey, PaddedLen)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// Keys are the fixed-size array types defined in internal/domain. Public keys
// are x-only (32 bytes). Intermediate secrets are wiped with memzero once they
// are no longer needed.
package crypto
