package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"bunkerlink/internal/domain"
)

const (
	fingerprintBytes = 10
	fingerprintGroup = 4
)

// Fingerprint returns a short, human-comparable digest of a public key:
// the first 10 bytes of its SHA-256 in dash-separated groups of four hex
// characters, e.g. "3f2a-9c01-77de-0b4e-a1c3".
func Fingerprint(pub domain.PublicKey) string {
	sum := sha256.Sum256(pub.Slice())
	digits := hex.EncodeToString(sum[:fingerprintBytes])

	var b strings.Builder
	for i := 0; i < len(digits); i += fingerprintGroup {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(digits[i : i+fingerprintGroup])
	}
	return b.String()
}
