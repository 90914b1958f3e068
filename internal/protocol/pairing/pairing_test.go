package pairing_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bunkerlink/internal/domain"
	"bunkerlink/internal/protocol/pairing"
)

const remoteHex = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

func TestParseBunkerEchoesKeyAndRelays(t *testing.T) {
	relaySets := [][]string{
		{"wss://relay.one"},
		{"wss://relay.one", "wss://relay.two"},
		{"wss://a", "wss://b", "wss://c"},
	}
	for _, relays := range relaySets {
		var b strings.Builder
		b.WriteString("bunker://" + remoteHex + "?")
		for i, r := range relays {
			if i > 0 {
				b.WriteString("&")
			}
			b.WriteString("relay=" + r)
		}
		d, err := pairing.Parse(b.String(), pairing.Options{})
		require.NoError(t, err)
		assert.Equal(t, domain.SchemeBunker, d.Scheme)
		assert.Equal(t, remoteHex, d.RemoteKey.String())
		assert.Equal(t, relays, d.Relays)
	}
}

func TestParseBunkerOptionalFields(t *testing.T) {
	d, err := pairing.Parse(
		"bunker://"+remoteHex+"?relay=wss%3A%2F%2Fr.example&secret=s3cr%2Bt&perms=sign_event:1,%20nip44_encrypt,,&name=My%20Signer",
		pairing.Options{},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://r.example"}, d.Relays)
	assert.Equal(t, "s3cr+t", d.Secret)
	assert.Equal(t, []string{"sign_event:1", "nip44_encrypt"}, d.Permissions)
	assert.Equal(t, "My Signer", d.Name)
}

func TestParseNostrConnectKeyPositions(t *testing.T) {
	for _, raw := range []string{
		"nostrconnect:" + remoteHex + "?relay=wss://r&perms=ping",
		"nostrconnect:///" + remoteHex + "?relay=wss://r&perms=ping",
		"nostrconnect://" + remoteHex + "?relay=wss://r&perms=ping",
	} {
		d, err := pairing.Parse(raw, pairing.Options{})
		require.NoError(t, err, raw)
		assert.Equal(t, domain.SchemeNostrConnect, d.Scheme)
		assert.Equal(t, remoteHex, d.RemoteKey.String())
		assert.Equal(t, []string{"ping"}, d.Permissions)
	}
}

func TestParseNostrConnectWithoutPerms(t *testing.T) {
	raw := "nostrconnect:" + remoteHex + "?relay=wss://r"

	d, err := pairing.Parse(raw, pairing.Options{})
	require.NoError(t, err)
	assert.Empty(t, d.Permissions)

	_, err = pairing.Parse(raw, pairing.Options{RequirePermissions: true})
	require.ErrorIs(t, err, domain.ErrInvalidPairingURI)

	// bunker URIs never require perms
	_, err = pairing.Parse("bunker://"+remoteHex+"?relay=wss://r", pairing.Options{RequirePermissions: true})
	require.NoError(t, err)
}

func TestParseMissingEndpoint(t *testing.T) {
	for _, raw := range []string{
		"bunker://" + remoteHex,
		"bunker://" + remoteHex + "?secret=x",
		"bunker://" + remoteHex + "?relay=&relay=%20",
		"nostrconnect:" + remoteHex + "?perms=a",
	} {
		_, err := pairing.Parse(raw, pairing.Options{})
		require.ErrorIs(t, err, domain.ErrMissingEndpoint, raw)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	for _, raw := range []string{
		"",
		"https://" + remoteHex + "?relay=wss://r",
		"bunker://" + remoteHex[:62] + "?relay=wss://r",
		"bunker://" + remoteHex + "00?relay=wss://r",
		"bunker://" + strings.Repeat("z", 64) + "?relay=wss://r",
		"nostrconnect:?relay=wss://r",
		"bunker://%zz",
	} {
		_, err := pairing.Parse(raw, pairing.Options{})
		require.ErrorIs(t, err, domain.ErrInvalidPairingURI, raw)
	}
}

func TestParseDeduplicatesRelays(t *testing.T) {
	d, err := pairing.Parse("bunker://"+remoteHex+"?relay=wss://a&relay=%20wss://a%20&relay=wss://b", pairing.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://a", "wss://b"}, d.Relays)
}

func TestFormatRoundTrip(t *testing.T) {
	key, err := domain.ParsePublicKey(remoteHex)
	require.NoError(t, err)
	in := domain.ConnectionDescriptor{
		Scheme:      domain.SchemeBunker,
		RemoteKey:   key,
		Relays:      []string{"wss://a", "wss://b"},
		Secret:      "s&t",
		Permissions: []string{"sign_event", "ping"},
		Name:        "desk",
	}
	out, err := pairing.Parse(pairing.Format(in), pairing.Options{})
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
