package pairing

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"bunkerlink/internal/domain"
)

// Options tune parsing.
type Options struct {
	// RequirePermissions rejects nostrconnect URIs that carry no perms
	// parameter instead of treating them as requesting nothing.
	RequirePermissions bool
}

// Parse turns raw into a connection descriptor.
func Parse(raw string, opts Options) (domain.ConnectionDescriptor, error) {
	var d domain.ConnectionDescriptor

	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return d, fmt.Errorf("%w: %v", domain.ErrInvalidPairingURI, err)
	}

	var keyPart string
	switch scheme := strings.ToLower(u.Scheme); scheme {
	case string(domain.SchemeBunker):
		d.Scheme = domain.SchemeBunker
		keyPart = u.Host
		if keyPart == "" {
			keyPart = u.Opaque
		}
	case string(domain.SchemeNostrConnect):
		d.Scheme = domain.SchemeNostrConnect
		keyPart = u.Opaque
		if keyPart == "" {
			keyPart = strings.TrimPrefix(u.Path, "/")
		}
		if keyPart == "" {
			keyPart = u.Host
		}
	default:
		return d, fmt.Errorf("%w: unsupported scheme %q", domain.ErrInvalidPairingURI, u.Scheme)
	}

	key, err := domain.ParsePublicKey(strings.TrimSuffix(keyPart, "/"))
	if err != nil {
		return d, fmt.Errorf("%w: remote key: %v", domain.ErrInvalidPairingURI, err)
	}
	d.RemoteKey = key

	q := u.Query()
	d.Relays = normalizeRelays(q["relay"])
	if len(d.Relays) == 0 {
		return d, domain.ErrMissingEndpoint
	}

	d.Secret = q.Get("secret")
	d.Name = q.Get("name")

	perms, hasPerms := q["perms"]
	if d.Scheme == domain.SchemeNostrConnect && !hasPerms && opts.RequirePermissions {
		return d, fmt.Errorf("%w: perms parameter is required", domain.ErrInvalidPairingURI)
	}
	d.Permissions = splitPermissions(perms)

	return d, nil
}

// Format renders d as a bunker URI that Parse accepts.
func Format(d domain.ConnectionDescriptor) string {
	q := url.Values{}
	for _, r := range d.Relays {
		q.Add("relay", r)
	}
	if d.Secret != "" {
		q.Set("secret", d.Secret)
	}
	if len(d.Permissions) > 0 {
		q.Set("perms", strings.Join(d.Permissions, ","))
	}
	if d.Name != "" {
		q.Set("name", d.Name)
	}
	u := url.URL{
		Scheme:   string(domain.SchemeBunker),
		Host:     d.RemoteKey.String(),
		RawQuery: q.Encode(),
	}
	return u.String()
}

func normalizeRelays(in []string) []string {
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r == "" || slices.Contains(out, r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func splitPermissions(values []string) []string {
	out := []string{}
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
