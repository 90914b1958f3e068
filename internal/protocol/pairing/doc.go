// Package pairing parses the URIs a user hands to bunkerlink to reach a
// remote signer.
//
// Two forms are accepted:
//
//	bunker://<remote-key>?relay=wss://...&secret=...&perms=a,b&name=...
//	nostrconnect:<remote-key>?relay=wss://...&perms=a,b&name=...
//
// The remote key is 64 hex characters. At least one relay is required.
// Parsing has no side effects.
package pairing
