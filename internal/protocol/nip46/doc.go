// Package nip46 is the wire codec for remote signer traffic.
//
// # Payloads
//
// Requests and responses are small JSON objects:
//
//	{"id": "...", "method": "sign_event", "params": ["..."]}
//	{"id": "...", "result": "...", "error": "..."}
//
// They travel NIP-44 encrypted inside kind 24133 events whose single "p" tag
// names the recipient. Results that are not JSON strings are passed through
// as their raw JSON text.
//
// # Errors
//
// Decode failures wrap domain.ErrDecode.
package nip46
