// Package main runs the in-memory websocket relay used by bunkerlink during
// development and tests.
//
// It speaks the NIP-01 client/relay protocol on a single websocket endpoint:
//
//	["EVENT", <event>]            -> ["OK", <id>, <accepted>, <message>]
//	["REQ", <sub-id>, <filter>..] -> ["EOSE", <sub-id>], then matching events
//	["CLOSE", <sub-id>]
//
// Unknown frames are answered with NOTICE.
//
// Behaviour
//
//   - Events are verified (id and signature) before they are accepted.
//   - Nothing is stored: events reach only the subscriptions open at publish
//     time. A client that reconnects misses what was sent while it was away.
//   - Filters understand kinds, #p and since.
//   - The default listen address is :7447.
//
// The relay never sees plaintext: remote-signing payloads are NIP-44
// encrypted between the client's ephemeral key and the remote signer.
package main
