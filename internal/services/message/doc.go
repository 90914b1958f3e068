// Package message is the transport adapter between a session and the bus.
//
// Outbound, it encodes a request, encrypts it for the remote signer with
// NIP-44, wraps it in a signed kind 24133 event tagged to the remote signer
// and publishes it to every relay of the session.
//
// Inbound, it subscribes to kind 24133 events tagged to the session's client
// key. Each event is checked, de-duplicated (several relays deliver the same
// event), decrypted with the client key and the sender's declared key, and
// handed to the session's Resolver. Anything that fails along the way is
// logged and dropped; a bad message never affects other pending requests.
package message
