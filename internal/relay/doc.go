// Package relay carries events between bunkerlink and remote signers.
//
// It provides three implementations around the NIP-01 relay protocol:
//
//   - Pool: a websocket client that fans publishes and subscriptions out to
//     many relays and keeps one connection per relay URL.
//   - MemoryBus: an in-process bus with synchronous delivery, used by tests
//     and by Server.
//   - Server: an http.Handler speaking NIP-01 over websocket on top of a
//     MemoryBus, for local development.
//
// Pool and MemoryBus implement domain.Bus.
//
// # Wire format
//
// Every frame is a JSON array whose first element names the message:
//
//	["EVENT", <event>]                  client -> relay
//	["REQ", <sub id>, <filter>...]      client -> relay
//	["CLOSE", <sub id>]                 client -> relay
//	["EVENT", <sub id>, <event>]        relay -> client
//	["OK", <event id>, <bool>, <msg>]   relay -> client
//	["EOSE", <sub id>]                  relay -> client
//	["CLOSED", <sub id>, <msg>]         relay -> client
//	["NOTICE", <msg>]                   relay -> client
package relay
