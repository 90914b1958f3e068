// Package store provides durable key-value backends and the session store
// built on top of them.
//
// Backends implement domain.KeyValueStore:
//   - FileKV: one file per key under a directory, written atomically
//   - SealedKV: wraps another backend and encrypts values with a passphrase
//     (scrypt + ChaCha20-Poly1305)
//   - SQLiteKV: a single table in a SQLite database (pure Go driver)
//   - BadgerKV: an embedded Badger database
//   - MemoryKV: process memory, for tests and ephemeral use
//
// SessionStore keeps the single active remote signer session under a fixed
// key and refuses to return records that are incomplete or malformed.
//
// All types are safe for concurrent use.
package store
