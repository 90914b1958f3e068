package interfaces

import domaintypes "bunkerlink/internal/domain/types"

// KeyValueStore is the durable key-value facility sessions are kept in.
// Get reports ok=false for a missing key.
type KeyValueStore interface {
	Get(key string) (value []byte, ok bool, err error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// SessionStore persists the single active session.
type SessionStore interface {
	SaveSession(session domaintypes.Session) error
	// LoadSession returns ok=false when nothing usable is stored, including
	// when the stored record is corrupt or incomplete.
	LoadSession() (session domaintypes.Session, ok bool, err error)
	ClearSession() error
}
