package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bunkerlink/internal/crypto"
	"bunkerlink/internal/domain"
)

// SessionKey is the fixed slot the active session is stored under.
const SessionKey = "bunkerlink.session"

const sessionRecordVersion = 1

var errInvalidRecord = errors.New("invalid session record")

// sessionRecord is the persisted form of domain.Session. Keys are hex.
type sessionRecord struct {
	V           int       `json:"v"`
	RemoteKey   string    `json:"remote_pubkey"`
	Relays      []string  `json:"relays"`
	ClientKey   string    `json:"client_secret"`
	ClientPub   string    `json:"client_pubkey,omitempty"`
	UserKey     string    `json:"user_pubkey"`
	Secret      string    `json:"secret,omitempty"`
	Permissions []string  `json:"perms,omitempty"`
	Name        string    `json:"name,omitempty"`
	LastContact time.Time `json:"last_contact"`
}

// SessionStore persists the single active session in a KeyValueStore.
type SessionStore struct {
	kv  domain.KeyValueStore
	log zerolog.Logger
	mu  sync.Mutex
}

// NewSessionStore returns a SessionStore backed by kv.
func NewSessionStore(kv domain.KeyValueStore, log zerolog.Logger) *SessionStore {
	return &SessionStore{kv: kv, log: log.With().Str("component", "session_store").Logger()}
}

// SaveSession writes s. Only paired sessions are accepted.
func (st *SessionStore) SaveSession(s domain.Session) error {
	if !s.Paired() {
		return fmt.Errorf("save session: %w: no confirmed user key", errInvalidRecord)
	}
	rec := sessionRecord{
		V:           sessionRecordVersion,
		RemoteKey:   s.RemoteKey.String(),
		Relays:      s.Relays,
		ClientKey:   s.ClientKey.Private.Hex(),
		ClientPub:   s.ClientKey.Public.String(),
		UserKey:     s.UserKey.String(),
		Secret:      s.Secret,
		Permissions: s.Permissions,
		Name:        s.Name,
		LastContact: s.LastContact.UTC(),
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.kv.Put(SessionKey, b); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the stored session. Corrupt or incomplete records are
// reported as absent and logged.
func (st *SessionStore) LoadSession() (domain.Session, bool, error) {
	st.mu.Lock()
	b, ok, err := st.kv.Get(SessionKey)
	st.mu.Unlock()
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return domain.Session{}, false, nil
	}

	s, err := decodeSession(b)
	if err != nil {
		st.log.Warn().Err(err).Msg("ignoring stored session")
		return domain.Session{}, false, nil
	}
	return s, true, nil
}

// ClearSession removes the stored session.
func (st *SessionStore) ClearSession() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.kv.Delete(SessionKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func decodeSession(b []byte) (domain.Session, error) {
	var rec sessionRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", errInvalidRecord, err)
	}
	if rec.V > sessionRecordVersion {
		return domain.Session{}, fmt.Errorf("%w: version %d", errInvalidRecord, rec.V)
	}

	remote, err := parseCurveKey(rec.RemoteKey)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: remote key: %v", errInvalidRecord, err)
	}
	user, err := parseCurveKey(rec.UserKey)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: user key: %v", errInvalidRecord, err)
	}
	priv, err := domain.ParsePrivateKey(rec.ClientKey)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: client key: %v", errInvalidRecord, err)
	}
	client, err := crypto.DeriveKeyPair(priv)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: client key: %v", errInvalidRecord, err)
	}
	if rec.ClientPub != "" && rec.ClientPub != client.Public.String() {
		return domain.Session{}, fmt.Errorf("%w: client key pair mismatch", errInvalidRecord)
	}

	var relays []string
	for _, r := range rec.Relays {
		if r = strings.TrimSpace(r); r != "" {
			relays = append(relays, r)
		}
	}
	if len(relays) == 0 {
		return domain.Session{}, fmt.Errorf("%w: no relays", errInvalidRecord)
	}

	return domain.Session{
		RemoteKey:   remote,
		Relays:      relays,
		ClientKey:   client,
		UserKey:     user,
		Secret:      rec.Secret,
		Permissions: rec.Permissions,
		Name:        rec.Name,
		LastContact: rec.LastContact,
	}, nil
}

func parseCurveKey(s string) (domain.PublicKey, error) {
	k, err := domain.ParsePublicKey(s)
	if err != nil {
		return domain.PublicKey{}, err
	}
	if err := crypto.ValidatePublicKey(k); err != nil {
		return domain.PublicKey{}, err
	}
	return k, nil
}

var _ domain.SessionStore = (*SessionStore)(nil)
