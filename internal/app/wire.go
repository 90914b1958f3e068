package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"bunkerlink/internal/crypto"
	"bunkerlink/internal/domain"
	"bunkerlink/internal/protocol/pairing"
	"bunkerlink/internal/relay"
	"bunkerlink/internal/services/identity"
	messagesvc "bunkerlink/internal/services/message"
	sessionsvc "bunkerlink/internal/services/session"
	"bunkerlink/internal/services/signer"
	"bunkerlink/internal/store"
)

// Wire bundles the stores, services and transport for the CLI.
type Wire struct {
	Log       zerolog.Logger
	KV        domain.KeyValueStore
	IDs       *identity.Service
	Sessions  *sessionsvc.Service
	Transport *messagesvc.Service
	Pool      *relay.Pool // nil when Config.Bus was supplied
	Slot      *signer.Slot

	stopObserving func()
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config, log zerolog.Logger) (*Wire, error) {
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, err
	}
	kv, err := openKV(cfg, log)
	if err != nil {
		return nil, err
	}

	w := &Wire{Log: log, KV: kv, IDs: identity.New(), Slot: signer.NewSlot(nil)}

	bus := cfg.Bus
	if bus == nil {
		w.Pool = relay.NewPool(relay.WithDialTimeout(cfg.DialTimeout), relay.WithLogger(log))
		bus = w.Pool
	}

	onAuth := cfg.OnAuth
	if onAuth == nil {
		onAuth = func(id, url string) {
			log.Warn().Str("id", id).Str("url", url).Msg("remote signer asks for approval")
		}
	}
	w.Transport = messagesvc.New(bus, crypto.NIP44{},
		messagesvc.WithLogger(log),
		messagesvc.WithAuthHandler(onAuth),
	)
	w.Sessions = sessionsvc.New(
		store.NewSessionStore(kv, log),
		w.IDs,
		w.Transport,
		sessionsvc.WithLogger(log),
		sessionsvc.WithPairingOptions(pairing.Options{RequirePermissions: cfg.RequirePermissions}),
	)
	w.stopObserving = w.Sessions.Observe(w.syncSlot)
	return w, nil
}

// syncSlot installs the session's adapter while ready and restores the
// previous signer otherwise.
func (w *Wire) syncSlot(c domain.StateChange) {
	switch {
	case c.State == domain.StateReady:
		w.Slot.Install(w.Sessions.Signer())
	case w.Slot.Installed():
		w.Slot.Restore()
	}
}

// Close releases the transport and the store. The stored session is kept.
func (w *Wire) Close() error {
	w.stopObserving()
	err := w.Transport.Deactivate()
	if w.Pool != nil {
		err = multierr.Append(err, w.Pool.Close())
	}
	return multierr.Append(err, w.KV.Close())
}

func openKV(cfg Config, log zerolog.Logger) (domain.KeyValueStore, error) {
	switch cfg.Store {
	case StoreFile, "":
		return store.NewFileKV(filepath.Join(cfg.Home, "kv"))
	case StoreSealed:
		if err := identity.ValidatePassphrase(cfg.Passphrase); err != nil {
			return nil, err
		}
		inner, err := store.NewFileKV(filepath.Join(cfg.Home, "sealed"))
		if err != nil {
			return nil, err
		}
		return store.NewSealedKV(inner, cfg.Passphrase)
	case StoreSQLite:
		return store.OpenSQLiteKV(filepath.Join(cfg.Home, "bunkerlink.db"))
	case StoreBadger:
		return store.OpenBadgerKV(filepath.Join(cfg.Home, "badger"), log)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
