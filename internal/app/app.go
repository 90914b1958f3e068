package app

import (
	"context"

	"github.com/rs/zerolog"

	"bunkerlink/internal/domain"
)

// App is the host-facing handle: one wired controller plus the signer slot.
type App struct {
	*Wire
}

// Open builds the wiring for cfg and restores any stored session. A stored
// session that can no longer be used is dropped; Open still succeeds and the
// controller reports the error state.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (*App, error) {
	w, err := NewWire(cfg, log)
	if err != nil {
		return nil, err
	}
	if _, ok, err := w.Sessions.Bootstrap(ctx); err != nil {
		log.Warn().Err(err).Msg("stored session unusable")
	} else if ok {
		log.Debug().Str("store", string(cfg.Store)).Msg("session restored")
	}
	return &App{Wire: w}, nil
}

// Signer returns the installed remote signer or domain.ErrNotPaired.
func (a *App) Signer() (domain.RemoteSigner, error) {
	s := a.Slot.Current()
	if s == nil {
		return nil, domain.ErrNotPaired
	}
	return s, nil
}

// Status summarises the controller for display.
type Status struct {
	State       domain.State
	Session     domain.Session
	Paired      bool
	Fingerprint domain.Fingerprint
	Err         error
}

// Status returns the current controller state.
func (a *App) Status() Status {
	st := Status{State: a.Sessions.State(), Err: a.Sessions.LastError()}
	if s, ok := a.Sessions.Session(); ok {
		st.Session = s
		st.Paired = s.Paired()
		if st.Paired {
			st.Fingerprint = a.IDs.FingerprintKey(s.UserKey)
		}
	}
	return st
}
