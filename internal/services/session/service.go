package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"bunkerlink/internal/crypto"
	"bunkerlink/internal/domain"
	"bunkerlink/internal/protocol/correlator"
	"bunkerlink/internal/protocol/nip46"
	"bunkerlink/internal/protocol/pairing"
	"bunkerlink/internal/services/signer"
)

// contactPersistInterval bounds how often the last-contact time is written.
const contactPersistInterval = time.Minute

// errStale is returned internally when a newer Connect or Disconnect has
// superseded the operation.
var errStale = errors.New("superseded")

// Service is the session lifecycle controller. It is safe for concurrent use.
//
// Lock order is txMu, then mu, then notifyMu. txMu serialises every change to
// the transport and the store so that a superseded pairing attempt cannot
// undo a later Disconnect.
type Service struct {
	store     domain.SessionStore
	ids       domain.IdentityService
	transport domain.Transport
	pending   *correlator.Correlator
	adapter   *signer.Adapter
	clock     clock.Clock
	log       zerolog.Logger
	pairOpts  pairing.Options

	txMu sync.Mutex

	mu          sync.Mutex
	state       domain.State
	session     *domain.Session
	lastErr     error
	gen         uint64
	lastPersist time.Time

	notifyMu  sync.Mutex
	obsMu     sync.Mutex
	observers map[uint64]func(domain.StateChange)
	nextObs   uint64
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock used for deadlines and contact times.
func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.log = l } }

// WithPairingOptions sets how pairing URIs are validated.
func WithPairingOptions(o pairing.Options) Option { return func(s *Service) { s.pairOpts = o } }

// New returns an idle controller.
func New(
	store domain.SessionStore,
	ids domain.IdentityService,
	transport domain.Transport,
	opts ...Option,
) *Service {
	s := &Service{
		store:     store,
		ids:       ids,
		transport: transport,
		clock:     clock.New(),
		log:       zerolog.Nop(),
		state:     domain.StateIdle,
		observers: make(map[uint64]func(domain.StateChange)),
	}
	for _, o := range opts {
		o(s)
	}
	s.pending = correlator.New(correlator.WithClock(s.clock), correlator.WithLogger(s.log))
	s.log = s.log.With().Str("component", "session").Logger()
	s.adapter = signer.New(s)
	return s
}

// Signer returns the capability adapter bound to this controller. It works
// only while the state is ready.
func (s *Service) Signer() *signer.Adapter { return s.adapter }

// Connect pairs with the remote signer named by uri. A ready session is torn
// down first. The returned adapter is usable once Connect returns nil.
func (s *Service) Connect(ctx context.Context, uri string) (*signer.Adapter, error) {
	desc, err := pairing.Parse(uri, s.pairOpts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.state == domain.StateConnecting {
		s.mu.Unlock()
		return nil, domain.ErrAlreadyConnecting
	}
	wasReady := s.state == domain.StateReady
	s.gen++
	gen := s.gen
	s.state = domain.StateConnecting
	s.session = nil
	s.lastErr = nil
	s.commitLocked()

	log := s.log.With().Str("remote", desc.RemoteKey.String()).Uint64("gen", gen).Logger()

	err = s.underTx(gen, func() error {
		s.pending.CancelAll(domain.ErrDisconnected)
		if err := s.transport.Deactivate(); err != nil {
			log.Debug().Err(err).Msg("closing previous subscription")
		}
		if wasReady {
			log.Info().Msg("replacing ready session")
			return s.store.ClearSession()
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(gen, fmt.Errorf("tear down previous session: %w", err))
	}

	kp, err := s.ids.GenerateKeyPair()
	if err != nil {
		return nil, s.fail(gen, fmt.Errorf("client key: %w", err))
	}
	sess := domain.Session{
		RemoteKey:   desc.RemoteKey,
		Relays:      desc.Relays,
		ClientKey:   kp,
		Secret:      desc.Secret,
		Permissions: desc.Permissions,
		Name:        desc.Name,
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil, domain.ErrDisconnected
	}
	s.session = new(domain.Session)
	*s.session = sess.Clone()
	s.mu.Unlock()

	err = s.underTx(gen, func() error { return s.transport.Activate(ctx, sess, s.pending) })
	if err != nil {
		return nil, s.fail(gen, fmt.Errorf("activate: %w", err))
	}

	log.Debug().Strs("relays", sess.Relays).Msg("sending connect")
	if _, err := s.exchange(ctx, nip46.MethodConnect, connectParams(sess), domain.ConnectTimeout); err != nil {
		return nil, s.fail(gen, fmt.Errorf("connect: %w", err))
	}
	res, err := s.exchange(ctx, nip46.MethodGetPublicKey, nil, domain.RequestTimeout)
	if err != nil {
		return nil, s.fail(gen, fmt.Errorf("get_public_key: %w", err))
	}
	user, err := domain.ParsePublicKey(res)
	if err == nil {
		err = crypto.ValidatePublicKey(user)
	}
	if err != nil {
		return nil, s.fail(gen, fmt.Errorf("get_public_key: %w", err))
	}
	sess.UserKey = user
	sess.LastContact = s.clock.Now()

	err = s.underTx(gen, func() error {
		if err := s.store.SaveSession(sess); err != nil {
			return err
		}
		s.mu.Lock()
		s.state = domain.StateReady
		s.session = new(domain.Session)
		*s.session = sess.Clone()
		s.lastPersist = sess.LastContact
		s.commitLocked()
		return nil
	})
	if err != nil {
		return nil, s.fail(gen, fmt.Errorf("persist session: %w", err))
	}

	log.Info().Str("user", user.String()).Msg("paired with remote signer")
	return s.adapter, nil
}

// Bootstrap restores a persisted session without running the handshake. It
// reports false when nothing usable is stored.
func (s *Service) Bootstrap(ctx context.Context) (*signer.Adapter, bool, error) {
	s.mu.Lock()
	switch s.state {
	case domain.StateConnecting:
		s.mu.Unlock()
		return nil, false, domain.ErrAlreadyConnecting
	case domain.StateReady:
		s.mu.Unlock()
		return s.adapter, true, nil
	}
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	var sess domain.Session
	var found bool
	err := s.underTx(gen, func() error {
		var err error
		sess, found, err = s.store.LoadSession()
		if err != nil {
			// Keep the record: the error may be a wrong passphrase.
			return err
		}
		if !found {
			return nil
		}
		if err := s.transport.Activate(ctx, sess, s.pending); err != nil {
			s.clearAfterFailure()
			return fmt.Errorf("activate: %w", err)
		}
		s.mu.Lock()
		s.state = domain.StateReady
		s.lastErr = nil
		s.session = new(domain.Session)
		*s.session = sess.Clone()
		s.lastPersist = sess.LastContact
		s.commitLocked()
		return nil
	})
	if err != nil {
		return nil, false, s.fail(gen, err)
	}
	if !found {
		s.log.Debug().Msg("no stored session")
		return nil, false, nil
	}
	s.log.Info().Str("user", sess.UserKey.String()).Strs("relays", sess.Relays).Msg("restored session")
	return s.adapter, true, nil
}

// Disconnect rejects every pending request with domain.ErrDisconnected,
// forgets the stored session and stops listening. Any pairing attempt in
// flight is abandoned.
func (s *Service) Disconnect(_ context.Context) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	s.gen++
	changed := s.state != domain.StateIdle
	s.state = domain.StateIdle
	s.session = nil
	s.lastErr = nil
	if changed {
		s.commitLocked()
		s.log.Info().Msg("disconnected")
	} else {
		s.mu.Unlock()
	}

	if n := s.pending.CancelAll(domain.ErrDisconnected); n > 0 {
		s.log.Info().Int("pending", n).Msg("rejected pending requests")
	}
	var errs []error
	if err := s.transport.Deactivate(); err != nil {
		errs = append(errs, fmt.Errorf("deactivate: %w", err))
	}
	if err := s.store.ClearSession(); err != nil {
		errs = append(errs, fmt.Errorf("clear session: %w", err))
	}
	return errors.Join(errs...)
}

// Call sends method to the remote signer and waits for the result. It fails
// with domain.ErrNotPaired, sending nothing, unless the state is ready.
func (s *Service) Call(ctx context.Context, method string, params []string, timeout time.Duration) (string, error) {
	s.mu.Lock()
	if s.state != domain.StateReady {
		s.mu.Unlock()
		return "", domain.ErrNotPaired
	}
	gen := s.gen
	s.mu.Unlock()

	res, err := s.exchange(ctx, method, params, timeout)
	if err == nil || errors.Is(err, domain.ErrRemote) {
		s.touch(gen)
	}
	return res, err
}

// UserKey returns the user key confirmed by the remote signer.
func (s *Service) UserKey() (domain.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateReady || s.session == nil {
		return domain.PublicKey{}, domain.ErrNotPaired
	}
	return s.session.UserKey, nil
}

// Relays returns the relays of the current session, nil when there is none.
func (s *Service) Relays() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	return slices.Clone(s.session.Relays)
}

// State returns the current lifecycle state.
func (s *Service) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Session returns a copy of the current session.
func (s *Service) Session() (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return domain.Session{}, false
	}
	return s.session.Clone(), true
}

// LastError returns the error that moved the controller into the error
// state, nil otherwise.
func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Observe registers fn for every state transition. Transitions are delivered
// one at a time in the order they happened; fn must not call Connect,
// Bootstrap or Disconnect. The returned func unregisters fn.
func (s *Service) Observe(fn func(domain.StateChange)) (cancel func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

// exchange issues, sends and awaits one request regardless of state.
func (s *Service) exchange(ctx context.Context, method string, params []string, timeout time.Duration) (string, error) {
	req, err := s.pending.Issue(method, params, timeout)
	if err != nil {
		return "", err
	}
	if err := s.transport.Send(ctx, req); err != nil {
		s.pending.Reject(req.ID, err)
		_, _ = s.pending.Await(ctx, req.ID)
		return "", err
	}
	return s.pending.Await(ctx, req.ID)
}

// touch records contact with the remote signer and persists it when the
// stored value is older than contactPersistInterval.
func (s *Service) touch(gen uint64) {
	now := s.clock.Now()
	s.mu.Lock()
	if s.gen != gen || s.session == nil {
		s.mu.Unlock()
		return
	}
	s.session.LastContact = now
	due := now.Sub(s.lastPersist) >= contactPersistInterval
	snapshot := s.session.Clone()
	s.mu.Unlock()
	if !due {
		return
	}

	err := s.underTx(gen, func() error {
		if err := s.store.SaveSession(snapshot); err != nil {
			return err
		}
		s.mu.Lock()
		s.lastPersist = now
		s.mu.Unlock()
		return nil
	})
	if err != nil && !errors.Is(err, errStale) {
		s.log.Warn().Err(err).Msg("persisting last contact")
	}
}

// fail moves the controller into the error state unless gen is stale, in
// which case the newer operation's state is left alone.
func (s *Service) fail(gen uint64, cause error) error {
	if errors.Is(cause, errStale) {
		return domain.ErrDisconnected
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.log.Debug().Err(cause).Uint64("gen", gen).Msg("superseded attempt failed")
		return cause
	}
	s.state = domain.StateError
	s.session = nil
	s.lastErr = cause
	s.commitLocked()

	s.pending.CancelAll(domain.ErrDisconnected)
	if err := s.transport.Deactivate(); err != nil {
		s.log.Debug().Err(err).Msg("closing subscription after failure")
	}
	s.log.Warn().Err(cause).Msg("session failed")
	return cause
}

// clearAfterFailure forgets a stored session that could not be restored.
// The caller holds txMu.
func (s *Service) clearAfterFailure() {
	if err := s.store.ClearSession(); err != nil {
		s.log.Warn().Err(err).Msg("clearing unusable session")
	}
}

// underTx runs fn holding txMu, provided gen is still current.
func (s *Service) underTx(gen uint64, fn func() error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	cur := s.gen
	s.mu.Unlock()
	if cur != gen {
		return errStale
	}
	return fn()
}

// commitLocked snapshots the state for observers and releases mu. Delivery
// holds notifyMu so concurrent transitions reach observers in order.
func (s *Service) commitLocked() {
	change := domain.StateChange{State: s.state}
	if s.session != nil {
		c := s.session.Clone()
		change.Session = &c
	}
	if s.lastErr != nil {
		change.Err = s.lastErr.Error()
	}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.obsMu.Lock()
	fns := make([]func(domain.StateChange), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()
	for _, fn := range fns {
		fn(change)
	}
}

// connectParams builds [remote-key, secret, perms] with trailing empty
// values dropped.
func connectParams(sess domain.Session) []string {
	params := []string{sess.RemoteKey.String(), sess.Secret, strings.Join(sess.Permissions, ",")}
	for len(params) > 1 && params[len(params)-1] == "" {
		params = params[:len(params)-1]
	}
	return params
}

var _ signer.Backend = (*Service)(nil)
