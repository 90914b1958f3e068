package message

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"bunkerlink/internal/crypto"
	"bunkerlink/internal/domain"
	"bunkerlink/internal/protocol/nip46"
)

const (
	seenCacheSize = 1024
	// sinceSkew widens the subscription window for signers whose clocks lag.
	sinceSkew = 2 * time.Minute
)

// AuthHandler is told when the remote signer asks the user to approve a
// request at url. The request stays pending.
type AuthHandler func(requestID, url string)

// Service implements domain.Transport on a domain.Bus.
type Service struct {
	bus    domain.Bus
	cipher domain.Cipher
	clock  clock.Clock
	log    zerolog.Logger
	onAuth AuthHandler

	mu     sync.Mutex
	active *activation
}

type activation struct {
	session  domain.Session
	resolver domain.Resolver
	sub      domain.Subscription
	seen     *lru.Cache[string, struct{}]
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.log = l } }

// WithAuthHandler sets the callback for auth_url challenges.
func WithAuthHandler(h AuthHandler) Option { return func(s *Service) { s.onAuth = h } }

// New returns a transport adapter on bus using cipher for payloads.
func New(bus domain.Bus, cipher domain.Cipher, opts ...Option) *Service {
	s := &Service{
		bus:    bus,
		cipher: cipher,
		clock:  clock.New(),
		log:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With().Str("component", "transport").Logger()
	return s
}

// Activate subscribes to responses for session and routes them to resolver.
func (s *Service) Activate(ctx context.Context, session domain.Session, resolver domain.Resolver) error {
	if len(session.Relays) == 0 {
		return domain.ErrMissingEndpoint
	}
	seen, err := lru.New[string, struct{}](seenCacheSize)
	if err != nil {
		return err
	}
	act := &activation{session: session.Clone(), resolver: resolver, seen: seen}

	filter := domain.Filter{
		Kinds: []int{nip46.KindRemoteSigning},
		PTags: []string{session.ClientKey.Public.String()},
	}
	if since := s.clock.Now().Add(-sinceSkew).Unix(); since > 0 {
		filter.Since = since
	}

	if err := s.Deactivate(); err != nil {
		s.log.Debug().Err(err).Msg("closing previous subscription")
	}
	sub, err := s.bus.Subscribe(ctx, act.session.Relays, filter, func(ev domain.Event) { s.receive(act, ev) })
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	act.sub = sub

	s.mu.Lock()
	s.active = act
	s.mu.Unlock()

	s.log.Debug().
		Str("client", session.ClientKey.Public.String()).
		Strs("relays", act.session.Relays).
		Msg("listening for responses")
	return nil
}

// Deactivate closes the current subscription, if any.
func (s *Service) Deactivate() error {
	s.mu.Lock()
	act := s.active
	s.active = nil
	s.mu.Unlock()
	if act == nil {
		return nil
	}
	return act.sub.Close()
}

// Active reports whether a subscription is open.
func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Send encrypts req for the remote signer and publishes it to every relay.
func (s *Service) Send(ctx context.Context, req domain.Request) error {
	s.mu.Lock()
	act := s.active
	s.mu.Unlock()
	if act == nil {
		return domain.ErrNotPaired
	}
	sess := act.session

	payload, err := nip46.EncodeRequest(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	content, err := s.cipher.Encrypt(sess.ClientKey.Private, sess.RemoteKey, payload)
	if err != nil {
		return fmt.Errorf("encrypt request: %w", err)
	}
	ev := nip46.NewEnvelope(content, sess.RemoteKey, s.clock.Now())
	if err := crypto.SignEvent(sess.ClientKey.Private, &ev); err != nil {
		return err
	}
	if err := s.bus.Publish(ctx, sess.Relays, ev); err != nil {
		return fmt.Errorf("publish %s: %w", req.Method, err)
	}
	s.log.Debug().Str("id", req.ID).Str("method", req.Method).Str("event", ev.ID).Msg("request sent")
	return nil
}

func (s *Service) receive(act *activation, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("event", ev.ID).Msg("inbound handler panicked")
		}
	}()

	log := s.log.With().Str("event", ev.ID).Str("from", ev.PubKey).Logger()
	if ev.Kind != nip46.KindRemoteSigning || !ev.TaggedTo(act.session.ClientKey.Public) {
		log.Debug().Msg("not addressed to this session")
		return
	}
	if err := crypto.VerifyEvent(ev); err != nil {
		log.Warn().Err(err).Msg("dropping unverifiable event")
		return
	}
	if seen, _ := act.seen.ContainsOrAdd(ev.ID, struct{}{}); seen {
		return
	}

	resp, err := s.decode(act, ev)
	if err != nil {
		log.Warn().Err(err).Msg("dropping inbound message")
		return
	}
	log = log.With().Str("id", resp.ID).Logger()

	switch {
	case nip46.IsAuthChallenge(resp):
		log.Info().Str("url", resp.Error).Msg("remote signer requests approval")
		if s.onAuth != nil {
			s.onAuth(resp.ID, resp.Error)
		}
	case resp.Error != "":
		if !act.resolver.Reject(resp.ID, &domain.RemoteError{Message: resp.Error}) {
			log.Debug().Msg("error for unknown or settled request")
		}
	default:
		if !act.resolver.Resolve(resp.ID, resp.Result) {
			log.Debug().Msg("result for unknown or settled request")
		}
	}
}

func (s *Service) decode(act *activation, ev domain.Event) (domain.Response, error) {
	sender, err := domain.ParsePublicKey(ev.PubKey)
	if err != nil {
		return domain.Response{}, fmt.Errorf("%w: sender: %v", domain.ErrDecode, err)
	}
	plaintext, err := s.cipher.Decrypt(act.session.ClientKey.Private, sender, ev.Content)
	if err != nil {
		return domain.Response{}, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	return nip46.DecodeResponse(plaintext)
}

var _ domain.Transport = (*Service)(nil)
