// Package signertest runs a scripted remote signer on a domain.Bus for tests.
package signertest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bunkerlink/internal/crypto"
	"bunkerlink/internal/domain"
	"bunkerlink/internal/protocol/nip46"
	"bunkerlink/internal/protocol/pairing"
)

// Signer answers NIP-46 requests addressed to its remote key, signing and
// encrypting with its user key.
type Signer struct {
	Remote domain.KeyPair
	User   domain.KeyPair
	Secret string

	bus    domain.Bus
	cipher crypto.NIP44
	log    zerolog.Logger
	sub    domain.Subscription

	mu        sync.Mutex
	calls     map[string]int
	held      map[string][]held
	holding   map[string]bool
	failing   map[string]string
	challenge map[string]string
	duplicate bool
	forge     bool
}

type held struct {
	client domain.PublicKey
	req    domain.Request
}

// New starts a signer listening on bus. It stops when the test ends.
func New(t testing.TB, bus domain.Bus, log zerolog.Logger) *Signer {
	t.Helper()
	remote, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("remote key: %v", err)
	}
	user, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("user key: %v", err)
	}
	s := &Signer{
		Remote:    remote,
		User:      user,
		bus:       bus,
		log:       log.With().Str("component", "fake_signer").Logger(),
		calls:     make(map[string]int),
		held:      make(map[string][]held),
		holding:   make(map[string]bool),
		failing:   make(map[string]string),
		challenge: make(map[string]string),
	}
	filter := domain.Filter{Kinds: []int{nip46.KindRemoteSigning}, PTags: []string{remote.Public.String()}}
	sub, err := bus.Subscribe(context.Background(), nil, filter, s.handle)
	if err != nil {
		t.Fatalf("signer subscribe: %v", err)
	}
	s.sub = sub
	t.Cleanup(func() { _ = sub.Close() })
	return s
}

// URI returns a bunker URI for this signer on relays.
func (s *Signer) URI(relays ...string) string {
	return pairing.Format(domain.ConnectionDescriptor{
		Scheme:    domain.SchemeBunker,
		RemoteKey: s.Remote.Public,
		Relays:    relays,
		Secret:    s.Secret,
	})
}

// Calls returns how many requests for method arrived.
func (s *Signer) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Hold keeps requests for method unanswered until Release.
func (s *Signer) Hold(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holding[method] = true
}

// Held returns how many requests for method are waiting.
func (s *Signer) Held(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held[method])
}

// Release answers every held request for method and stops holding.
func (s *Signer) Release(method string) {
	s.mu.Lock()
	pending := s.held[method]
	delete(s.held, method)
	delete(s.holding, method)
	s.mu.Unlock()
	for _, h := range pending {
		s.answer(h.client, h.req)
	}
}

// Fail makes method answer with an error message.
func (s *Signer) Fail(method, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[method] = msg
}

// Challenge makes method send an auth_url response before its result.
func (s *Signer) Challenge(method, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenge[method] = url
}

// Duplicate makes every response go out twice.
func (s *Signer) Duplicate(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duplicate = on
}

// Forge makes sign_event return an event signed by the wrong key.
func (s *Signer) Forge(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forge = on
}

func (s *Signer) handle(ev domain.Event) {
	client, err := domain.ParsePublicKey(ev.PubKey)
	if err != nil {
		return
	}
	if err := crypto.VerifyEvent(ev); err != nil {
		s.log.Warn().Err(err).Msg("unverified request")
		return
	}
	plaintext, err := s.cipher.Decrypt(s.Remote.Private, client, ev.Content)
	if err != nil {
		s.log.Warn().Err(err).Msg("undecryptable request")
		return
	}
	req, err := nip46.DecodeRequest(plaintext)
	if err != nil {
		s.log.Warn().Err(err).Msg("bad request")
		return
	}

	s.mu.Lock()
	s.calls[req.Method]++
	if s.holding[req.Method] {
		s.held[req.Method] = append(s.held[req.Method], held{client: client, req: req})
		s.mu.Unlock()
		return
	}
	url := s.challenge[req.Method]
	s.mu.Unlock()

	if url != "" {
		s.reply(client, domain.Response{ID: req.ID, Result: nip46.ResultAuthURL, Error: url})
	}
	s.answer(client, req)
}

func (s *Signer) answer(client domain.PublicKey, req domain.Request) {
	s.mu.Lock()
	failMsg, failing := s.failing[req.Method]
	s.mu.Unlock()
	if failing {
		s.reply(client, domain.Response{ID: req.ID, Error: failMsg})
		return
	}
	result, err := s.execute(req)
	if err != nil {
		s.reply(client, domain.Response{ID: req.ID, Error: err.Error()})
		return
	}
	s.reply(client, domain.Response{ID: req.ID, Result: result})
}

func (s *Signer) execute(req domain.Request) (string, error) {
	param := func(i int) string {
		if i < len(req.Params) {
			return req.Params[i]
		}
		return ""
	}
	switch req.Method {
	case nip46.MethodConnect:
		if param(0) != s.Remote.Public.String() {
			return "", errors.New("connect addressed to another signer")
		}
		if s.Secret != "" && param(1) != s.Secret {
			return "", errors.New("invalid secret")
		}
		return "ack", nil
	case nip46.MethodGetPublicKey:
		return s.User.Public.String(), nil
	case nip46.MethodPing:
		return "pong", nil
	case nip46.MethodSignEvent:
		var ue domain.UnsignedEvent
		if err := json.Unmarshal([]byte(param(0)), &ue); err != nil {
			return "", err
		}
		ev := domain.Event{CreatedAt: ue.CreatedAt, Kind: ue.Kind, Tags: ue.Tags, Content: ue.Content}
		key := s.User.Private
		s.mu.Lock()
		forge := s.forge
		s.mu.Unlock()
		if forge {
			key = s.Remote.Private
		}
		if err := crypto.SignEvent(key, &ev); err != nil {
			return "", err
		}
		b, err := json.Marshal(ev)
		return string(b), err
	case nip46.MethodNIP44Encrypt, nip46.MethodNIP44Decrypt:
		peer, err := domain.ParsePublicKey(param(0))
		if err != nil {
			return "", err
		}
		if req.Method == nip46.MethodNIP44Encrypt {
			return s.cipher.Encrypt(s.User.Private, peer, param(1))
		}
		return s.cipher.Decrypt(s.User.Private, peer, param(1))
	default:
		return "", errors.New("unsupported method " + req.Method)
	}
}

func (s *Signer) reply(client domain.PublicKey, resp domain.Response) {
	payload, err := nip46.EncodeResponse(resp)
	if err != nil {
		s.log.Error().Err(err).Msg("encode response")
		return
	}
	content, err := s.cipher.Encrypt(s.Remote.Private, client, payload)
	if err != nil {
		s.log.Error().Err(err).Msg("encrypt response")
		return
	}
	ev := nip46.NewEnvelope(content, client, time.Now())
	if err := crypto.SignEvent(s.Remote.Private, &ev); err != nil {
		s.log.Error().Err(err).Msg("sign response")
		return
	}
	s.mu.Lock()
	times := 1
	if s.duplicate {
		times = 2
	}
	s.mu.Unlock()
	for range times {
		if err := s.bus.Publish(context.Background(), nil, ev); err != nil {
			s.log.Error().Err(err).Msg("publish response")
		}
	}
}
