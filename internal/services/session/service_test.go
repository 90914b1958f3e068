package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bunkerlink/internal/crypto"
	"bunkerlink/internal/domain"
	"bunkerlink/internal/protocol/nip46"
	"bunkerlink/internal/relay"
	"bunkerlink/internal/services/identity"
	"bunkerlink/internal/services/message"
	"bunkerlink/internal/services/session"
	"bunkerlink/internal/store"
	"bunkerlink/internal/testutil/signertest"
	"bunkerlink/internal/testutil/testlog"
)

const relayURL = "wss://relay.test"

type fixture struct {
	log    zerolog.Logger
	bus    *relay.MemoryBus
	kv     *store.MemoryKV
	store  *store.SessionStore
	signer *signertest.Signer
	svc    *session.Service
	states *recorder
}

type recorder struct {
	mu     sync.Mutex
	states []domain.State
}

func (r *recorder) observe(c domain.StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, c.State)
}

func (r *recorder) all() []domain.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.State(nil), r.states...)
}

func setup(t *testing.T, opts ...session.Option) *fixture {
	t.Helper()
	log := testlog.New(t)
	bus := relay.NewMemoryBus()
	kv := store.NewMemoryKV()
	f := &fixture{
		log:    log,
		bus:    bus,
		kv:     kv,
		store:  store.NewSessionStore(kv, log),
		signer: signertest.New(t, bus, log),
		states: &recorder{},
	}
	f.svc = f.newService(t, f.transport(), opts...)
	return f
}

func (f *fixture) transport() domain.Transport {
	return message.New(f.bus, crypto.NIP44{}, message.WithLogger(f.log))
}

func (f *fixture) newService(t *testing.T, tr domain.Transport, opts ...session.Option) *session.Service {
	t.Helper()
	opts = append([]session.Option{session.WithLogger(f.log)}, opts...)
	svc := session.New(f.store, identity.New(), tr, opts...)
	t.Cleanup(svc.Observe(f.states.observe))
	t.Cleanup(func() { _ = svc.Disconnect(context.Background()) })
	return svc
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	_, err := f.svc.Connect(context.Background(), f.signer.URI(relayURL))
	require.NoError(t, err)
	require.Equal(t, domain.StateReady, f.svc.State())
}

func (f *fixture) stored(t *testing.T) (domain.Session, bool) {
	t.Helper()
	s, ok, err := f.store.LoadSession()
	require.NoError(t, err)
	return s, ok
}

func TestConnectFullScenario(t *testing.T) {
	f := setup(t)
	f.signer.Secret = "s3cret"
	ctx := context.Background()

	adapter, err := f.svc.Connect(ctx, f.signer.URI(relayURL)+"&perms=sign_event:1,nip44_encrypt")
	require.NoError(t, err)
	assert.Equal(t, []domain.State{domain.StateConnecting, domain.StateReady}, f.states.all())
	assert.Equal(t, 1, f.signer.Calls(nip46.MethodConnect))
	assert.Equal(t, 1, f.signer.Calls(nip46.MethodGetPublicKey))

	id, err := adapter.GetIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.signer.User.Public, id)
	assert.Equal(t, []string{relayURL}, adapter.Relays())

	ev, err := adapter.Sign(ctx, domain.UnsignedEvent{Kind: 1, Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, f.signer.User.Public.String(), ev.PubKey)
	require.NoError(t, crypto.VerifyEvent(ev))

	peer, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	var cipher crypto.NIP44
	ct, err := adapter.EncryptFor(ctx, peer.Public, "to peer")
	require.NoError(t, err)
	pt, err := cipher.Decrypt(peer.Private, f.signer.User.Public, ct)
	require.NoError(t, err)
	assert.Equal(t, "to peer", pt)

	ct, err = cipher.Encrypt(peer.Private, f.signer.User.Public, "from peer")
	require.NoError(t, err)
	pt, err = adapter.DecryptFrom(ctx, peer.Public, ct)
	require.NoError(t, err)
	assert.Equal(t, "from peer", pt)
	require.NoError(t, adapter.Ping(ctx))

	stored, ok := f.stored(t)
	require.True(t, ok)
	assert.Equal(t, f.signer.Remote.Public, stored.RemoteKey)
	assert.Equal(t, f.signer.User.Public, stored.UserKey)
	assert.Equal(t, "s3cret", stored.Secret)
	assert.Equal(t, []string{"sign_event:1", "nip44_encrypt"}, stored.Permissions)

	current, ok := f.svc.Session()
	require.True(t, ok)
	assert.Equal(t, current.ClientKey, stored.ClientKey)
	assert.NotEqual(t, f.signer.User.Public, current.ClientKey.Public)
}

func TestSignWhileConnectingSendsNothing(t *testing.T) {
	f := setup(t)
	f.signer.Hold(nip46.MethodConnect)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Connect(context.Background(), f.signer.URI(relayURL))
		done <- err
	}()
	require.Eventually(t, func() bool { return f.signer.Held(nip46.MethodConnect) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, domain.StateConnecting, f.svc.State())

	_, err := f.svc.Signer().Sign(context.Background(), domain.UnsignedEvent{Kind: 1, Content: "early"})
	require.ErrorIs(t, err, domain.ErrNotPaired)
	_, err = f.svc.Signer().GetIdentity(context.Background())
	require.ErrorIs(t, err, domain.ErrNotPaired)
	assert.Zero(t, f.signer.Calls(nip46.MethodSignEvent))

	_, err = f.svc.Connect(context.Background(), f.signer.URI(relayURL))
	require.ErrorIs(t, err, domain.ErrAlreadyConnecting)

	f.signer.Release(nip46.MethodConnect)
	require.NoError(t, <-done)
	assert.Equal(t, domain.StateReady, f.svc.State())
}

func TestDisconnectRejectsPending(t *testing.T) {
	f := setup(t)
	f.connect(t)
	f.signer.Hold(nip46.MethodSignEvent)

	const n = 3
	errs := make(chan error, n)
	for i := range n {
		go func() {
			_, err := f.svc.Signer().Sign(context.Background(), domain.UnsignedEvent{Kind: 1, Content: string(rune('a' + i))})
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return f.signer.Held(nip46.MethodSignEvent) == n }, time.Second, time.Millisecond)

	require.NoError(t, f.svc.Disconnect(context.Background()))
	for range n {
		select {
		case err := <-errs:
			require.ErrorIs(t, err, domain.ErrDisconnected)
		case <-time.After(time.Second):
			t.Fatal("pending sign not rejected")
		}
	}

	assert.Equal(t, domain.StateIdle, f.svc.State())
	_, ok := f.stored(t)
	assert.False(t, ok)
	assert.Equal(t, 1, f.bus.Subscriptions(), "only the fake signer should still be subscribed")

	f.signer.Release(nip46.MethodSignEvent)
	_, err := f.svc.Signer().Sign(context.Background(), domain.UnsignedEvent{Kind: 1})
	require.ErrorIs(t, err, domain.ErrNotPaired)
	assert.Equal(t, []domain.State{domain.StateConnecting, domain.StateReady, domain.StateIdle}, f.states.all())
}

func TestBootstrapSkipsHandshake(t *testing.T) {
	f := setup(t)
	f.connect(t)
	require.Equal(t, 1, f.signer.Calls(nip46.MethodConnect))

	restarted := f.newService(t, f.transport())
	adapter, ok, err := restarted.Bootstrap(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StateReady, restarted.State())
	assert.Equal(t, 1, f.signer.Calls(nip46.MethodConnect))

	id, err := adapter.GetIdentity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.signer.User.Public, id)
	_, err = adapter.Sign(context.Background(), domain.UnsignedEvent{Kind: 1, Content: "after restart"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.signer.Calls(nip46.MethodConnect))
}

func TestBootstrapWithNothingStored(t *testing.T) {
	f := setup(t)
	adapter, ok, err := f.svc.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, adapter)
	assert.Equal(t, domain.StateIdle, f.svc.State())

	require.NoError(t, f.kv.Put(store.SessionKey, []byte("{")))
	_, ok, err = f.svc.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, domain.StateIdle, f.svc.State())
}

type brokenTransport struct{ domain.Transport }

func (brokenTransport) Activate(context.Context, domain.Session, domain.Resolver) error {
	return errors.New("relays unreachable")
}

func TestBootstrapActivationFailure(t *testing.T) {
	f := setup(t)
	f.connect(t)

	restarted := f.newService(t, brokenTransport{f.transport()})
	_, ok, err := restarted.Bootstrap(context.Background())
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, domain.StateError, restarted.State())
	require.Error(t, restarted.LastError())

	_, stored := f.stored(t)
	assert.False(t, stored)
}

func TestConnectFailureLeavesNothingPersisted(t *testing.T) {
	f := setup(t)
	f.signer.Fail(nip46.MethodConnect, "denied by user")

	_, err := f.svc.Connect(context.Background(), f.signer.URI(relayURL))
	require.ErrorIs(t, err, domain.ErrRemote)
	assert.Contains(t, err.Error(), "denied by user")
	assert.Equal(t, domain.StateError, f.svc.State())
	assert.Equal(t, err, f.svc.LastError())

	_, ok := f.svc.Session()
	assert.False(t, ok)
	_, ok = f.stored(t)
	assert.False(t, ok)
	assert.Zero(t, f.signer.Calls(nip46.MethodGetPublicKey))
	assert.Equal(t, []domain.State{domain.StateConnecting, domain.StateError}, f.states.all())
}

func TestConnectRecoversFromError(t *testing.T) {
	f := setup(t)
	f.signer.Fail(nip46.MethodGetPublicKey, "nope")
	_, err := f.svc.Connect(context.Background(), f.signer.URI(relayURL))
	require.ErrorIs(t, err, domain.ErrRemote)

	f.signer = signertest.New(t, f.bus, f.log)
	f.connect(t)
	assert.Nil(t, f.svc.LastError())
}

func TestConnectTimeout(t *testing.T) {
	mock := clock.NewMock()
	f := setup(t, session.WithClock(mock))
	f.signer.Hold(nip46.MethodGetPublicKey)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Connect(context.Background(), f.signer.URI(relayURL))
		done <- err
	}()
	require.Eventually(t, func() bool { return f.signer.Held(nip46.MethodGetPublicKey) == 1 }, time.Second, time.Millisecond)

	mock.Add(domain.RequestTimeout)
	require.ErrorIs(t, <-done, domain.ErrTimeout)
	assert.Equal(t, domain.StateError, f.svc.State())
	_, ok := f.stored(t)
	assert.False(t, ok)
}

func TestConnectParseErrorKeepsState(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Connect(context.Background(), "https://example.com")
	require.ErrorIs(t, err, domain.ErrInvalidPairingURI)

	_, err = f.svc.Connect(context.Background(), "bunker://"+f.signer.Remote.Public.String())
	require.ErrorIs(t, err, domain.ErrMissingEndpoint)

	assert.Equal(t, domain.StateIdle, f.svc.State())
	assert.Empty(t, f.states.all())
	assert.Zero(t, f.signer.Calls(nip46.MethodConnect))
}

func TestDisconnectSupersedesPairing(t *testing.T) {
	f := setup(t)
	f.signer.Hold(nip46.MethodConnect)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Connect(context.Background(), f.signer.URI(relayURL))
		done <- err
	}()
	require.Eventually(t, func() bool { return f.signer.Held(nip46.MethodConnect) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, f.svc.Disconnect(context.Background()))
	require.ErrorIs(t, <-done, domain.ErrDisconnected)
	assert.Equal(t, domain.StateIdle, f.svc.State())
	assert.Nil(t, f.svc.LastError())

	f.signer.Release(nip46.MethodConnect)
	assert.Equal(t, domain.StateIdle, f.svc.State())
	_, ok := f.stored(t)
	assert.False(t, ok)
	assert.Zero(t, f.signer.Calls(nip46.MethodGetPublicKey))
}

func TestReconnectReplacesReadySession(t *testing.T) {
	f := setup(t)
	f.connect(t)
	first, _ := f.svc.Session()

	f.connect(t)
	second, _ := f.svc.Session()
	assert.NotEqual(t, first.ClientKey.Public, second.ClientKey.Public)

	stored, ok := f.stored(t)
	require.True(t, ok)
	assert.Equal(t, second.ClientKey.Public, stored.ClientKey.Public)
	assert.Equal(t, 2, f.signer.Calls(nip46.MethodConnect))
}

func TestRemoteErrorKeepsSessionReady(t *testing.T) {
	f := setup(t)
	f.connect(t)
	f.signer.Fail(nip46.MethodSignEvent, "not allowed")

	_, err := f.svc.Signer().Sign(context.Background(), domain.UnsignedEvent{Kind: 1})
	var remote *domain.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "not allowed", remote.Message)
	assert.Equal(t, domain.StateReady, f.svc.State())
}

func TestLastContactPersistedAtMostOncePerMinute(t *testing.T) {
	mock := clock.NewMock()
	start := time.Unix(1_700_000_000, 0)
	mock.Set(start)
	f := setup(t, session.WithClock(mock))
	f.connect(t)

	stored, _ := f.stored(t)
	assert.True(t, stored.LastContact.Equal(start))

	mock.Add(30 * time.Second)
	require.NoError(t, f.svc.Signer().Ping(context.Background()))
	stored, _ = f.stored(t)
	assert.True(t, stored.LastContact.Equal(start), "persisted too early: %s", stored.LastContact)
	current, _ := f.svc.Session()
	assert.True(t, current.LastContact.Equal(start.Add(30*time.Second)))

	mock.Add(31 * time.Second)
	require.NoError(t, f.svc.Signer().Ping(context.Background()))
	stored, _ = f.stored(t)
	assert.True(t, stored.LastContact.Equal(start.Add(61*time.Second)))
}

func TestObserveCancel(t *testing.T) {
	f := setup(t)
	var got []domain.State
	cancel := f.svc.Observe(func(c domain.StateChange) {
		got = append(got, c.State)
		if c.State == domain.StateReady {
			require.NotNil(t, c.Session)
			assert.Equal(t, f.signer.User.Public, c.Session.UserKey)
		}
	})
	f.connect(t)
	cancel()
	cancel()
	require.NoError(t, f.svc.Disconnect(context.Background()))
	assert.Equal(t, []domain.State{domain.StateConnecting, domain.StateReady}, got)
}

func TestConnectRejectsUserKeyOffCurve(t *testing.T) {
	f := setup(t)
	for i := range f.signer.User.Public {
		f.signer.User.Public[i] = 0xff
	}

	_, err := f.svc.Connect(context.Background(), f.signer.URI(relayURL))
	require.ErrorIs(t, err, crypto.ErrInvalidPublicKey)
	assert.Equal(t, domain.StateError, f.svc.State())
	assert.Equal(t, []domain.State{domain.StateConnecting, domain.StateError}, f.states.all())
	_, ok := f.stored(t)
	assert.False(t, ok)

	_, err = f.svc.Signer().GetIdentity(context.Background())
	require.ErrorIs(t, err, domain.ErrNotPaired)
}

type failingIdentity struct{ domain.IdentityService }

func (failingIdentity) GenerateKeyPair() (domain.KeyPair, error) {
	return domain.KeyPair{}, errors.New("entropy exhausted")
}

func TestConnectFailureBeforeHandshakeAnnouncesConnecting(t *testing.T) {
	f := setup(t)
	states := &recorder{}
	svc := session.New(f.store, failingIdentity{identity.New()}, f.transport(), session.WithLogger(f.log))
	t.Cleanup(svc.Observe(states.observe))

	_, err := svc.Connect(context.Background(), f.signer.URI(relayURL))
	require.ErrorContains(t, err, "entropy exhausted")
	assert.Equal(t, []domain.State{domain.StateConnecting, domain.StateError}, states.all())
	assert.Zero(t, f.signer.Calls(nip46.MethodConnect))
}

// hookedTransport runs onFailure from Deactivate while the controller reports
// the error state.
type hookedTransport struct {
	domain.Transport
	svc       func() *session.Service
	onFailure func()
	once      sync.Once
}

func (h *hookedTransport) Deactivate() error {
	if svc := h.svc(); svc != nil && svc.State() == domain.StateError {
		h.once.Do(h.onFailure)
	}
	return h.Transport.Deactivate()
}

func TestErrorTransitionPrecedesConcurrentConnect(t *testing.T) {
	f := setup(t)
	f.signer.Fail(nip46.MethodConnect, "denied by user")
	uri := f.signer.URI(relayURL)

	var svc *session.Service
	second := make(chan error, 1)
	tr := &hookedTransport{Transport: f.transport(), svc: func() *session.Service { return svc }}
	tr.onFailure = func() {
		go func() {
			_, err := svc.Connect(context.Background(), uri)
			second <- err
		}()
		require.Eventually(t, func() bool {
			return svc.State() == domain.StateConnecting
		}, time.Second, time.Millisecond)
	}
	states := &recorder{}
	svc = session.New(f.store, identity.New(), tr, session.WithLogger(f.log))
	t.Cleanup(svc.Observe(states.observe))
	t.Cleanup(func() { _ = svc.Disconnect(context.Background()) })

	_, err := svc.Connect(context.Background(), uri)
	require.ErrorIs(t, err, domain.ErrRemote)
	require.ErrorIs(t, <-second, domain.ErrRemote)

	assert.Equal(t, []domain.State{
		domain.StateConnecting, domain.StateError,
		domain.StateConnecting, domain.StateError,
	}, states.all())
}
