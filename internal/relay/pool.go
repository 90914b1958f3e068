package relay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"bunkerlink/internal/domain"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultOKTimeout   = 10 * time.Second
	defaultParallel    = 8
	maxRedialBackoff   = 30 * time.Second
	maxFrameSize       = 1 << 20
)

var (
	// ErrNoRelays is returned when there is no relay to talk to.
	ErrNoRelays = errors.New("no relays")
	// ErrPoolClosed is returned after Close.
	ErrPoolClosed = errors.New("relay pool closed")
	// ErrRejected is returned when a relay answers OK false.
	ErrRejected = errors.New("relay rejected event")
)

// Pool is a domain.Bus over websocket relays. It keeps one connection per
// relay URL, dialed on first use and redialed in the background while a
// subscription still needs it.
type Pool struct {
	dialer      *websocket.Dialer
	dialTimeout time.Duration
	okTimeout   time.Duration
	parallel    int
	log         zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	conns  map[string]*relayConn
	subs   map[string]*poolSub
	closed bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithDialTimeout bounds each connection attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.dialTimeout = d
		}
	}
}

// WithOKTimeout bounds the wait for a relay's OK after publishing.
func WithOKTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.okTimeout = d
		}
	}
}

// WithParallel caps the number of relays contacted at once.
func WithParallel(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.parallel = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(p *Pool) { p.log = l } }

// NewPool returns a pool with no open connections.
func NewPool(opts ...Option) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		dialer:      &websocket.Dialer{HandshakeTimeout: defaultDialTimeout},
		dialTimeout: defaultDialTimeout,
		okTimeout:   defaultOKTimeout,
		parallel:    defaultParallel,
		log:         zerolog.Nop(),
		ctx:         ctx,
		cancel:      cancel,
		conns:       make(map[string]*relayConn),
		subs:        make(map[string]*poolSub),
	}
	for _, o := range opts {
		o(p)
	}
	p.dialer.HandshakeTimeout = p.dialTimeout
	p.log = p.log.With().Str("component", "relay_pool").Logger()
	return p
}

// Publish sends ev to every relay in endpoints. It succeeds when at least one
// relay accepted the event.
func (p *Pool) Publish(ctx context.Context, endpoints []string, ev domain.Event) error {
	urls := p.targets(endpoints)
	if len(urls) == 0 {
		return ErrNoRelays
	}
	ok, errs := p.fanOut(urls, func(url string) error {
		c, _, err := p.conn(ctx, url)
		if err != nil {
			return err
		}
		return c.publish(ctx, ev, p.okTimeout)
	})
	if ok == 0 {
		return fmt.Errorf("publish %s: %w", ev.ID, errs)
	}
	if errs != nil {
		p.log.Warn().Err(errs).Str("event", ev.ID).Int("accepted", ok).Msg("publish partially failed")
	}
	return nil
}

// Subscribe opens a subscription for filter on every relay in endpoints. It
// succeeds when at least one relay took the request. handler runs on the
// relay's read goroutine and must not block.
func (p *Pool) Subscribe(
	ctx context.Context,
	endpoints []string,
	filter domain.Filter,
	handler func(domain.Event),
) (domain.Subscription, error) {
	urls := p.targets(endpoints)
	if len(urls) == 0 {
		return nil, ErrNoRelays
	}
	s := &poolSub{pool: p, id: uuid.NewString(), urls: urls, filter: filter, handler: handler}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.subs[s.id] = s
	p.mu.Unlock()

	ok, errs := p.fanOut(urls, func(url string) error {
		c, dialed, err := p.conn(ctx, url)
		if err != nil {
			return err
		}
		if dialed {
			// conn already sent the REQ for every registered sub.
			return nil
		}
		return c.send(labelReq, s.id, filter)
	})
	if ok == 0 {
		p.mu.Lock()
		delete(p.subs, s.id)
		p.mu.Unlock()
		return nil, fmt.Errorf("subscribe: %w", errs)
	}
	if errs != nil {
		p.log.Warn().Err(errs).Str("sub", s.id).Int("relays", ok).Msg("subscribe partially failed")
	}
	return s, nil
}

// Close drops every connection and stops background redials.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := make([]*relayConn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.conns = map[string]*relayConn{}
	p.subs = map[string]*poolSub{}
	p.mu.Unlock()

	p.cancel()
	var err error
	for _, c := range conns {
		err = multierr.Append(err, c.ws.Close())
	}
	return err
}

// Connected returns the URLs with a live connection.
func (p *Pool) Connected() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.conns))
	for url := range p.conns {
		out = append(out, url)
	}
	slices.Sort(out)
	return out
}

func (p *Pool) targets(endpoints []string) []string {
	if len(endpoints) > 0 {
		return slices.Compact(slices.Sorted(slices.Values(endpoints)))
	}
	return p.Connected()
}

// fanOut runs fn for every url with bounded parallelism and reports how many
// calls succeeded along with the combined error of the rest.
func (p *Pool) fanOut(urls []string, fn func(url string) error) (int, error) {
	var (
		mu   sync.Mutex
		errs error
		ok   int
		g    errgroup.Group
	)
	g.SetLimit(p.parallel)
	for _, url := range urls {
		g.Go(func() error {
			err := fn(url)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", url, err))
			} else {
				ok++
			}
			return nil
		})
	}
	_ = g.Wait()
	return ok, errs
}

// conn returns the live connection to url, dialing it if needed. dialed
// reports that this call opened the connection and resubscribed every
// registered sub on it.
func (p *Pool) conn(ctx context.Context, url string) (c *relayConn, dialed bool, err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, false, ErrPoolClosed
	}
	if live, ok := p.conns[url]; ok {
		p.mu.Unlock()
		return live, false, nil
	}
	p.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()
	ws, _, err := p.dialer.DialContext(dctx, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("dial: %w", err)
	}
	ws.SetReadLimit(maxFrameSize)
	c = &relayConn{
		url:  url,
		ws:   ws,
		oks:  make(map[string]chan okReply),
		done: make(chan struct{}),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = ws.Close()
		return nil, false, ErrPoolClosed
	}
	if existing, ok := p.conns[url]; ok {
		p.mu.Unlock()
		_ = ws.Close()
		return existing, false, nil
	}
	p.conns[url] = c
	var resub []*poolSub
	for _, s := range p.subs {
		if slices.Contains(s.urls, url) {
			resub = append(resub, s)
		}
	}
	p.mu.Unlock()

	p.log.Debug().Str("relay", url).Msg("connected")
	go p.readLoop(c)

	for _, s := range resub {
		if err := c.send(labelReq, s.id, s.filter); err != nil {
			p.log.Warn().Err(err).Str("relay", url).Str("sub", s.id).Msg("resubscribe failed")
		}
	}
	return c, true, nil
}

func (p *Pool) readLoop(c *relayConn) {
	var readErr error
	defer func() {
		c.fail()
		p.mu.Lock()
		if p.conns[c.url] == c {
			delete(p.conns, c.url)
		}
		needed := !p.closed && p.wanted(c.url)
		p.mu.Unlock()
		if needed {
			p.log.Warn().Err(readErr).Str("relay", c.url).Msg("connection lost, redialing")
			go p.redial(c.url)
		}
	}()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			readErr = err
			return
		}
		p.dispatch(c, raw)
	}
}

func (p *Pool) dispatch(c *relayConn, raw []byte) {
	label, args, err := decodeFrame(raw)
	if err != nil {
		p.log.Debug().Err(err).Str("relay", c.url).Msg("dropping frame")
		return
	}
	switch label {
	case labelEvent:
		var subID string
		var ev domain.Event
		if err := arg(args, 0, &subID); err != nil {
			return
		}
		if err := arg(args, 1, &ev); err != nil {
			p.log.Debug().Err(err).Str("relay", c.url).Msg("dropping event")
			return
		}
		p.mu.Lock()
		s, ok := p.subs[subID]
		p.mu.Unlock()
		if ok && s.filter.Matches(ev) {
			s.handler(ev)
		}
	case labelOK:
		var id, msg string
		var accepted bool
		if arg(args, 0, &id) != nil || arg(args, 1, &accepted) != nil {
			return
		}
		_ = arg(args, 2, &msg)
		c.settleOK(id, okReply{accepted: accepted, msg: msg})
	case labelEOSE:
	case labelClosed:
		var subID, msg string
		_ = arg(args, 0, &subID)
		_ = arg(args, 1, &msg)
		p.log.Warn().Str("relay", c.url).Str("sub", subID).Str("reason", msg).Msg("subscription closed by relay")
	case labelNotice:
		var msg string
		_ = arg(args, 0, &msg)
		p.log.Info().Str("relay", c.url).Str("notice", msg).Msg("relay notice")
	default:
		p.log.Debug().Str("relay", c.url).Str("label", label).Msg("unknown frame")
	}
}

// wanted reports whether an open subscription uses url. Caller holds p.mu.
func (p *Pool) wanted(url string) bool {
	for _, s := range p.subs {
		if slices.Contains(s.urls, url) {
			return true
		}
	}
	return false
}

func (p *Pool) redial(url string) {
	backoff := time.Second
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-time.After(backoff):
		}
		p.mu.Lock()
		needed := !p.closed && p.wanted(url)
		p.mu.Unlock()
		if !needed {
			return
		}
		_, _, err := p.conn(p.ctx, url)
		if err == nil {
			return
		}
		p.log.Debug().Err(err).Str("relay", url).Dur("backoff", backoff).Msg("redial failed")
		backoff = min(backoff*2, maxRedialBackoff)
	}
}

type okReply struct {
	accepted bool
	msg      string
}

type relayConn struct {
	url string
	ws  *websocket.Conn
	wmu sync.Mutex

	mu   sync.Mutex
	oks  map[string]chan okReply
	done chan struct{}
	dead bool
}

func (c *relayConn) send(label string, args ...any) error {
	b, err := encodeFrame(label, args...)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

func (c *relayConn) publish(ctx context.Context, ev domain.Event, wait time.Duration) error {
	ch := make(chan okReply, 1)
	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		return errors.New("connection closed")
	}
	c.oks[ev.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.oks, ev.ID)
		c.mu.Unlock()
	}()

	if err := c.send(labelEvent, ev); err != nil {
		return err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case r := <-ch:
		if !r.accepted {
			return fmt.Errorf("%w: %s", ErrRejected, r.msg)
		}
		return nil
	case <-c.done:
		return errors.New("connection closed before OK")
	case <-timer.C:
		return errors.New("no OK from relay")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *relayConn) settleOK(id string, r okReply) {
	c.mu.Lock()
	ch, ok := c.oks[id]
	c.mu.Unlock()
	if ok {
		select {
		case ch <- r:
		default:
		}
	}
}

func (c *relayConn) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dead {
		c.dead = true
		close(c.done)
	}
	_ = c.ws.Close()
}

type poolSub struct {
	pool    *Pool
	id      string
	urls    []string
	filter  domain.Filter
	handler func(domain.Event)
	once    sync.Once
}

// Close ends the subscription on every relay.
func (s *poolSub) Close() error {
	var err error
	s.once.Do(func() {
		p := s.pool
		p.mu.Lock()
		delete(p.subs, s.id)
		var conns []*relayConn
		for _, url := range s.urls {
			if c, ok := p.conns[url]; ok {
				conns = append(conns, c)
			}
		}
		p.mu.Unlock()
		for _, c := range conns {
			if e := c.send(labelClose, s.id); e != nil {
				err = multierr.Append(err, fmt.Errorf("%s: %w", c.url, e))
			}
		}
	})
	return err
}

var (
	_ domain.Bus          = (*Pool)(nil)
	_ domain.Subscription = (*poolSub)(nil)
)
