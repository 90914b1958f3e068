package correlator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bunkerlink/internal/domain"
)

type outcome struct {
	result string
	err    error
}

type entry struct {
	method  string
	done    chan outcome
	timer   *clock.Timer
	settled bool
}

// Correlator tracks in-flight requests of one session. It is safe for
// concurrent use.
type Correlator struct {
	mu      sync.Mutex
	clock   clock.Clock
	log     zerolog.Logger
	entries map[string]*entry
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option { return func(k *Correlator) { k.clock = c } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(k *Correlator) { k.log = l } }

// New returns an empty correlator.
func New(opts ...Option) *Correlator {
	c := &Correlator{
		clock:   clock.New(),
		log:     zerolog.Nop(),
		entries: make(map[string]*entry),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With().Str("component", "correlator").Logger()
	return c
}

// Issue builds a request with a fresh id and registers it as pending. The
// request times out after timeout, or domain.RequestTimeout when timeout is
// not positive.
func (c *Correlator) Issue(method string, params []string, timeout time.Duration) (domain.Request, error) {
	if timeout <= 0 {
		timeout = domain.RequestTimeout
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return domain.Request{}, fmt.Errorf("request id: %w", err)
	}
	if params == nil {
		params = []string{}
	}
	req := domain.Request{ID: id.String(), Method: method, Params: params}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.entries[req.ID]; dup {
		return domain.Request{}, fmt.Errorf("request id %s already pending", req.ID)
	}
	e := &entry{method: method, done: make(chan outcome, 1)}
	e.timer = c.clock.AfterFunc(timeout, func() {
		if c.settle(req.ID, outcome{err: fmt.Errorf("%w: %s after %s", domain.ErrTimeout, method, timeout)}) {
			c.log.Debug().Str("id", req.ID).Str("method", method).Msg("request timed out")
		}
	})
	c.entries[req.ID] = e
	return req, nil
}

// Await blocks until id is settled or ctx is done, then forgets id. A done
// context settles the request with the context's error.
func (c *Correlator) Await(ctx context.Context, id string) (string, error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownRequest, id)
	}

	var o outcome
	select {
	case o = <-e.done:
	case <-ctx.Done():
		c.settle(id, outcome{err: ctx.Err()})
		o = <-e.done
	}

	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
	return o.result, o.err
}

// Resolve settles id with result. It reports false for unknown or already
// settled ids.
func (c *Correlator) Resolve(id, result string) bool {
	ok := c.settle(id, outcome{result: result})
	if !ok {
		c.log.Debug().Str("id", id).Msg("late or unknown response ignored")
	}
	return ok
}

// Reject settles id with err. It reports false for unknown or already
// settled ids.
func (c *Correlator) Reject(id string, err error) bool {
	ok := c.settle(id, outcome{err: err})
	if !ok {
		c.log.Debug().Str("id", id).Err(err).Msg("late or unknown rejection ignored")
	}
	return ok
}

// CancelAll rejects every unsettled request with reason.
func (c *Correlator) CancelAll(reason error) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if c.settleLocked(e, outcome{err: reason}) {
			n++
		}
	}
	if n > 0 {
		c.log.Debug().Int("count", n).Err(reason).Msg("cancelled pending requests")
	}
	return n
}

// Pending returns the number of unsettled requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if !e.settled {
			n++
		}
	}
	return n
}

func (c *Correlator) settle(id string, o outcome) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return false
	}
	return c.settleLocked(e, o)
}

func (c *Correlator) settleLocked(e *entry, o outcome) bool {
	if e.settled {
		return false
	}
	e.settled = true
	e.timer.Stop()
	e.done <- o
	return true
}
