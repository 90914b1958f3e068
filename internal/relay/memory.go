package relay

import (
	"context"
	"slices"
	"sync"

	"bunkerlink/internal/domain"
)

// MemoryBus is an in-process domain.Bus. Publish delivers synchronously to
// every matching subscriber before returning.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[uint64]*memorySub
	nextID uint64
	events []domain.Event
}

// NewMemoryBus returns an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[uint64]*memorySub)}
}

type memorySub struct {
	bus       *MemoryBus
	id        uint64
	endpoints []string
	filter    domain.Filter
	handler   func(domain.Event)
}

// Publish records ev and hands it to every subscriber whose filter matches and
// whose endpoints overlap endpoints. An empty endpoint list on either side
// matches everything.
func (b *MemoryBus) Publish(ctx context.Context, endpoints []string, ev domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.events = append(b.events, ev)
	var targets []*memorySub
	for _, s := range b.subs {
		if overlaps(endpoints, s.endpoints) && s.filter.Matches(ev) {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		s.handler(ev)
	}
	return nil
}

// Subscribe registers handler for events matching filter.
func (b *MemoryBus) Subscribe(
	ctx context.Context,
	endpoints []string,
	filter domain.Filter,
	handler func(domain.Event),
) (domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &memorySub{
		bus:       b,
		id:        b.nextID,
		endpoints: slices.Clone(endpoints),
		filter:    filter,
		handler:   handler,
	}
	b.subs[s.id] = s
	return s, nil
}

// Published returns a copy of every event published so far.
func (b *MemoryBus) Published() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.events)
}

// Subscriptions returns the number of open subscriptions.
func (b *MemoryBus) Subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (s *memorySub) Close() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	return nil
}

func overlaps(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}

var _ domain.Bus = (*MemoryBus)(nil)
