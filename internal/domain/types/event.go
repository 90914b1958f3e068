package types

import "slices"

// Tag is a single event tag, e.g. ["p", "<hex key>"].
type Tag []string

// Event is a signed bus envelope as relays carry it.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// TagValues returns the first value of every tag named name.
func (e Event) TagValues(name string) []string {
	var out []string
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			out = append(out, t[1])
		}
	}
	return out
}

// TaggedTo reports whether the event carries a "p" tag for key.
func (e Event) TaggedTo(key PublicKey) bool {
	return slices.Contains(e.TagValues("p"), key.String())
}

// UnsignedEvent is the payload a remote signer is asked to sign.
type UnsignedEvent struct {
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
}

// Filter selects events on the bus. Field names follow the relay wire format.
type Filter struct {
	Kinds []int    `json:"kinds,omitempty"`
	PTags []string `json:"#p,omitempty"`
	Since int64    `json:"since,omitempty"`
}

// Matches reports whether ev passes every populated field of f.
func (f Filter) Matches(ev Event) bool {
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, ev.Kind) {
		return false
	}
	if f.Since > 0 && ev.CreatedAt < f.Since {
		return false
	}
	if len(f.PTags) > 0 {
		found := false
		for _, p := range ev.TagValues("p") {
			if slices.Contains(f.PTags, p) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
