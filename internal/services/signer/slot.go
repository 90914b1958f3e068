package signer

import (
	"sync"

	"bunkerlink/internal/domain"
)

// Slot holds the signer the host dispatches to.
type Slot struct {
	mu        sync.Mutex
	current   domain.RemoteSigner
	previous  domain.RemoteSigner
	installed bool
}

// NewSlot returns a slot holding fallback, which may be nil.
func NewSlot(fallback domain.RemoteSigner) *Slot {
	return &Slot{current: fallback}
}

// Install makes s current. The signer it replaces is kept for Restore; a
// second Install keeps the original fallback.
func (sl *Slot) Install(s domain.RemoteSigner) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if !sl.installed {
		sl.previous = sl.current
		sl.installed = true
	}
	sl.current = s
}

// Restore reinstates the signer that was current before Install.
func (sl *Slot) Restore() {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if !sl.installed {
		return
	}
	sl.current = sl.previous
	sl.previous = nil
	sl.installed = false
}

// Current returns the active signer, nil when none.
func (sl *Slot) Current() domain.RemoteSigner {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.current
}

// Installed reports whether Current is an installed signer rather than the
// fallback.
func (sl *Slot) Installed() bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.installed
}
