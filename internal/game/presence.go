package game

import (
	"sync"
	"time"
)

// Presence tracks the ordered participant list of one room. A
// participant is in exactly one of three states: online, offline with a
// pending removal timer, or absent. Each room owns its own Presence, so
// unrelated rooms never contend on a shared lock.
type Presence struct {
	mu      sync.Mutex
	entries []*participant
}

type participant struct {
	name         string
	online       bool
	offlineSince time.Time
	removal      *time.Timer
}

func NewPresence() *Presence { return &Presence{} }

// Add appends the participant if absent, preserving join order. Join
// order decides the player 1 / player 2 assignment. Idempotent; reports
// whether the entry was created.
func (p *Presence) Add(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.find(name) != nil {
		return false
	}
	p.entries = append(p.entries, &participant{name: name, online: true})
	return true
}

func (p *Presence) Contains(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.find(name) != nil
}

// Online reports whether the participant exists and is currently online.
func (p *Presence) Online(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.find(name)
	return e != nil && e.online
}

// IsReconnectAttempt reports whether a fresh connection for this name
// should be treated as a reconnect: the participant exists and is
// currently offline.
func (p *Presence) IsReconnectAttempt(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.find(name)
	return e != nil && !e.online
}

// Order returns the participant names in join order.
func (p *Presence) Order() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.name
	}
	return out
}

func (p *Presence) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries) == 0
}

// MarkOnline flips the participant online and cancels any pending
// removal timer. A timer that already started firing is allowed to run;
// its own offline recheck is the authoritative guard.
func (p *Presence) MarkOnline(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.find(name)
	if e == nil {
		return
	}
	e.online = true
	e.offlineSince = time.Time{}
	if e.removal != nil {
		e.removal.Stop()
		e.removal = nil
	}
}

// MarkOffline flips the participant offline and arms the delayed-removal
// timer. If the grace window elapses with the participant still offline,
// the entry is removed permanently and expired is invoked with the name
// and whether the room's order is now empty. Re-arming replaces any
// previous timer.
func (p *Presence) MarkOffline(name string, grace time.Duration, expired func(name string, empty bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.find(name)
	if e == nil {
		return
	}
	e.online = false
	e.offlineSince = time.Now()
	if e.removal != nil {
		e.removal.Stop()
	}
	e.removal = time.AfterFunc(grace, func() {
		p.expire(name, expired)
	})
}

// Remove drops the participant outright, cancelling its timer.
func (p *Presence) Remove(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remove(name)
}

func (p *Presence) expire(name string, expired func(string, bool)) {
	p.mu.Lock()
	e := p.find(name)
	if e == nil || e.online {
		// Reconnected (or already gone) before the timer won the race.
		p.mu.Unlock()
		return
	}
	p.remove(name)
	empty := len(p.entries) == 0
	p.mu.Unlock()

	if expired != nil {
		expired(name, empty)
	}
}

// find and remove require p.mu held.

func (p *Presence) find(name string) *participant {
	for _, e := range p.entries {
		if e.name == name {
			return e
		}
	}
	return nil
}

func (p *Presence) remove(name string) bool {
	for i, e := range p.entries {
		if e.name == name {
			if e.removal != nil {
				e.removal.Stop()
			}
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return true
		}
	}
	return false
}
