package store

import (
	"sync"
	"time"
)

// PromiseTTL is the fixed lifetime of a promise.
const PromiseTTL = 600 * time.Second

type promiseEntry struct {
	event     chan struct{}
	expiresAt time.Time
}

// Promises is a TTL-bounded table of announced-but-not-yet-uploaded
// digests. Unlike InFlight it uses one-shot close-channel events per
// entry instead of a shared condvar, since resolution must wake exactly
// the waiters for one digest without a broadcast waking unrelated
// callers.
type Promises struct {
	mu      sync.Mutex
	entries map[string]*promiseEntry
}

// NewPromises constructs an empty registry.
func NewPromises() *Promises {
	return &Promises{entries: make(map[string]*promiseEntry)}
}

// sweepLocked drops expired entries. Called opportunistically from every
// other operation, never on its own timer.
func (p *Promises) sweepLocked(now time.Time) {
	for d, e := range p.entries {
		if now.After(e.expiresAt) {
			delete(p.entries, d)
		}
	}
}

// Add creates or refreshes a promise for digest. Refreshing preserves the
// existing waiters' event object, so in-flight Wait calls still observe
// the eventual resolution.
func (p *Promises) Add(digest string) {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked(now)

	if e, ok := p.entries[digest]; ok {
		e.expiresAt = now.Add(PromiseTTL)
		return
	}
	p.entries[digest] = &promiseEntry{
		event:     make(chan struct{}),
		expiresAt: now.Add(PromiseTTL),
	}
}

// Resolve removes the promise for digest and wakes every waiter.
// Idempotent: resolving an absent or already-resolved promise is a no-op.
func (p *Promises) Resolve(digest string) {
	p.mu.Lock()
	e, ok := p.entries[digest]
	if ok {
		delete(p.entries, digest)
	}
	p.sweepLocked(time.Now())
	p.mu.Unlock()

	if ok {
		close(e.event)
	}
}

// ExpiresIn reports the remaining TTL for digest, and whether a promise
// exists at all.
func (p *Promises) ExpiresIn(digest string) (time.Duration, bool) {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked(now)

	e, ok := p.entries[digest]
	if !ok {
		return 0, false
	}
	return e.expiresAt.Sub(now), true
}

// WaitFor blocks until digest's promise resolves or expires, returning
// true if the caller should retry the file lookup (the promise was
// resolved before its TTL ran out) and false otherwise (there was no
// live promise, or the TTL elapsed first). This is a single retry hint,
// not a loop: callers act on the boolean once.
func (p *Promises) WaitFor(digest string) bool {
	now := time.Now()
	p.mu.Lock()
	p.sweepLocked(now)
	e, ok := p.entries[digest]
	p.mu.Unlock()

	if !ok {
		return false
	}

	remaining := time.Until(e.expiresAt)
	if remaining <= 0 {
		return false
	}

	select {
	case <-e.event:
		return true
	case <-time.After(remaining):
		// TTL elapsed without resolution: don't retry.
		return false
	}
}

// PromisedIndices returns the positions within digests that currently
// have a live promise.
func (p *Promises) PromisedIndices(digests []string) map[int]bool {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked(now)

	out := make(map[int]bool)
	for i, d := range digests {
		if _, ok := p.entries[d]; ok {
			out[i] = true
		}
	}
	return out
}
