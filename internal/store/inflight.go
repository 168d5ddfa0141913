// Package store implements the content-addressed storage engine: the
// ingest and retrieval pipelines, the in-flight registry, and the
// promise registry. It is the core the rest of the module exists to
// serve.
package store

import "sync"

// InFlight is a process-local mutex+condvar-guarded set of digests
// currently being ingested by this server. It is the single-writer gate
// for uploads and the rendezvous point GET and /has use to wait out a
// concurrent publisher.
type InFlight struct {
	mu   sync.Mutex
	cond *sync.Cond
	set  map[string]struct{}
}

// NewInFlight constructs an empty registry.
func NewInFlight() *InFlight {
	f := &InFlight{set: make(map[string]struct{})}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// TryInsert adds digest to the in-flight set if absent, reporting whether
// the insertion happened (false means some other writer already holds
// it).
func (f *InFlight) TryInsert(digest string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.set[digest]; ok {
		return false
	}
	f.set[digest] = struct{}{}
	return true
}

// RemoveAndNotify removes digest from the in-flight set (no-op if
// absent) and wakes every goroutine blocked in Wait/WaitAll.
func (f *InFlight) RemoveAndNotify(digest string) {
	f.mu.Lock()
	delete(f.set, digest)
	f.mu.Unlock()
	f.cond.Broadcast()
}

// Wait blocks until digest is no longer in the in-flight set.
func (f *InFlight) Wait(digest string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if _, ok := f.set[digest]; !ok {
			return
		}
		f.cond.Wait()
	}
}

// WaitAll blocks until none of digests are in the in-flight set.
func (f *InFlight) WaitAll(digests []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		busy := false
		for _, d := range digests {
			if _, ok := f.set[d]; ok {
				busy = true
				break
			}
		}
		if !busy {
			return
		}
		f.cond.Wait()
	}
}
