package store

import (
	"testing"
	"time"
)

func TestAddThenResolveWakesWaiter(t *testing.T) {
	p := NewPromises()
	p.Add("d1")

	done := make(chan bool)
	go func() {
		done <- p.WaitFor("d1")
	}()

	select {
	case <-done:
		t.Fatal("WaitFor returned before Resolve")
	case <-time.After(50 * time.Millisecond):
	}

	p.Resolve("d1")

	select {
	case retry := <-done:
		if !retry {
			t.Error("WaitFor should report true after a successful Resolve")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not return after Resolve")
	}
}

func TestWaitForNoPromiseReturnsFalse(t *testing.T) {
	p := NewPromises()
	if p.WaitFor("never-promised") {
		t.Error("WaitFor on a digest with no promise should return false")
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	p := NewPromises()
	p.Resolve("never-added") // should not panic
	p.Add("d1")
	p.Resolve("d1")
	p.Resolve("d1") // second resolve is a no-op
}

func TestAddRefreshesExpiryPreservingWaiters(t *testing.T) {
	p := NewPromises()
	p.Add("d1")
	ttl1, ok := p.ExpiresIn("d1")
	if !ok {
		t.Fatal("expected a live promise")
	}

	time.Sleep(10 * time.Millisecond)
	p.Add("d1") // refresh
	ttl2, ok := p.ExpiresIn("d1")
	if !ok {
		t.Fatal("expected a live promise after refresh")
	}
	if ttl2 <= ttl1-5*time.Millisecond {
		t.Errorf("refreshed ttl (%v) should be >= original ttl (%v)", ttl2, ttl1)
	}

	done := make(chan struct{})
	go func() {
		p.WaitFor("d1")
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	p.Resolve("d1")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter registered before a refresh should still wake on Resolve")
	}
}

func TestPromisedIndices(t *testing.T) {
	p := NewPromises()
	p.Add("b")

	idx := p.PromisedIndices([]string{"a", "b", "c"})
	if len(idx) != 1 || !idx[1] {
		t.Errorf("PromisedIndices = %v, want only index 1 set", idx)
	}
}

func TestExpiresInSweepsExpiredEntries(t *testing.T) {
	p := NewPromises()
	p.mu.Lock()
	p.entries["d1"] = &promiseEntry{event: make(chan struct{}), expiresAt: time.Now().Add(-time.Second)}
	p.mu.Unlock()

	if _, ok := p.ExpiresIn("d1"); ok {
		t.Error("ExpiresIn should sweep and report an expired promise as absent")
	}
}
