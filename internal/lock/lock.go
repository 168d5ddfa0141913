// Package lock implements the cross-process advisory lock protocol:
// empty marker files whose mtime freshness signals "writer active",
// polled rather than held via OS file locks.
//
// The wait loop blocks on a select between an fsnotify event channel and
// a timer: a filesystem event wakes the poll early, but the timer
// guarantees the loop still reevaluates mtime freshness even if fsnotify
// misses the event (removes on some filesystems/platforms don't reliably
// fire, and a lock can also simply go stale without ever being removed).
package lock

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval bounds how long WaitAbsent sleeps between restat attempts
// when it has no filesystem event to wake it.
const pollInterval = time.Second

// WaitAbsent polls path until it no longer exists, or its mtime is older
// than timeout (treated as stale), or ctx is canceled. It never mutates
// the filesystem. The wait is bounded by roughly timeout when the
// lockfile is fresh, and by roughly one poll interval when it is already
// stale.
func WaitAbsent(ctx context.Context, path string, timeout time.Duration) error {
	watcher, events := newWatcher(path)
	if watcher != nil {
		defer watcher.Close()
	}

	for {
		fi, err := os.Stat(path)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			// Any other stat error (permission, etc.) is treated as
			// "can't confirm a lock is held" — proceed as if absent
			// rather than wedge forever on a filesystem error.
			return nil
		}

		if time.Since(fi.ModTime()) > timeout {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-events:
			// Woken early by a filesystem event; loop immediately to
			// restat.
		case <-time.After(pollInterval):
		}
	}
}

// newWatcher best-effort watches path's parent directory and forwards
// every event (of any kind) that names path. A nil return (watcher unavailable, e.g. resource limits) is not
// fatal: WaitAbsent degrades to plain polling.
func newWatcher(path string) (*fsnotify.Watcher, chan fsnotify.Event) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, make(chan fsnotify.Event)
	}

	dir := parentDir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, make(chan fsnotify.Event)
	}

	out := make(chan fsnotify.Event, 1)
	go func() {
		for ev := range w.Events {
			if ev.Name == path {
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()

	return w, out
}

func parentDir(path string) string {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	if i <= 0 {
		return "."
	}
	return path[:i]
}

// Break best-effort unlinks path. Absence is success.
func Break(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Acquire creates the file-specific lockfile at filePath, waiting out
// any existing global and file-specific locks first and unlinking both
// before taking the lock. It returns a Handle that must be released with
// Handle.Release, and that Touches the lockfile's mtime periodically
// while held via Handle.Heartbeat.
func Acquire(ctx context.Context, globalPaths []string, filePath string, timeout time.Duration) (*Handle, error) {
	for _, g := range globalPaths {
		if err := WaitAbsent(ctx, g, timeout); err != nil {
			return nil, err
		}
		if err := Break(g); err != nil {
			return nil, err
		}
	}

	if err := WaitAbsent(ctx, filePath, timeout); err != nil {
		return nil, err
	}
	if err := Break(filePath); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	f.Close()

	return &Handle{path: filePath, lastTouch: time.Now()}, nil
}

// Handle represents a held file-specific lockfile.
type Handle struct {
	path      string
	lastTouch time.Time
}

// heartbeatInterval is how often a long-running write refreshes the
// lockfile's mtime so other processes keep treating it as fresh.
const heartbeatInterval = 10 * time.Second

// Heartbeat touches the lockfile's mtime if more than heartbeatInterval
// has elapsed since the last touch (or the handle's creation). Cheap to
// call on every chunk of a streaming write.
func (h *Handle) Heartbeat() error {
	if time.Since(h.lastTouch) < heartbeatInterval {
		return nil
	}
	now := time.Now()
	if err := os.Chtimes(h.path, now, now); err != nil {
		return err
	}
	h.lastTouch = now
	return nil
}

// Release unlinks the lockfile. Best-effort: an already-absent lockfile
// is not an error.
func (h *Handle) Release() error {
	return Break(h.path)
}
