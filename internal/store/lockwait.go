package store

import (
	"context"
	"time"

	"github.com/sjdv1982/hashserver/internal/lock"
)

// waitAbsentBestEffort waits out a lockfile on the read side, where a
// context cancellation (client gone) simply ends the wait early rather
// than propagating as a hard error — the caller fails the re-resolve on
// its own terms regardless.
func waitAbsentBestEffort(ctx context.Context, path string, timeout time.Duration) {
	_ = lock.WaitAbsent(ctx, path, timeout)
}
