package store

import (
	"context"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/sjdv1982/hashserver/internal/digest"
	"github.com/sjdv1982/hashserver/internal/layout"
)

// Has implements the batched existence query. The returned slice has
// the same length as digests; each entry is 0 (absent), a positive file
// size, or 1 for a promised-but-not-yet-present digest.
func (e *Engine) Has(ctx context.Context, digests []digest.Digest) ([]int64, error) {
	keys := make([]string, len(digests))
	for i, d := range digests {
		keys[i] = string(d)
	}
	e.inflight.WaitAll(keys)

	sizes := make([]int64, len(digests))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range digests {
		i, d := i, d
		g.Go(func() error {
			sizes[i] = e.statOne(gctx, d)
			return nil
		})
	}
	// statOne never fails and every goroutine returns nil, so Wait always
	// returns nil. Per-stat errors are misses.
	_ = g.Wait()

	promised := e.promises.PromisedIndices(keys)
	for i := range digests {
		if sizes[i] == 0 && promised[i] {
			sizes[i] = 1
		}
	}

	return sizes, nil
}

// statOne resolves a single digest across the primary and extra
// directories, returning its size in bytes or 0 on any miss/error.
func (e *Engine) statOne(_ context.Context, d digest.Digest) int64 {
	for _, candidate := range layout.Candidates(e.cfg.Layout, e.cfg.PrimaryDir, e.cfg.Extras, d) {
		fi, err := os.Stat(candidate)
		if err != nil {
			continue
		}
		if !fi.Mode().IsRegular() {
			continue
		}
		return fi.Size()
	}
	return 0
}
