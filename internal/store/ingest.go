package store

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/sjdv1982/hashserver/internal/dcontext"
	"github.com/sjdv1982/hashserver/internal/digest"
	"github.com/sjdv1982/hashserver/internal/herr"
	"github.com/sjdv1982/hashserver/internal/layout"
	"github.com/sjdv1982/hashserver/internal/lock"
)

// Put status codes, the three success outcomes of an upload.
const (
	PutOK       = 200
	PutCreated  = 201 // already present
	PutAccepted = 202 // busy: another writer already has this digest in flight
)

// ErrDisconnect is a sentinel a body reader may return (or wrap) to
// signal a client hangup mid-upload, distinguishing it from a checksum
// mismatch. Put treats it like any other non-EOF read error; the HTTP
// layer passes the request body through unchanged and does not produce
// it.
var ErrDisconnect = errors.New("client disconnected during upload")

// Put implements the ingest pipeline: stream the body into a temp file
// while hashing, verify at EOF, and publish atomically only on a digest
// match. body is read to EOF (or until ctx is canceled / the reader
// surfaces ErrDisconnect). The caller is responsible for returning
// herr.KindChecksumMismatch/ClientDisconnect envelopes for the
// corresponding returned errors; Put itself only performs the I/O and
// bookkeeping.
func (e *Engine) Put(ctx context.Context, d digest.Digest, body io.Reader) (status int, err error) {
	key := string(d)

	// cleanupCtx survives cancellation of ctx: a client disconnect or
	// request timeout cancels ctx immediately, but temp-file/lock
	// teardown below must still run and log to completion.
	cleanupCtx := dcontext.DetachedContext(ctx)

	path := layout.PrimaryPath(e.cfg.Layout, e.cfg.PrimaryDir, d)

	// Dedup against an already-busy writer.
	if !e.inflight.TryInsert(key) {
		return PutAccepted, nil
	}
	inserted := true
	defer func() {
		if inserted {
			e.inflight.RemoveAndNotify(key)
		}
	}()

	// Idempotent no-op if already published. Resolve any outstanding
	// promise so blocked GET waiters wake immediately instead of waiting
	// out the TTL.
	if fi, statErr := os.Stat(path); statErr == nil && fi.Mode().IsRegular() {
		e.promises.Resolve(key)
		return PutCreated, nil
	}

	// Ensure the two-char subdirectory exists under prefix layout.
	if e.cfg.Layout == layout.Prefix {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return 0, herr.New(herr.KindNotAFile, "unable to create prefix directory", mkErr)
		}
	}

	// Wait out and clear both lock scopes before writing.
	filePath := layout.FileLockPath(path)
	globalPaths := []string{layout.GlobalLockPath(e.cfg.Layout, e.cfg.PrimaryDir, d)}

	handle, lockErr := lock.Acquire(ctx, globalPaths, filePath, e.cfg.LockTimeout)
	if lockErr != nil {
		return 0, herr.New(herr.KindNotAFile, "unable to acquire write lock", lockErr)
	}
	defer handle.Release()

	// Unique temp file adjacent to the target, so the final link stays
	// on one filesystem.
	tmp, tmpErr := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"-*")
	if tmpErr != nil {
		return 0, herr.New(herr.KindNotAFile, "unable to create temp file", tmpErr)
	}
	tmpPath := tmp.Name()
	published := false
	defer func() {
		tmp.Close()
		if !published {
			if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
				dcontext.GetLogger(cleanupCtx).WithError(rmErr).Warnf("unable to remove temp file %s", tmpPath)
			}
		}
	}()

	// Stream chunk-by-chunk, hashing and heartbeating the lock.
	h := digest.New(e.cfg.Algorithm)
	buf := make([]byte, 64*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			if _, writeErr := tmp.Write(buf[:n]); writeErr != nil {
				return 0, herr.New(herr.KindNotAFile, "unable to write temp file", writeErr)
			}
			if heartbeatErr := handle.Heartbeat(); heartbeatErr != nil {
				return 0, herr.New(herr.KindNotAFile, "unable to refresh lock", heartbeatErr)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			// Any non-EOF read error (peer reset, context cancellation,
			// ErrDisconnect from a wrapping reader) is treated as a mid-body
			// disconnect. ctx may already be canceled here, so log via
			// cleanupCtx.
			dcontext.GetLogger(cleanupCtx).WithError(readErr).Infof("client disconnected mid-upload for %s", key)
			return 0, herr.New(herr.KindClientDisconnect, "", readErr)
		}
	}

	// Verify, then publish or reject.
	got := digest.Digest(hex.EncodeToString(h.Sum(nil)))
	if got != d {
		return 0, herr.New(herr.KindChecksumMismatch, "", nil)
	}

	if linkErr := os.Link(tmpPath, path); linkErr != nil {
		if !os.IsExist(linkErr) {
			return 0, herr.New(herr.KindNotAFile, "unable to publish", linkErr)
		}
		// EEXIST: a peer published first. Treated as success.
	}
	published = true

	// Resolve any matching promise; in-flight/lock cleanup happen via
	// the deferred Release/RemoveAndNotify above.
	e.promises.Resolve(key)

	return PutOK, nil
}
