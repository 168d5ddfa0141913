package store

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sjdv1982/hashserver/internal/digest"
	"github.com/sjdv1982/hashserver/internal/herr"
	"github.com/sjdv1982/hashserver/internal/layout"
)

// Resolved carries everything the HTTP layer needs to stream a verified
// buffer back to a client: an open file positioned at offset 0, and the
// stat info its headers (Content-Length, Last-Modified, ETag) derive
// from.
type Resolved struct {
	File *os.File
	Info os.FileInfo
	Path string
}

// Get implements the retrieval pipeline: resolve the digest to a path,
// stream-hash the file to verify it, and retry once across a re-resolve
// before declaring corruption. The caller must Close the returned
// Resolved.File.
func (e *Engine) Get(ctx context.Context, d digest.Digest) (*Resolved, error) {
	key := string(d)

	// Don't race a concurrent publisher of this exact digest.
	e.inflight.Wait(key)

	path, fi, err := e.resolveWithRetry(ctx, d)
	if err != nil {
		return nil, err
	}

	f, openErr := os.Open(path)
	if openErr != nil {
		if os.IsNotExist(openErr) {
			return nil, herr.New(herr.KindNotFound, "", nil)
		}
		return nil, herr.New(herr.KindNotAFile, "unable to open "+path, openErr)
	}

	// Stream-hash, retrying once across a re-resolve on mismatch (a
	// writer may have been mid-publish under our feet).
	match, hashErr := e.verify(f, d)
	if hashErr != nil {
		f.Close()
		return nil, herr.New(herr.KindNotAFile, "unable to read "+path, hashErr)
	}
	if !match {
		f.Close()

		e.waitLocks(ctx, d)
		path2, fi2, resolveErr := e.resolveOnce(d)
		if resolveErr != nil {
			return nil, herr.New(herr.KindFileCorruption,
				fmt.Sprintf("File corruption: file at path %s does not have the correct %s checksum.", path, algorithmLabel(e.cfg.Algorithm)), nil)
		}

		f2, openErr2 := os.Open(path2)
		if openErr2 != nil {
			return nil, herr.New(herr.KindFileCorruption,
				fmt.Sprintf("File corruption: file at path %s does not have the correct %s checksum.", path, algorithmLabel(e.cfg.Algorithm)), nil)
		}

		match2, hashErr2 := e.verify(f2, d)
		if hashErr2 != nil || !match2 {
			f2.Close()
			return nil, herr.New(herr.KindFileCorruption,
				fmt.Sprintf("File corruption: file at path %s does not have the correct %s checksum.", path2, algorithmLabel(e.cfg.Algorithm)), nil)
		}

		if _, seekErr := f2.Seek(0, io.SeekStart); seekErr != nil {
			f2.Close()
			return nil, herr.New(herr.KindNotAFile, "unable to seek "+path2, seekErr)
		}
		return &Resolved{File: f2, Info: fi2, Path: path2}, nil
	}

	if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil {
		f.Close()
		return nil, herr.New(herr.KindNotAFile, "unable to seek "+path, seekErr)
	}
	return &Resolved{File: f, Info: fi, Path: path}, nil
}

// resolveWithRetry resolves d, and on a miss waits out the global and
// file-specific locks and re-resolves before finally consulting the
// promise registry.
func (e *Engine) resolveWithRetry(ctx context.Context, d digest.Digest) (string, os.FileInfo, error) {
	path, fi, err := e.resolveOnce(d)
	if err == nil {
		return path, fi, nil
	}

	he, ok := err.(*herr.Error)
	if !ok || he.Kind != herr.KindNotFound {
		return "", nil, err
	}

	e.waitLocks(ctx, d)

	path, fi, err = e.resolveOnce(d)
	if err == nil {
		return path, fi, nil
	}

	he, ok = err.(*herr.Error)
	if !ok || he.Kind != herr.KindNotFound {
		return "", nil, err
	}

	if e.promises.WaitFor(string(d)) {
		path, fi, retryErr := e.resolveOnce(d)
		if retryErr == nil {
			return path, fi, nil
		}
	}

	return "", nil, herr.New(herr.KindNotFound, "", nil)
}

func (e *Engine) resolveOnce(d digest.Digest) (string, os.FileInfo, error) {
	return layout.Resolve(e.cfg.Layout, e.cfg.PrimaryDir, e.cfg.Extras, d)
}

// waitLocks waits out every lock an external writer of d would hold:
// the global lockfiles and the file-specific lock adjacent to the
// primary path. A fresh file lock on a miss delays the 404 until the
// writer finishes or the lock goes stale; on a hash mismatch it gives a
// mid-write file time to land before corruption is declared.
func (e *Engine) waitLocks(ctx context.Context, d digest.Digest) {
	for _, p := range layout.LegacyGlobalLockPaths(e.cfg.Layout, e.cfg.PrimaryDir, d) {
		waitAbsentBestEffort(ctx, p, e.cfg.LockTimeout)
	}
	primary := layout.PrimaryPath(e.cfg.Layout, e.cfg.PrimaryDir, d)
	waitAbsentBestEffort(ctx, layout.FileLockPath(primary), e.cfg.LockTimeout)
}

// verify streams f and reports whether its hash matches d. f's contents
// are fully consumed; callers Seek back to 0 afterward if they intend to
// stream the body to a client.
func (e *Engine) verify(f *os.File, d digest.Digest) (bool, error) {
	h := digest.New(e.cfg.Algorithm)
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	got, err := digest.Parse(h.Sum(nil))
	if err != nil {
		return false, err
	}
	return got == d, nil
}

func algorithmLabel(alg digest.Algorithm) string {
	switch alg {
	case digest.SHA3256:
		return "SHA3-256"
	case digest.SHA256:
		return "SHA256"
	case digest.SHA512:
		return "SHA512-256"
	default:
		return string(alg)
	}
}
