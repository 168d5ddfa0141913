// Package layout implements the path resolver: a pure function mapping
// (digest, layout, primary directory, extra directories) to an ordered
// list of candidate on-disk paths.
package layout

import (
	"os"
	"path/filepath"

	"github.com/sjdv1982/hashserver/internal/digest"
)

// Kind identifies a directory-to-path mapping rule.
type Kind int

const (
	// Flat stores the buffer directly at $DIR/$DIGEST.
	Flat Kind = iota
	// Prefix stores the buffer at $DIR/$P2/$DIGEST, $P2 being the first
	// two hex characters of the digest.
	Prefix
	// Vault is the read-only externally managed archive layout.
	Vault
)

func (k Kind) String() string {
	switch k {
	case Flat:
		return "flat"
	case Prefix:
		return "prefix"
	case Vault:
		return "vault"
	default:
		return "unknown"
	}
}

// ParseKind validates a user-supplied layout name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "flat":
		return Flat, nil
	case "prefix":
		return Prefix, nil
	case "vault":
		return Vault, nil
	default:
		return 0, &InvalidLayoutError{Value: s}
	}
}

// InvalidLayoutError reports an unrecognized --layout value.
type InvalidLayoutError struct{ Value string }

func (e *InvalidLayoutError) Error() string { return "invalid layout: " + e.Value }

// PrefixMarker is the sentinel, zero-byte file whose presence at the root
// of an extra directory signals that the extra uses prefix layout rather
// than flat.
const PrefixMarker = ".HASHSERVER_PREFIX"

// vaultSubpaths are the four vault search locations, in fixed search
// order.
var vaultSubpaths = []string{
	filepath.Join("independent", "small"),
	filepath.Join("independent", "big"),
	filepath.Join("dependent", "small"),
	filepath.Join("dependent", "big"),
}

// Extra is one read-only fallback root consulted after the primary
// directory. Its own layout (flat or prefix) is independent of the
// primary's, signaled by PrefixMarker at its root. Vault is never valid
// as an extra.
type Extra struct {
	Dir    string
	Prefix bool
}

// DetectExtra builds an Extra by checking for PrefixMarker under dir.
func DetectExtra(dir string) Extra {
	_, err := os.Stat(filepath.Join(dir, PrefixMarker))
	return Extra{Dir: dir, Prefix: err == nil}
}

func twoChar(d digest.Digest) string {
	s := string(d)
	if len(s) < 2 {
		return s
	}
	return s[:2]
}

// PrimaryPath returns the single candidate path for the primary directory
// under a non-vault layout. It is not meaningful for Vault (use
// Candidates instead, which enumerates all vault subpaths).
func PrimaryPath(kind Kind, dir string, d digest.Digest) string {
	switch kind {
	case Prefix:
		return filepath.Join(dir, twoChar(d), string(d))
	default: // Flat and any other non-vault kind
		return filepath.Join(dir, string(d))
	}
}

// GlobalLockPath returns the path of the directory-wide lockfile for the
// primary directory under the given layout. For Prefix layout this is
// the two-char subdirectory's .LOCK, the location writers use; readers
// additionally consult LegacyGlobalLockPaths.
func GlobalLockPath(kind Kind, dir string, d digest.Digest) string {
	switch kind {
	case Prefix:
		return filepath.Join(dir, twoChar(d), ".LOCK")
	default:
		return filepath.Join(dir, ".LOCK")
	}
}

// LegacyGlobalLockPaths returns every global lockfile location a reader
// must honor. External writers have historically placed the lock at
// either $DIR/$P2/.LOCK or $DIR/.LOCK under prefix layout, so readers
// honor both.
func LegacyGlobalLockPaths(kind Kind, dir string, d digest.Digest) []string {
	if kind == Prefix {
		return []string{filepath.Join(dir, twoChar(d), ".LOCK"), filepath.Join(dir, ".LOCK")}
	}
	return []string{filepath.Join(dir, ".LOCK")}
}

// FileLockPath returns the file-specific lockfile path adjacent to path.
func FileLockPath(path string) string {
	return path + ".LOCK"
}

// Candidates returns the ordered list of on-disk paths to probe for d:
// the primary path (or, for vault, its four subpaths in fixed order),
// followed by each extra directory's layout-appropriate path.
func Candidates(kind Kind, primaryDir string, extras []Extra, d digest.Digest) []string {
	var out []string

	switch kind {
	case Vault:
		for _, sub := range vaultSubpaths {
			out = append(out, filepath.Join(primaryDir, sub, string(d)))
		}
	default:
		out = append(out, PrimaryPath(kind, primaryDir, d))
	}

	for _, e := range extras {
		if e.Prefix {
			out = append(out, filepath.Join(e.Dir, twoChar(d), string(d)))
		} else {
			out = append(out, filepath.Join(e.Dir, string(d)))
		}
	}

	return out
}
