// Package digest implements the canonical digest codec: parsing and
// normalizing content digests, and the small registry of supported hash
// algorithms.
//
// A digest is a bare 64-character hex string with no algorithm prefix;
// the algorithm is a server-wide configuration choice, not a per-object
// tag. The default is SHA3-256.
package digest

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Size is the length in bytes of a digest under any registered algorithm
// in this package. All algorithms here produce 32-byte digests.
const Size = 32

// HexSize is the canonical external length: Size bytes, hex-encoded.
const HexSize = Size * 2

// ErrInvalidDigest is returned when a hex string has the wrong length or
// contains non-hex characters.
type ErrInvalidDigest struct {
	Reason string
}

func (e ErrInvalidDigest) Error() string { return "invalid digest: " + e.Reason }

// ErrInvalidDigestType is returned when Parse is given something other
// than a string or a 32-byte slice.
type ErrInvalidDigestType struct {
	Value interface{}
}

func (e ErrInvalidDigestType) Error() string {
	return fmt.Sprintf("invalid digest type: %T", e.Value)
}

// Digest is a canonicalized, lowercase hex-encoded content digest.
type Digest string

// String returns the canonical lowercase hex form.
func (d Digest) String() string { return string(d) }

// Algorithm identifies a hash function registered with this package.
type Algorithm string

// Supported algorithms. SHA3256 is the spec default.
const (
	SHA3256 Algorithm = "sha3-256"
	SHA256  Algorithm = "sha256"
	SHA512  Algorithm = "sha512-256"
)

var algorithms = map[Algorithm]func() hash.Hash{
	SHA3256: sha3.New256,
	SHA256:  sha256.New,
	SHA512:  sha512.New512_256,
}

// Available reports whether alg is a registered algorithm.
func Available(alg Algorithm) bool {
	_, ok := algorithms[alg]
	return ok
}

// New returns a fresh hash.Hash for alg. It panics if alg is not
// registered; callers are expected to validate the algorithm (e.g. at
// startup, via Available) before calling New on a hot path.
func New(alg Algorithm) hash.Hash {
	h, ok := algorithms[alg]
	if !ok {
		panic("digest: unregistered algorithm " + string(alg))
	}
	return h()
}

// ParseAlgorithm validates a user-supplied algorithm name (from argv or
// the environment) against the registry.
func ParseAlgorithm(s string) (Algorithm, error) {
	alg := Algorithm(strings.ToLower(strings.TrimSpace(s)))
	if !Available(alg) {
		return "", fmt.Errorf("unsupported digest algorithm %q", s)
	}
	return alg, nil
}

// Parse validates and canonicalizes x, which may be a hex string (any
// case, 64 characters) or a 32-byte slice. It returns ErrInvalidDigest for
// malformed hex input and ErrInvalidDigestType for any other input type.
//
// Parse is idempotent on already-canonical input: Parse(Parse(x)) == Parse(x).
func Parse(x interface{}) (Digest, error) {
	switch v := x.(type) {
	case Digest:
		return parseString(string(v))
	case string:
		return parseString(v)
	case []byte:
		if len(v) != Size {
			return "", ErrInvalidDigest{Reason: fmt.Sprintf("wrong length: got %d bytes, want %d", len(v), Size)}
		}
		return Digest(hex.EncodeToString(v)), nil
	default:
		return "", ErrInvalidDigestType{Value: x}
	}
}

// Reason strings are surfaced verbatim in validation envelopes, so they
// carry their final casing here: "Wrong length" capitalized,
// "non-hexadecimal" lowercase.
func parseString(s string) (Digest, error) {
	if len(s) != HexSize {
		return "", ErrInvalidDigest{Reason: "Wrong length"}
	}

	lower := strings.ToLower(s)
	for _, r := range lower {
		if !isHex(r) {
			return "", ErrInvalidDigest{Reason: fmt.Sprintf("non-hexadecimal digest: %q", s)}
		}
	}

	return Digest(lower), nil
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
}

// FromBytes computes the digest of b under alg.
func FromBytes(alg Algorithm, b []byte) Digest {
	h := New(alg)
	h.Write(b)
	return Digest(hex.EncodeToString(h.Sum(nil)))
}
