package layout

import (
	"os"

	"github.com/sjdv1982/hashserver/internal/digest"
	"github.com/sjdv1982/hashserver/internal/herr"
)

// Resolve walks Candidates(kind, primaryDir, extras, d) in order and
// returns the first path backed by an existing regular file. A
// non-regular candidate (directory, device, etc.) is a fatal NotAFile —
// it does not fall through to the next candidate, since its presence
// indicates a misconfigured or corrupted store rather than a simple
// miss.
func Resolve(kind Kind, primaryDir string, extras []Extra, d digest.Digest) (string, os.FileInfo, error) {
	for _, candidate := range Candidates(kind, primaryDir, extras, d) {
		fi, err := os.Stat(candidate)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", nil, herr.New(herr.KindNotAFile, "unable to stat "+candidate, err)
		}

		if !fi.Mode().IsRegular() {
			return "", nil, herr.New(herr.KindNotAFile, "not a regular file: "+candidate, nil)
		}

		return candidate, fi, nil
	}

	return "", nil, herr.New(herr.KindNotFound, "not found", nil)
}
