package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/sjdv1982/hashserver/internal/digest"
	"github.com/sjdv1982/hashserver/internal/herr"
)

// has implements GET&POST /has (exposed under both verbs since some
// clients strip bodies from GET).
func (h *handler) has(w http.ResponseWriter, req *http.Request) {
	body, readErr := io.ReadAll(req.Body)
	if readErr != nil {
		herr.Serve(w, herr.Validation(herr.KindInvalidBody, "value_error", []any{"body"}, "Value error, unable to read body", nil))
		return
	}

	var raw []string
	if err := json.Unmarshal(body, &raw); err != nil {
		herr.Serve(w, herr.Validation(herr.KindInvalidBody, "value_error", []any{"body"}, "Value error, expected a JSON array of digests", string(body)))
		return
	}

	digests := make([]digest.Digest, len(raw))
	for i, s := range raw {
		d, verr := parseDigest(s, []any{"body", i})
		if verr != nil {
			herr.Serve(w, verr)
			return
		}
		digests[i] = d
	}

	sizes, err := h.engine.Has(req.Context(), digests)
	if err != nil {
		herr.Serve(w, herr.New(herr.KindNotAFile, err.Error(), err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(sizes)
}
