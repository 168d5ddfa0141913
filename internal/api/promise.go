package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sjdv1982/hashserver/internal/herr"
)

// promise implements PUT /promise/{digest}: announce an upcoming upload
// so concurrent GETs wait instead of returning 404.
func (h *handler) promise(w http.ResponseWriter, req *http.Request) {
	raw := mux.Vars(req)["digest"]
	d, verr := parseDigest(raw, []any{"path", "checksum"})
	if verr != nil {
		herr.Serve(w, verr)
		return
	}

	ttl := h.engine.Promise(string(d))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"checksum":   string(d),
		"expires_in": ttl.Seconds(),
	})
}
