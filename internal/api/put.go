package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sjdv1982/hashserver/internal/dcontext"
	"github.com/sjdv1982/hashserver/internal/herr"
	"github.com/sjdv1982/hashserver/internal/store"
)

// put implements PUT /{digest}: a streaming, verified upload.
func (h *handler) put(w http.ResponseWriter, req *http.Request) {
	raw := mux.Vars(req)["digest"]
	d, verr := parseDigest(raw, []any{"path", "checksum"})
	if verr != nil {
		herr.Serve(w, verr)
		return
	}

	status, err := h.engine.Put(req.Context(), d, req.Body)
	if err != nil {
		if he, ok := err.(*herr.Error); ok {
			if he.Kind != herr.KindClientDisconnect && he.Kind != herr.KindChecksumMismatch {
				dcontext.GetLogger(req.Context()).WithError(he).Warnf("put %s failed", d)
			}
			herr.Serve(w, he)
			return
		}
		dcontext.GetLogger(req.Context()).WithError(err).Error("put failed unexpectedly")
		herr.Serve(w, herr.New(herr.KindNotAFile, err.Error(), err))
		return
	}

	switch status {
	case store.PutOK:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	case store.PutCreated:
		w.WriteHeader(http.StatusCreated)
	case store.PutAccepted:
		w.WriteHeader(http.StatusAccepted)
	}
}
