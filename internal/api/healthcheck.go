package api

import "net/http"

// healthcheck implements GET /healthcheck. No side effects.
func (h *handler) healthcheck(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
