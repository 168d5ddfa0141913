package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sjdv1982/hashserver/internal/herr"
)

// get implements GET/HEAD /{digest}: serve the verified buffer with
// stat-derived headers, or the mapped error.
func (h *handler) get(w http.ResponseWriter, req *http.Request) {
	raw := mux.Vars(req)["digest"]
	d, verr := parseDigest(raw, []any{"path", "checksum"})
	if verr != nil {
		herr.Serve(w, verr)
		return
	}

	resolved, err := h.engine.Get(req.Context(), d)
	if err != nil {
		if he, ok := err.(*herr.Error); ok {
			herr.Serve(w, he)
			return
		}
		herr.Serve(w, herr.New(herr.KindNotAFile, err.Error(), err))
		return
	}
	defer resolved.File.Close()

	w.Header().Set("Content-Length", fmt.Sprintf("%d", resolved.Info.Size()))
	w.Header().Set("Last-Modified", resolved.Info.ModTime().UTC().Format(http.TimeFormat))
	w.Header().Set("ETag", fmt.Sprintf("%q", string(d)))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, string(d)))
	w.Header().Set("Content-Type", sniffContentType(resolved.File))
	w.Header().Set("X-Content-Digest-Algorithm", string(h.engine.Config().Algorithm))

	if req.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, resolved.File)
}

func sniffContentType(f io.ReadSeeker) string {
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	ct := http.DetectContentType(buf[:n])
	_, _ = f.Seek(0, io.SeekStart)
	return ct
}
