package api

import (
	"net/http"
	"os"
	"sync/atomic"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/sjdv1982/hashserver/internal/dcontext"
	"github.com/sjdv1982/hashserver/internal/lifecycle"
	"github.com/sjdv1982/hashserver/internal/store"
)

// digestPattern matches any single non-slash path segment. It deliberately
// does NOT restrict to hex characters: a non-hex or wrong-length digest
// must still route to the handler so parseDigest can produce the 400
// validation envelope. A stricter regex here would make gorilla/mux
// itself reject the request with a bare 404 before parseDigest ever
// runs.
const digestPattern = "{digest:[^/]+}"

// NewRouter builds the full route table, wired to engine. writable
// gates the PUT endpoints: absent unless the server was started with
// --writable.
func NewRouter(engine *store.Engine, writable bool, clock *lifecycle.ActivityClock) http.Handler {
	r := mux.NewRouter()

	h := &handler{engine: engine}

	r.HandleFunc("/healthcheck", h.healthcheck).Methods(http.MethodGet)
	r.HandleFunc("/has", h.has).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/"+digestPattern, h.get).Methods(http.MethodGet, http.MethodHead)

	if writable {
		r.HandleFunc("/"+digestPattern, h.put).Methods(http.MethodPut)
		r.HandleFunc("/promise/"+digestPattern, h.promise).Methods(http.MethodPut)
	}

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodHead}),
		handlers.AllowedHeaders([]string{"*"}),
	)

	var root http.Handler = r
	root = cors(root)
	root = handlers.CombinedLoggingHandler(os.Stdout, root)
	root = requestLoggerMiddleware(root)
	root = activityMiddleware(clock, root)

	return root
}

// activityMiddleware touches clock on request entry and again when the
// response has finished writing, so the inactivity monitor never counts
// a slow in-progress request as idle time.
func activityMiddleware(clock *lifecycle.ActivityClock, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		clock.Touch()
		next.ServeHTTP(w, req)
		clock.Touch()
	})
}

// requestCounter hands out the request.id field every per-request
// logger carries, alongside instance.id (attached once in
// cmd/hashserver to the server's base context) and method/path.
var requestCounter uint64

// requestLoggerMiddleware attaches a per-request logger to the request's
// context: instance.id inherited from the base context, plus this
// request's method, path, and a monotonic request.id. Handlers retrieve
// it with dcontext.GetLogger(ctx) rather than logging against the bare
// stdlib/logrus root logger.
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		reqID := atomic.AddUint64(&requestCounter, 1)

		ctx = dcontext.WithValue(ctx, "http.request.id", reqID)
		logger := dcontext.GetLoggerWithFields(ctx, map[any]any{
			"http.request.method": req.Method,
			"http.request.uri":    req.URL.Path,
		}, "instance.id", "http.request.id")
		ctx = dcontext.WithLogger(ctx, logger)

		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

type handler struct {
	engine *store.Engine
}
