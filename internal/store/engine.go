package store

import (
	"time"

	"github.com/sjdv1982/hashserver/internal/digest"
	"github.com/sjdv1982/hashserver/internal/layout"
)

// Config describes one server instance's storage configuration, the
// resolved form of the command-line/environment surface.
type Config struct {
	PrimaryDir  string
	Layout      layout.Kind
	Extras      []layout.Extra
	Algorithm   digest.Algorithm
	LockTimeout time.Duration
	Writable    bool
}

// Engine wires a Config to the in-flight and promise registries, and
// exposes the ingest/retrieval/existence operations that internal/api's
// handlers call. It is constructed once in main and passed by reference
// into every handler; there is no package-level mutable state.
type Engine struct {
	cfg      Config
	inflight *InFlight
	promises *Promises
}

// New constructs an Engine over cfg with fresh registries.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:      cfg,
		inflight: NewInFlight(),
		promises: NewPromises(),
	}
}

func (e *Engine) Config() Config { return e.cfg }

// Promise announces an upcoming PUT for digest, backing
// PUT /promise/{digest}. It returns the TTL remaining for the caller to
// report back to the client.
func (e *Engine) Promise(digest string) time.Duration {
	e.promises.Add(digest)
	ttl, _ := e.promises.ExpiresIn(digest)
	return ttl
}
