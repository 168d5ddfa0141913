package dcontext

import "context"

// Background returns a fresh context carrying the package's default
// logger, for use by top-level callers (main, background tasks) that
// have no inbound request context to derive one from.
func Background() context.Context {
	defaultLoggerMu.RLock()
	logger := defaultLogger
	defaultLoggerMu.RUnlock()
	return WithLogger(context.Background(), logger)
}

// GetStringValue returns ctx.Value(key) coerced to a string, or "" if
// absent or of another type.
func GetStringValue(ctx context.Context, key any) string {
	v := ctx.Value(key)
	s, _ := v.(string)
	return s
}

// WithValue attaches key/value to ctx, readable back via GetStringValue
// or ctx.Value(key) directly.
func WithValue(ctx context.Context, key, value any) context.Context {
	return context.WithValue(ctx, key, value)
}
