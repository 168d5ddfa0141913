// Package api is hashserver's HTTP surface: routing, CORS,
// error-to-status mapping, and the inactivity-clock middleware.
package api

import (
	"fmt"

	"github.com/sjdv1982/hashserver/internal/digest"
	"github.com/sjdv1982/hashserver/internal/herr"
)

// parseDigest validates a path or body-supplied digest value, producing
// a validation-envelope error on failure. loc identifies where in the
// request the value came from (["path","checksum"] for the URL segment,
// ["body", i] for the i'th element of a /has array).
func parseDigest(raw string, loc []any) (digest.Digest, *herr.Error) {
	d, err := digest.Parse(raw)
	if err == nil {
		return d, nil
	}

	switch e := err.(type) {
	case digest.ErrInvalidDigest:
		msg := "Value error, " + e.Reason
		return "", herr.Validation(herr.KindInvalidDigest, "value_error", loc, msg, raw)
	case digest.ErrInvalidDigestType:
		msg := fmt.Sprintf("Type error, %v", e)
		return "", herr.Validation(herr.KindInvalidDigestType, "type_error", loc, msg, raw)
	default:
		return "", herr.Validation(herr.KindInvalidDigest, "value_error", loc, err.Error(), raw)
	}
}

