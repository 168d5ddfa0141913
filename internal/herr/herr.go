// Package herr is hashserver's error taxonomy and JSON envelope
// dispatch: every storage or validation failure carries a Kind, and a
// single Serve function maps that Kind to the HTTP status and response
// shape clients see.
package herr

import (
	"encoding/json"
	"net/http"
)

// Kind identifies one of hashserver's error categories.
type Kind int

const (
	KindInvalidDigest Kind = iota
	KindInvalidDigestType
	KindInvalidBody
	KindNotFound
	KindNotAFile
	KindChecksumMismatch
	KindFileCorruption
	KindClientDisconnect
	KindConfigError
	KindListenError
)

// Error is a taxonomy-tagged error carrying enough detail to render
// either the validation envelope or a plain-text body.
type Error struct {
	Kind    Kind
	Message string
	// Detail, if present, is rendered as exception.{type,loc,msg,input}.
	Detail *ValidationDetail
	cause  error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.cause != nil {
		return e.cause.Error()
	}
	return "hashserver error"
}

func (e *Error) Unwrap() error { return e.cause }

// ValidationDetail is the exception half of the validation envelope:
//
//	{"message": "Invalid data",
//	 "exception": {"type": ..., "loc": [...], "msg": ..., "input": ...}}
type ValidationDetail struct {
	Type  string      `json:"type"`
	Loc   []any       `json:"loc"`
	Msg   string      `json:"msg"`
	Input interface{} `json:"input"`
}

// New wraps cause under kind with a human message.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Validation builds a KindInvalidDigest/KindInvalidDigestType/
// KindInvalidBody error carrying a structured detail for the validation
// envelope.
func Validation(kind Kind, typ string, loc []any, msg string, input interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: "Invalid data",
		Detail: &ValidationDetail{
			Type:  typ,
			Loc:   loc,
			Msg:   msg,
			Input: input,
		},
	}
}

type validationEnvelope struct {
	Message   string            `json:"message"`
	Exception *ValidationDetail `json:"exception"`
}

type messageEnvelope struct {
	Message string `json:"message"`
}

// Status returns the HTTP status code for kind.
func (k Kind) Status() int {
	switch k {
	case KindInvalidDigest, KindInvalidDigestType, KindInvalidBody,
		KindChecksumMismatch, KindFileCorruption, KindNotAFile, KindClientDisconnect:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Serve writes err to w using the response shape its kind calls for:
// the validation envelope for request-shape errors, a plain "Not found"
// body for KindNotFound, a plain "Incorrect checksum" body for
// KindChecksumMismatch, a {message} envelope for KindNotAFile/
// KindFileCorruption, and no body at all for KindClientDisconnect.
func Serve(w http.ResponseWriter, err *Error) {
	status := err.Kind.Status()

	switch err.Kind {
	case KindInvalidDigest, KindInvalidDigestType, KindInvalidBody:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(validationEnvelope{
			Message:   "Invalid data",
			Exception: err.Detail,
		})
	case KindNotFound:
		w.WriteHeader(status)
		_, _ = w.Write([]byte("Not found"))
	case KindChecksumMismatch:
		w.WriteHeader(status)
		_, _ = w.Write([]byte("Incorrect checksum"))
	case KindClientDisconnect:
		w.WriteHeader(status)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(messageEnvelope{Message: err.Message})
	}
}
