// Package apperr implements the error-kind taxonomy shared across the
// tarpit, escalation and webhook sink services. Handlers construct an
// *Error at the point of failure and inspect only its Kind to pick an
// HTTP status; nothing downstream should branch on status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// KindConfiguration marks a bad or missing env var / secret. The
	// feature that depends on it is disabled; the service keeps running.
	KindConfiguration Kind = iota
	// KindStoreTransient marks a timeout or connection reset against the
	// KV or relational store. The dependent feature degrades; the
	// request is never aborted because of it.
	KindStoreTransient
	// KindClassifierTransient marks a timeout, 5xx, or non-JSON reply
	// from the LLM, external API, or reputation endpoint. Treated as
	// inconclusive by the decision ladder.
	KindClassifierTransient
	// KindClassifierSemantic marks a classifier reply that parsed but
	// didn't match the expected schema. Also treated as inconclusive.
	KindClassifierSemantic
	// KindInputInvalid marks malformed caller input.
	KindInputInvalid
	// KindInternal marks an unexpected failure with no better home.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindStoreTransient:
		return "store_transient"
	case KindClassifierTransient:
		return "classifier_transient"
	case KindClassifierSemantic:
		return "classifier_semantic"
	case KindInputInvalid:
		return "input_invalid"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind used for HTTP-status mapping
// and metrics labeling.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Configuration(op string, err error) *Error       { return New(KindConfiguration, op, err) }
func StoreTransient(op string, err error) *Error       { return New(KindStoreTransient, op, err) }
func ClassifierTransient(op string, err error) *Error  { return New(KindClassifierTransient, op, err) }
func ClassifierSemantic(op string, err error) *Error   { return New(KindClassifierSemantic, op, err) }
func InputInvalid(op string, err error) *Error         { return New(KindInputInvalid, op, err) }
func Internal(op string, err error) *Error             { return New(KindInternal, op, err) }

// KindOf extracts the Kind from err, defaulting to KindInternal for plain
// errors so an un-annotated failure never silently surfaces as a 2xx.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to the status code the HTTP boundary should send.
// Only Input-invalid and Internal-unexpected ever surface as non-2xx; every
// other kind degrades locally and the caller still gets a 200.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInputInvalid:
		return http.StatusUnprocessableEntity
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}
