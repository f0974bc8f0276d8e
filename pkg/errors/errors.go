// Package errors holds the sentinel errors shared across the services and
// AppError, which pins an HTTP status and client-facing message to one of
// them.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrShardUnavailable  = errors.New("shard unavailable")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNoRelevantDocs    = errors.New("no relevant documents")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
	ErrCorruptSegment    = errors.New("corrupt segment")
	ErrContractViolation = errors.New("contract violation")
	ErrConflict          = errors.New("conflict")
)

// kinds maps each sentinel to its HTTP status and a stable code for
// response bodies. The first match in order wins.
var kinds = []struct {
	err    error
	status int
	code   string
}{
	{ErrDocumentNotFound, http.StatusNotFound, "document_not_found"},
	{ErrNoRelevantDocs, http.StatusNotFound, "no_relevant_documents"},
	{ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{ErrConflict, http.StatusConflict, "conflict"},
	{ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{ErrShardUnavailable, http.StatusServiceUnavailable, "shard_unavailable"},
	{ErrTimeout, http.StatusServiceUnavailable, "timeout"},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, "timeout"},
	{ErrCorruptSegment, http.StatusInternalServerError, "corrupt_segment"},
	{ErrContractViolation, http.StatusInternalServerError, "internal"},
}

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

// HTTPStatusCode returns the status of the outermost AppError in err's
// chain, else the status of the first known sentinel it wraps, else 500.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// Code returns a stable machine-readable name for err, "internal" when it
// wraps no known sentinel.
func Code(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "internal"
}
