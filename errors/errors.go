// Package errors holds the sentinel errors of the chat core and the helpers
// that classify them for callers (retryable or not, HTTP status).
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/dgraph-io/badger/v4"
)

// Validation errors never reach persistence.
var (
	ErrValidation     = fmt.Errorf("validation failed")
	ErrEmptyMessage   = fmt.Errorf("%w: message content is empty", ErrValidation)
	ErrContentTooLong = fmt.Errorf("%w: message content is too long", ErrValidation)
	ErrInvalidSender  = fmt.Errorf("%w: invalid sender kind", ErrValidation)
	ErrInvalidStatus  = fmt.Errorf("%w: invalid session status", ErrValidation)
	ErrInvalidTopic   = fmt.Errorf("%w: invalid feed topic", ErrValidation)
	ErrInvalidSignal  = fmt.Errorf("%w: invalid presence signal", ErrValidation)
)

// Backend errors are surfaced verbatim to the caller.
var (
	ErrSessionNotFound   = fmt.Errorf("chat session not found")
	ErrSessionExists     = fmt.Errorf("chat session already exists")
	ErrMessageNotFound   = fmt.Errorf("chat message not found")
	ErrSessionNotActive  = fmt.Errorf("chat session is not active, reopen it before sending")
	ErrInvalidTransition = fmt.Errorf("status transition not allowed")
	ErrStaleSession      = fmt.Errorf("chat session was modified concurrently")
	ErrForbiddenActor    = fmt.Errorf("actor is not allowed to perform this operation")
	ErrLeaseNotFound     = fmt.Errorf("presence lease not found")
	ErrConstraint        = fmt.Errorf("storage constraint violated")
	ErrUnauthenticated   = fmt.Errorf("invalid or expired token")
)

// Transient errors: the caller may retry, no state was corrupted.
var (
	ErrTimeout     = fmt.Errorf("operation timed out")
	ErrUnavailable = fmt.Errorf("backend unavailable")
)

// Runtime errors.
var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrSubscriptionFailed = fmt.Errorf("change feed subscription failed")
	ErrEmptyWords         = fmt.Errorf("no censored words have been found")
)

// Classify maps low level failures onto the chat taxonomy.
// A deadline becomes ErrTimeout and a storage conflict becomes ErrUnavailable,
// both keep the original error in the chain.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, ErrTimeout), stderrors.Is(err, ErrUnavailable):
		return err
	case stderrors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case stderrors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return err
	}
}

// IsRetryable reports whether the failure is transient.
func IsRetryable(err error) bool {
	return stderrors.Is(err, ErrTimeout) ||
		stderrors.Is(err, ErrUnavailable) ||
		stderrors.Is(err, context.DeadlineExceeded) ||
		stderrors.Is(err, badger.ErrConflict)
}

// MapToHTTPStatus picks the response code for an error returned by a service.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case stderrors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case stderrors.Is(err, ErrForbiddenActor):
		return http.StatusForbidden
	case stderrors.Is(err, ErrSessionNotFound),
		stderrors.Is(err, ErrMessageNotFound),
		stderrors.Is(err, ErrLeaseNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, ErrSessionNotActive),
		stderrors.Is(err, ErrInvalidTransition),
		stderrors.Is(err, ErrStaleSession),
		stderrors.Is(err, ErrSessionExists),
		stderrors.Is(err, ErrConstraint):
		return http.StatusConflict
	case IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
