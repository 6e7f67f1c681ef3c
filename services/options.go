// Package services holds the chat use cases: session lifecycle, message
// routing, presence and the admin activity board. Every store call is bounded
// by the operation timeout and failures come back classified.
package services

import (
	"context"
	"time"

	"support-chat/domain/chat"
	"support-chat/errors"
)

const DefaultOperationTimeout = 15 * time.Second

// Clock returns the server time stamped on writes.
type Clock func() time.Time

// SystemClock is UTC with microsecond precision, the finest a postgres
// timestamp keeps, so both gateways order the same values.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

type Options struct {
	OperationTimeout time.Duration
	MaxContentLength int
	Clock            Clock
}

func (o Options) withDefaults() Options {
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = DefaultOperationTimeout
	}
	if o.MaxContentLength <= 0 {
		o.MaxContentLength = chat.DefaultMaxContentLength
	}
	if o.Clock == nil {
		o.Clock = SystemClock
	}
	return o
}

// call runs fn under the operation timeout.
func call[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := fn(ctx)
	return res, errors.Classify(err)
}
