package repository

import "errors"

// Subscription is a live query. Every call to Next blocks until the store
// pushes a new full snapshot (never a diff) and returns it. Once Next returns
// an error the subscription is terminal and must be re-established by the
// caller. Stop must be called when the consumer goes away.
type Subscription[T any] interface {
	Next() (T, error)
	Stop()
}

// ErrSubscriptionClosed is returned by Next after Stop or after the owning
// context was cancelled. It is a normal end, not a failure.
var ErrSubscriptionClosed = errors.New("subscription closed")
