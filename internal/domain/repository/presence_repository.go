package repository

import (
	"context"
	"time"

	"cuidar/internal/domain/entity"
)

// PresenceChannel is the volatile, low-latency presence store. It is the
// authority for real-time online state; the durable profile copy may lag.
type PresenceChannel interface {
	// SetOnline registers connID as a live connection of userID.
	SetOnline(ctx context.Context, userID, connID string, at time.Time) error
	// SetOffline drops connID. The user goes offline only when it was the last
	// live connection; the returned bool reports whether that happened.
	SetOffline(ctx context.Context, userID, connID string, at time.Time) (bool, error)
	// Touch extends the connection's lease and refreshes lastSeen.
	Touch(ctx context.Context, userID, connID string, at time.Time) error
	Get(ctx context.Context, userID string) (entity.Presence, error)
	Subscribe(ctx context.Context, userID string) (Subscription[entity.Presence], error)
}
