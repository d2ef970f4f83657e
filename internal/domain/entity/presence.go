package entity

import (
	"fmt"
	"time"
)

// Presence is the liveness record of one user. LastSeen is the last confirmed
// heartbeat while online and the disconnect time while offline.
type Presence struct {
	UserID   string    `json:"user_id" firestore:"-"`
	IsOnline bool      `json:"is_online" firestore:"isOnline"`
	LastSeen time.Time `json:"last_seen" firestore:"lastSeen"`
}

// Describe renders the presence relative to now. It must be recomputed on every
// render, never cached.
func (p Presence) Describe(now time.Time) string {
	if p.IsOnline {
		return "online"
	}
	if p.LastSeen.IsZero() {
		return "offline"
	}

	age := now.Sub(p.LastSeen)
	switch {
	case age < time.Minute:
		return "last seen just now"
	case age < time.Hour:
		return "last seen " + plural(int(age/time.Minute), "minute") + " ago"
	case age < 24*time.Hour:
		return "last seen " + plural(int(age/time.Hour), "hour") + " ago"
	default:
		return "last seen " + plural(int(age/(24*time.Hour)), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
