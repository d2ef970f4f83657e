package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cuidar/internal/domain/entity"
	"cuidar/pkg/logger"
)

// DurableMirror receives offline transitions the reaper produces.
type DurableMirror interface {
	UpdatePresence(ctx context.Context, presence entity.Presence) error
}

// Reaper turns expired connection leases into offline transitions. It is the
// fallback for processes that die without running their disconnect hook.
type Reaper struct {
	redis   *redis.Client
	channel *Channel
	mirror  DurableMirror
	db      int
	now     func() time.Time
}

func NewReaper(client *redis.Client, channel *Channel, mirror DurableMirror, db int) *Reaper {
	return &Reaper{
		redis:   client,
		channel: channel,
		mirror:  mirror,
		db:      db,
		now:     time.Now,
	}
}

// Run blocks until ctx is done. It enables expiry notifications when the
// server allows it; managed Redis deployments may require that to be set
// out of band.
func (r *Reaper) Run(ctx context.Context) error {
	if err := r.redis.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		logger.Warn("presence reaper: could not enable keyspace notifications: %v", err)
	}

	pubsub := r.redis.PSubscribe(ctx, fmt.Sprintf("__keyevent@%d__:expired", r.db))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("presence reaper subscribe: %w", err)
	}
	logger.Info("presence reaper listening for expired leases on db %d", r.db)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handleExpired(ctx, msg.Payload)
		}
	}
}

func (r *Reaper) handleExpired(ctx context.Context, key string) {
	userID, connID, ok := parseConnKey(key)
	if !ok {
		return
	}

	at := r.now()
	wentOffline, err := r.channel.SetOffline(ctx, userID, connID, at)
	if err != nil {
		logger.Error("presence reaper: offline transition for %s failed: %v", userID, err)
		return
	}
	if !wentOffline {
		return
	}

	if err := r.mirror.UpdatePresence(ctx, entity.Presence{UserID: userID, IsOnline: false, LastSeen: at}); err != nil {
		logger.Warn("presence reaper: durable mirror for %s failed: %v", userID, err)
		return
	}
	logger.Info("presence reaper: lease %s expired, user %s marked offline", connID, userID)
}
