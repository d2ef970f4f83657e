package presence

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"cuidar/internal/domain/entity"
	"cuidar/internal/domain/repository"
	"cuidar/pkg/errors"
	"cuidar/pkg/logger"
)

const (
	keyPrefix     = "presence:"
	connsSuffix   = ":conns"
	connMarker    = ":conn:"
	eventsPrefix  = "presence:events:"
	fieldIsOnline = "isOnline"
	fieldLastSeen = "lastSeen"
)

func recordKey(userID string) string { return keyPrefix + userID }
func connsKey(userID string) string { return keyPrefix + userID + connsSuffix }
func connKey(userID, connID string) string { return keyPrefix + userID + connMarker + connID }
func eventsChannel(userID string) string { return eventsPrefix + userID }
func connKeyPrefix(userID string) string { return keyPrefix + userID + connMarker }

// parseConnKey splits presence:{uid}:conn:{connID}. Connection ids never
// contain the marker, user ids might.
func parseConnKey(key string) (userID, connID string, ok bool) {
	if !strings.HasPrefix(key, keyPrefix) {
		return "", "", false
	}
	i := strings.LastIndex(key, connMarker)
	if i <= len(keyPrefix) {
		return "", "", false
	}
	userID = key[len(keyPrefix):i]
	connID = key[i+len(connMarker):]
	if userID == "" || connID == "" {
		return "", "", false
	}
	return userID, connID, true
}

// goOffline removes one connection and, when no live connection remains,
// flips the record offline. Runs as a script so two connections closing at
// once cannot both observe the other as alive.
var goOffline = redis.NewScript(`
redis.call('SREM', KEYS[1], ARGV[1])
redis.call('DEL', KEYS[3])
local members = redis.call('SMEMBERS', KEYS[1])
for _, m in ipairs(members) do
  if redis.call('EXISTS', ARGV[3] .. m) == 1 then
    return 0
  end
  redis.call('SREM', KEYS[1], m)
end
redis.call('HSET', KEYS[2], 'isOnline', '0', 'lastSeen', ARGV[2])
return 1
`)

// Channel is the Redis-backed volatile presence store. Each connection holds
// a lease key with a TTL; an expired lease is the server-side disconnect
// signal for a client that vanished without cleanup.
type Channel struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewChannel(client *redis.Client, ttl time.Duration) *Channel {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Channel{redis: client, ttl: ttl}
}

var _ repository.PresenceChannel = (*Channel)(nil)

func (c *Channel) SetOnline(ctx context.Context, userID, connID string, at time.Time) error {
	pipe := c.redis.TxPipeline()
	pipe.Set(ctx, connKey(userID, connID), "1", c.ttl)
	pipe.SAdd(ctx, connsKey(userID), connID)
	pipe.HSet(ctx, recordKey(userID), fieldIsOnline, "1", fieldLastSeen, at.UnixMilli())
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Unavailable("set presence online", err)
	}

	c.publish(ctx, entity.Presence{UserID: userID, IsOnline: true, LastSeen: at})
	logger.Debug("presence online: user=%s conn=%s", userID, connID)
	return nil
}

func (c *Channel) SetOffline(ctx context.Context, userID, connID string, at time.Time) (bool, error) {
	keys := []string{connsKey(userID), recordKey(userID), connKey(userID, connID)}
	res, err := goOffline.Run(ctx, c.redis, keys, connID, at.UnixMilli(), connKeyPrefix(userID)).Int()
	if err != nil {
		return false, errors.Unavailable("set presence offline", err)
	}
	if res == 0 {
		logger.Debug("presence: user=%s still has live connections after conn=%s closed", userID, connID)
		return false, nil
	}

	c.publish(ctx, entity.Presence{UserID: userID, IsOnline: false, LastSeen: at})
	logger.Debug("presence offline: user=%s conn=%s", userID, connID)
	return true, nil
}

func (c *Channel) Touch(ctx context.Context, userID, connID string, at time.Time) error {
	pipe := c.redis.TxPipeline()
	pipe.Set(ctx, connKey(userID, connID), "1", c.ttl)
	pipe.SAdd(ctx, connsKey(userID), connID)
	pipe.HSet(ctx, recordKey(userID), fieldIsOnline, "1", fieldLastSeen, at.UnixMilli())
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Unavailable("refresh presence", err)
	}
	return nil
}

func (c *Channel) Get(ctx context.Context, userID string) (entity.Presence, error) {
	values, err := c.redis.HGetAll(ctx, recordKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return entity.Presence{}, errors.Unavailable("get presence", err)
	}
	return c.decode(userID, values, time.Now()), nil
}

func (c *Channel) decode(userID string, values map[string]string, now time.Time) entity.Presence {
	p := entity.Presence{UserID: userID}
	if ms, err := strconv.ParseInt(values[fieldLastSeen], 10, 64); err == nil {
		p.LastSeen = time.UnixMilli(ms)
	}
	p.IsOnline = values[fieldIsOnline] == "1"

	// A record still claiming online after a full lease without heartbeat
	// belongs to a connection whose expiry was not processed yet.
	if p.IsOnline && now.Sub(p.LastSeen) > c.ttl {
		p.IsOnline = false
	}
	return p
}

func (c *Channel) publish(ctx context.Context, p entity.Presence) {
	payload, err := json.Marshal(p)
	if err != nil {
		logger.Error("marshal presence event for %s: %v", p.UserID, err)
		return
	}
	if err := c.redis.Publish(ctx, eventsChannel(p.UserID), payload).Err(); err != nil {
		logger.Warn("publish presence event for %s: %v", p.UserID, err)
	}
}

// Subscribe streams the presence of userID. The first Next returns the
// current record; later calls return each published transition.
func (c *Channel) Subscribe(ctx context.Context, userID string) (repository.Subscription[entity.Presence], error) {
	pubsub := c.redis.Subscribe(ctx, eventsChannel(userID))
	// Wait for the subscription to be confirmed so no transition published
	// after the initial read is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, errors.Unavailable("subscribe presence", err)
	}

	initial, err := c.Get(ctx, userID)
	if err != nil {
		pubsub.Close()
		return nil, err
	}

	return &presenceSubscription{
		ctx:     ctx,
		userID:  userID,
		pubsub:  pubsub,
		pending: &initial,
	}, nil
}

type presenceSubscription struct {
	ctx     context.Context
	userID  string
	pubsub  *redis.PubSub
	pending *entity.Presence
}

func (s *presenceSubscription) Next() (entity.Presence, error) {
	if s.pending != nil {
		p := *s.pending
		s.pending = nil
		return p, nil
	}

	for {
		msg, err := s.pubsub.ReceiveMessage(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil || stderrors.Is(err, redis.ErrClosed) {
				return entity.Presence{}, repository.ErrSubscriptionClosed
			}
			return entity.Presence{}, errors.Unavailable("receive presence", err)
		}

		var p entity.Presence
		if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
			logger.Warn("dropping malformed presence event on %s: %v", msg.Channel, err)
			continue
		}
		p.UserID = s.userID
		return p, nil
	}
}

func (s *presenceSubscription) Stop() {
	if err := s.pubsub.Close(); err != nil {
		logger.Debug("close presence subscription for %s: %v", s.userID, err)
	}
}

// NewRedisClient parses url and checks connectivity.
func NewRedisClient(ctx context.Context, url string, db int) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opt.DB = db

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
