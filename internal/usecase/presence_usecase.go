package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"cuidar/internal/domain/entity"
	"cuidar/internal/domain/repository"
	"cuidar/pkg/errors"
	"cuidar/pkg/logger"
)

const DefaultPresenceHeartbeat = 20 * time.Second

// PresenceUseCase keeps two stores in step: the volatile channel, which knows
// about live connections, and the durable profile copy that other screens
// read when the channel is not reachable.
type PresenceUseCase struct {
	channel   repository.PresenceChannel
	userRepo  repository.UserRepository
	heartbeat time.Duration
	now       func() time.Time
}

func NewPresenceUseCase(channel repository.PresenceChannel, userRepo repository.UserRepository, heartbeat time.Duration) *PresenceUseCase {
	if heartbeat <= 0 {
		heartbeat = DefaultPresenceHeartbeat
	}
	return &PresenceUseCase{
		channel:   channel,
		userRepo:  userRepo,
		heartbeat: heartbeat,
		now:       time.Now,
	}
}

// PresenceSession is the presence of one live connection. Its Disconnect is
// the hook that must run when the connection goes away.
type PresenceSession struct {
	uc     *PresenceUseCase
	userID string
	connID string

	cancel context.CancelFunc
	once   sync.Once
}

// Connect marks userID online for a new connection and starts the heartbeat
// that keeps the connection's lease alive.
func (uc *PresenceUseCase) Connect(ctx context.Context, userID string) (*PresenceSession, error) {
	if userID == "" {
		return nil, errors.Validation("user id is required")
	}

	connID := uuid.NewString()
	at := uc.now()
	if err := uc.channel.SetOnline(ctx, userID, connID, at); err != nil {
		return nil, err
	}
	uc.mirror(ctx, entity.Presence{UserID: userID, IsOnline: true, LastSeen: at})

	hbCtx, cancel := context.WithCancel(context.Background())
	s := &PresenceSession{uc: uc, userID: userID, connID: connID, cancel: cancel}
	go s.heartbeatLoop(hbCtx)

	logger.WithFields(logger.Fields{"user_id": userID, "conn_id": connID}).Info("presence session started")
	return s, nil
}

func (s *PresenceSession) UserID() string { return s.userID }
func (s *PresenceSession) ConnID() string { return s.connID }

func (s *PresenceSession) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.uc.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Heartbeat(ctx); err != nil {
				logger.Warn("presence heartbeat for %s failed: %v", s.userID, err)
			}
		}
	}
}

// Heartbeat renews the lease and refreshes lastSeen.
func (s *PresenceSession) Heartbeat(ctx context.Context) error {
	return s.uc.channel.Touch(ctx, s.userID, s.connID, s.uc.now())
}

// Foreground is the app returning to the active state.
func (s *PresenceSession) Foreground(ctx context.Context) error {
	at := s.uc.now()
	if err := s.uc.channel.SetOnline(ctx, s.userID, s.connID, at); err != nil {
		return err
	}
	s.uc.mirror(ctx, entity.Presence{UserID: s.userID, IsOnline: true, LastSeen: at})
	return nil
}

// Background writes offline to the durable copy right away. The connection
// may stay open in the background, so the channel is left to the lease.
func (s *PresenceSession) Background(ctx context.Context) error {
	p := entity.Presence{UserID: s.userID, IsOnline: false, LastSeen: s.uc.now()}
	if err := s.uc.userRepo.UpdatePresence(ctx, p); err != nil {
		logger.Warn("durable offline on background for %s: %v", s.userID, err)
		return err
	}
	return nil
}

// Disconnect stops the heartbeat and releases the connection. The user only
// goes offline when this was their last live connection. Safe to call more
// than once; it runs detached from the caller's context.
func (s *PresenceSession) Disconnect() {
	s.once.Do(func() {
		s.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		at := s.uc.now()
		wentOffline, err := s.uc.channel.SetOffline(ctx, s.userID, s.connID, at)
		if err != nil {
			// The lease expires on its own and the reaper writes offline.
			logger.Warn("presence disconnect for %s failed: %v", s.userID, err)
			return
		}
		if wentOffline {
			s.uc.mirror(ctx, entity.Presence{UserID: s.userID, IsOnline: false, LastSeen: at})
		}
		logger.WithFields(logger.Fields{"user_id": s.userID, "conn_id": s.connID, "offline": wentOffline}).
			Info("presence session ended")
	})
}

func (uc *PresenceUseCase) mirror(ctx context.Context, p entity.Presence) {
	if uc.userRepo == nil {
		return
	}
	if err := uc.userRepo.UpdatePresence(ctx, p); err != nil {
		logger.Warn("mirror presence of %s: %v", p.UserID, err)
	}
}

// PresenceEvent is one presence emission. A non-nil Err is terminal.
type PresenceEvent struct {
	Presence entity.Presence
	Err      error
}

// Watch streams the presence of userID, starting with its current value.
func (uc *PresenceUseCase) Watch(ctx context.Context, userID string) (<-chan PresenceEvent, error) {
	if userID == "" {
		return nil, errors.Validation("user id is required")
	}
	sub, err := uc.channel.Subscribe(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make(chan PresenceEvent, 1)
	go func() {
		defer close(out)
		defer sub.Stop()

		for {
			p, err := sub.Next()
			if err != nil {
				if err != repository.ErrSubscriptionClosed {
					select {
					case out <- PresenceEvent{Err: err}:
					case <-ctx.Done():
					}
				}
				return
			}
			select {
			case out <- PresenceEvent{Presence: p}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
