package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"cuidar/internal/domain/entity"
	"cuidar/internal/domain/repository"
	"cuidar/pkg/errors"
	"cuidar/pkg/logger"
)

const (
	DefaultTypingIdle  = 3 * time.Second
	DefaultTypingStale = 10 * time.Second

	// Bound for cleanup writes that run detached from any request.
	cleanupTimeout = 5 * time.Second
)

type TypingUseCase struct {
	convRepo repository.ConversationRepository
	idle     time.Duration
	stale    time.Duration
	now      func() time.Time
}

func NewTypingUseCase(convRepo repository.ConversationRepository, idle, stale time.Duration) *TypingUseCase {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	if stale <= 0 {
		stale = DefaultTypingStale
	}
	return &TypingUseCase{
		convRepo: convRepo,
		idle:     idle,
		stale:    stale,
		now:      time.Now,
	}
}

// TypingClearer drops the sender's typing flag ahead of a send.
type TypingClearer interface {
	BeforeSend(ctx context.Context)
}

type flagClearer struct {
	uc             *TypingUseCase
	conversationID string
	userID         string
}

func (c flagClearer) BeforeSend(ctx context.Context) {
	if err := c.uc.convRepo.ClearTyping(ctx, c.conversationID, c.userID); err != nil {
		logger.Warn("clear typing for %s in %s before send: %v", c.userID, c.conversationID, err)
	}
}

// ClearerFor is used by senders that hold no Broadcaster, such as the HTTP
// send endpoint. It always issues the field deletion.
func (uc *TypingUseCase) ClearerFor(conversationID, userID string) TypingClearer {
	return flagClearer{uc: uc, conversationID: conversationID, userID: userID}
}

// Broadcaster is the Idle/Typing state machine of one user in one
// conversation. Store writes happen under the lock so a set can never land
// after the clear that followed it.
type Broadcaster struct {
	uc             *TypingUseCase
	conversationID string
	userID         string
	displayName    string

	mu     sync.Mutex
	typing bool
	timer  *time.Timer
	gen    uint64
	closed bool
}

func (uc *TypingUseCase) NewBroadcaster(conversationID, userID, displayName string) *Broadcaster {
	return &Broadcaster{
		uc:             uc,
		conversationID: conversationID,
		userID:         userID,
		displayName:    displayName,
	}
}

// InputChanged records a keystroke. The first one of a session writes the
// typing entry; later ones only push the idle deadline back. Clearing the
// input ends the session.
func (b *Broadcaster) InputChanged(ctx context.Context, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return b.toIdleLocked(ctx)
	}

	b.armLocked()
	if b.typing {
		return nil
	}

	entry := entity.TypingEntry{DisplayName: b.displayName, Timestamp: b.uc.now()}
	if err := b.uc.convRepo.SetTyping(ctx, b.conversationID, b.userID, entry); err != nil {
		// Stay Idle so the next keystroke tries again.
		b.disarmLocked()
		return err
	}
	b.typing = true
	return nil
}

// Blur ends the typing session when the input loses focus.
func (b *Broadcaster) Blur(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.toIdleLocked(ctx)
}

// BeforeSend clears the flag ahead of the message write.
func (b *Broadcaster) BeforeSend(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.toIdleLocked(ctx); err != nil {
		logger.Warn("clear typing for %s in %s before send: %v", b.userID, b.conversationID, err)
	}
}

// Close is the best-effort cleanup on screen exit. Readers drop the entry by
// staleness anyway if this write is lost.
func (b *Broadcaster) Close(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if err := b.toIdleLocked(ctx); err != nil {
		logger.Debug("typing cleanup for %s in %s failed: %v", b.userID, b.conversationID, err)
	}
	b.closed = true
}

// IsTyping reports the local state.
func (b *Broadcaster) IsTyping() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.typing
}

func (b *Broadcaster) armLocked() {
	b.disarmLocked()
	gen := b.gen
	b.timer = time.AfterFunc(b.uc.idle, func() { b.expire(gen) })
}

func (b *Broadcaster) disarmLocked() {
	b.gen++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *Broadcaster) expire(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen || !b.typing {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := b.toIdleLocked(ctx); err != nil {
		logger.Warn("idle typing clear for %s in %s failed: %v", b.userID, b.conversationID, err)
	}
}

func (b *Broadcaster) toIdleLocked(ctx context.Context) error {
	b.disarmLocked()
	if !b.typing {
		return nil
	}
	b.typing = false
	return b.uc.convRepo.ClearTyping(ctx, b.conversationID, b.userID)
}

// TypersEvent is one emission of the active-typer set. A non-nil Err is
// terminal.
type TypersEvent struct {
	ConversationID string
	Typers         []entity.Typer
	Err            error
}

// WatchTypers streams who is typing in a conversation, as seen by readerID.
// The set is recomputed on every document change and again whenever an entry
// crosses the staleness window, so a writer that died mid-session disappears
// without any further write.
func (uc *TypingUseCase) WatchTypers(ctx context.Context, conversationID, readerID string) (<-chan TypersEvent, error) {
	if conversationID == "" {
		return nil, errors.Validation("conversation id is required")
	}
	sub, err := uc.convRepo.SubscribeConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	snapshots := make(chan *entity.Conversation)
	failures := make(chan error, 1)
	go func() {
		defer close(snapshots)
		for {
			conv, err := sub.Next()
			if err != nil {
				if err != repository.ErrSubscriptionClosed {
					failures <- err
				}
				return
			}
			select {
			case snapshots <- conv:
			case <-ctx.Done():
				return
			}
		}
	}()

	out := make(chan TypersEvent, 1)
	go func() {
		defer close(out)
		defer sub.Stop()

		var (
			typing   map[string]entity.TypingEntry
			last     []entity.Typer
			emitted  bool
			recheck  *time.Timer
			recheckC <-chan time.Time
		)
		defer func() {
			if recheck != nil {
				recheck.Stop()
			}
		}()

		emit := func() bool {
			now := uc.now()
			typers := entity.ActiveTypers(typing, readerID, now, uc.stale)

			if recheck != nil {
				recheck.Stop()
				recheck, recheckC = nil, nil
			}
			if wait, ok := nextExpiry(typers, now, uc.stale); ok {
				recheck = time.NewTimer(wait)
				recheckC = recheck.C
			}

			if emitted && sameTypers(last, typers) {
				return true
			}
			last, emitted = typers, true
			select {
			case out <- TypersEvent{ConversationID: conversationID, Typers: typers}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case err := <-failures:
				select {
				case out <- TypersEvent{ConversationID: conversationID, Err: err}:
				case <-ctx.Done():
				}
				return
			case conv, ok := <-snapshots:
				if !ok {
					// Drain a failure that raced the close.
					select {
					case err := <-failures:
						select {
						case out <- TypersEvent{ConversationID: conversationID, Err: err}:
						case <-ctx.Done():
						}
					default:
					}
					return
				}
				typing = conv.Typing
				if !emit() {
					return
				}
			case <-recheckC:
				recheck, recheckC = nil, nil
				if !emit() {
					return
				}
			}
		}
	}()

	return out, nil
}

// nextExpiry is the wait until the oldest active entry turns stale.
func nextExpiry(typers []entity.Typer, now time.Time, window time.Duration) (time.Duration, bool) {
	if len(typers) == 0 {
		return 0, false
	}
	earliest := typers[0].Since
	for _, t := range typers[1:] {
		if t.Since.Before(earliest) {
			earliest = t.Since
		}
	}
	wait := earliest.Add(window).Sub(now) + time.Millisecond
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait, true
}

func sameTypers(a, b []entity.Typer) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].UserID != b[i].UserID || a[i].DisplayName != b[i].DisplayName {
			return false
		}
	}
	return true
}
