package usecase

import (
	"context"
	"strings"
	"sync"

	"cuidar/internal/domain/entity"
	"cuidar/pkg/errors"
	"cuidar/pkg/logger"
)

// ChatScreen is one open conversation for one user: the live feeds, the
// typing broadcaster and the unsent draft.
type ChatScreen struct {
	ConversationID string
	Type           string
	Self           *entity.Profile
	// Other is nil in the group room.
	Other *entity.Profile

	Messages <-chan MessageFeedEvent
	Typers   <-chan TypersEvent

	messages    *MessageUseCase
	broadcaster *Broadcaster
	cancel      context.CancelFunc

	mu     sync.Mutex
	draft  string
	closed bool
}

func (s *ChatScreen) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

func (s *ChatScreen) OnInputChanged(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.draft = text
	s.mu.Unlock()

	return s.broadcaster.InputChanged(ctx, text)
}

func (s *ChatScreen) Blur(ctx context.Context) error {
	return s.broadcaster.Blur(ctx)
}

// SendMessage sends text. The draft is cleared before the write and restored
// if the write fails, unless the user has typed something new meanwhile.
func (s *ChatScreen) SendMessage(ctx context.Context, text string) (*entity.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.Validation("message text cannot be empty")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.BadRequest("Chat is closed", nil)
	}
	s.draft = ""
	s.mu.Unlock()

	message, err := s.messages.Send(ctx, SendMessageInput{
		ConversationID: s.ConversationID,
		Sender:         s.Self,
		Recipient:      s.Other,
		Text:           text,
		Typing:         s.broadcaster,
	})
	if err != nil {
		s.mu.Lock()
		if s.draft == "" {
			s.draft = text
		}
		s.mu.Unlock()
		logger.Warn("send in %s by %s failed, draft restored: %v", s.ConversationID, s.Self.ID, err)
		return nil, err
	}
	return message, nil
}

// Close stops the feeds and clears the typing flag on a best-effort basis.
func (s *ChatScreen) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.broadcaster.Close(ctx)
}
