package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cuidar/internal/domain/entity"
	"cuidar/internal/domain/repository"
	"cuidar/internal/domain/service"
	"cuidar/internal/infrastructure/ratelimit"
	"cuidar/pkg/errors"
	"cuidar/pkg/logger"
)

const DefaultMessagePageSize = 50

type MessageUseCase struct {
	messageRepo repository.MessageRepository
	typing      *TypingUseCase
	rooms       service.ChatRooms
	rateLimiter *ratelimit.RateLimiter
	pageSize    int
}

func NewMessageUseCase(
	messageRepo repository.MessageRepository,
	typing *TypingUseCase,
	rooms service.ChatRooms,
	rateLimiter *ratelimit.RateLimiter,
	pageSize int,
) *MessageUseCase {
	if pageSize <= 0 {
		pageSize = DefaultMessagePageSize
	}
	return &MessageUseCase{
		messageRepo: messageRepo,
		typing:      typing,
		rooms:       rooms,
		rateLimiter: rateLimiter,
		pageSize:    pageSize,
	}
}

type SendMessageInput struct {
	ConversationID string
	Sender         *entity.Profile
	// Recipient is nil for the group room.
	Recipient *entity.Profile
	Text      string
	// Typing clears the sender's flag before the write. When nil the flag
	// field is deleted unconditionally.
	Typing TypingClearer
}

// Send validates and writes one message. The message and the conversation's
// lastMessage are committed together.
func (uc *MessageUseCase) Send(ctx context.Context, input SendMessageInput) (*entity.Message, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, errors.Validation("message text cannot be empty")
	}
	if input.Sender == nil || input.Sender.ID == "" {
		return nil, errors.Validation("sender is required")
	}
	if input.ConversationID == "" {
		return nil, errors.Validation("conversation id is required")
	}

	batch, err := uc.buildBatch(input, text)
	if err != nil {
		return nil, err
	}

	if uc.rateLimiter != nil {
		if allowed, wait := uc.rateLimiter.Allow(input.Sender.ID, ratelimit.ActionSendMessage); !allowed {
			logger.Warn("send rate limited: user %s must wait %v", input.Sender.ID, wait)
			return nil, errors.TooManyRequests(fmt.Sprintf("You are sending messages too quickly. Try again in %v", wait.Round(100*time.Millisecond)))
		}
	}

	clearer := input.Typing
	if clearer == nil && uc.typing != nil {
		clearer = uc.typing.ClearerFor(input.ConversationID, input.Sender.ID)
	}
	if clearer != nil {
		clearer.BeforeSend(ctx)
	}

	message, err := uc.messageRepo.Send(ctx, batch)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"conversation_id": message.ConversationID,
		"message_id":      message.ID,
		"sender_id":       message.SenderID,
	}).Debug("message sent")
	return message, nil
}

func (uc *MessageUseCase) buildBatch(input SendMessageInput, text string) (repository.SendBatch, error) {
	sender := input.Sender
	message := &entity.Message{
		ConversationID: input.ConversationID,
		Text:           text,
		SenderID:       sender.ID,
	}

	if uc.rooms.IsGroup(input.ConversationID) {
		message.User = &entity.GroupUser{
			ID:     sender.ID,
			Name:   sender.DisplayName,
			Avatar: sender.AvatarURL,
		}
		return repository.SendBatch{
			Message:          message,
			ConversationType: entity.ConversationTypeGroup,
			Participants:     []string{sender.ID},
			ParticipantInfo:  map[string]entity.ParticipantInfo{sender.ID: sender.Info()},
		}, nil
	}

	recipient := input.Recipient
	if recipient == nil || recipient.ID == "" {
		return repository.SendBatch{}, errors.Validation("recipient is required for a direct chat")
	}
	expected, err := uc.rooms.Direct(sender.ID, recipient.ID)
	if err != nil {
		return repository.SendBatch{}, err
	}
	if expected != input.ConversationID {
		return repository.SendBatch{}, errors.Forbidden("Sender and recipient do not belong to this chat", nil)
	}

	message.RecipientID = recipient.ID
	return repository.SendBatch{
		Message:          message,
		ConversationType: entity.ConversationTypeDirect,
		Participants:     []string{sender.ID, recipient.ID},
		ParticipantInfo: map[string]entity.ParticipantInfo{
			sender.ID:    sender.Info(),
			recipient.ID: recipient.Info(),
		},
	}, nil
}

type WatchMessagesInput struct {
	ConversationID string
	// ReaderID enables read reconciliation for every emitted snapshot. Leave
	// empty for an observer that must not mark anything.
	ReaderID string
	Limit    int
	// Ascending flips the feed to oldest first.
	Ascending bool
}

// MessageFeedEvent is one snapshot of the message window. A non-nil Err is
// terminal.
type MessageFeedEvent struct {
	ConversationID string
	Messages       []*entity.Message
	Err            error
}

// Watch streams the newest messages of a conversation until ctx is done.
// Messages addressed to the reader are marked read as they arrive.
func (uc *MessageUseCase) Watch(ctx context.Context, input WatchMessagesInput) (<-chan MessageFeedEvent, error) {
	if input.ConversationID == "" {
		return nil, errors.Validation("conversation id is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = uc.pageSize
	}

	sub, err := uc.messageRepo.Subscribe(ctx, input.ConversationID, limit)
	if err != nil {
		return nil, err
	}

	out := make(chan MessageFeedEvent, 1)
	go func() {
		defer close(out)
		defer sub.Stop()

		for {
			messages, err := sub.Next()
			if err != nil {
				if err == repository.ErrSubscriptionClosed {
					return
				}
				logger.Error("message feed for %s failed: %v", input.ConversationID, err)
				select {
				case out <- MessageFeedEvent{ConversationID: input.ConversationID, Err: err}:
				case <-ctx.Done():
				}
				return
			}

			if input.ReaderID != "" {
				// A failure here is retried by the next snapshot.
				if _, err := uc.ReconcileReads(ctx, input.ConversationID, messages, input.ReaderID); err != nil {
					logger.Warn("reconcile reads in %s for %s: %v", input.ConversationID, input.ReaderID, err)
				}
			}

			if input.Ascending {
				messages = reversed(messages)
			}
			select {
			case out <- MessageFeedEvent{ConversationID: input.ConversationID, Messages: messages}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// ReconcileReads marks every message in the window that is addressed to
// readerID and still unread. It issues at most one write and returns how many
// messages it marked.
func (uc *MessageUseCase) ReconcileReads(ctx context.Context, conversationID string, messages []*entity.Message, readerID string) (int, error) {
	if readerID == "" {
		return 0, nil
	}

	var ids []string
	for _, m := range messages {
		if m.IsUnreadFor(readerID) {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := uc.messageRepo.MarkRead(ctx, conversationID, ids); err != nil {
		return 0, err
	}
	logger.Debug("marked %d messages read in %s for %s", len(ids), conversationID, readerID)
	return len(ids), nil
}

func reversed(messages []*entity.Message) []*entity.Message {
	out := make([]*entity.Message, len(messages))
	for i, m := range messages {
		out[len(messages)-1-i] = m
	}
	return out
}
