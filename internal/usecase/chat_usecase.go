package usecase

import (
	"context"
	"strings"

	"cuidar/internal/domain/entity"
	"cuidar/internal/domain/repository"
	"cuidar/internal/domain/service"
	"cuidar/pkg/errors"
	"cuidar/pkg/logger"
)

// ChatUseCase opens chat screens and serves one-shot sends for clients that
// are not holding a live screen.
type ChatUseCase struct {
	userRepo repository.UserRepository
	messages *MessageUseCase
	typing   *TypingUseCase
	rooms    service.ChatRooms
}

func NewChatUseCase(
	userRepo repository.UserRepository,
	messages *MessageUseCase,
	typing *TypingUseCase,
	rooms service.ChatRooms,
) *ChatUseCase {
	return &ChatUseCase{
		userRepo: userRepo,
		messages: messages,
		typing:   typing,
		rooms:    rooms,
	}
}

type ResolvedChat struct {
	ConversationID string `json:"conversation_id"`
	Type           string `json:"type"`
}

// Resolve derives the conversation id for selfID and otherUserID, or the
// group room when otherUserID is empty. No store access happens.
func (uc *ChatUseCase) Resolve(selfID, otherUserID string) (*ResolvedChat, error) {
	id, err := uc.rooms.Resolve(selfID, strings.TrimSpace(otherUserID))
	if err != nil {
		return nil, err
	}
	chatType := entity.ConversationTypeDirect
	if uc.rooms.IsGroup(id) {
		chatType = entity.ConversationTypeGroup
	}
	return &ResolvedChat{ConversationID: id, Type: chatType}, nil
}

type SendInput struct {
	ConversationID string
	Text           string
}

// Send delivers one message on behalf of senderID. The recipient of a direct
// chat is taken from the conversation id itself.
func (uc *ChatUseCase) Send(ctx context.Context, senderID string, input SendInput) (*entity.Message, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, errors.Validation("message text cannot be empty")
	}

	sender, err := uc.userRepo.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	var recipient *entity.Profile
	if !uc.rooms.IsGroup(input.ConversationID) {
		otherID, err := peerFromChatID(input.ConversationID, senderID)
		if err != nil {
			return nil, err
		}
		if recipient, err = uc.userRepo.GetByID(ctx, otherID); err != nil {
			return nil, err
		}
	}

	return uc.messages.Send(ctx, SendMessageInput{
		ConversationID: input.ConversationID,
		Sender:         sender,
		Recipient:      recipient,
		Text:           input.Text,
	})
}

// peerFromChatID finds the other participant of a direct chat id.
func peerFromChatID(conversationID, selfID string) (string, error) {
	first, second, ok := service.ParseDirectChatID(conversationID)
	if !ok {
		return "", errors.BadRequest("Unknown chat id", nil)
	}
	switch selfID {
	case first:
		return second, nil
	case second:
		return first, nil
	}
	return "", errors.Forbidden("User is not a participant in this chat", nil)
}

type OpenChatInput struct {
	UserID string
	// OtherUserID is empty for the group room.
	OtherUserID string
}

// Open starts a chat screen: it resolves the conversation, loads both
// profiles and subscribes to messages and typers.
func (uc *ChatUseCase) Open(ctx context.Context, input OpenChatInput) (*ChatScreen, error) {
	resolved, err := uc.Resolve(input.UserID, input.OtherUserID)
	if err != nil {
		return nil, err
	}

	self, err := uc.userRepo.GetByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	var other *entity.Profile
	if resolved.Type == entity.ConversationTypeDirect {
		if other, err = uc.userRepo.GetByID(ctx, input.OtherUserID); err != nil {
			return nil, err
		}
	}

	screenCtx, cancel := context.WithCancel(ctx)
	messages, err := uc.messages.Watch(screenCtx, WatchMessagesInput{
		ConversationID: resolved.ConversationID,
		ReaderID:       self.ID,
		// The 1:1 screen renders oldest first; the group feed is inverted.
		Ascending: resolved.Type == entity.ConversationTypeDirect,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	typers, err := uc.typing.WatchTypers(screenCtx, resolved.ConversationID, self.ID)
	if err != nil {
		cancel()
		return nil, err
	}

	logger.WithFields(logger.Fields{"conversation_id": resolved.ConversationID, "user_id": self.ID}).
		Debug("chat screen opened")

	return &ChatScreen{
		ConversationID: resolved.ConversationID,
		Type:           resolved.Type,
		Self:           self,
		Other:          other,
		Messages:       messages,
		Typers:         typers,
		messages:       uc.messages,
		broadcaster:    uc.typing.NewBroadcaster(resolved.ConversationID, self.ID, self.DisplayName),
		cancel:         cancel,
	}, nil
}
