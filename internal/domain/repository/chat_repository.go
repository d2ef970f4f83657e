package repository

import (
	"context"

	"cuidar/internal/domain/entity"
)

// SendBatch is everything written atomically by one send: the new message
// document and the merged conversation metadata.
type SendBatch struct {
	Message          *entity.Message
	ConversationType string
	Participants     []string
	ParticipantInfo  map[string]entity.ParticipantInfo
}

type MessageRepository interface {
	// Send creates the message with a server timestamp and isRead=false, and
	// merges participants, participantInfo and lastMessage into the
	// conversation. Either both writes land or neither does.
	Send(ctx context.Context, batch SendBatch) (*entity.Message, error)

	// Subscribe streams the newest limit messages, newest first.
	Subscribe(ctx context.Context, conversationID string, limit int) (Subscription[[]*entity.Message], error)

	// MarkRead sets isRead=true on every listed message in one atomic update.
	MarkRead(ctx context.Context, conversationID string, messageIDs []string) error
}

type ConversationRepository interface {
	SetTyping(ctx context.Context, conversationID, userID string, entry entity.TypingEntry) error
	// ClearTyping deletes the typing.{userID} field rather than writing a falsy value.
	ClearTyping(ctx context.Context, conversationID, userID string) error

	SubscribeConversation(ctx context.Context, conversationID string) (Subscription[*entity.Conversation], error)
	// SubscribeByParticipant streams the user's conversations ordered by
	// lastMessage.createdAt, newest first.
	SubscribeByParticipant(ctx context.Context, userID string) (Subscription[[]*entity.Conversation], error)
}
