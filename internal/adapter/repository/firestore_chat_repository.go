package repository

import (
	"context"
	stderrors "errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"cuidar/internal/domain/entity"
	"cuidar/internal/domain/repository"
	"cuidar/pkg/errors"
	"cuidar/pkg/logger"
)

const (
	chatsCollection    = "chats"
	messagesCollection = "messages"

	// Firestore rejects transactions with more than 500 writes.
	maxWritesPerTransaction = 500
)

type firestoreChatRepository struct {
	client *firestore.Client
}

// The message log and the conversation documents live in the same collection
// tree, so one type serves both repositories.
func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreChatRepository{
		client: client,
	}
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreChatRepository{
		client: client,
	}
}

var (
	_ repository.MessageRepository      = (*firestoreChatRepository)(nil)
	_ repository.ConversationRepository = (*firestoreChatRepository)(nil)
)

func (r *firestoreChatRepository) conversation(id string) *firestore.DocumentRef {
	return r.client.Collection(chatsCollection).Doc(id)
}

func (r *firestoreChatRepository) messages(conversationID string) *firestore.CollectionRef {
	return r.conversation(conversationID).Collection(messagesCollection)
}

func (r *firestoreChatRepository) Send(ctx context.Context, batch repository.SendBatch) (*entity.Message, error) {
	msg := batch.Message
	convRef := r.conversation(msg.ConversationID)
	msgRef := r.messages(msg.ConversationID).NewDoc()

	msgData := map[string]interface{}{
		"id":             msgRef.ID,
		"conversationId": msg.ConversationID,
		"text":           msg.Text,
		"senderId":       msg.SenderID,
		"createdAt":      firestore.ServerTimestamp,
		"isRead":         false,
	}
	if msg.RecipientID != "" {
		msgData["recipientId"] = msg.RecipientID
	}
	if msg.User != nil {
		msgData["user"] = map[string]interface{}{
			"id":     msg.User.ID,
			"name":   msg.User.Name,
			"avatar": msg.User.Avatar,
		}
	}

	participants := make([]interface{}, 0, len(batch.Participants))
	for _, p := range batch.Participants {
		participants = append(participants, p)
	}
	info := make(map[string]interface{}, len(batch.ParticipantInfo))
	for userID, p := range batch.ParticipantInfo {
		info[userID] = map[string]interface{}{
			"displayName": p.DisplayName,
			"avatarURL":   p.AvatarURL,
		}
	}
	convData := map[string]interface{}{
		"id":              msg.ConversationID,
		"type":            batch.ConversationType,
		"participants":    firestore.ArrayUnion(participants...),
		"participantInfo": info,
		"lastMessage": map[string]interface{}{
			"text":      msg.Text,
			"senderId":  msg.SenderID,
			"createdAt": firestore.ServerTimestamp,
		},
	}

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(msgRef, msgData); err != nil {
			return err
		}
		return tx.Set(convRef, convData, firestore.MergeAll)
	})
	if err != nil {
		logger.WithFields(logger.Fields{"conversation_id": msg.ConversationID, "sender_id": msg.SenderID}).
			Errorf("send transaction failed: %v", err)
		return nil, errors.FromStore("send message", err)
	}

	sent := *msg
	sent.ID = msgRef.ID
	sent.IsRead = false
	if doc, err := msgRef.Get(ctx); err == nil {
		if created, ok := doc.Data()["createdAt"].(time.Time); ok {
			sent.CreatedAt = created
		}
	} else {
		logger.Debug("could not read back message %s: %v", msgRef.ID, err)
	}
	return &sent, nil
}

func (r *firestoreChatRepository) Subscribe(ctx context.Context, conversationID string, limit int) (repository.Subscription[[]*entity.Message], error) {
	query := r.messages(conversationID).OrderBy("createdAt", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}
	return &messageSubscription{
		ctx:            ctx,
		conversationID: conversationID,
		it:             query.Snapshots(ctx),
	}, nil
}

func (r *firestoreChatRepository) MarkRead(ctx context.Context, conversationID string, messageIDs []string) error {
	for start := 0; start < len(messageIDs); start += maxWritesPerTransaction {
		end := start + maxWritesPerTransaction
		if end > len(messageIDs) {
			end = len(messageIDs)
		}
		chunk := messageIDs[start:end]

		err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			for _, id := range chunk {
				if err := tx.Update(r.messages(conversationID).Doc(id), []firestore.Update{
					{Path: "isRead", Value: true},
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			logger.WithFields(logger.Fields{"conversation_id": conversationID, "count": len(chunk)}).
				Errorf("mark read failed: %v", err)
			return errors.FromStore("mark messages read", err)
		}
	}
	return nil
}

func (r *firestoreChatRepository) SetTyping(ctx context.Context, conversationID, userID string, entry entity.TypingEntry) error {
	_, err := r.conversation(conversationID).Set(ctx, map[string]interface{}{
		"typing": map[string]interface{}{
			userID: map[string]interface{}{
				"displayName": entry.DisplayName,
				"timestamp":   entry.Timestamp,
			},
		},
	}, firestore.MergeAll)
	if err != nil {
		return errors.FromStore("set typing", err)
	}
	return nil
}

func (r *firestoreChatRepository) ClearTyping(ctx context.Context, conversationID, userID string) error {
	_, err := r.conversation(conversationID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"typing", userID}, Value: firestore.Delete},
	})
	if status.Code(err) == codes.NotFound {
		// No conversation document means there is no flag to clear.
		return nil
	}
	if err != nil {
		return errors.FromStore("clear typing", err)
	}
	return nil
}

func (r *firestoreChatRepository) SubscribeConversation(ctx context.Context, conversationID string) (repository.Subscription[*entity.Conversation], error) {
	return &conversationSubscription{
		ctx:            ctx,
		conversationID: conversationID,
		it:             r.conversation(conversationID).Snapshots(ctx),
	}, nil
}

func (r *firestoreChatRepository) SubscribeByParticipant(ctx context.Context, userID string) (repository.Subscription[[]*entity.Conversation], error) {
	query := r.client.Collection(chatsCollection).
		Where("participants", "array-contains", userID).
		OrderBy("lastMessage.createdAt", firestore.Desc)
	return &conversationListSubscription{
		ctx:    ctx,
		userID: userID,
		it:     query.Snapshots(ctx),
	}, nil
}

// closedOr turns iterator shutdown and context cancellation into
// ErrSubscriptionClosed and classifies everything else.
func closedOr(ctx context.Context, op string, err error) error {
	if stderrors.Is(err, iterator.Done) || ctx.Err() != nil || status.Code(err) == codes.Canceled {
		return repository.ErrSubscriptionClosed
	}
	return errors.FromStore(op, err)
}

type messageSubscription struct {
	ctx            context.Context
	conversationID string
	it             *firestore.QuerySnapshotIterator
}

func (s *messageSubscription) Next() ([]*entity.Message, error) {
	snap, err := s.it.Next()
	if err != nil {
		return nil, closedOr(s.ctx, "subscribe messages", err)
	}
	docs, err := snap.Documents.GetAll()
	if err != nil {
		return nil, closedOr(s.ctx, "read message snapshot", err)
	}

	messages := make([]*entity.Message, 0, len(docs))
	for _, doc := range docs {
		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			logger.Warn("skipping undecodable message %s in chat %s: %v", doc.Ref.ID, s.conversationID, err)
			continue
		}
		message.ID = doc.Ref.ID
		message.ConversationID = s.conversationID
		messages = append(messages, &message)
	}
	return messages, nil
}

func (s *messageSubscription) Stop() {
	s.it.Stop()
}

type conversationSubscription struct {
	ctx            context.Context
	conversationID string
	it             *firestore.DocumentSnapshotIterator
}

func (s *conversationSubscription) Next() (*entity.Conversation, error) {
	snap, err := s.it.Next()
	if err != nil {
		return nil, closedOr(s.ctx, "subscribe conversation", err)
	}

	conv := &entity.Conversation{ID: s.conversationID}
	if !snap.Exists() {
		return conv, nil
	}
	if err := snap.DataTo(conv); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}
	conv.ID = s.conversationID
	return conv, nil
}

func (s *conversationSubscription) Stop() {
	s.it.Stop()
}

type conversationListSubscription struct {
	ctx    context.Context
	userID string
	it     *firestore.QuerySnapshotIterator
}

func (s *conversationListSubscription) Next() ([]*entity.Conversation, error) {
	snap, err := s.it.Next()
	if err != nil {
		return nil, closedOr(s.ctx, "subscribe chat list", err)
	}
	docs, err := snap.Documents.GetAll()
	if err != nil {
		return nil, closedOr(s.ctx, "read chat list snapshot", err)
	}

	convs := make([]*entity.Conversation, 0, len(docs))
	for _, doc := range docs {
		var conv entity.Conversation
		if err := doc.DataTo(&conv); err != nil {
			logger.Warn("skipping undecodable chat %s for user %s: %v", doc.Ref.ID, s.userID, err)
			continue
		}
		conv.ID = doc.Ref.ID
		convs = append(convs, &conv)
	}
	return convs, nil
}

func (s *conversationListSubscription) Stop() {
	s.it.Stop()
}
