package usecase

import (
	"context"
	"sort"

	"cuidar/internal/domain/entity"
	"cuidar/internal/domain/repository"
	"cuidar/internal/domain/service"
	"cuidar/pkg/errors"
	"cuidar/pkg/logger"
)

type ChatListUseCase struct {
	convRepo repository.ConversationRepository
	rooms    service.ChatRooms
}

func NewChatListUseCase(convRepo repository.ConversationRepository, rooms service.ChatRooms) *ChatListUseCase {
	return &ChatListUseCase{
		convRepo: convRepo,
		rooms:    rooms,
	}
}

// ChatListEvent is one emission of the list. A non-nil Err is terminal.
type ChatListEvent struct {
	Rows []entity.ChatListRow
	Err  error
}

// Watch streams userID's direct conversations, most recent first.
func (uc *ChatListUseCase) Watch(ctx context.Context, userID string) (<-chan ChatListEvent, error) {
	if userID == "" {
		return nil, errors.Validation("user id is required")
	}
	sub, err := uc.convRepo.SubscribeByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make(chan ChatListEvent, 1)
	go func() {
		defer close(out)
		defer sub.Stop()

		for {
			convs, err := sub.Next()
			if err != nil {
				if err != repository.ErrSubscriptionClosed {
					logger.Error("chat list for %s failed: %v", userID, err)
					select {
					case out <- ChatListEvent{Err: err}:
					case <-ctx.Done():
					}
				}
				return
			}
			select {
			case out <- ChatListEvent{Rows: uc.Rows(convs, userID)}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Rows turns conversation documents into list rows. Documents without a
// lastMessage or without the peer's participantInfo are skipped, as is the
// group room.
func (uc *ChatListUseCase) Rows(convs []*entity.Conversation, userID string) []entity.ChatListRow {
	rows := make([]entity.ChatListRow, 0, len(convs))
	for _, conv := range convs {
		if conv.Type == entity.ConversationTypeGroup || uc.rooms.IsGroup(conv.ID) {
			continue
		}
		if conv.LastMessage == nil {
			logger.Warn("chat list: skipping %s without lastMessage", conv.ID)
			continue
		}
		otherID, info, ok := conv.OtherParticipant(userID)
		if !ok {
			logger.Warn("chat list: skipping %s, no participant info for peer of %s", conv.ID, userID)
			continue
		}
		rows = append(rows, entity.ChatListRow{
			ConversationID: conv.ID,
			OtherUserID:    otherID,
			Other:          info,
			LastMessage:    *conv.LastMessage,
		})
	}

	// The query already orders by lastMessage.createdAt; a pending server
	// timestamp can still arrive out of order in a local snapshot.
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].LastMessage.CreatedAt.After(rows[j].LastMessage.CreatedAt)
	})
	return rows
}
