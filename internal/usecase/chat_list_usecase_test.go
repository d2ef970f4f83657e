package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cuidar/internal/domain/entity"
	"cuidar/internal/domain/service"
)

func TestChatListOrdersByLastMessage(t *testing.T) {
	env := newTestEnv(0, 0)
	nurse := &entity.Profile{ID: "n1", DisplayName: "Enf. Costa"}
	env.users.profiles[nurse.ID] = nurse
	list := NewChatListUseCase(env.store, service.NewChatRooms(""))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rows, err := list.Watch(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, recv(t, rows).Rows)

	send := func(other *entity.Profile, text string) {
		id, err := service.DirectChatID("u1", other.ID)
		require.NoError(t, err)
		_, err = env.messages.Send(ctx, SendMessageInput{ConversationID: id, Sender: patient(), Recipient: other, Text: text})
		require.NoError(t, err)
	}
	send(doctor(), "A1")
	send(nurse, "B1")
	send(doctor(), "A2")

	event := recvUntil(t, rows, func(e ChatListEvent) bool {
		return len(e.Rows) == 2 && e.Rows[0].LastMessage.Text == "A2"
	})
	assert.Equal(t, "chat_d1_u1", event.Rows[0].ConversationID)
	assert.Equal(t, "d1", event.Rows[0].OtherUserID)
	assert.Equal(t, "Dr. Silva", event.Rows[0].Other.DisplayName)
	assert.Equal(t, "chat_n1_u1", event.Rows[1].ConversationID)
	assert.Equal(t, "B1", event.Rows[1].LastMessage.Text)
}

func TestChatListSkipsIncompleteDocuments(t *testing.T) {
	list := NewChatListUseCase(newFakeChatStore(), service.NewChatRooms(""))
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	convs := []*entity.Conversation{
		{
			ID:           "chat_d1_u1",
			Participants: []string{"u1", "d1"},
			ParticipantInfo: map[string]entity.ParticipantInfo{
				"u1": {DisplayName: "Ana"},
				"d1": {DisplayName: "Dr. Silva"},
			},
			LastMessage: &entity.LastMessage{Text: "ok", SenderID: "d1", CreatedAt: at},
		},
		{
			ID:              "chat_n1_u1",
			Participants:    []string{"u1", "n1"},
			ParticipantInfo: map[string]entity.ParticipantInfo{"u1": {DisplayName: "Ana"}},
			LastMessage:     &entity.LastMessage{Text: "no peer info", CreatedAt: at.Add(time.Minute)},
		},
		{
			ID:           "chat_u1_x1",
			Participants: []string{"u1", "x1"},
			ParticipantInfo: map[string]entity.ParticipantInfo{
				"x1": {DisplayName: "X"},
			},
		},
		{
			ID:           service.DefaultGroupRoomID,
			Type:         entity.ConversationTypeGroup,
			Participants: []string{"u1", "d1"},
			LastMessage:  &entity.LastMessage{Text: "group", CreatedAt: at.Add(time.Hour)},
		},
	}

	rows := list.Rows(convs, "u1")
	require.Len(t, rows, 1)
	assert.Equal(t, "chat_d1_u1", rows[0].ConversationID)
	assert.Equal(t, "ok", rows[0].LastMessage.Text)
}

func TestChatListRowsResortPendingTimestamps(t *testing.T) {
	list := NewChatListUseCase(newFakeChatStore(), service.NewChatRooms(""))
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	conv := func(id, other string, when time.Time) *entity.Conversation {
		return &entity.Conversation{
			ID:              id,
			Participants:    []string{"u1", other},
			ParticipantInfo: map[string]entity.ParticipantInfo{other: {DisplayName: other}},
			LastMessage:     &entity.LastMessage{Text: id, CreatedAt: when},
		}
	}

	rows := list.Rows([]*entity.Conversation{
		conv("older", "a", at),
		conv("newer", "b", at.Add(time.Second)),
	}, "u1")
	require.Len(t, rows, 2)
	assert.Equal(t, "newer", rows[0].ConversationID)
	assert.Equal(t, "older", rows[1].ConversationID)
}
