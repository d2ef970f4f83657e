package usecase

import (
	"testing"
	"time"

	"cuidar/internal/domain/entity"
	"cuidar/internal/domain/service"
)

const eventTimeout = 2 * time.Second

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("channel closed before an event arrived")
		}
		return v
	case <-time.After(eventTimeout):
		t.Fatal("timed out waiting for an event")
	}
	var zero T
	return zero
}

// recvUntil drains ch until match accepts an event.
func recvUntil[T any](t *testing.T, ch <-chan T, match func(T) bool) T {
	t.Helper()
	deadline := time.After(eventTimeout)
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				t.Fatal("channel closed before a matching event arrived")
			}
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for a matching event")
		}
	}
}

func patient() *entity.Profile {
	return &entity.Profile{ID: "u1", DisplayName: "Ana", AvatarURL: "https://img/ana.png", Role: entity.RolePatient}
}

func doctor() *entity.Profile {
	return &entity.Profile{ID: "d1", DisplayName: "Dr. Silva", Role: entity.RoleDoctor}
}

type testEnv struct {
	store    *fakeChatStore
	users    *fakeUserRepo
	typing   *TypingUseCase
	messages *MessageUseCase
	chats    *ChatUseCase
}

func newTestEnv(idle, stale time.Duration) *testEnv {
	store := newFakeChatStore()
	users := newFakeUserRepo(patient(), doctor())
	rooms := service.NewChatRooms("")
	typing := NewTypingUseCase(store, idle, stale)
	messages := NewMessageUseCase(store, typing, rooms, nil, 0)
	return &testEnv{
		store:    store,
		users:    users,
		typing:   typing,
		messages: messages,
		chats:    NewChatUseCase(users, messages, typing, rooms),
	}
}
