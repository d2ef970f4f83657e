package handler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"firebase.google.com/go/v4/auth"

	"cuidar/internal/domain/entity"
	"cuidar/internal/domain/repository"
	"cuidar/pkg/errors"
)

// tokens maps bearer tokens to user ids.
type fakeVerifier map[string]string

func (v fakeVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	uid, ok := v[idToken]
	if !ok {
		return nil, fmt.Errorf("unknown token")
	}
	return &auth.Token{UID: uid}, nil
}

type idleSub[T any] struct {
	ctx  context.Context
	done chan struct{}
	once sync.Once
}

func newIdleSub[T any](ctx context.Context) *idleSub[T] {
	return &idleSub[T]{ctx: ctx, done: make(chan struct{})}
}

func (s *idleSub[T]) Next() (T, error) {
	var zero T
	select {
	case <-s.done:
	case <-s.ctx.Done():
	}
	return zero, repository.ErrSubscriptionClosed
}

func (s *idleSub[T]) Stop() {
	s.once.Do(func() { close(s.done) })
}

// failedSub reports err once, the way a listener rejected by security rules
// does.
type failedSub[T any] struct {
	err error
}

func (s failedSub[T]) Next() (T, error) {
	var zero T
	return zero, s.err
}

func (s failedSub[T]) Stop() {}

type fakeUsers struct {
	mu       sync.Mutex
	profiles map[string]*entity.Profile
	tokens   map[string]string
}

func newFakeUsers(profiles ...*entity.Profile) *fakeUsers {
	u := &fakeUsers{profiles: map[string]*entity.Profile{}, tokens: map[string]string{}}
	for _, p := range profiles {
		u.profiles[p.ID] = p
	}
	return u
}

func (u *fakeUsers) GetByID(_ context.Context, id string) (*entity.Profile, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	p, ok := u.profiles[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	cp := *p
	return &cp, nil
}

func (u *fakeUsers) UpdatePushToken(_ context.Context, id, token string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tokens[id] = token
	return nil
}

func (u *fakeUsers) UpdateAvatar(_ context.Context, id, avatarURL string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if p, ok := u.profiles[id]; ok {
		p.AvatarURL = avatarURL
	}
	return nil
}

func (u *fakeUsers) UpdatePresence(context.Context, entity.Presence) error { return nil }

// fakeChats stores sends and serves subscriptions that never produce a
// snapshot.
type fakeChats struct {
	mu   sync.Mutex
	sent []*entity.Message

	// sendErr fails every Send.
	sendErr error

	// feedErr and listErr fail the first message feed and the first chat
	// list subscription; later ones stay idle.
	feedErr  error
	listErr  error
	feedSubs int
	listSubs int
}

func (f *fakeChats) Send(_ context.Context, batch repository.SendBatch) (*entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	m := *batch.Message
	m.ID = fmt.Sprintf("m%d", len(f.sent)+1)
	m.CreatedAt = time.Now()
	f.sent = append(f.sent, &m)
	return &m, nil
}

func (f *fakeChats) Sent() []*entity.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*entity.Message(nil), f.sent...)
}

func (f *fakeChats) Subscribe(ctx context.Context, _ string, _ int) (repository.Subscription[[]*entity.Message], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedSubs++
	if f.feedSubs == 1 && f.feedErr != nil {
		return failedSub[[]*entity.Message]{err: f.feedErr}, nil
	}
	return newIdleSub[[]*entity.Message](ctx), nil
}

func (f *fakeChats) FeedSubscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.feedSubs
}

func (f *fakeChats) ListSubscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listSubs
}

func (f *fakeChats) MarkRead(context.Context, string, []string) error { return nil }

func (f *fakeChats) SetTyping(context.Context, string, string, entity.TypingEntry) error { return nil }

func (f *fakeChats) ClearTyping(context.Context, string, string) error { return nil }

func (f *fakeChats) SubscribeConversation(ctx context.Context, _ string) (repository.Subscription[*entity.Conversation], error) {
	return newIdleSub[*entity.Conversation](ctx), nil
}

func (f *fakeChats) SubscribeByParticipant(ctx context.Context, _ string) (repository.Subscription[[]*entity.Conversation], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listSubs++
	if f.listSubs == 1 && f.listErr != nil {
		return failedSub[[]*entity.Conversation]{err: f.listErr}, nil
	}
	return newIdleSub[[]*entity.Conversation](ctx), nil
}

type fakeStorage struct {
	uploads []string
}

func (s *fakeStorage) UploadFile(_ context.Context, file io.Reader, fileType, folder string, _ bool) (string, error) {
	if _, err := io.ReadAll(file); err != nil {
		return "", err
	}
	url := "https://storage.googleapis.com/test/public/" + folder + "/avatar.png"
	s.uploads = append(s.uploads, url)
	return url, nil
}

func (s *fakeStorage) DeleteFile(context.Context, string) error { return nil }
