package usecase

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"cuidar/internal/domain/entity"
	"cuidar/internal/domain/repository"
	"cuidar/pkg/errors"
)

type fakeSub[T any] struct {
	ctx  context.Context
	ch   chan T
	done chan struct{}
	once sync.Once
	stop func()
}

func newFakeSub[T any](ctx context.Context, stop func()) *fakeSub[T] {
	return &fakeSub[T]{ctx: ctx, ch: make(chan T, 64), done: make(chan struct{}), stop: stop}
}

func (s *fakeSub[T]) Next() (T, error) {
	var zero T
	select {
	case v := <-s.ch:
		return v, nil
	case <-s.done:
		return zero, repository.ErrSubscriptionClosed
	case <-s.ctx.Done():
		return zero, repository.ErrSubscriptionClosed
	}
}

func (s *fakeSub[T]) Stop() {
	s.once.Do(func() {
		close(s.done)
		if s.stop != nil {
			s.stop()
		}
	})
}

func (s *fakeSub[T]) push(v T) {
	select {
	case s.ch <- v:
	default:
	}
}

type messageWatcher struct {
	sub   *fakeSub[[]*entity.Message]
	limit int
}

// fakeChatStore is an in-memory conversation tree with live snapshots.
type fakeChatStore struct {
	mu       sync.Mutex
	clock    time.Time
	nextID   int
	convs    map[string]*entity.Conversation
	messages map[string][]*entity.Message
	calls    []string

	sendErr      error
	markReadErr  error
	setTypingErr error

	msgSubs  map[string][]*messageWatcher
	convSubs map[string][]*fakeSub[*entity.Conversation]
	listSubs map[string][]*fakeSub[[]*entity.Conversation]
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{
		clock:    time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		convs:    make(map[string]*entity.Conversation),
		messages: make(map[string][]*entity.Message),
		msgSubs:  make(map[string][]*messageWatcher),
		convSubs: make(map[string][]*fakeSub[*entity.Conversation]),
		listSubs: make(map[string][]*fakeSub[[]*entity.Conversation]),
	}
}

var (
	_ repository.MessageRepository      = (*fakeChatStore)(nil)
	_ repository.ConversationRepository = (*fakeChatStore)(nil)
)

func (f *fakeChatStore) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeChatStore) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeChatStore) CountCalls(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (f *fakeChatStore) Conversation(id string) *entity.Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok {
		return nil
	}
	return copyConversation(conv)
}

func (f *fakeChatStore) Messages(convID string) []entity.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entity.Message, 0, len(f.messages[convID]))
	for _, m := range f.messages[convID] {
		out = append(out, *m)
	}
	return out
}

func (f *fakeChatStore) SetSendErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

// Seed writes a message directly, bypassing every rule of Send.
func (f *fakeChatStore) Seed(m entity.Message) *entity.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(time.Second)
	if m.ID == "" {
		f.nextID++
		m.ID = fmt.Sprintf("m%d", f.nextID)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = f.clock
	}
	stored := m
	f.messages[m.ConversationID] = append(f.messages[m.ConversationID], &stored)
	f.notifyMessagesLocked(m.ConversationID)
	return &m
}

func (f *fakeChatStore) SeedConversation(conv entity.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convs[conv.ID] = copyConversation(&conv)
	f.notifyConversationLocked(conv.ID)
}

func (f *fakeChatStore) Send(_ context.Context, batch repository.SendBatch) (*entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg := batch.Message
	f.record("send:%s", msg.ConversationID)
	if f.sendErr != nil {
		return nil, f.sendErr
	}

	f.clock = f.clock.Add(time.Second)
	f.nextID++
	stored := *msg
	stored.ID = fmt.Sprintf("m%d", f.nextID)
	stored.CreatedAt = f.clock
	stored.IsRead = false
	f.messages[msg.ConversationID] = append(f.messages[msg.ConversationID], &stored)

	conv, ok := f.convs[msg.ConversationID]
	if !ok {
		conv = &entity.Conversation{ID: msg.ConversationID, ParticipantInfo: map[string]entity.ParticipantInfo{}}
		f.convs[msg.ConversationID] = conv
	}
	conv.Type = batch.ConversationType
	for _, p := range batch.Participants {
		if !contains(conv.Participants, p) {
			conv.Participants = append(conv.Participants, p)
		}
	}
	if conv.ParticipantInfo == nil {
		conv.ParticipantInfo = map[string]entity.ParticipantInfo{}
	}
	for id, info := range batch.ParticipantInfo {
		conv.ParticipantInfo[id] = info
	}
	conv.LastMessage = &entity.LastMessage{Text: stored.Text, SenderID: stored.SenderID, CreatedAt: stored.CreatedAt}

	f.notifyMessagesLocked(msg.ConversationID)
	f.notifyConversationLocked(msg.ConversationID)

	sent := stored
	return &sent, nil
}

func (f *fakeChatStore) Subscribe(ctx context.Context, conversationID string, limit int) (repository.Subscription[[]*entity.Message], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := &messageWatcher{limit: limit}
	w.sub = newFakeSub[[]*entity.Message](ctx, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.msgSubs[conversationID] = removeWatcher(f.msgSubs[conversationID], w)
	})
	f.msgSubs[conversationID] = append(f.msgSubs[conversationID], w)
	w.sub.push(f.messageSnapshotLocked(conversationID, limit))
	return w.sub, nil
}

func (f *fakeChatStore) MarkRead(_ context.Context, conversationID string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("markRead:%s:%v", conversationID, ids)
	if f.markReadErr != nil {
		return f.markReadErr
	}
	for _, m := range f.messages[conversationID] {
		if contains(ids, m.ID) {
			m.IsRead = true
		}
	}
	f.notifyMessagesLocked(conversationID)
	return nil
}

func (f *fakeChatStore) SetTyping(_ context.Context, conversationID, userID string, entry entity.TypingEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("setTyping:%s:%s", conversationID, userID)
	if f.setTypingErr != nil {
		return f.setTypingErr
	}
	conv, ok := f.convs[conversationID]
	if !ok {
		conv = &entity.Conversation{ID: conversationID}
		f.convs[conversationID] = conv
	}
	if conv.Typing == nil {
		conv.Typing = map[string]entity.TypingEntry{}
	}
	conv.Typing[userID] = entry
	f.notifyConversationLocked(conversationID)
	return nil
}

func (f *fakeChatStore) ClearTyping(_ context.Context, conversationID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("clearTyping:%s:%s", conversationID, userID)
	conv, ok := f.convs[conversationID]
	if !ok {
		return nil
	}
	delete(conv.Typing, userID)
	f.notifyConversationLocked(conversationID)
	return nil
}

func (f *fakeChatStore) SubscribeConversation(ctx context.Context, conversationID string) (repository.Subscription[*entity.Conversation], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var sub *fakeSub[*entity.Conversation]
	sub = newFakeSub[*entity.Conversation](ctx, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.convSubs[conversationID] = removeSub(f.convSubs[conversationID], sub)
	})
	f.convSubs[conversationID] = append(f.convSubs[conversationID], sub)
	sub.push(f.conversationSnapshotLocked(conversationID))
	return sub, nil
}

func (f *fakeChatStore) SubscribeByParticipant(ctx context.Context, userID string) (repository.Subscription[[]*entity.Conversation], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var sub *fakeSub[[]*entity.Conversation]
	sub = newFakeSub[[]*entity.Conversation](ctx, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listSubs[userID] = removeSub(f.listSubs[userID], sub)
	})
	f.listSubs[userID] = append(f.listSubs[userID], sub)
	sub.push(f.listSnapshotLocked(userID))
	return sub, nil
}

func (f *fakeChatStore) messageSnapshotLocked(conversationID string, limit int) []*entity.Message {
	all := f.messages[conversationID]
	out := make([]*entity.Message, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		m := *all[i]
		out = append(out, &m)
	}
	return out
}

func (f *fakeChatStore) conversationSnapshotLocked(id string) *entity.Conversation {
	if conv, ok := f.convs[id]; ok {
		return copyConversation(conv)
	}
	return &entity.Conversation{ID: id}
}

func (f *fakeChatStore) listSnapshotLocked(userID string) []*entity.Conversation {
	var out []*entity.Conversation
	for _, conv := range f.convs {
		if contains(conv.Participants, userID) {
			out = append(out, copyConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return lastAt(out[i]).After(lastAt(out[j]))
	})
	return out
}

func (f *fakeChatStore) notifyMessagesLocked(conversationID string) {
	for _, w := range f.msgSubs[conversationID] {
		w.sub.push(f.messageSnapshotLocked(conversationID, w.limit))
	}
}

func (f *fakeChatStore) notifyConversationLocked(conversationID string) {
	for _, sub := range f.convSubs[conversationID] {
		sub.push(f.conversationSnapshotLocked(conversationID))
	}
	conv := f.convs[conversationID]
	if conv == nil {
		return
	}
	for _, userID := range conv.Participants {
		for _, sub := range f.listSubs[userID] {
			sub.push(f.listSnapshotLocked(userID))
		}
	}
}

func lastAt(c *entity.Conversation) time.Time {
	if c.LastMessage == nil {
		return time.Time{}
	}
	return c.LastMessage.CreatedAt
}

func copyConversation(c *entity.Conversation) *entity.Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	if c.ParticipantInfo != nil {
		out.ParticipantInfo = make(map[string]entity.ParticipantInfo, len(c.ParticipantInfo))
		for k, v := range c.ParticipantInfo {
			out.ParticipantInfo[k] = v
		}
	}
	if c.Typing != nil {
		out.Typing = make(map[string]entity.TypingEntry, len(c.Typing))
		for k, v := range c.Typing {
			out.Typing[k] = v
		}
	}
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	return &out
}

func removeWatcher(list []*messageWatcher, w *messageWatcher) []*messageWatcher {
	for i, x := range list {
		if x == w {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func removeSub[T any](list []*fakeSub[T], sub *fakeSub[T]) []*fakeSub[T] {
	for i, x := range list {
		if x == sub {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

type fakeUserRepo struct {
	mu        sync.Mutex
	profiles  map[string]*entity.Profile
	presence  []entity.Presence
	tokens    map[string]string
	avatars   map[string]string
	updateErr error
}

func newFakeUserRepo(profiles ...*entity.Profile) *fakeUserRepo {
	r := &fakeUserRepo{
		profiles: make(map[string]*entity.Profile),
		tokens:   make(map[string]string),
		avatars:  make(map[string]string),
	}
	for _, p := range profiles {
		r.profiles[p.ID] = p
	}
	return r
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*entity.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	cp := *p
	return &cp, nil
}

func (r *fakeUserRepo) UpdatePushToken(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.tokens[id] = token
	return nil
}

func (r *fakeUserRepo) UpdateAvatar(_ context.Context, id, avatarURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.avatars[id] = avatarURL
	if p, ok := r.profiles[id]; ok {
		p.AvatarURL = avatarURL
	}
	return nil
}

func (r *fakeUserRepo) UpdatePresence(_ context.Context, p entity.Presence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.presence = append(r.presence, p)
	return nil
}

func (r *fakeUserRepo) PresenceUpdates() []entity.Presence {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entity.Presence(nil), r.presence...)
}

// fakePresenceChannel tracks live connections per user in memory.
type fakePresenceChannel struct {
	mu      sync.Mutex
	conns   map[string]map[string]bool
	records map[string]entity.Presence
	touches int
	offline int
	subs    map[string][]*fakeSub[entity.Presence]
}

func newFakePresenceChannel() *fakePresenceChannel {
	return &fakePresenceChannel{
		conns:   make(map[string]map[string]bool),
		records: make(map[string]entity.Presence),
		subs:    make(map[string][]*fakeSub[entity.Presence]),
	}
}

var _ repository.PresenceChannel = (*fakePresenceChannel)(nil)

func (c *fakePresenceChannel) SetOnline(_ context.Context, userID, connID string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conns[userID] == nil {
		c.conns[userID] = make(map[string]bool)
	}
	c.conns[userID][connID] = true
	c.setLocked(entity.Presence{UserID: userID, IsOnline: true, LastSeen: at})
	return nil
}

func (c *fakePresenceChannel) SetOffline(_ context.Context, userID, connID string, at time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offline++
	delete(c.conns[userID], connID)
	if len(c.conns[userID]) > 0 {
		return false, nil
	}
	c.setLocked(entity.Presence{UserID: userID, IsOnline: false, LastSeen: at})
	return true, nil
}

func (c *fakePresenceChannel) Touch(_ context.Context, userID, connID string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touches++
	rec := c.records[userID]
	rec.UserID, rec.LastSeen = userID, at
	c.records[userID] = rec
	return nil
}

func (c *fakePresenceChannel) Get(_ context.Context, userID string) (entity.Presence, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[userID]
	if !ok {
		return entity.Presence{UserID: userID}, nil
	}
	return rec, nil
}

func (c *fakePresenceChannel) Subscribe(ctx context.Context, userID string) (repository.Subscription[entity.Presence], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sub *fakeSub[entity.Presence]
	sub = newFakeSub[entity.Presence](ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.subs[userID] = removeSub(c.subs[userID], sub)
	})
	c.subs[userID] = append(c.subs[userID], sub)
	rec, ok := c.records[userID]
	if !ok {
		rec = entity.Presence{UserID: userID}
	}
	sub.push(rec)
	return sub, nil
}

func (c *fakePresenceChannel) Touches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.touches
}

func (c *fakePresenceChannel) OfflineCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offline
}

func (c *fakePresenceChannel) setLocked(p entity.Presence) {
	c.records[p.UserID] = p
	for _, sub := range c.subs[p.UserID] {
		sub.push(p)
	}
}

type fakeStorage struct {
	mu        sync.Mutex
	uploads   []string
	deleted   []string
	uploadErr error
}

func (s *fakeStorage) UploadFile(_ context.Context, file io.Reader, fileType, folder string, isPublic bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	if _, err := io.ReadAll(file); err != nil {
		return "", err
	}
	url := fmt.Sprintf("https://storage.googleapis.com/test-bucket/public/%s/%d.img", folder, len(s.uploads)+1)
	s.uploads = append(s.uploads, url)
	return url, nil
}

func (s *fakeStorage) DeleteFile(_ context.Context, fileURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, fileURL)
	return nil
}
