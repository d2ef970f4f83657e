package handler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	ws "cuidar/internal/infrastructure/websocket"
	"cuidar/internal/usecase"
	"cuidar/pkg/errors"
	"cuidar/pkg/logger"
	"cuidar/pkg/response"
)

// wsSession is the server side of one connected app: its open chat screens,
// its live subscriptions and its presence.
type wsSession struct {
	h      *WebSocketHandler
	client *ws.Client
	userID string

	ctx    context.Context
	cancel context.CancelFunc

	presence *usecase.PresenceSession

	mu            sync.Mutex
	screens       map[string]*usecase.ChatScreen
	chatList      *watch
	presenceWatch map[string]*watch
	closed        bool
}

// watch is one live subscription. Its pointer identifies it, so a forwarder
// whose stream died only clears its own entry.
type watch struct {
	cancel context.CancelFunc
}

func newWSSession(h *WebSocketHandler, client *ws.Client) *wsSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &wsSession{
		h:             h,
		client:        client,
		userID:        client.UserID,
		ctx:           ctx,
		cancel:        cancel,
		screens:       make(map[string]*usecase.ChatScreen),
		presenceWatch: make(map[string]*watch),
	}
}

// start marks the user online. A presence failure never blocks chatting.
func (s *wsSession) start() {
	if s.h.presenceUseCase == nil {
		return
	}
	presence, err := s.h.presenceUseCase.Connect(s.ctx, s.userID)
	if err != nil {
		logger.Warn("presence unavailable for %s: %v", s.userID, err)
		return
	}
	s.presence = presence
}

// close is the disconnect hook: every screen and subscription ends and the
// connection's presence is released.
func (s *wsSession) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	screens := s.screens
	s.screens = make(map[string]*usecase.ChatScreen)
	s.mu.Unlock()

	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, screen := range screens {
		screen.Close(cleanupCtx)
	}

	s.cancel()
	if s.presence != nil {
		s.presence.Disconnect()
	}
	logger.WithFields(logger.Fields{"user_id": s.userID, "conn_id": s.client.ID, "screens": len(screens)}).
		Debug("websocket session closed")
}

func (s *wsSession) handle(raw []byte) {
	var in ws.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		s.sendError("", errors.BadRequest("invalid frame", err))
		return
	}

	var err error
	switch in.Type {
	case ws.MessageTypePing:
		s.client.SendFrame(ws.MessageTypePong, "", nil)
	case ws.MessageTypeOpenChat:
		err = s.openChat(in)
	case ws.MessageTypeCloseChat:
		err = s.closeChat(in.ChatID)
	case ws.MessageTypeInputChanged:
		err = s.withScreen(in.ChatID, func(screen *usecase.ChatScreen) error {
			return screen.OnInputChanged(s.ctx, in.Text)
		})
	case ws.MessageTypeInputBlur:
		err = s.withScreen(in.ChatID, func(screen *usecase.ChatScreen) error {
			return screen.Blur(s.ctx)
		})
	case ws.MessageTypeSendMessage:
		err = s.sendMessage(in)
	case ws.MessageTypeSubscribeChatList:
		err = s.subscribeChatList()
	case ws.MessageTypeUnsubscribeChatList:
		s.unsubscribeChatList()
	case ws.MessageTypeSubscribePresence:
		err = s.subscribePresence(in.UserID)
	case ws.MessageTypeUnsubscribePresence:
		s.unsubscribePresence(in.UserID)
	case ws.MessageTypeAppForeground:
		if s.presence != nil {
			err = s.presence.Foreground(s.ctx)
		}
	case ws.MessageTypeAppBackground:
		if s.presence != nil {
			err = s.presence.Background(s.ctx)
		}
	default:
		err = errors.BadRequest("unsupported frame type "+in.Type, nil)
	}

	if err != nil {
		s.sendError(in.RequestID, err)
	}
}

func (s *wsSession) sendError(requestID string, err error) {
	info, _ := response.Describe(err)
	s.client.SendFrame(ws.MessageTypeError, "", ws.ErrorData{
		RequestID: requestID,
		Code:      info.Code,
		Message:   info.Message,
	})
}

func (s *wsSession) openChat(in ws.Inbound) error {
	resolved, err := s.h.chatUseCase.Resolve(s.userID, in.OtherUserID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	existing, open := s.screens[resolved.ConversationID]
	s.mu.Unlock()
	if open {
		s.sendOpened(existing)
		return nil
	}

	screen, err := s.h.chatUseCase.Open(s.ctx, usecase.OpenChatInput{UserID: s.userID, OtherUserID: in.OtherUserID})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, raced := s.screens[screen.ConversationID]; raced || s.closed {
		s.mu.Unlock()
		screen.Close(s.ctx)
		return nil
	}
	s.screens[screen.ConversationID] = screen
	s.mu.Unlock()

	s.sendOpened(screen)
	go s.forwardMessages(screen)
	go s.forwardTypers(screen)
	return nil
}

// dropScreen closes a screen whose feed has ended so that the next open_chat
// subscribes again instead of handing back a dead screen.
func (s *wsSession) dropScreen(screen *usecase.ChatScreen) {
	s.mu.Lock()
	current, ok := s.screens[screen.ConversationID]
	if ok && current == screen {
		delete(s.screens, screen.ConversationID)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	screen.Close(ctx)
}

func (s *wsSession) sendOpened(screen *usecase.ChatScreen) {
	data := ws.ChatOpenedData{ChatID: screen.ConversationID, Type: screen.Type}
	if screen.Other != nil {
		info := screen.Other.Info()
		data.Other = &info
		data.OtherUserID = screen.Other.ID
	}
	s.client.SendFrame(ws.MessageTypeChatOpened, screen.ConversationID, data)
	s.client.SendFrame(ws.MessageTypeDraft, screen.ConversationID, ws.DraftData{
		ChatID: screen.ConversationID,
		Text:   screen.Draft(),
	})
}

func (s *wsSession) closeChat(chatID string) error {
	s.mu.Lock()
	screen, ok := s.screens[chatID]
	delete(s.screens, chatID)
	s.mu.Unlock()

	if !ok {
		return errors.NotFound("Open chat", nil)
	}
	screen.Close(s.ctx)
	return nil
}

func (s *wsSession) withScreen(chatID string, fn func(*usecase.ChatScreen) error) error {
	s.mu.Lock()
	screen, ok := s.screens[chatID]
	s.mu.Unlock()
	if !ok {
		return errors.NotFound("Open chat", nil)
	}
	return fn(screen)
}

func (s *wsSession) sendMessage(in ws.Inbound) error {
	return s.withScreen(in.ChatID, func(screen *usecase.ChatScreen) error {
		message, err := screen.SendMessage(s.ctx, in.Text)
		if err != nil {
			info, _ := response.Describe(err)
			s.client.SendFrame(ws.MessageTypeSendFailed, in.ChatID, ws.SendFailedData{
				RequestID: in.RequestID,
				ChatID:    in.ChatID,
				Text:      in.Text,
				Code:      info.Code,
				Message:   info.Message,
				Retryable: errors.IsTransient(err),
			})
			s.client.SendFrame(ws.MessageTypeDraft, in.ChatID, ws.DraftData{ChatID: in.ChatID, Text: screen.Draft()})
			return nil
		}
		s.client.SendFrame(ws.MessageTypeMessageSent, in.ChatID, ws.MessageSentData{
			RequestID: in.RequestID,
			Message:   message,
		})
		return nil
	})
}

func (s *wsSession) forwardMessages(screen *usecase.ChatScreen) {
	defer s.dropScreen(screen)
	for event := range screen.Messages {
		if event.Err != nil {
			s.sendError("", event.Err)
			continue
		}
		s.client.SendFrame(ws.MessageTypeMessages, screen.ConversationID, ws.MessagesData{
			ChatID:   screen.ConversationID,
			Messages: event.Messages,
		})
	}
}

func (s *wsSession) forwardTypers(screen *usecase.ChatScreen) {
	defer s.dropScreen(screen)
	for event := range screen.Typers {
		if event.Err != nil {
			s.sendError("", event.Err)
			continue
		}
		s.client.SendFrame(ws.MessageTypeTyping, screen.ConversationID, ws.TypingData{
			ChatID: screen.ConversationID,
			Typers: event.Typers,
		})
	}
}

func (s *wsSession) subscribeChatList() error {
	s.mu.Lock()
	if s.chatList != nil || s.closed {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(s.ctx)
	w := &watch{cancel: cancel}
	s.chatList = w
	s.mu.Unlock()

	events, err := s.h.chatListUseCase.Watch(ctx, s.userID)
	if err != nil {
		s.endChatList(w)
		return err
	}

	go func() {
		defer s.endChatList(w)
		for event := range events {
			if event.Err != nil {
				s.sendError("", event.Err)
				continue
			}
			s.client.SendFrame(ws.MessageTypeChatList, "", ws.ChatListData{Rows: event.Rows})
		}
	}()
	return nil
}

func (s *wsSession) unsubscribeChatList() {
	s.mu.Lock()
	w := s.chatList
	s.chatList = nil
	s.mu.Unlock()
	if w != nil {
		w.cancel()
	}
}

func (s *wsSession) endChatList(w *watch) {
	s.mu.Lock()
	if s.chatList == w {
		s.chatList = nil
	}
	s.mu.Unlock()
	w.cancel()
}

func (s *wsSession) subscribePresence(userID string) error {
	if s.h.presenceUseCase == nil {
		return errors.Unavailable("presence is not available", nil)
	}
	if userID == "" {
		return errors.Validation("user_id is required")
	}

	s.mu.Lock()
	if _, ok := s.presenceWatch[userID]; ok || s.closed {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(s.ctx)
	w := &watch{cancel: cancel}
	s.presenceWatch[userID] = w
	s.mu.Unlock()

	events, err := s.h.presenceUseCase.Watch(ctx, userID)
	if err != nil {
		s.endPresence(userID, w)
		return err
	}

	go func() {
		defer s.endPresence(userID, w)
		for event := range events {
			if event.Err != nil {
				s.sendError("", event.Err)
				continue
			}
			s.client.SendFrame(ws.MessageTypePresence, "", ws.NewPresenceData(event.Presence, time.Now()))
		}
	}()
	return nil
}

func (s *wsSession) unsubscribePresence(userID string) {
	s.mu.Lock()
	w, ok := s.presenceWatch[userID]
	delete(s.presenceWatch, userID)
	s.mu.Unlock()
	if ok {
		w.cancel()
	}
}

func (s *wsSession) endPresence(userID string, w *watch) {
	s.mu.Lock()
	if s.presenceWatch[userID] == w {
		delete(s.presenceWatch, userID)
	}
	s.mu.Unlock()
	w.cancel()
}
