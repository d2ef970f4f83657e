package websocket

import (
	"time"

	"cuidar/internal/domain/entity"
)

// Client frame types
const (
	MessageTypePing                = "ping"
	MessageTypeOpenChat            = "open_chat"
	MessageTypeCloseChat           = "close_chat"
	MessageTypeInputChanged        = "input_changed"
	MessageTypeInputBlur           = "input_blur"
	MessageTypeSendMessage         = "send_message"
	MessageTypeSubscribeChatList   = "subscribe_chat_list"
	MessageTypeUnsubscribeChatList = "unsubscribe_chat_list"
	MessageTypeSubscribePresence   = "subscribe_presence"
	MessageTypeUnsubscribePresence = "unsubscribe_presence"
	MessageTypeAppForeground       = "app_foreground"
	MessageTypeAppBackground       = "app_background"
)

// Server frame types
const (
	MessageTypePong        = "pong"
	MessageTypeChatOpened  = "chat_opened"
	MessageTypeMessages    = "messages"
	MessageTypeTyping      = "typing"
	MessageTypeChatList    = "chat_list"
	MessageTypePresence    = "presence"
	MessageTypeDraft       = "draft"
	MessageTypeMessageSent = "message_sent"
	MessageTypeSendFailed  = "send_failed"
	MessageTypeProfile     = "profile"
	MessageTypeError       = "error"
)

// WSMessage is the envelope of every server frame.
type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	ChatID    string      `json:"chat_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// Inbound is the envelope of every client frame. Fields a type does not use
// are ignored.
type Inbound struct {
	Type        string `json:"type"`
	RequestID   string `json:"request_id,omitempty"`
	ChatID      string `json:"chat_id,omitempty"`
	OtherUserID string `json:"other_user_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Text        string `json:"text,omitempty"`
}

type ChatOpenedData struct {
	ChatID string                  `json:"chat_id"`
	Type   string                  `json:"type"`
	Other  *entity.ParticipantInfo `json:"other,omitempty"`
	// OtherUserID is empty in the group room.
	OtherUserID string `json:"other_user_id,omitempty"`
}

type MessagesData struct {
	ChatID   string            `json:"chat_id"`
	Messages []*entity.Message `json:"messages"`
}

type TypingData struct {
	ChatID string         `json:"chat_id"`
	Typers []entity.Typer `json:"typers"`
}

type ChatListData struct {
	Rows []entity.ChatListRow `json:"rows"`
}

type PresenceData struct {
	UserID   string    `json:"user_id"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen,omitempty"`
	// Status is rendered at send time; clients re-render from LastSeen.
	Status string `json:"status"`
}

type DraftData struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type MessageSentData struct {
	RequestID string          `json:"request_id,omitempty"`
	Message   *entity.Message `json:"message"`
}

type SendFailedData struct {
	RequestID string `json:"request_id,omitempty"`
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	// Retryable is set when the backend was unreachable and the same text can
	// be sent again.
	Retryable bool `json:"retryable"`
}

type ErrorData struct {
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func NewPresenceData(p entity.Presence, now time.Time) PresenceData {
	return PresenceData{
		UserID:   p.UserID,
		IsOnline: p.IsOnline,
		LastSeen: p.LastSeen,
		Status:   p.Describe(now),
	}
}
