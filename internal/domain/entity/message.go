package entity

import "time"

// Message is one entry of a conversation's append-only log. Only IsRead ever
// changes after creation, and only from false to true.
type Message struct {
	ID             string     `json:"id" firestore:"id"`
	ConversationID string     `json:"conversation_id" firestore:"conversationId"`
	Text           string     `json:"text" firestore:"text"`
	SenderID       string     `json:"sender_id" firestore:"senderId"`
	RecipientID    string     `json:"recipient_id,omitempty" firestore:"recipientId,omitempty"`
	User           *GroupUser `json:"user,omitempty" firestore:"user,omitempty"`
	CreatedAt      time.Time  `json:"created_at" firestore:"createdAt"`
	IsRead         bool       `json:"is_read" firestore:"isRead"`
}

// GroupUser is the sender snapshot carried by group room messages.
type GroupUser struct {
	ID     string `json:"id" firestore:"id"`
	Name   string `json:"name" firestore:"name"`
	Avatar string `json:"avatar,omitempty" firestore:"avatar,omitempty"`
}

// IsUnreadFor reports whether readerID is the 1:1 recipient of a message it has
// not read yet. Senders never qualify, and group messages have no recipient.
func (m *Message) IsUnreadFor(readerID string) bool {
	return !m.IsRead &&
		m.SenderID != readerID &&
		m.RecipientID != "" &&
		m.RecipientID == readerID
}
