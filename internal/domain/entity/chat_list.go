package entity

// ChatListRow is one line of a user's conversation list.
type ChatListRow struct {
	ConversationID string          `json:"conversation_id"`
	OtherUserID    string          `json:"other_user_id"`
	Other          ParticipantInfo `json:"other"`
	LastMessage    LastMessage     `json:"last_message"`
}
