package entity

import (
	"sort"
	"time"
)

const (
	ConversationTypeDirect = "direct"
	ConversationTypeGroup  = "group"
)

// Conversation is one chat room document. Every field is written with merge
// semantics because all participants write to it concurrently.
type Conversation struct {
	ID              string                     `json:"id" firestore:"id"`
	Type            string                     `json:"type" firestore:"type"`
	Participants    []string                   `json:"participants" firestore:"participants"`
	ParticipantInfo map[string]ParticipantInfo `json:"participant_info" firestore:"participantInfo"`
	LastMessage     *LastMessage               `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	Typing          map[string]TypingEntry     `json:"typing,omitempty" firestore:"typing,omitempty"`
}

type ParticipantInfo struct {
	DisplayName string `json:"display_name" firestore:"displayName"`
	AvatarURL   string `json:"avatar_url,omitempty" firestore:"avatarURL"`
}

// LastMessage is the denormalized copy of the newest message, written in the
// same transaction as the message itself.
type LastMessage struct {
	Text      string    `json:"text" firestore:"text"`
	SenderID  string    `json:"sender_id" firestore:"senderId"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
}

// TypingEntry means the user was typing as of Timestamp. Absence of the entry
// is the canonical "not typing" signal.
type TypingEntry struct {
	DisplayName string    `json:"display_name" firestore:"displayName"`
	Timestamp   time.Time `json:"timestamp" firestore:"timestamp"`
}

// Typer is one row of the active-typer set shown to a reader.
type Typer struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Since       time.Time `json:"since"`
}

// ActiveTypers returns the entries younger than window, excluding the reader.
// Stale entries are dropped even if their writer never deleted them.
func ActiveTypers(typing map[string]TypingEntry, readerID string, now time.Time, window time.Duration) []Typer {
	typers := make([]Typer, 0, len(typing))
	for userID, entry := range typing {
		if userID == readerID {
			continue
		}
		age := now.Sub(entry.Timestamp)
		if entry.Timestamp.IsZero() || age > window {
			continue
		}
		typers = append(typers, Typer{
			UserID:      userID,
			DisplayName: entry.DisplayName,
			Since:       entry.Timestamp,
		})
	}
	sort.Slice(typers, func(i, j int) bool {
		if typers[i].DisplayName != typers[j].DisplayName {
			return typers[i].DisplayName < typers[j].DisplayName
		}
		return typers[i].UserID < typers[j].UserID
	})
	return typers
}

// OtherParticipant resolves the 1:1 peer of selfID from ParticipantInfo. The
// second return is false when the document lacks the denormalized data.
func (c *Conversation) OtherParticipant(selfID string) (string, ParticipantInfo, bool) {
	for _, id := range c.Participants {
		if id == selfID {
			continue
		}
		info, ok := c.ParticipantInfo[id]
		if !ok {
			return id, ParticipantInfo{}, false
		}
		return id, info, true
	}
	return "", ParticipantInfo{}, false
}
