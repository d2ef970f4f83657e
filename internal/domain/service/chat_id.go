package service

import (
	"strings"

	"cuidar/pkg/errors"
)

const (
	directChatPrefix = "chat"
	chatIDSeparator  = "_"
)

// DefaultGroupRoomID is the fixed identifier of the nearby group room.
const DefaultGroupRoomID = "chat_group_nearby"

// DirectChatID derives the conversation id for a pair of users. Both clients
// compute the same id regardless of argument order, so neither needs a lookup
// to find the shared conversation document. Ids containing the separator are
// rejected so that every id maps back to exactly one pair.
func DirectChatID(a, b string) (string, error) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return "", errors.Validation("both participant ids are required to resolve a chat")
	}
	if strings.Contains(a, chatIDSeparator) || strings.Contains(b, chatIDSeparator) {
		return "", errors.Validation("user ids cannot contain " + chatIDSeparator)
	}
	if a == b {
		return "", errors.Validation("cannot open a chat with yourself")
	}
	if b < a {
		a, b = b, a
	}
	return directChatPrefix + chatIDSeparator + a + chatIDSeparator + b, nil
}

// ParseDirectChatID returns the two user ids a direct chat id was built from.
func ParseDirectChatID(conversationID string) (string, string, bool) {
	parts := strings.Split(conversationID, chatIDSeparator)
	if len(parts) != 3 || parts[0] != directChatPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// ChatRooms knows which conversation ids denote the broadcast room.
type ChatRooms struct {
	GroupRoomID string
}

func NewChatRooms(groupRoomID string) ChatRooms {
	if groupRoomID == "" {
		groupRoomID = DefaultGroupRoomID
	}
	return ChatRooms{GroupRoomID: groupRoomID}
}

func (r ChatRooms) IsGroup(conversationID string) bool {
	return conversationID == r.GroupRoomID
}

// Direct is DirectChatID, refusing pairs whose id would land on the group
// room.
func (r ChatRooms) Direct(a, b string) (string, error) {
	id, err := DirectChatID(a, b)
	if err != nil {
		return "", err
	}
	if r.IsGroup(id) {
		return "", errors.Validation("this pair of users cannot share a direct chat")
	}
	return id, nil
}

// Resolve returns the group room id when otherUserID is empty and the direct
// chat id otherwise.
func (r ChatRooms) Resolve(selfID, otherUserID string) (string, error) {
	if otherUserID == "" {
		if strings.TrimSpace(selfID) == "" {
			return "", errors.Validation("current user id is required")
		}
		return r.GroupRoomID, nil
	}
	return r.Direct(selfID, otherUserID)
}
