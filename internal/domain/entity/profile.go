package entity

import "time"

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)

// Profile is the users/{id} document. The chat core reads DisplayName and
// AvatarURL for participantInfo snapshots and owns PushToken, IsOnline and
// LastSeen.
type Profile struct {
	ID          string    `json:"id" firestore:"id"`
	DisplayName string    `json:"display_name" firestore:"displayName"`
	AvatarURL   string    `json:"avatar_url,omitempty" firestore:"avatarURL,omitempty"`
	Role        string    `json:"role" firestore:"role"`
	PushToken   string    `json:"-" firestore:"pushToken,omitempty"`
	IsOnline    bool      `json:"is_online" firestore:"isOnline"`
	LastSeen    time.Time `json:"last_seen" firestore:"lastSeen"`
	UpdatedAt   time.Time `json:"updated_at" firestore:"updatedAt"`
}

func (p *Profile) Info() ParticipantInfo {
	return ParticipantInfo{DisplayName: p.DisplayName, AvatarURL: p.AvatarURL}
}
