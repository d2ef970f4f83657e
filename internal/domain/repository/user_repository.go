package repository

import (
	"context"

	"cuidar/internal/domain/entity"
)

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Profile, error)
	UpdatePushToken(ctx context.Context, id, token string) error
	UpdateAvatar(ctx context.Context, id, avatarURL string) error
	// UpdatePresence mirrors presence into the durable profile document.
	UpdatePresence(ctx context.Context, presence entity.Presence) error
}
