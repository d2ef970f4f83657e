package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"cuidar/internal/domain/entity"
	"cuidar/internal/domain/repository"
	"cuidar/pkg/errors"
	"cuidar/pkg/logger"
)

const usersCollection = "users"

type firestoreUserRepository struct {
	client *firestore.Client
}

func NewFirestoreUserRepository(client *firestore.Client) repository.UserRepository {
	return &firestoreUserRepository{
		client: client,
	}
}

func (r *firestoreUserRepository) GetByID(ctx context.Context, id string) (*entity.Profile, error) {
	doc, err := r.client.Collection(usersCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("User", err)
		}
		return nil, errors.FromStore("get user", err)
	}

	var profile entity.Profile
	if err := doc.DataTo(&profile); err != nil {
		return nil, errors.Internal("Failed to parse user data", err)
	}
	profile.ID = doc.Ref.ID

	return &profile, nil
}

func (r *firestoreUserRepository) UpdatePushToken(ctx context.Context, id, token string) error {
	return r.merge(ctx, id, "update push token", map[string]interface{}{
		"pushToken": token,
		"updatedAt": firestore.ServerTimestamp,
	})
}

func (r *firestoreUserRepository) UpdateAvatar(ctx context.Context, id, avatarURL string) error {
	return r.merge(ctx, id, "update avatar", map[string]interface{}{
		"avatarURL": avatarURL,
		"updatedAt": firestore.ServerTimestamp,
	})
}

func (r *firestoreUserRepository) UpdatePresence(ctx context.Context, presence entity.Presence) error {
	return r.merge(ctx, presence.UserID, "update presence", map[string]interface{}{
		"isOnline": presence.IsOnline,
		"lastSeen": presence.LastSeen,
	})
}

// merge never overwrites fields it does not name; profile documents are also
// written by the registration flow.
func (r *firestoreUserRepository) merge(ctx context.Context, id, op string, data map[string]interface{}) error {
	_, err := r.client.Collection(usersCollection).Doc(id).Set(ctx, data, firestore.MergeAll)
	if err != nil {
		logger.WithFields(logger.Fields{"user_id": id}).Errorf("%s failed: %v", op, err)
		return errors.FromStore(op, err)
	}
	return nil
}
