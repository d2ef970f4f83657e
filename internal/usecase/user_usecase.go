package usecase

import (
	"context"
	"io"
	"strings"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"

	"cuidar/internal/domain/entity"
	"cuidar/internal/domain/repository"
	"cuidar/pkg/errors"
	"cuidar/pkg/logger"
)

// FileStorage is the object store avatars are uploaded to.
type FileStorage interface {
	UploadFile(ctx context.Context, file io.Reader, fileType, folder string, isPublic bool) (string, error)
	DeleteFile(ctx context.Context, fileURL string) error
}

const avatarFolder = "avatars"

var avatarTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
}

type UserUseCase struct {
	userRepo repository.UserRepository
	storage  FileStorage
}

func NewUserUseCase(userRepo repository.UserRepository, storage FileStorage) *UserUseCase {
	return &UserUseCase{
		userRepo: userRepo,
		storage:  storage,
	}
}

func (uc *UserUseCase) GetProfile(ctx context.Context, userID string) (*entity.Profile, error) {
	if userID == "" {
		return nil, errors.Validation("user id is required")
	}
	return uc.userRepo.GetByID(ctx, userID)
}

// RegisterPushToken stores the device's Expo push token after checking its
// format.
func (uc *UserUseCase) RegisterPushToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.Validation("push token is required")
	}
	if _, err := expo.NewExponentPushToken(token); err != nil {
		return errors.Validation("push token is not a valid Expo push token")
	}

	if err := uc.userRepo.UpdatePushToken(ctx, userID, token); err != nil {
		return err
	}
	logger.WithFields(logger.Fields{"user_id": userID}).Info("push token registered")
	return nil
}

// UploadAvatar stores the image publicly and points the profile at it. The
// previous avatar is removed on a best-effort basis.
func (uc *UserUseCase) UploadAvatar(ctx context.Context, userID, contentType string, file io.Reader) (string, error) {
	if uc.storage == nil {
		return "", errors.Unavailable("avatar storage is not configured", nil)
	}
	if !avatarTypes[contentType] {
		return "", errors.Validation("avatar must be a JPEG or PNG image")
	}

	previous := ""
	if profile, err := uc.userRepo.GetByID(ctx, userID); err == nil {
		previous = profile.AvatarURL
	} else if !errors.Is(err, errors.CodeNotFound) {
		return "", err
	}

	url, err := uc.storage.UploadFile(ctx, file, contentType, avatarFolder+"/"+userID, true)
	if err != nil {
		return "", errors.Unavailable("Failed to upload avatar", err)
	}
	if err := uc.userRepo.UpdateAvatar(ctx, userID, url); err != nil {
		return "", err
	}

	if previous != "" && previous != url {
		if err := uc.storage.DeleteFile(ctx, previous); err != nil {
			logger.Debug("could not delete previous avatar of %s: %v", userID, err)
		}
	}
	return url, nil
}
