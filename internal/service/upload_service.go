package service

import (
	"context"
	"fmt"
	"mime/multipart"
	"path"

	"github.com/rs/zerolog"

	"contactbook/api/internal/models"
	"contactbook/api/internal/storage"
)

// AvatarUpdater persists a new avatar URL for the account.
type AvatarUpdater interface {
	UpdateAvatar(ctx context.Context, email, avatarURL string) (models.User, error)
}

// UploadService stores avatar images in the object store and records the
// resulting URL on the user.
type UploadService struct {
	users AvatarUpdater
	store *storage.ObjectStore
	log   zerolog.Logger
}

func NewUploadService(users AvatarUpdater, store *storage.ObjectStore, log zerolog.Logger) *UploadService {
	return &UploadService{users: users, store: store, log: log}
}

// UploadAvatar overwrites the user's avatar object, keyed by username so
// re-uploads replace the previous image.
func (s *UploadService) UploadAvatar(ctx context.Context, user models.User, file multipart.File, header *multipart.FileHeader) (models.User, error) {
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectName := fmt.Sprintf("avatars/%s%s", user.Username, path.Ext(header.Filename))
	avatarURL, err := s.store.PutAvatar(ctx, objectName, file, header.Size, contentType)
	if err != nil {
		return models.User{}, err
	}

	updated, err := s.users.UpdateAvatar(ctx, user.Email, avatarURL)
	if err != nil {
		return models.User{}, err
	}

	s.log.Info().Str("user_id", user.ID).Str("avatar_url", avatarURL).Msg("avatar updated")
	return updated, nil
}
