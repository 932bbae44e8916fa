package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxAvatarBytes caps the size of an uploaded avatar (2 MB).
	MaxAvatarBytes int64 = 2 << 20

	// PresignedURLDuration is the lifetime of presigned upload and download URLs.
	PresignedURLDuration = 15 * time.Minute

	avatarPrefix = "avatars/"
)

var (
	ErrAvatarTypeNotAllowed = errors.New("storage: avatar type not allowed")
	ErrAvatarTooLarge       = errors.New("storage: avatar too large")
	ErrAvatarKeyForeign     = errors.New("storage: avatar key belongs to another user")
)

// avatarTypes maps the accepted MIME types to the extension used in object keys.
var avatarTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ValidateAvatar checks the declared type and size of an avatar upload.
func ValidateAvatar(mimeType string, size int64) error {
	if _, ok := avatarTypes[mimeType]; !ok {
		return ErrAvatarTypeNotAllowed
	}
	if size <= 0 || size > MaxAvatarBytes {
		return ErrAvatarTooLarge
	}
	return nil
}

// AvatarKey returns a fresh object key under the user's avatar prefix.
func AvatarKey(userID, mimeType string) (string, error) {
	ext, ok := avatarTypes[mimeType]
	if !ok {
		return "", ErrAvatarTypeNotAllowed
	}
	return fmt.Sprintf("%s%s/%s%s", avatarPrefix, userID, uuid.NewString(), ext), nil
}

// OwnsAvatarKey reports whether key lives under userID's avatar prefix.
func OwnsAvatarKey(userID, key string) bool {
	rest, ok := strings.CutPrefix(key, avatarPrefix+userID+"/")
	return ok && rest != "" && !strings.Contains(rest, "/")
}

// AvatarUpload is handed to the client, which PUTs the image to URL and then links Key.
type AvatarUpload struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Avatars applies avatar rules on top of a StorageService.
type Avatars struct {
	svc StorageService
	now func() time.Time
}

// NewAvatars wraps svc. A nil svc is allowed; every method then reports the feature as off.
func NewAvatars(svc StorageService) *Avatars {
	return &Avatars{svc: svc, now: time.Now}
}

// Enabled reports whether object storage is configured.
func (a *Avatars) Enabled() bool {
	return a != nil && a.svc != nil
}

// PresignUpload validates the declared file and returns a presigned PUT for a new key.
func (a *Avatars) PresignUpload(ctx context.Context, userID, mimeType string, size int64) (AvatarUpload, error) {
	if err := ValidateAvatar(mimeType, size); err != nil {
		return AvatarUpload{}, err
	}

	key, err := AvatarKey(userID, mimeType)
	if err != nil {
		return AvatarUpload{}, err
	}

	url, err := a.svc.PresignUpload(ctx, key, mimeType, size, PresignedURLDuration)
	if err != nil {
		return AvatarUpload{}, err
	}

	return AvatarUpload{Key: key, URL: url, ExpiresAt: a.now().Add(PresignedURLDuration)}, nil
}

// Verify checks that key belongs to userID and that the uploaded object obeys the avatar rules.
func (a *Avatars) Verify(ctx context.Context, userID, key string) error {
	if !OwnsAvatarKey(userID, key) {
		return ErrAvatarKeyForeign
	}

	info, err := a.svc.Head(ctx, key)
	if err != nil {
		return err
	}
	return ValidateAvatar(info.ContentType, info.Size)
}

// URL returns a presigned download URL for key, or "" when key is empty or presigning fails.
func (a *Avatars) URL(ctx context.Context, key string) string {
	if key == "" || !a.Enabled() {
		return ""
	}

	url, err := a.svc.PresignDownload(ctx, key, PresignedURLDuration)
	if err != nil {
		return ""
	}
	return url
}

// Delete removes key from the bucket.
func (a *Avatars) Delete(ctx context.Context, key string) error {
	return a.svc.Delete(ctx, key)
}
