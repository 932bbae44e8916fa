package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"huddle/internal/app/storage"
	"huddle/internal/pkg/auth/jwt"
	"huddle/internal/pkg/errs"
	"huddle/internal/pkg/logx"
	"huddle/internal/pkg/req"
	"huddle/internal/pkg/resp"
)

type PresignAvatarInput struct {
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
}

// HandlePresignAvatarURL returns a presigned PUT URL for a new avatar of the caller.
func HandlePresignAvatarURL(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Avatars.Enabled() {
			resp.RespondError(w, r, errs.NewError(errs.ErrFeatureDisabled))
			return
		}

		identity := jwt.GetPayloadFromContext(r)

		var input PresignAvatarInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		upload, err := deps.Avatars.PresignUpload(r.Context(), identity.ID, input.MimeType, input.FileSize)
		if err != nil {
			resp.RespondError(w, r, avatarError(err))
			return
		}

		resp.RespondSuccess(w, r, upload)
	}
}

type UpdateAvatarInput struct {
	Key string `json:"key"`
}

// HandleUpdateAvatar links an uploaded object as the caller's avatar and deletes the
// previous one. Sockets announce the change separately with avatar-changed.
func HandleUpdateAvatar(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Avatars.Enabled() {
			resp.RespondError(w, r, errs.NewError(errs.ErrFeatureDisabled))
			return
		}

		identity := jwt.GetPayloadFromContext(r)

		var input UpdateAvatarInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if err := deps.Avatars.Verify(r.Context(), identity.ID, input.Key); err != nil {
			resp.RespondError(w, r, avatarError(err))
			return
		}

		previous, err := deps.Store.GetUserByID(r.Context(), identity.ID)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
			return
		}

		updated, err := deps.Store.UpdateAvatar(r.Context(), identity.ID, input.Key)
		if err != nil {
			logx.Error(err, "update_avatar: store update failed", "user_id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreFailed))
			return
		}

		if old := previous.AvatarKey; old != "" && old != input.Key {
			go func(key string) {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := deps.Avatars.Delete(ctx, key); err != nil {
					logx.Warn("update_avatar: failed to delete previous avatar", "key", key)
				}
			}(old)
		}

		resp.RespondSuccess(w, r, map[string]any{
			"user": profileOf(r.Context(), deps, updated),
		})
	}
}

func avatarError(err error) *errs.CustomError {
	switch {
	case errors.Is(err, storage.ErrAvatarTypeNotAllowed):
		return errs.NewError(errs.ErrFileTypeNotAllowed)
	case errors.Is(err, storage.ErrAvatarTooLarge):
		return errs.NewError(errs.ErrFileTooLarge)
	case errors.Is(err, storage.ErrAvatarKeyForeign), errors.Is(err, storage.ErrObjectNotFound):
		return errs.NewError(errs.ErrInvalidParams)
	}
	return errs.NewError(errs.ErrFileStorageFailed)
}
