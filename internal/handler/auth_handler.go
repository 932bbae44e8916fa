/*
Package handler provides the HTTP API and the WebSocket entry point of huddle.

Accounts, servers, channels, invites, admins and avatars are managed over JSON; every
change that live clients must see is announced through the chat Hub.
*/
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"huddle/internal/app/store"
	"huddle/internal/app/user"
	"huddle/internal/pkg/auth/jwt"
	"huddle/internal/pkg/errs"
	"huddle/internal/pkg/logx"
	"huddle/internal/pkg/req"
	"huddle/internal/pkg/resp"
)

// lastLoginRefresh is the minimum gap between last_login_at updates from profile reads.
const lastLoginRefresh = 30 * time.Minute

type RegisterInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleRegister creates an account behind the Proof-of-Work gate and signs the caller in.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if payload := jwt.GetPayloadFromContext(r); payload != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyLoggedIn))
			return
		}

		if deps.Pow != nil && !deps.Pow.ConsumeProofToken(r) {
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeRequired))
			return
		}

		var input RegisterInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if err := user.ValidateUsername(input.Username); err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidUsername))
			return
		}
		if err := user.ValidatePassword(input.Password); err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidPassword))
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		account, err := deps.Store.CreateUser(r.Context(), input.Username, string(hashedPassword))
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				logx.Warn("registration conflict: username already exists", "username", input.Username)
				resp.RespondError(w, r, errs.NewError(errs.ErrUserAlreadyExists))
				return
			}

			logx.Error(err, "failed to create user")
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreFailed))
			return
		}

		if err := deps.Store.TouchLastLogin(r.Context(), account.ID); err != nil {
			logx.Error(err, "register: failed to update last_login_at", "user_id", account.ID)
		}

		respondWithToken(w, r, deps, account)
	}
}

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin verifies user credentials and issues a JWT token.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if identity := jwt.GetPayloadFromContext(r); identity != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyLoggedIn))
			return
		}

		var input LoginInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		account, err := deps.Store.GetUserByUsername(r.Context(), input.Username)
		if err != nil {
			logx.Warn("login: user fetch failed", "username", input.Username, "error", err.Error())
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(input.Password)); err != nil {
			logx.Warn("login: password mismatch", "username", input.Username)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if err := deps.Store.TouchLastLogin(r.Context(), account.ID); err != nil {
			logx.Error(err, "login: failed to update last_login_at", "user_id", account.ID)
		}

		respondWithToken(w, r, deps, account)
	}
}

func respondWithToken(w http.ResponseWriter, r *http.Request, deps *AppDeps, account store.User) {
	token, err := jwt.GenerateToken(&jwt.Payload{
		ID:       account.ID,
		Username: account.Username,
	}, deps.Config.JWTSecret, jwt.UserIdentityExpiration)
	if err != nil {
		logx.Error(err, "jwt generation failed", "user_id", account.ID)
		resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
		return
	}

	resp.RespondSuccess(w, r, map[string]any{
		"token": token,
		"user":  profileOf(r.Context(), deps, account),
	})
}

func profileOf(ctx context.Context, deps *AppDeps, account store.User) user.Profile {
	return user.NewProfile(account, func(key string) string {
		return deps.Avatars.URL(ctx, key)
	})
}

// HandleGetUserProfile returns the caller's profile and refreshes last_login_at when it
// is older than lastLoginRefresh.
func HandleGetUserProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		account, err := deps.Store.GetUserByID(r.Context(), identity.ID)
		if err != nil {
			logx.Warn("get_user_profile: user not found", "id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
			return
		}

		if account.LastLoginAt.IsZero() || time.Since(account.LastLoginAt) > lastLoginRefresh {
			go func(id string) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := deps.Store.TouchLastLogin(ctx, id); err != nil {
					logx.Error(err, "get_user_profile: failed to update last_login_at", "user_id", id)
				}
			}(account.ID)
		}

		resp.RespondSuccess(w, r, map[string]any{
			"user": profileOf(r.Context(), deps, account),
		})
	}
}
