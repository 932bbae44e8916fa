package handler

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"huddle/internal/app/store"
	"huddle/internal/pkg/auth/jwt"
	"huddle/internal/pkg/errs"
	"huddle/internal/pkg/logx"
	"huddle/internal/pkg/randx"
	"huddle/internal/pkg/req"
	"huddle/internal/pkg/resp"
)

// MaxNameLength caps server and channel names, in characters.
const MaxNameLength = 64

func validName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	return name, n > 0 && n <= MaxNameLength
}

// storeError maps store sentinels to API errors. notFound is the code used for ErrNotFound.
func storeError(err error, notFound int) *errs.CustomError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errs.NewError(notFound)
	case errors.Is(err, store.ErrInviteExhausted):
		return errs.NewError(errs.ErrInviteExhausted)
	case errors.Is(err, store.ErrAlreadyMember):
		return errs.NewError(errs.ErrAlreadyMember)
	case errors.Is(err, store.ErrInvalidSettings):
		return errs.NewError(errs.ErrInvalidParams)
	}
	logx.Error(err, "store operation failed")
	return errs.NewError(errs.ErrStoreFailed)
}

// loadManagedServer fetches the server in the URL and checks the caller may manage it.
func loadManagedServer(w http.ResponseWriter, r *http.Request, deps *AppDeps) (store.Server, bool) {
	identity := jwt.GetPayloadFromContext(r)

	srv, err := deps.Store.GetServer(r.Context(), chi.URLParam(r, "serverID"))
	if err != nil {
		resp.RespondError(w, r, storeError(err, errs.ErrServerNotFound))
		return store.Server{}, false
	}

	if !srv.IsOwnerOrAdmin(identity.Username) {
		resp.RespondError(w, r, errs.NewError(errs.ErrPermissionDenied))
		return store.Server{}, false
	}
	return srv, true
}

type CreateServerInput struct {
	Name string `json:"name"`
}

// HandleCreateServer creates a server owned by the caller with its default channels.
func HandleCreateServer(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		var input CreateServerInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		name, ok := validName(input.Name)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		srv, channels, err := deps.Store.CreateServer(r.Context(), name, identity.Username)
		if err != nil {
			resp.RespondError(w, r, storeError(err, errs.ErrServerNotFound))
			return
		}

		logx.Info("Server created", "server_id", srv.ID, "owner", srv.Owner)

		resp.RespondSuccess(w, r, map[string]any{
			"server":   srv,
			"channels": channels,
		})
	}
}

// HandleListServers lists the servers the caller belongs to.
func HandleListServers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		servers, err := deps.Store.ListServersForUser(r.Context(), identity.Username)
		if err != nil {
			resp.RespondError(w, r, storeError(err, errs.ErrServerNotFound))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"servers": servers})
	}
}

// HandleGetServer returns a server with its channels.
func HandleGetServer(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serverID := chi.URLParam(r, "serverID")

		srv, err := deps.Store.GetServer(r.Context(), serverID)
		if err != nil {
			resp.RespondError(w, r, storeError(err, errs.ErrServerNotFound))
			return
		}

		channels, err := deps.Store.ListChannels(r.Context(), serverID)
		if err != nil {
			resp.RespondError(w, r, storeError(err, errs.ErrServerNotFound))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"server":   srv,
			"channels": channels,
		})
	}
}

// HandleServerInfo returns the public summary shown on an invite landing page.
func HandleServerInfo(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		srv, err := deps.Store.GetServer(r.Context(), chi.URLParam(r, "serverID"))
		if err != nil {
			resp.RespondError(w, r, storeError(err, errs.ErrServerNotFound))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"id":          srv.ID,
			"name":        srv.Name,
			"owner":       srv.Owner,
			"memberCount": len(srv.Members),
		})
	}
}

type CreateChannelInput struct {
	Name string            `json:"name"`
	Type store.ChannelType `json:"type"`
}

// HandleCreateChannel adds a channel to a server the caller manages and announces it.
func HandleCreateChannel(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input CreateChannelInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		name, ok := validName(input.Name)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}
		if input.Type == "" {
			input.Type = store.ChannelText
		}
		if !input.Type.Valid() {
			resp.RespondError(w, r, errs.NewError(errs.ErrChannelTypeInvalid))
			return
		}

		srv, ok := loadManagedServer(w, r, deps)
		if !ok {
			return
		}

		ch, err := deps.Store.CreateChannel(r.Context(), srv.ID, name, input.Type, store.DefaultSettings(input.Type))
		if err != nil {
			resp.RespondError(w, r, storeError(err, errs.ErrServerNotFound))
			return
		}

		deps.Hub.ChannelAdded(ch)

		resp.RespondSuccess(w, r, map[string]any{"channel": ch})
	}
}

// HandleDeleteChannel deletes a channel of a server the caller manages, evicting its
// occupants from the live rooms.
func HandleDeleteChannel(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		srv, ok := loadManagedServer(w, r, deps)
		if !ok {
			return
		}

		channelID := chi.URLParam(r, "channelID")
		ch, err := deps.Store.GetChannel(r.Context(), channelID)
		if err != nil || ch.ServerID != srv.ID {
			resp.RespondError(w, r, errs.NewError(errs.ErrChannelNotFound))
			return
		}

		if err := deps.Store.DeleteChannel(r.Context(), channelID); err != nil {
			resp.RespondError(w, r, storeError(err, errs.ErrChannelNotFound))
			return
		}

		deps.Hub.ChannelRemoved(r.Context(), srv.ID, channelID)

		resp.RespondSuccess(w, r, map[string]any{"channelId": channelID})
	}
}

type CreateInviteInput struct {
	MaxUses int `json:"maxUses,omitempty"`
}

// HandleCreateInvite issues an invite code for a server the caller belongs to.
func HandleCreateInvite(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		var input CreateInviteInput
		if r.ContentLength > 0 {
			if customErr := req.BindJSON(w, r, &input); customErr != nil {
				resp.RespondError(w, r, customErr)
				return
			}
		}
		if input.MaxUses < 0 {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		srv, err := deps.Store.GetServer(r.Context(), chi.URLParam(r, "serverID"))
		if err != nil {
			resp.RespondError(w, r, storeError(err, errs.ErrServerNotFound))
			return
		}
		if !srv.IsMember(identity.Username) {
			resp.RespondError(w, r, errs.NewError(errs.ErrPermissionDenied))
			return
		}

		invite, err := deps.Store.CreateInvite(r.Context(), srv.ID, identity.Username, input.MaxUses)
		if err != nil {
			resp.RespondError(w, r, storeError(err, errs.ErrServerNotFound))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"invite": invite})
	}
}

// HandleRedeemInvite adds the caller to the server behind an invite code.
func HandleRedeemInvite(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		code := chi.URLParam(r, "code")
		if !randx.IsValidInviteCode(code) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInviteInvalid))
			return
		}

		srv, err := deps.Store.RedeemInvite(r.Context(), code, identity.Username)
		if err != nil {
			resp.RespondError(w, r, storeError(err, errs.ErrInviteInvalid))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"server": srv})
	}
}

type SetAdminInput struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

// HandleSetAdmin lets the owner grant or revoke admin rights. The owner always stays admin.
func HandleSetAdmin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		var input SetAdminInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		srv, err := deps.Store.GetServer(r.Context(), chi.URLParam(r, "serverID"))
		if err != nil {
			resp.RespondError(w, r, storeError(err, errs.ErrServerNotFound))
			return
		}
		if srv.Owner != identity.Username {
			resp.RespondError(w, r, errs.NewError(errs.ErrOwnerOnly))
			return
		}
		if !srv.IsMember(input.Username) {
			resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
			return
		}

		srv, err = deps.Store.SetAdmin(r.Context(), srv.ID, input.Username, input.Admin)
		if err != nil {
			resp.RespondError(w, r, storeError(err, errs.ErrServerNotFound))
			return
		}

		deps.Hub.AdminsUpdated(srv.ID, srv.Admins)

		resp.RespondSuccess(w, r, map[string]any{"admins": srv.Admins})
	}
}
