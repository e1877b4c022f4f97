package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/model"
	"github.com/sakif/clickforcharity/internal/service"
)

type ProfileService interface {
	Ensure(ctx context.Context, userID string) (*model.Profile, error)
}

type PlatformService interface {
	Get(ctx context.Context, userID string) (*service.Memberships, error)
	Update(ctx context.Context, userID string, platforms []string) (*service.Memberships, error)
}

// ProfileHandler serves the profile and platform membership endpoints.
type ProfileHandler struct {
	profiles  ProfileService
	platforms PlatformService
	logger    *slog.Logger
}

func NewProfileHandler(profiles ProfileService, platforms PlatformService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, platforms: platforms, logger: logger}
}

// HandleSimpleProfile returns the user's profile, creating it from the auth
// server the first time.
//
//	GET /api/simple-profile?user_id=42-alice → {"success": true, "user": {...}}
func (h *ProfileHandler) HandleSimpleProfile(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, apperror.Unauthorized("authentication required - user_id parameter missing"))
		return
	}

	p, err := h.profiles.Ensure(r.Context(), userID)
	if err != nil {
		fail(w, r, h.logger, "loading profile", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    p,
	})
}

func (h *ProfileHandler) HandleGetUserPlatforms(w http.ResponseWriter, r *http.Request) {
	m, err := h.platforms.Get(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		fail(w, r, h.logger, "reading platforms", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"memberPlatforms":   m.MemberPlatforms,
		"rewardedPlatforms": m.RewardedPlatforms,
	})
}

type updatePlatformsRequest struct {
	UserID    string   `json:"user_id"`
	Platforms []string `json:"platforms"`
}

// HandleUpdateUserPlatforms replaces the user's memberships and pays for any
// newly joined catalog platform.
func (h *ProfileHandler) HandleUpdateUserPlatforms(w http.ResponseWriter, r *http.Request) {
	var req updatePlatformsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, apperror.ValidationFailed("platforms", "platforms must be an array"))
		return
	}

	m, err := h.platforms.Update(r.Context(), req.UserID, req.Platforms)
	if err != nil {
		fail(w, r, h.logger, "updating platforms", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":               true,
		"memberPlatforms":       m.MemberPlatforms,
		"rewardedPlatforms":     m.RewardedPlatforms,
		"reward":                m.Reward,
		"rewardedPlatformNames": m.RewardedNames,
	})
}
