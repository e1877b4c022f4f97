package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/clickforcharity/internal/auth"
	"github.com/sakif/clickforcharity/internal/service"
)

type AdminAuthService interface {
	Login(ctx context.Context, username, password string) (*service.AuthResult, error)
	CheckRole(tokenStr string) (*auth.Claims, error)
}

// AuthHandler manages the admin session.
//
//   - HandleLogin     → check credentials, set the JWT cookie
//   - HandleLogout    → clear the cookie
//   - HandleCheckRole → report the role of the current session
type AuthHandler struct {
	svc    AdminAuthService
	ttl    time.Duration
	secure bool
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. ttl should match the token TTL so the
// cookie and the token expire together. secure marks the cookie HTTPS-only.
func NewAuthHandler(svc AdminAuthService, ttl time.Duration, secure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, ttl: ttl, secure: secure, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin
//
//	POST /auth/admin/login {"username": "...", "password": "..."}
//	→ {"success": true, "username": "...", "role": "admin", "token": "..."}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		fail(w, r, h.logger, "admin login", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    res.Token,
		Path:     "/",
		MaxAge:   int(h.ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"username": res.Username,
		"role":     res.Role,
		"token":    res.Token,
	})
}

// HandleLogout deletes the cookie. The token itself stays valid until it
// expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "logged out"})
}

// HandleCheckRole lets the admin page decide whether to show the login form.
func (h *AuthHandler) HandleCheckRole(w http.ResponseWriter, r *http.Request) {
	claims, err := h.svc.CheckRole(auth.TokenFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"username": claims.Subject,
		"role":     claims.Role,
	})
}
