package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const claimsKey contextKey = "claims"

// CookieName is the cookie the admin login sets.
const CookieName = "token"

var errNoToken = errors.New("auth: no token")

// RequireRole rejects requests without a valid token carrying role. The token
// is read from an "Authorization: Bearer" header first, then from the cookie.
//
// 401 means no usable token; 403 means a valid token with the wrong role.
func RequireRole(tokens *TokenService, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := FromRequest(r, tokens)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}
			if c.Role != role {
				writeAuthError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, c)))
		})
	}
}

// RequireAdmin is RequireRole(tokens, RoleAdmin).
func RequireAdmin(tokens *TokenService) func(http.Handler) http.Handler {
	return RequireRole(tokens, RoleAdmin)
}

// ClaimsFromContext returns the claims RequireRole stored.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}

// FromRequest extracts and validates the request's token.
func FromRequest(r *http.Request, tokens *TokenService) (*Claims, error) {
	tok := TokenFromRequest(r)
	if tok == "" {
		return nil, errNoToken
	}
	return tokens.Validate(tok)
}

// TokenFromRequest returns the raw token from the Authorization header or the
// cookie, or "" when there is none.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Middleware runs before the handler package's JSON helpers, so it writes the
// same error shape by hand.
func writeAuthError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + code + `","message":"` + msg + `"}`))
}
