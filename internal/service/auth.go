package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/auth"
)

// AdminAuthService logs the site operator in.
//
// There is a single admin account, configured through ADMIN_USERNAME and
// ADMIN_PASSWORD_HASH (a bcrypt hash produced by cmd/adminpass). A successful
// login yields a JWT with the admin role, which the handler sets as a cookie
// and also returns in the body for API clients.
type AdminAuthService struct {
	username     string
	passwordHash string
	tokens       *auth.TokenService
	passwords    *auth.PasswordService
	logger       *slog.Logger
}

func NewAdminAuthService(
	username, passwordHash string,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AdminAuthService {
	return &AdminAuthService{
		username:     username,
		passwordHash: passwordHash,
		tokens:       tokens,
		passwords:    passwords,
		logger:       logger,
	}
}

// AuthResult bundles the issued token with who it was issued to.
type AuthResult struct {
	Username string
	Role     string
	Token    string
}

// Login checks the credentials. Unknown user and wrong password fail the same
// way so the response does not reveal which one was wrong.
func (s *AdminAuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	if username == "" || password == "" {
		return nil, apperror.ValidationFailed("credentials", "username and password are required")
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	err := s.passwords.Verify(s.passwordHash, password)
	if !userOK || errors.Is(err, auth.ErrInvalidPassword) {
		s.logger.Warn("admin login failed", slog.String("username", username))
		return nil, apperror.Unauthorized("invalid username or password")
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: verifying admin password: %w", err)
	}

	token, err := s.tokens.Generate(s.username, auth.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token: %w", err)
	}

	s.logger.Info("admin logged in", slog.String("username", s.username))
	return &AuthResult{Username: s.username, Role: auth.RoleAdmin, Token: token}, nil
}

// CheckRole reports the role carried by tokenStr. An invalid or missing token
// is apperror.ErrUnauthorized.
func (s *AdminAuthService) CheckRole(tokenStr string) (*auth.Claims, error) {
	if tokenStr == "" {
		return nil, apperror.Unauthorized("not logged in")
	}
	c, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return nil, apperror.Unauthorized("invalid or expired session")
	}
	return c, nil
}
