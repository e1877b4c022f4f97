// Package service holds the site's business rules.
//
// Handlers parse HTTP and call a service; services validate, apply rules and
// call the repositories; repositories only read and write records:
//
//	Handler (HTTP) → Service (rules) → Repository (files or SQLite)
//
// Services take repository interfaces, never a concrete store, so the file and
// SQLite backends are interchangeable and tests run against in-memory fakes.
// They return apperror values; the handler package maps those to status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/model"
	"github.com/sakif/clickforcharity/internal/profilesource"
	"github.com/sakif/clickforcharity/internal/repository"
)

// ProfileFetcher looks a user up on the external auth server.
// profilesource.Client implements it.
type ProfileFetcher interface {
	Fetch(ctx context.Context, userID string) (*profilesource.RemoteProfile, error)
}

// ProfileService owns local profiles and their lazy creation.
type ProfileService struct {
	profiles repository.ProfileRepository
	balances repository.BalanceRepository
	source   ProfileFetcher
	logger   *slog.Logger
	now      func() time.Time
}

// NewProfileService creates a ProfileService. source may be nil, in which case
// users without a local profile are simply not found.
func NewProfileService(
	profiles repository.ProfileRepository,
	balances repository.BalanceRepository,
	source ProfileFetcher,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		balances: balances,
		source:   source,
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns the local profile without provisioning.
func (s *ProfileService) Get(ctx context.Context, userID string) (*model.Profile, error) {
	if !model.ValidUserID(userID) {
		return nil, apperror.ValidationFailed("user_id", "invalid user id")
	}
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Ensure returns the user's profile, creating the local profile and a zero
// balance record from the external source on first contact.
//
// A user the external source does not know is apperror.ErrNotFound. Any other
// failure reaching the source is returned as an internal error.
func (s *ProfileService) Ensure(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.Get(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	if s.source == nil {
		return nil, apperror.NotFound("user", userID)
	}
	remote, err := s.source.Fetch(ctx, userID)
	if errors.Is(err, profilesource.ErrUnknownUser) {
		return nil, apperror.NotFound("user", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("service/profile: fetching %s: %w", userID, err)
	}

	now := s.now().Unix()
	p = newProfile(userID, remote, now)
	if err := s.profiles.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("service/profile: saving %s: %w", userID, err)
	}

	bal := model.NewBalance()
	bal.LastUpdated = now
	if err := s.balances.Create(ctx, userID, bal); err != nil && !errors.Is(err, apperror.ErrConflict) {
		return nil, fmt.Errorf("service/profile: creating balance for %s: %w", userID, err)
	}

	s.logger.Info("provisioned user from auth server",
		slog.String("user_id", userID),
		slog.String("username", p.Username),
	)
	return p, nil
}

func newProfile(userID string, remote *profilesource.RemoteProfile, now int64) *model.Profile {
	avatar := remote.Avatar
	if avatar == "" {
		avatar = "👤"
	}
	return &model.Profile{
		UserID:            userID,
		Level:             1,
		Username:          remote.Username,
		DisplayName:       remote.DisplayName,
		Avatar:            avatar,
		Email:             remote.Email,
		Bio:               remote.Bio,
		Location:          remote.Location,
		Website:           remote.Website,
		JoinedDate:        now,
		Settings:          model.ProfileSettings{Notifications: true, Theme: "default"},
		Roles:             []string{"member"},
		LastProfileUpdate: now,
	}
}
