package filestore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/model"
	"github.com/sakif/clickforcharity/internal/repository"
)

// Profiles exposes the profile half of the store. Store already uses Get/Update
// for balances, so profiles hang off their own type.
type Profiles struct {
	s *Store
}

var _ repository.ProfileRepository = (*Profiles)(nil)

// Profiles returns the profile repository backed by this store.
func (s *Store) Profiles() *Profiles {
	return &Profiles{s: s}
}

func (p *Profiles) path(userID string) string {
	return filepath.Join(p.s.profilesDir, userID+profileExt)
}

func (p *Profiles) Get(ctx context.Context, userID string) (*model.Profile, error) {
	if !model.ValidUserID(userID) {
		return nil, apperror.ValidationFailed("user_id", "invalid user id")
	}
	var prof model.Profile
	if err := readJSON(p.path(userID), &prof); err != nil {
		if isNotExist(err) {
			return nil, apperror.NotFound("profile", userID)
		}
		return nil, fmt.Errorf("filestore: reading profile %s: %w", userID, err)
	}
	return &prof, nil
}

func (p *Profiles) Save(ctx context.Context, prof *model.Profile) error {
	if !model.ValidUserID(prof.UserID) {
		return apperror.ValidationFailed("user_id", "invalid user id")
	}
	unlock := p.s.locks.Lock("profile:" + prof.UserID)
	defer unlock()

	if err := writeJSON(p.path(prof.UserID), prof); err != nil {
		return fmt.Errorf("filestore: writing profile %s: %w", prof.UserID, err)
	}
	return nil
}

func (p *Profiles) Update(ctx context.Context, userID string, fn repository.ProfileUpdateFunc) (*model.Profile, error) {
	if !model.ValidUserID(userID) {
		return nil, apperror.ValidationFailed("user_id", "invalid user id")
	}
	unlock := p.s.locks.Lock("profile:" + userID)
	defer unlock()

	var prof model.Profile
	if err := readJSON(p.path(userID), &prof); err != nil {
		if isNotExist(err) {
			return nil, apperror.NotFound("profile", userID)
		}
		return nil, fmt.Errorf("filestore: reading profile %s: %w", userID, err)
	}

	if err := fn(&prof); err != nil {
		if errors.Is(err, repository.ErrNoChange) {
			return &prof, nil
		}
		return nil, err
	}

	if err := writeJSON(p.path(userID), &prof); err != nil {
		return nil, fmt.Errorf("filestore: writing profile %s: %w", userID, err)
	}
	return &prof, nil
}
