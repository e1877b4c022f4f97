package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/model"
	"github.com/sakif/clickforcharity/internal/repository"
)

var _ repository.BalanceRepository = (*Store)(nil)

func (s *Store) balancePath(userID string) string {
	return filepath.Join(s.balancesDir, userID+balanceExt)
}

func (s *Store) Get(ctx context.Context, userID string) (*model.Balance, error) {
	if !model.ValidUserID(userID) {
		return nil, apperror.ValidationFailed("user_id", "invalid user id")
	}
	rec, err := s.readBalance(s.balancePath(userID))
	if err != nil {
		if isNotExist(err) {
			return nil, apperror.NotFound("balance", userID)
		}
		return nil, fmt.Errorf("filestore: reading balance %s: %w", userID, err)
	}
	return rec, nil
}

func (s *Store) Exists(ctx context.Context, userID string) (bool, error) {
	if !model.ValidUserID(userID) {
		return false, nil
	}
	_, err := os.Stat(s.balancePath(userID))
	if err == nil {
		return true, nil
	}
	if isNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("filestore: checking balance %s: %w", userID, err)
}

func (s *Store) Create(ctx context.Context, userID string, rec *model.Balance) error {
	if !model.ValidUserID(userID) {
		return apperror.ValidationFailed("user_id", "invalid user id")
	}
	unlock := s.locks.Lock("balance:" + userID)
	defer unlock()

	path := s.balancePath(userID)
	if _, err := os.Stat(path); err == nil {
		return apperror.Conflict("balance", userID)
	}
	if err := writeJSON(path, rec); err != nil {
		return fmt.Errorf("filestore: creating balance %s: %w", userID, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, userID string, fn repository.BalanceUpdateFunc) (*model.Balance, error) {
	if !model.ValidUserID(userID) {
		return nil, apperror.ValidationFailed("user_id", "invalid user id")
	}
	unlock := s.locks.Lock("balance:" + userID)
	defer unlock()

	path := s.balancePath(userID)
	rec, err := s.readBalance(path)
	if err != nil {
		if !isNotExist(err) {
			return nil, fmt.Errorf("filestore: reading balance %s: %w", userID, err)
		}
		rec = model.NewBalance()
	}

	if err := fn(rec); err != nil {
		if errors.Is(err, repository.ErrNoChange) {
			return rec, nil
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := writeJSON(path, rec); err != nil {
		return nil, fmt.Errorf("filestore: writing balance %s: %w", userID, err)
	}
	return rec, nil
}

func (s *Store) readBalance(path string) (*model.Balance, error) {
	rec := model.NewBalance()
	if err := readJSON(path, rec); err != nil {
		return nil, err
	}
	if rec.RecentTransactions == nil {
		rec.RecentTransactions = []model.Transaction{}
	}
	return rec, nil
}

// =========================================================================
// SYNC-CONFLICT COPIES
// =========================================================================
//
// The sync tool leaves copies named like
//
//	42-alice.sync-conflict-20250101-120000-ABCDEFG.txt
//	42-alice_sync-conflict-20250101-120000.txt
//
// next to the canonical 42-alice.txt.

var conflictOwner = regexp.MustCompile(`^([0-9]+-[a-zA-Z0-9_-]+?)(?:[._]sync-conflict|\.)`)

// ConflictOwner extracts the user a conflict copy belongs to.
func ConflictOwner(name string) (string, bool) {
	m := conflictOwner.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ListConflicts groups the conflict copies in the balances directory by user.
// File names within a group are sorted.
func (s *Store) ListConflicts(ctx context.Context) (map[string][]string, error) {
	entries, err := os.ReadDir(s.balancesDir)
	if err != nil {
		return nil, fmt.Errorf("filestore: listing balances: %w", err)
	}

	groups := make(map[string][]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.Contains(name, "sync-conflict") {
			continue
		}
		user, ok := ConflictOwner(name)
		if !ok {
			continue
		}
		groups[user] = append(groups[user], name)
	}
	for _, names := range groups {
		sort.Strings(names)
	}
	return groups, nil
}

// ReadConflict decodes one conflict copy.
func (s *Store) ReadConflict(ctx context.Context, name string) (*model.Balance, error) {
	if !safeName(name) {
		return nil, apperror.ValidationFailed("file", "invalid conflict file name")
	}
	rec, err := s.readBalance(filepath.Join(s.balancesDir, name))
	if err != nil {
		return nil, fmt.Errorf("filestore: reading conflict %s: %w", name, err)
	}
	return rec, nil
}

// ArchiveConflict moves a conflict copy into the archive directory and returns
// its new name. An existing archive entry with the same name is never replaced;
// a numeric suffix is added instead.
func (s *Store) ArchiveConflict(ctx context.Context, name string) (string, error) {
	if !safeName(name) {
		return "", apperror.ValidationFailed("file", "invalid conflict file name")
	}
	src := filepath.Join(s.balancesDir, name)

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	target := name
	for i := 1; ; i++ {
		_, err := os.Stat(filepath.Join(s.archiveDir, target))
		if isNotExist(err) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("filestore: checking archive for %s: %w", name, err)
		}
		target = stem + "." + strconv.Itoa(i) + ext
	}

	if err := os.Rename(src, filepath.Join(s.archiveDir, target)); err != nil {
		return "", fmt.Errorf("filestore: archiving %s: %w", name, err)
	}
	return target, nil
}
