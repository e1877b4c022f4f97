// Package repository declares the storage interfaces the services depend on.
//
// Two implementations exist: repository/filestore keeps everything as one JSON
// file per record (the layout the site has always used and the one the sync tool
// replicates), and repository/sqlite keeps balances in a transactional database.
package repository

import (
	"context"
	"errors"

	"github.com/sakif/clickforcharity/internal/model"
)

// BalanceUpdateFunc mutates a balance record in place. Returning an error aborts
// the update and nothing is written.
type BalanceUpdateFunc func(rec *model.Balance) error

// BalanceRepository stores one balance record per user.
type BalanceRepository interface {
	// Get returns apperror.ErrNotFound when the user has no record.
	Get(ctx context.Context, userID string) (*model.Balance, error)
	Exists(ctx context.Context, userID string) (bool, error)
	// Create writes rec only if the user has no record yet.
	Create(ctx context.Context, userID string, rec *model.Balance) error
	// Update is an atomic read-modify-write. A missing record starts from a
	// zero balance.
	Update(ctx context.Context, userID string, fn BalanceUpdateFunc) (*model.Balance, error)
}

// ProfileUpdateFunc mutates a profile in place.
type ProfileUpdateFunc func(p *model.Profile) error

// ProfileRepository stores one profile per user.
type ProfileRepository interface {
	Get(ctx context.Context, userID string) (*model.Profile, error)
	Save(ctx context.Context, p *model.Profile) error
	// Update returns apperror.ErrNotFound when the profile does not exist.
	Update(ctx context.Context, userID string, fn ProfileUpdateFunc) (*model.Profile, error)
}

// ContentRepository stores ads, tasks and banners, one directory (or table) per kind.
type ContentRepository interface {
	List(ctx context.Context, kind model.Kind) ([]model.Item, error)
	Get(ctx context.Context, kind model.Kind, id model.ItemID) (*model.Item, error)
	// Create assigns the next free ID for the kind and writes the item.
	Create(ctx context.Context, kind model.Kind, item *model.Item) error
	Save(ctx context.Context, kind model.Kind, item *model.Item) error
	// Delete removes the backing record. Deleting a missing item is not an error.
	Delete(ctx context.Context, kind model.Kind, id model.ItemID) error
}

// RunRecorder keeps the history of conflict resolver runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *model.RunStatus) error
	LastRun(ctx context.Context) (*model.RunStatus, error)
}

// ErrNoChange may be returned from an update func to leave the record as it is.
// Update then returns the unmodified record and a nil error.
var ErrNoChange = errors.New("repository: no change")
