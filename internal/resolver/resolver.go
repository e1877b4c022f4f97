// Package resolver merges the sync-conflict copies of balance records back into
// the canonical record.
//
// The file-sync tool replicating the data directory between servers cannot merge
// JSON. When two replicas change the same balance file it keeps one version as
// the canonical file and renames the other to a "sync-conflict" copy. Each copy
// holds transactions the canonical file may be missing.
//
// For every user with conflict copies the resolver:
//  1. decodes each copy (an unreadable copy is logged, skipped and left in place)
//  2. merges the transactions the canonical record does not already have,
//     adding their amounts to the balance (see ledger.Merger)
//  3. trims the recent window and writes the canonical record, only if
//     something was added
//  4. moves every decoded copy into the archive directory
//
// A transaction already in the canonical window is never added twice. Once the
// window is full, a copy's transactions older than the window are assumed to be
// merged already, since trimming may have dropped them. With that rule a run
// interrupted between steps 3 and 4 is repaired by the next run. A dry run does steps 1 and 2 in memory and logs what would happen.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/clickforcharity/internal/alert"
	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/ledger"
	"github.com/sakif/clickforcharity/internal/model"
	"github.com/sakif/clickforcharity/internal/repository"
)

// ConflictSource finds, reads and archives conflict copies.
// repository/filestore.Store implements it.
type ConflictSource interface {
	ListConflicts(ctx context.Context) (map[string][]string, error)
	ReadConflict(ctx context.Context, name string) (*model.Balance, error)
	ArchiveConflict(ctx context.Context, name string) (string, error)
}

// Resolver runs conflict merges.
type Resolver struct {
	conflicts ConflictSource
	balances  repository.BalanceRepository
	recorders []repository.RunRecorder
	notifier  alert.Notifier
	logger    *slog.Logger
	txCap     int
	now       func() time.Time
}

type Option func(*Resolver)

// WithRecorders stores every finished run in each recorder.
func WithRecorders(rs ...repository.RunRecorder) Option {
	return func(r *Resolver) { r.recorders = append(r.recorders, rs...) }
}

// WithNotifier sends an alert for runs that finish with errors.
func WithNotifier(n alert.Notifier) Option {
	return func(r *Resolver) { r.notifier = n }
}

// WithTxCap sets the recent-window size written back to canonical records.
func WithTxCap(n int) Option {
	return func(r *Resolver) { r.txCap = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// New creates a Resolver. Canonical records are read from and written to
// balances, which may be the same file store the conflicts live in or the SQLite
// store.
func New(conflicts ConflictSource, balances repository.BalanceRepository, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		conflicts: conflicts,
		balances:  balances,
		notifier:  alert.Nop{},
		logger:    logger,
		txCap:     ledger.DefaultCap,
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// UserResult is the outcome for one user.
type UserResult struct {
	UserID        string
	Files         int
	Archived      int
	Skipped       int
	Added         int
	AddedAmount   int64
	Balance       int64
	Wrote         bool
	MissingRecord bool
	Errors        []string
}

// Run resolves every user that currently has conflict copies.
func (r *Resolver) Run(ctx context.Context, dryRun bool) (*model.RunStatus, error) {
	status := &model.RunStatus{
		RunID:     uuid.NewString(),
		StartedAt: r.now().UTC(),
		DryRun:    dryRun,
		Errors:    []string{},
	}
	log := r.logger.With(slog.String("run_id", status.RunID), slog.Bool("dry_run", dryRun))
	log.Info("conflict resolution started")

	groups, err := r.conflicts.ListConflicts(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolver: listing conflicts: %w", err)
	}

	users := make([]string, 0, len(groups))
	for u := range groups {
		users = append(users, u)
	}
	sort.Strings(users)

	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			status.Errors = append(status.Errors, "run cancelled: "+err.Error())
			break
		}
		res := r.resolve(ctx, log, userID, groups[userID], dryRun)
		status.Users++
		status.FilesScanned += res.Files
		status.FilesArchived += res.Archived
		status.FilesSkipped += res.Skipped
		status.TransactionsMerged += res.Added
		status.AmountMerged += res.AddedAmount
		status.Errors = append(status.Errors, res.Errors...)
	}

	status.FinishedAt = r.now().UTC()
	status.Success = len(status.Errors) == 0

	log.Info("conflict resolution finished",
		slog.Int("users", status.Users),
		slog.Int("files_scanned", status.FilesScanned),
		slog.Int("files_archived", status.FilesArchived),
		slog.Int("files_skipped", status.FilesSkipped),
		slog.Int("transactions_merged", status.TransactionsMerged),
		slog.Int64("amount_merged", status.AmountMerged),
		slog.Int("errors", len(status.Errors)),
	)

	if !dryRun {
		for _, rec := range r.recorders {
			if err := rec.RecordRun(ctx, status); err != nil {
				log.Error("failed to record resolver run", slog.String("error", err.Error()))
			}
		}
	}

	if !status.Success {
		body := fmt.Sprintf("run %s finished with %d error(s):\n", status.RunID, len(status.Errors))
		for i, e := range status.Errors {
			if i == 10 {
				body += fmt.Sprintf("... and %d more\n", len(status.Errors)-10)
				break
			}
			body += "- " + e + "\n"
		}
		if err := r.notifier.Notify(ctx, "Balance conflict resolver reported errors", body); err != nil {
			log.Error("failed to send alert", slog.String("error", err.Error()))
		}
	}

	return status, nil
}

// Resolve merges the given conflict copies of one user's record.
func (r *Resolver) Resolve(ctx context.Context, userID string, files []string, dryRun bool) UserResult {
	log := r.logger.With(slog.Bool("dry_run", dryRun))
	return r.resolve(ctx, log, userID, files, dryRun)
}

type decodedCopy struct {
	name string
	txs  []model.Transaction
}

func (r *Resolver) resolve(ctx context.Context, log *slog.Logger, userID string, files []string, dryRun bool) UserResult {
	res := UserResult{UserID: userID, Files: len(files)}
	log = log.With(slog.String("user_id", userID))

	if !model.ValidUserID(userID) {
		res.Skipped = len(files)
		res.Errors = append(res.Errors, fmt.Sprintf("%s: invalid user id", userID))
		log.Warn("skipping conflict copies for invalid user id")
		return res
	}

	copies := make([]decodedCopy, 0, len(files))
	for _, name := range files {
		rec, err := r.conflicts.ReadConflict(ctx, name)
		if err != nil {
			res.Skipped++
			log.Warn("skipping unreadable conflict copy",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		copies = append(copies, decodedCopy{name: name, txs: rec.RecentTransactions})
	}
	if len(copies) == 0 {
		return res
	}

	exists, err := r.balances.Exists(ctx, userID)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", userID, err))
		log.Error("checking canonical record", slog.String("error", err.Error()))
		return res
	}
	if !exists {
		res.MissingRecord = true
		log.Warn("canonical balance record missing, starting from zero")
	}

	merge := func(rec *model.Balance) error {
		m := ledger.NewMerger(rec, r.txCap)
		for _, c := range copies {
			mr := m.Merge(c.txs)
			res.Added += mr.Added
			res.AddedAmount += mr.AddedAmount
			log.Info("merged conflict copy",
				slog.String("file", c.name),
				slog.Int("added", mr.Added),
				slog.Int64("amount", mr.AddedAmount),
				slog.Int("already_present", mr.Skipped),
				slog.Int("before_window", mr.BeforeWindow),
			)
		}
		if res.Added == 0 {
			return repository.ErrNoChange
		}
		ledger.Trim(rec, r.txCap)
		rec.LastUpdated = r.now().Unix()
		return nil
	}

	if dryRun {
		rec, err := r.balances.Get(ctx, userID)
		if errors.Is(err, apperror.ErrNotFound) {
			rec, err = model.NewBalance(), nil
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", userID, err))
			log.Error("reading canonical record", slog.String("error", err.Error()))
			return res
		}
		if err := merge(rec); err != nil && !errors.Is(err, repository.ErrNoChange) {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", userID, err))
			return res
		}
		res.Balance = rec.Balance
		log.Info("would write canonical record and archive copies",
			slog.Int64("balance", rec.Balance),
			slog.Int("copies", len(copies)),
		)
		return res
	}

	rec, err := r.balances.Update(ctx, userID, merge)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", userID, err))
		log.Error("writing canonical record", slog.String("error", err.Error()))
		return res
	}
	res.Balance = rec.Balance
	res.Wrote = res.Added > 0

	for _, c := range copies {
		archived, err := r.conflicts.ArchiveConflict(ctx, c.name)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", c.name, err))
			log.Error("archiving conflict copy", slog.String("file", c.name), slog.String("error", err.Error()))
			continue
		}
		res.Archived++
		log.Info("archived conflict copy", slog.String("file", c.name), slog.String("archived_as", archived))
	}

	log.Info("user resolved",
		slog.Int64("balance", res.Balance),
		slog.Int("added", res.Added),
		slog.Bool("wrote", res.Wrote),
	)
	return res
}
