package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/model"
	"github.com/sakif/clickforcharity/internal/repository"
)

var _ repository.RunRecorder = (*DB)(nil)

// RecordRun appends a resolver run to the history table.
func (db *DB) RecordRun(ctx context.Context, run *model.RunStatus) error {
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("sqlite: encoding run errors: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO resolver_runs (run_id, started_at, finished_at, dry_run, users, files_scanned,
			files_archived, files_skipped, transactions_merged, amount_merged, errors, success)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.DryRun,
		run.Users,
		run.FilesScanned,
		run.FilesArchived,
		run.FilesSkipped,
		run.TransactionsMerged,
		run.AmountMerged,
		string(errJSON),
		run.Success,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording run %s: %w", run.RunID, err)
	}
	return nil
}

// LastRun returns the most recently recorded run.
func (db *DB) LastRun(ctx context.Context) (*model.RunStatus, error) {
	var (
		run     model.RunStatus
		errJSON string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT run_id, started_at, finished_at, dry_run, users, files_scanned, files_archived,
			files_skipped, transactions_merged, amount_merged, errors, success
		 FROM resolver_runs ORDER BY rowid DESC LIMIT 1`,
	).Scan(
		&run.RunID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.DryRun,
		&run.Users,
		&run.FilesScanned,
		&run.FilesArchived,
		&run.FilesSkipped,
		&run.TransactionsMerged,
		&run.AmountMerged,
		&errJSON,
		&run.Success,
	)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("resolver run", "last")
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading last run: %w", err)
	}
	if err := json.Unmarshal([]byte(errJSON), &run.Errors); err != nil {
		return nil, fmt.Errorf("sqlite: decoding run errors: %w", err)
	}
	return &run, nil
}
