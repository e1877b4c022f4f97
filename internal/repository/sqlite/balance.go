package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/model"
	"github.com/sakif/clickforcharity/internal/repository"
)

// compile-time check that *DB implements repository.BalanceRepository
var _ repository.BalanceRepository = (*DB)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (db *DB) Get(ctx context.Context, userID string) (*model.Balance, error) {
	rec, err := loadBalance(ctx, db.conn, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperror.NotFound("balance", userID)
	}
	return rec, nil
}

func (db *DB) Exists(ctx context.Context, userID string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM balances WHERE user_id = ?`, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking balance %s: %w", userID, err)
	}
	return n > 0, nil
}

func (db *DB) Create(ctx context.Context, userID string, rec *model.Balance) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := loadBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperror.Conflict("balance", userID)
		}
		return storeBalance(ctx, tx, userID, rec)
	})
}

// Update runs the read-modify-write inside a single transaction.
func (db *DB) Update(ctx context.Context, userID string, fn repository.BalanceUpdateFunc) (*model.Balance, error) {
	var out *model.Balance
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		rec, err := loadBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if rec == nil {
			rec = model.NewBalance()
		}

		if err := fn(rec); err != nil {
			if errors.Is(err, repository.ErrNoChange) {
				out = rec
				return nil
			}
			return err
		}

		if err := storeBalance(ctx, tx, userID, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// loadBalance returns nil, nil when the user has no row.
func loadBalance(ctx context.Context, q querier, userID string) (*model.Balance, error) {
	rec := model.NewBalance()
	err := q.QueryRowContext(ctx,
		`SELECT balance, last_updated FROM balances WHERE user_id = ?`, userID,
	).Scan(&rec.Balance, &rec.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading balance %s: %w", userID, err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT tx_id, amount, type, description, timestamp
		 FROM balance_transactions
		 WHERE user_id = ?
		 ORDER BY timestamp ASC, seq ASC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading transactions %s: %w", userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(&t.ID, &t.Amount, &t.Type, &t.Description, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite: scanning transaction: %w", err)
		}
		rec.RecentTransactions = append(rec.RecentTransactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating transactions: %w", err)
	}
	return rec, nil
}

// storeBalance upserts the balance row and replaces the stored window with
// rec.RecentTransactions, which the caller has already trimmed.
func storeBalance(ctx context.Context, q querier, userID string, rec *model.Balance) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO balances (user_id, balance, last_updated) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET balance = excluded.balance, last_updated = excluded.last_updated`,
		userID, rec.Balance, rec.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("sqlite: writing balance %s: %w", userID, err)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM balance_transactions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: clearing transactions %s: %w", userID, err)
	}
	for _, t := range rec.RecentTransactions {
		_, err := q.ExecContext(ctx,
			`INSERT INTO balance_transactions (user_id, tx_id, amount, type, description, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			userID, t.ID, t.Amount, t.Type, t.Description, t.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("sqlite: writing transaction %s: %w", userID, err)
		}
	}
	return nil
}
