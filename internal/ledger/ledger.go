// Package ledger holds the pure balance-record operations: appending a
// transaction, trimming the recent window and merging transactions from a
// divergent copy of the same record.
//
// Nothing here does I/O. The file and SQLite stores call Append inside their
// read-modify-write, and the conflict resolver calls Merge and Trim.
package ledger

import (
	"sort"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/clickforcharity/internal/model"
)

// DefaultCap is the number of recent transactions kept on a balance record.
const DefaultCap = 50

// NewTxID returns a fresh, globally unique transaction ID.
func NewTxID() string {
	return xid.New().String()
}

// Append applies tx to rec: the amount is added to the running balance, the
// transaction is pushed onto the recent window and the window is trimmed to limit.
// A missing ID or timestamp is filled in. last_updated is set to now.
func Append(rec *model.Balance, tx model.Transaction, limit int, now time.Time) model.Transaction {
	if tx.ID == "" {
		tx.ID = NewTxID()
	}
	if tx.Timestamp == 0 {
		tx.Timestamp = now.Unix()
	}

	rec.Balance += tx.Amount
	rec.RecentTransactions = append(rec.RecentTransactions, tx)
	Trim(rec, limit)
	rec.LastUpdated = now.Unix()
	return tx
}

// Trim sorts the recent window oldest first and keeps only the newest limit
// entries. The running balance is left alone.
func Trim(rec *model.Balance, limit int) {
	if limit <= 0 {
		limit = DefaultCap
	}
	sort.SliceStable(rec.RecentTransactions, func(i, j int) bool {
		return rec.RecentTransactions[i].Timestamp < rec.RecentTransactions[j].Timestamp
	})
	if n := len(rec.RecentTransactions); n > limit {
		kept := make([]model.Transaction, limit)
		copy(kept, rec.RecentTransactions[n-limit:])
		rec.RecentTransactions = kept
	}
	if rec.RecentTransactions == nil {
		rec.RecentTransactions = []model.Transaction{}
	}
}

// MergeResult reports what a Merge added.
type MergeResult struct {
	Added       int
	AddedAmount int64
	Skipped     int
	// BeforeWindow counts unknown transactions older than a full window. They
	// may have been merged earlier and trimmed since, so they are not added.
	BeforeWindow int
}

// KeySet remembers which transactions a record already contains.
//
// Two transactions that both carry an ID are the same when the IDs match. If
// either side has no ID they are compared on (timestamp, amount, type).
type KeySet struct {
	ids  map[string]struct{}
	all  map[model.TxKey]struct{} // legacy triple of every transaction
	bare map[model.TxKey]struct{} // legacy triple of transactions without an ID
}

// NewKeySet seeds a set from existing transactions.
func NewKeySet(txs []model.Transaction) *KeySet {
	ks := &KeySet{
		ids:  make(map[string]struct{}, len(txs)),
		all:  make(map[model.TxKey]struct{}, len(txs)),
		bare: make(map[model.TxKey]struct{}),
	}
	for _, tx := range txs {
		ks.Add(tx)
	}
	return ks
}

// Contains reports whether tx is already known.
func (ks *KeySet) Contains(tx model.Transaction) bool {
	legacy := tx.LegacyKey()
	if k, ok := tx.IDKey(); ok {
		if _, seen := ks.ids[k.ID]; seen {
			return true
		}
		_, seen := ks.bare[legacy]
		return seen
	}
	_, seen := ks.all[legacy]
	return seen
}

// Add records tx.
func (ks *KeySet) Add(tx model.Transaction) {
	legacy := tx.LegacyKey()
	ks.all[legacy] = struct{}{}
	if k, ok := tx.IDKey(); ok {
		ks.ids[k.ID] = struct{}{}
		return
	}
	ks.bare[legacy] = struct{}{}
}

// Merger folds transactions from any number of divergent copies into one
// record. Its key set lives across calls, so a transaction that appears in
// several conflict copies is counted once.
//
// Once the record holds limit transactions, older ones have been trimmed away
// and can no longer be recognised. Incoming transactions older than the oldest
// one kept are then treated as already counted.
type Merger struct {
	rec  *model.Balance
	keys *KeySet

	full    bool
	horizon int64
}

// NewMerger starts a merge into rec, whose recent window is capped at limit.
func NewMerger(rec *model.Balance, limit int) *Merger {
	if limit <= 0 {
		limit = DefaultCap
	}
	m := &Merger{rec: rec, keys: NewKeySet(rec.RecentTransactions)}
	if len(rec.RecentTransactions) >= limit {
		m.full = true
		m.horizon = rec.RecentTransactions[0].Timestamp
		for _, tx := range rec.RecentTransactions[1:] {
			m.horizon = min(m.horizon, tx.Timestamp)
		}
	}
	return m
}

// Merge adds every transaction in incoming that the record does not already
// contain. The recent window is left untrimmed; call Trim once all copies are in.
func (m *Merger) Merge(incoming []model.Transaction) MergeResult {
	var res MergeResult
	for _, tx := range incoming {
		if m.keys.Contains(tx) {
			res.Skipped++
			continue
		}
		if m.full && tx.Timestamp < m.horizon {
			res.BeforeWindow++
			continue
		}
		m.rec.RecentTransactions = append(m.rec.RecentTransactions, tx)
		m.rec.Balance += tx.Amount
		m.keys.Add(tx)
		res.Added++
		res.AddedAmount += tx.Amount
	}
	return res
}

// Merge is a one-shot merge of a single copy into a record capped at DefaultCap.
func Merge(rec *model.Balance, incoming []model.Transaction) MergeResult {
	return NewMerger(rec, DefaultCap).Merge(incoming)
}
