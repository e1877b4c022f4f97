// Package model defines the data structures used throughout the application.
//
// The JSON tags match the on-disk layout the site has always used, so balance and
// profile files written by older deployments (and by other replicas) decode as-is.
package model

import (
	"regexp"
	"strconv"
)

// Transaction types written by the server.
const (
	TxTypeAdView         = "ad_view"
	TxTypeNetChange      = "net_change"
	TxTypeTaskComplete   = "task_complete"
	TxTypePlatformReward = "platform_reward"

	// TxTypeUnknown is what a transaction without a type counts as when
	// comparing identities.
	TxTypeUnknown = "unknown"
)

// userIDPattern is the opaque "<numeric-id>-<username>" form.
var userIDPattern = regexp.MustCompile(`^[0-9]+-[a-zA-Z0-9_-]+$`)

// ValidUserID reports whether id has the "<numeric-id>-<username>" form.
func ValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

// Balance is one user's balance record.
//
// Balance is the durable running total. RecentTransactions is only a bounded
// window of the most recent history, ordered oldest first, so the total cannot be
// recomputed from it once entries have been trimmed.
type Balance struct {
	Balance            int64         `json:"balance"`
	LastUpdated        int64         `json:"last_updated"`
	RecentTransactions []Transaction `json:"recent_transactions"`
}

// NewBalance returns an empty zero-balance record.
func NewBalance() *Balance {
	return &Balance{RecentTransactions: []Transaction{}}
}

// Clone returns a deep copy of b.
func (b *Balance) Clone() *Balance {
	c := *b
	c.RecentTransactions = append([]Transaction(nil), b.RecentTransactions...)
	return &c
}

// Transaction is a single signed balance delta.
//
// ID is empty on transactions written before unique IDs existed; those are
// identified by (Timestamp, Amount, Type) instead. See TxKey.
type Transaction struct {
	ID          string `json:"id,omitempty"`
	Amount      int64  `json:"amount"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// TxKey is the identity of a transaction during a merge.
type TxKey struct {
	ID        string
	Timestamp int64
	Amount    int64
	Type      string
}

// String renders the key for logs.
func (k TxKey) String() string {
	if k.ID != "" {
		return k.ID
	}
	return strconv.FormatInt(k.Timestamp, 10) + "/" + strconv.FormatInt(k.Amount, 10) + "/" + k.Type
}

// LegacyKey returns the (timestamp, amount, type) identity of t.
func (t Transaction) LegacyKey() TxKey {
	typ := t.Type
	if typ == "" {
		typ = TxTypeUnknown
	}
	return TxKey{Timestamp: t.Timestamp, Amount: t.Amount, Type: typ}
}

// IDKey returns the unique-ID identity of t, or false when t has no ID.
func (t Transaction) IDKey() (TxKey, bool) {
	if t.ID == "" {
		return TxKey{}, false
	}
	return TxKey{ID: t.ID}, true
}
