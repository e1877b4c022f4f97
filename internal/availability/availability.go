// Package availability decides which ads and tasks a user gets to see.
//
// Evaluation is pure: it returns a Decision per item and leaves it to the caller
// to physically delete the ones marked Purge. The rules run in a fixed order and
// the first one that matches wins.
package availability

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/clickforcharity/internal/model"
)

type Decision int

const (
	Keep Decision = iota
	Hide
	Purge
)

func (d Decision) String() string {
	switch d {
	case Keep:
		return "keep"
	case Hide:
		return "hide"
	case Purge:
		return "purge"
	default:
		return "unknown"
	}
}

// Options carries the request context the rules depend on.
type Options struct {
	Now time.Time

	// ShowAll disables the enabled-flag rule for admin listings.
	ShowAll bool

	// Viewer is the requesting user's profile, nil for anonymous listings.
	Viewer *model.Profile

	// Cooldown hides a repeatable item the viewer has seen within this window.
	Cooldown time.Duration
}

// Evaluate applies the rules to a single item.
func Evaluate(item *model.Item, kind model.Kind, opts Options) Decision {
	now := opts.Now.Unix()

	if item.DeletedUntil != nil && *item.DeletedUntil < now {
		return Purge
	}
	if item.DeletedAt != nil && *item.DeletedAt <= now {
		return Hide
	}

	if item.ExpiresAt != nil && *item.ExpiresAt < now {
		return Purge
	}
	if exp, ok := item.ExpiryTime(); ok && exp.Before(opts.Now) {
		return Purge
	}

	if !opts.ShowAll && !item.IsEnabled(kind) {
		return Hide
	}

	v := opts.Viewer
	if v == nil {
		return Keep
	}

	if item.Platform != "" {
		member := v.IsMember(item.Platform)
		if item.Category == model.CategorySignups {
			if member {
				return Hide
			}
		} else if !member {
			return Hide
		}
	}

	id := string(item.ID)
	if v.HasSkipped(id) {
		return Hide
	}
	if !item.Repeatable && !kind.AlwaysRepeatable() && v.HasCompleted(id) {
		return Hide
	}
	if opts.Cooldown > 0 && (item.Repeatable || kind.AlwaysRepeatable()) {
		if last, ok := v.AdViews[id]; ok && opts.Now.Sub(time.Unix(last, 0)) < opts.Cooldown {
			return Hide
		}
	}

	return Keep
}

// Filter evaluates every item and splits the result into the visible items,
// sorted by natural ID order, and the IDs the caller should delete.
func Filter(items []model.Item, kind model.Kind, opts Options) (visible []model.Item, purge []model.ItemID) {
	visible = make([]model.Item, 0, len(items))
	for i := range items {
		switch Evaluate(&items[i], kind, opts) {
		case Keep:
			visible = append(visible, items[i])
		case Purge:
			purge = append(purge, items[i].ID)
		}
	}
	SortByID(visible)
	return visible, purge
}

// SortByID orders items so that simple_2 sorts before simple_10.
func SortByID(items []model.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return NaturalLess(string(items[i].ID), string(items[j].ID))
	})
}

// NaturalLess compares strings treating runs of digits as numbers.
func NaturalLess(a, b string) bool {
	for a != "" && b != "" {
		ad, bd := isDigit(a[0]), isDigit(b[0])
		switch {
		case ad && bd:
			na, restA := splitDigits(a)
			nb, restB := splitDigits(b)
			if na != nb {
				return na < nb
			}
			a, b = restA, restB
		case ad != bd:
			return ad
		default:
			ia := strings.IndexFunc(a, func(r rune) bool { return r >= '0' && r <= '9' })
			ib := strings.IndexFunc(b, func(r rune) bool { return r >= '0' && r <= '9' })
			if ia < 0 {
				ia = len(a)
			}
			if ib < 0 {
				ib = len(b)
			}
			if a[:ia] != b[:ib] {
				return a[:ia] < b[:ib]
			}
			a, b = a[ia:], b[ib:]
		}
	}
	return len(a) < len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func splitDigits(s string) (uint64, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	n, err := strconv.ParseUint(s[:i], 10, 64)
	if err != nil {
		n = ^uint64(0)
	}
	return n, s[i:]
}
