package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies a family of content items stored together in one directory.
type Kind string

const (
	KindAd          Kind = "ads"
	KindSimpleTask  Kind = "simple-tasks"
	KindComplexTask Kind = "complex-tasks"
	KindBanner      Kind = "banners"
)

// Kinds lists every content kind.
var Kinds = []Kind{KindAd, KindSimpleTask, KindComplexTask, KindBanner}

// ParseKind validates a kind coming from a URL or config value.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// IDPrefix is the prefix of sequence IDs for the kind. Ads use bare integers.
func (k Kind) IDPrefix() string {
	switch k {
	case KindSimpleTask:
		return "simple_"
	case KindComplexTask:
		return "complex_"
	case KindBanner:
		return "banner_"
	default:
		return ""
	}
}

// FormatID builds the ID for sequence number n.
func (k Kind) FormatID(n int) ItemID {
	return ItemID(k.IDPrefix() + strconv.Itoa(n))
}

// SequenceOf extracts the sequence number from id, or false when id does not
// belong to the kind's ID scheme.
func (k Kind) SequenceOf(id ItemID) (int, bool) {
	s := string(id)
	prefix := k.IDPrefix()
	if !strings.HasPrefix(s, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, prefix))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// EnabledByDefault reports whether items without an "enabled" field are shown.
// Complex tasks must be switched on explicitly.
func (k Kind) EnabledByDefault() bool {
	return k != KindComplexTask
}

// AlwaysRepeatable reports whether every item of the kind can be earned again
// after the cooldown, regardless of its own repeatable flag.
func (k Kind) AlwaysRepeatable() bool {
	return k == KindAd
}

// ItemID is a content item ID. Ads have numeric IDs on disk, everything else a
// prefixed string, so it decodes from either and encodes numbers back as numbers.
type ItemID string

func (id ItemID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(id))
}

func (id *ItemID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ItemID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("item id must be a string or number: %w", err)
	}
	*id = ItemID(n.String())
	return nil
}

// Item is an ad, simple task, complex task or banner ad. Fields that do not apply
// to a kind stay empty and are omitted from its file.
type Item struct {
	ID               ItemID `json:"id"`
	Title            string `json:"title,omitempty"`
	ShortDescription string `json:"shortDescription,omitempty"`
	Instructions     string `json:"instructions,omitempty"`
	URL              string `json:"url,omitempty"`
	Reward           int64  `json:"reward,omitempty"`
	Duration         int    `json:"duration,omitempty"`
	Type             string `json:"type,omitempty"`

	Category   string `json:"category,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Repeatable bool   `json:"repeatable,omitempty"`
	Enabled    *bool  `json:"enabled,omitempty"`

	HTML      string `json:"html,omitempty"`
	Placement string `json:"placement,omitempty"`

	CampaignDuration int    `json:"campaignDuration,omitempty"`
	CreatedAt        int64  `json:"createdAt,omitempty"`
	ExpiresAt        *int64 `json:"expiresAt,omitempty"`
	ExpiryDate       string `json:"expiryDate,omitempty"`
	DeletedAt        *int64 `json:"deletedAt,omitempty"`
	DeletedUntil     *int64 `json:"deletedUntil,omitempty"`
}

// IsEnabled applies the kind's default when the item has no enabled flag.
func (it *Item) IsEnabled(k Kind) bool {
	if it.Enabled == nil {
		return k.EnabledByDefault()
	}
	return *it.Enabled
}

// expiryDateLayouts are the formats the admin UI has written expiryDate in.
var expiryDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ExpiryTime parses ExpiryDate. A date without a time expires at the end of
// that day (UTC).
func (it *Item) ExpiryTime() (time.Time, bool) {
	s := strings.TrimSpace(it.ExpiryDate)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range expiryDateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if layout == "2006-01-02" {
			t = t.Add(24*time.Hour - time.Second)
		}
		return t, true
	}
	return time.Time{}, false
}

// Int64Ptr is a small helper for the optional unix-time fields.
func Int64Ptr(v int64) *int64 { return &v }

// BoolPtr is a small helper for the optional enabled flag.
func BoolPtr(v bool) *bool { return &v }

// Task categories used by platform gating.
const (
	CategorySignups     = "signups"
	CategoryFollows     = "follows"
	CategoryEngagements = "engagements"
	CategoryOther       = "other"
)

// Banner placements.
var Placements = []string{"desktop", "mobile", "floating"}
