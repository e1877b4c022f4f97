package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/clickforcharity/internal/model"
)

var now = time.Unix(1_750_000_000, 0)

func at(d time.Duration) *int64 { return model.Int64Ptr(now.Add(d).Unix()) }

func TestEvaluate(t *testing.T) {
	viewer := &model.Profile{
		UserID:          "7-bob",
		MemberPlatforms: []string{"odysee"},
		CompletedTasks:  []string{"complex_1", "simple_3"},
		SkippedTasks:    []string{"complex_2"},
		AdViews:         map[string]int64{"4": now.Add(-2 * time.Hour).Unix(), "5": now.Add(-30 * time.Hour).Unix()},
	}

	tests := []struct {
		name string
		item model.Item
		kind model.Kind
		opts Options
		want Decision
	}{
		{
			name: "plain ad is kept",
			item: model.Item{ID: "1"},
			kind: model.KindAd,
			want: Keep,
		},
		{
			name: "soft delete past grace is purged",
			item: model.Item{ID: "1", DeletedAt: at(-time.Hour), DeletedUntil: at(-time.Minute)},
			kind: model.KindAd,
			want: Purge,
		},
		{
			name: "soft delete within grace is hidden",
			item: model.Item{ID: "1", DeletedAt: at(-time.Minute), DeletedUntil: at(29 * time.Minute)},
			kind: model.KindSimpleTask,
			want: Hide,
		},
		{
			name: "soft delete without deletedUntil is hidden",
			item: model.Item{ID: "1", DeletedAt: at(-time.Minute)},
			kind: model.KindSimpleTask,
			want: Hide,
		},
		{
			name: "expired ad is purged",
			item: model.Item{ID: "2", ExpiresAt: at(-time.Second)},
			kind: model.KindAd,
			want: Purge,
		},
		{
			name: "ad expiring later is kept",
			item: model.Item{ID: "2", ExpiresAt: at(time.Hour)},
			kind: model.KindAd,
			want: Keep,
		},
		{
			name: "past expiryDate is purged",
			item: model.Item{ID: "complex_9", ExpiryDate: "2020-01-01", Enabled: model.BoolPtr(true)},
			kind: model.KindComplexTask,
			want: Purge,
		},
		{
			name: "complex task without enabled flag is hidden",
			item: model.Item{ID: "complex_5"},
			kind: model.KindComplexTask,
			want: Hide,
		},
		{
			name: "disabled item shown to admin",
			item: model.Item{ID: "complex_5", Enabled: model.BoolPtr(false)},
			kind: model.KindComplexTask,
			opts: Options{ShowAll: true},
			want: Keep,
		},
		{
			name: "signup hidden once the viewer is a member",
			item: model.Item{ID: "complex_6", Platform: "odysee", Category: model.CategorySignups, Enabled: model.BoolPtr(true)},
			kind: model.KindComplexTask,
			opts: Options{Viewer: viewer},
			want: Hide,
		},
		{
			name: "signup shown to non-members",
			item: model.Item{ID: "complex_7", Platform: "rumble", Category: model.CategorySignups, Enabled: model.BoolPtr(true)},
			kind: model.KindComplexTask,
			opts: Options{Viewer: viewer},
			want: Keep,
		},
		{
			name: "follow task needs membership",
			item: model.Item{ID: "complex_8", Platform: "rumble", Category: model.CategoryFollows, Enabled: model.BoolPtr(true)},
			kind: model.KindComplexTask,
			opts: Options{Viewer: viewer},
			want: Hide,
		},
		{
			name: "follow task for a member platform",
			item: model.Item{ID: "complex_8", Platform: "odysee", Category: model.CategoryFollows, Enabled: model.BoolPtr(true)},
			kind: model.KindComplexTask,
			opts: Options{Viewer: viewer},
			want: Keep,
		},
		{
			name: "skipped task is hidden",
			item: model.Item{ID: "complex_2", Enabled: model.BoolPtr(true)},
			kind: model.KindComplexTask,
			opts: Options{Viewer: viewer},
			want: Hide,
		},
		{
			name: "completed non-repeatable task is hidden",
			item: model.Item{ID: "complex_1", Enabled: model.BoolPtr(true)},
			kind: model.KindComplexTask,
			opts: Options{Viewer: viewer},
			want: Hide,
		},
		{
			name: "completed repeatable task is kept",
			item: model.Item{ID: "complex_1", Enabled: model.BoolPtr(true), Repeatable: true},
			kind: model.KindComplexTask,
			opts: Options{Viewer: viewer},
			want: Keep,
		},
		{
			name: "ad viewed within cooldown is hidden",
			item: model.Item{ID: "4"},
			kind: model.KindAd,
			opts: Options{Viewer: viewer, Cooldown: 23 * time.Hour},
			want: Hide,
		},
		{
			name: "ad viewed before cooldown is kept",
			item: model.Item{ID: "5"},
			kind: model.KindAd,
			opts: Options{Viewer: viewer, Cooldown: 23 * time.Hour},
			want: Keep,
		},
		{
			name: "anonymous listing ignores viewer rules",
			item: model.Item{ID: "complex_2", Enabled: model.BoolPtr(true)},
			kind: model.KindComplexTask,
			want: Keep,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Now = now
			got := Evaluate(&tt.item, tt.kind, tt.opts)
			assert.Equal(t, tt.want, got, "got %s, want %s", got, tt.want)
		})
	}
}

func TestFilter_SplitsAndSorts(t *testing.T) {
	items := []model.Item{
		{ID: "simple_10"},
		{ID: "simple_2"},
		{ID: "simple_1", ExpiresAt: at(-time.Hour)},
		{ID: "simple_3", DeletedAt: at(-time.Minute), DeletedUntil: at(time.Minute)},
	}

	visible, purge := Filter(items, model.KindSimpleTask, Options{Now: now})

	ids := make([]model.ItemID, 0, len(visible))
	for _, it := range visible {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []model.ItemID{"simple_2", "simple_10"}, ids)
	assert.Equal(t, []model.ItemID{"simple_1"}, purge)
}

func TestNaturalLess(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"simple_2", "simple_10", true},
		{"simple_10", "simple_2", false},
		{"2", "10", true},
		{"banner_1", "simple_1", true},
		{"simple_1", "simple_1", false},
		{"a", "a1", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NaturalLess(tt.a, tt.b), "%s < %s", tt.a, tt.b)
	}
}
