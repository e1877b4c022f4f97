package service

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/model"
)

func seedTasks(ts *testServices) {
	ts.contentRepo.add(model.KindSimpleTask, model.Item{ID: "simple_1", Title: "Visit", Reward: 3, Duration: 10})
	ts.contentRepo.add(model.KindSimpleTask, model.Item{ID: "simple_2", Title: "Read", Reward: 4, Duration: 10})
	ts.contentRepo.add(model.KindComplexTask, model.Item{
		ID: "complex_1", Title: "Follow us", Reward: 20, Platform: "odysee",
		Category: model.CategoryFollows, Enabled: model.BoolPtr(true),
	})
	ts.contentRepo.add(model.KindComplexTask, model.Item{
		ID: "complex_2", Title: "Join Odysee", Reward: 50, Platform: "odysee",
		Category: model.CategorySignups, Enabled: model.BoolPtr(true),
	})
	ts.contentRepo.add(model.KindComplexTask, model.Item{
		ID: "complex_3", Title: "Like daily", Reward: 2, Platform: "odysee",
		Category: model.CategoryEngagements, Repeatable: true, Enabled: model.BoolPtr(true),
	})
}

func ids(items []model.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = string(it.ID)
	}
	return out
}

// =========================================================================
// COMPLETE / SKIP
// =========================================================================

func TestAct_CompletePaysOnce(t *testing.T) {
	ts := newTestServices(profile("42-alice"))
	seedTasks(ts)
	ctx := context.Background()

	out, err := ts.tasks.Act(ctx, "42-alice", "simple_1", model.ActionComplete)
	if err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	if out.Reward != 3 || out.Balance != 3 {
		t.Errorf("outcome = %+v", out)
	}
	if out.Message != "Task completed! You earned 3 coins." {
		t.Errorf("Message = %q", out.Message)
	}

	_, err = ts.tasks.Act(ctx, "42-alice", "simple_1", model.ActionComplete)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second completion error = %v, want ErrConflict", err)
	}

	rec, _ := ts.balances.Get(ctx, "42-alice")
	if rec.Balance != 3 {
		t.Errorf("Balance = %d, want 3", rec.Balance)
	}
	if rec.RecentTransactions[0].Type != model.TxTypeTaskComplete {
		t.Errorf("Type = %q", rec.RecentTransactions[0].Type)
	}
	if rec.RecentTransactions[0].Description != "Completed task: Visit" {
		t.Errorf("Description = %q", rec.RecentTransactions[0].Description)
	}
}

func TestAct_RepeatableCanBeCompletedAgain(t *testing.T) {
	p := profile("42-alice")
	p.MemberPlatforms = []string{"odysee"}
	ts := newTestServices(p)
	seedTasks(ts)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := ts.tasks.Act(ctx, "42-alice", "complex_3", model.ActionComplete); err != nil {
			t.Fatalf("Act() #%d error = %v", i, err)
		}
	}

	got, _ := ts.profileRepo.Get(ctx, "42-alice")
	if len(got.CompletedTasks) != 1 {
		t.Errorf("CompletedTasks = %v, want one entry", got.CompletedTasks)
	}
	if got.TaskStats.TotalCompleted != 2 || got.TaskStats.ByCategory[model.CategoryEngagements] != 2 {
		t.Errorf("TaskStats = %+v", got.TaskStats)
	}
	if got.Stats.TotalEarned != 4 {
		t.Errorf("TotalEarned = %d, want 4", got.Stats.TotalEarned)
	}
}

func TestAct_CompleteRemovesFromSkipped(t *testing.T) {
	ts := newTestServices(profile("42-alice"))
	seedTasks(ts)
	ctx := context.Background()

	if _, err := ts.tasks.Act(ctx, "42-alice", "simple_2", model.ActionSkip); err != nil {
		t.Fatalf("skip error = %v", err)
	}
	if _, err := ts.tasks.Act(ctx, "42-alice", "simple_2", model.ActionComplete); err != nil {
		t.Fatalf("complete error = %v", err)
	}

	got, _ := ts.profileRepo.Get(ctx, "42-alice")
	if got.HasSkipped("simple_2") {
		t.Error("completed task still in skipped list")
	}
	if !got.HasCompleted("simple_2") {
		t.Error("task not marked completed")
	}
}

func TestAct_SkipIsIdempotentAndPaysNothing(t *testing.T) {
	ts := newTestServices(profile("42-alice"))
	seedTasks(ts)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		out, err := ts.tasks.Act(ctx, "42-alice", "simple_1", model.ActionSkip)
		if err != nil {
			t.Fatalf("Act() error = %v", err)
		}
		if out.Reward != 0 || out.Message != "Task skipped." {
			t.Errorf("outcome = %+v", out)
		}
	}

	got, _ := ts.profileRepo.Get(ctx, "42-alice")
	if !slices.Equal(got.SkippedTasks, []string{"simple_1"}) {
		t.Errorf("SkippedTasks = %v", got.SkippedTasks)
	}
	if ok, _ := ts.balances.Exists(ctx, "42-alice"); ok {
		t.Error("skipping must not touch the balance")
	}
}

func TestAct_CompleteRequiresLiveTask(t *testing.T) {
	ts := newTestServices(profile("42-alice"))
	now := testNow.Unix()
	ts.contentRepo.add(model.KindSimpleTask, model.Item{
		ID: "simple_1", Title: "Gone", Reward: 3, Duration: 10,
		DeletedAt: model.Int64Ptr(now - 60), DeletedUntil: model.Int64Ptr(now + 3600),
	})
	ts.contentRepo.add(model.KindSimpleTask, model.Item{
		ID: "simple_2", Title: "Old", Reward: 3, Duration: 10, ExpiresAt: model.Int64Ptr(now - 1),
	})
	ts.contentRepo.add(model.KindComplexTask, model.Item{
		ID: "complex_1", Title: "Paused", Reward: 20, Enabled: model.BoolPtr(false),
	})
	ctx := context.Background()

	for _, id := range []string{"simple_1", "simple_2", "complex_1"} {
		if _, err := ts.tasks.Act(ctx, "42-alice", id, model.ActionComplete); !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("complete %s: error = %v, want not found", id, err)
		}
	}
	if ok, _ := ts.balances.Exists(ctx, "42-alice"); ok {
		t.Error("an unavailable task must not pay")
	}
}

func TestAct_SkipDoesNotNeedTheTask(t *testing.T) {
	ts := newTestServices(profile("42-alice"))
	ctx := context.Background()

	if _, err := ts.tasks.Act(ctx, "42-alice", "simple_99", model.ActionSkip); err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	got, _ := ts.profileRepo.Get(ctx, "42-alice")
	if !slices.Equal(got.SkippedTasks, []string{"simple_99"}) {
		t.Errorf("SkippedTasks = %v", got.SkippedTasks)
	}
}

func TestAct_Errors(t *testing.T) {
	ts := newTestServices(profile("42-alice"))
	seedTasks(ts)

	tests := []struct {
		name    string
		userID  string
		taskID  string
		wantErr error
	}{
		{"missing user", "", "simple_1", apperror.ErrUnauthorized},
		{"bad user", "alice", "simple_1", apperror.ErrValidation},
		{"unknown user", "9-ghost", "simple_1", apperror.ErrNotFound},
		{"missing task id", "42-alice", "", apperror.ErrValidation},
		{"unknown simple task", "42-alice", "simple_99", apperror.ErrNotFound},
		{"unknown complex task", "42-alice", "complex_99", apperror.ErrNotFound},
		{"garbage task id", "42-alice", "../etc", apperror.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.tasks.Act(context.Background(), tt.userID, tt.taskID, model.ActionComplete)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// =========================================================================
// LISTINGS
// =========================================================================

func TestListComplex_PlatformGating(t *testing.T) {
	nonMember := profile("1-nomember")
	member := profile("2-member")
	member.MemberPlatforms = []string{"odysee"}
	ts := newTestServices(nonMember, member)
	seedTasks(ts)
	ctx := context.Background()

	got, err := ts.tasks.ListComplex(ctx, "1-nomember")
	if err != nil {
		t.Fatalf("ListComplex() error = %v", err)
	}
	if !slices.Equal(ids(got.Tasks), []string{"complex_2"}) {
		t.Errorf("non-member sees %v, want only the signup task", ids(got.Tasks))
	}

	got, err = ts.tasks.ListComplex(ctx, "2-member")
	if err != nil {
		t.Fatalf("ListComplex() error = %v", err)
	}
	if !slices.Equal(ids(got.Tasks), []string{"complex_1", "complex_3"}) {
		t.Errorf("member sees %v", ids(got.Tasks))
	}
	if !slices.Equal(got.UserPlatforms, []string{"odysee"}) {
		t.Errorf("UserPlatforms = %v", got.UserPlatforms)
	}
}

func TestListComplex_RequiresUser(t *testing.T) {
	ts := newTestServices()
	if _, err := ts.tasks.ListComplex(context.Background(), ""); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
	if _, err := ts.tasks.ListComplex(context.Background(), "9-ghost"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestListSimple_HidesCompletedAndSkipped(t *testing.T) {
	p := profile("42-alice")
	p.CompletedTasks = []string{"simple_1"}
	ts := newTestServices(p)
	seedTasks(ts)
	ctx := context.Background()

	got, err := ts.tasks.ListSimple(ctx, "42-alice")
	if err != nil {
		t.Fatalf("ListSimple() error = %v", err)
	}
	if !slices.Equal(ids(got), []string{"simple_2"}) {
		t.Errorf("ListSimple() = %v", ids(got))
	}

	anon, _ := ts.tasks.ListSimple(ctx, "")
	if len(anon) != 2 {
		t.Errorf("anonymous listing = %v, want both tasks", ids(anon))
	}

	unknown, err := ts.tasks.ListSimple(ctx, "9-ghost")
	if err != nil || len(unknown) != 2 {
		t.Errorf("unknown user listing = %v, %v", ids(unknown), err)
	}
}

func TestListAds_Cooldown(t *testing.T) {
	p := profile("42-alice")
	p.AdViews = map[string]int64{"1": testNow.Add(-time.Hour).Unix(), "2": testNow.Add(-30 * time.Hour).Unix()}
	ts := newTestServices(p)
	ts.contentRepo.add(model.KindAd, model.Item{ID: "1", Title: "a", Reward: 1})
	ts.contentRepo.add(model.KindAd, model.Item{ID: "2", Title: "b", Reward: 1})

	got, err := ts.tasks.ListAds(context.Background(), "42-alice")
	if err != nil {
		t.Fatalf("ListAds() error = %v", err)
	}
	if !slices.Equal(ids(got), []string{"2"}) {
		t.Errorf("ListAds() = %v, want [2]", ids(got))
	}
}

func TestListSkipped(t *testing.T) {
	p := profile("42-alice")
	p.MemberPlatforms = []string{"odysee"}
	p.SkippedTasks = []string{"simple_2", "complex_1", "complex_gone"}
	ts := newTestServices(p)
	seedTasks(ts)

	got, err := ts.tasks.ListSkipped(context.Background(), "42-alice")
	if err != nil {
		t.Fatalf("ListSkipped() error = %v", err)
	}
	if !slices.Equal(ids(got.Tasks), []string{"simple_2", "complex_1"}) {
		t.Errorf("Tasks = %v", ids(got.Tasks))
	}
	if len(got.SkippedTaskIDs) != 3 {
		t.Errorf("SkippedTaskIDs = %v", got.SkippedTaskIDs)
	}
}

// =========================================================================
// UNSKIP / RESET
// =========================================================================

func TestUnskip(t *testing.T) {
	p := profile("42-alice")
	p.SkippedTasks = []string{"simple_1", "simple_2"}
	ts := newTestServices(p)
	ctx := context.Background()

	if err := ts.tasks.Unskip(ctx, "42-alice", "simple_1"); err != nil {
		t.Fatalf("Unskip() error = %v", err)
	}
	if err := ts.tasks.Unskip(ctx, "42-alice", "simple_1"); err != nil {
		t.Fatalf("second Unskip() error = %v", err)
	}
	got, _ := ts.profileRepo.Get(ctx, "42-alice")
	if !slices.Equal(got.SkippedTasks, []string{"simple_2"}) {
		t.Errorf("SkippedTasks = %v", got.SkippedTasks)
	}
}

func TestReset(t *testing.T) {
	tests := []struct {
		action        model.ResetAction
		wantCompleted int
		wantSkipped   int
		wantMsg       string
	}{
		{model.ResetCompleted, 0, 1, "Completed tasks reset"},
		{model.ResetSkipped, 2, 0, "Skipped tasks reset"},
		{model.ResetAll, 0, 0, "All task progress reset"},
	}
	for _, tt := range tests {
		t.Run(tt.wantMsg, func(t *testing.T) {
			p := profile("42-alice")
			p.CompletedTasks = []string{"simple_1", "complex_1"}
			p.SkippedTasks = []string{"simple_2"}
			p.Stats.TotalEarned = 99
			ts := newTestServices(p)
			ctx := context.Background()

			msg, err := ts.tasks.Reset(ctx, "42-alice", tt.action)
			if err != nil {
				t.Fatalf("Reset() error = %v", err)
			}
			if msg != tt.wantMsg {
				t.Errorf("message = %q, want %q", msg, tt.wantMsg)
			}
			got, _ := ts.profileRepo.Get(ctx, "42-alice")
			if len(got.CompletedTasks) != tt.wantCompleted || len(got.SkippedTasks) != tt.wantSkipped {
				t.Errorf("completed=%v skipped=%v", got.CompletedTasks, got.SkippedTasks)
			}
			if got.Stats.TotalEarned != 99 {
				t.Error("reset must not touch stats")
			}
		})
	}
}

func TestReset_InvalidAction(t *testing.T) {
	ts := newTestServices(profile("42-alice"))
	_, err := ts.tasks.Reset(context.Background(), "42-alice", model.ResetAction(99))
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}
