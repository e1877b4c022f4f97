package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/model"
	"github.com/sakif/clickforcharity/internal/repository"
)

// TaskService tracks what each user has done with simple and complex tasks.
type TaskService struct {
	content  *ContentService
	profiles repository.ProfileRepository
	balances *BalanceService
	logger   *slog.Logger
}

func NewTaskService(
	content *ContentService,
	profiles repository.ProfileRepository,
	balances *BalanceService,
	logger *slog.Logger,
) *TaskService {
	return &TaskService{
		content:  content,
		profiles: profiles,
		balances: balances,
		logger:   logger,
	}
}

// TaskOutcome is the result of completing or skipping a task.
type TaskOutcome struct {
	Action  model.TaskAction
	TaskID  string
	Reward  int64
	Balance int64
	Message string
}

// ComplexTaskList is what a user sees on the complex task page.
type ComplexTaskList struct {
	Tasks         []model.Item
	UserPlatforms []string
}

// SkippedTaskList is the "skipped" tab: the skipped IDs and the tasks that
// still exist for them.
type SkippedTaskList struct {
	Tasks          []model.Item
	SkippedTaskIDs []string
}

func (s *TaskService) requireUser(ctx context.Context, userID string) (*model.Profile, error) {
	return requireProfile(ctx, s.profiles, userID)
}

// requireProfile turns the raw user_id parameter into a profile. A missing ID
// is unauthorized, a malformed one invalid, an unknown one not found.
func requireProfile(ctx context.Context, profiles repository.ProfileRepository, userID string) (*model.Profile, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("authentication required - user_id missing")
	}
	if !model.ValidUserID(userID) {
		return nil, apperror.ValidationFailed("user_id", "invalid user_id format (expected: id-username)")
	}
	p, err := profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// viewer is the optional form of requireUser used by the public listings: no
// user, or a user without a local profile, sees the anonymous listing.
func (s *TaskService) viewer(ctx context.Context, userID string) (*model.Profile, error) {
	if userID == "" {
		return nil, nil
	}
	p, err := s.requireUser(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// ListSimple returns the simple tasks available to userID (or to everyone when
// userID is empty).
func (s *TaskService) ListSimple(ctx context.Context, userID string) ([]model.Item, error) {
	v, err := s.viewer(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.content.List(ctx, model.KindSimpleTask, ListOptions{Viewer: v})
}

// ListAds returns the ads available to userID, honouring the view cooldown.
func (s *TaskService) ListAds(ctx context.Context, userID string) ([]model.Item, error) {
	v, err := s.viewer(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.content.List(ctx, model.KindAd, ListOptions{Viewer: v})
}

// ListComplex returns the complex tasks gated by the user's platform
// memberships. Unlike the other listings it requires a known user.
func (s *TaskService) ListComplex(ctx context.Context, userID string) (*ComplexTaskList, error) {
	p, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.content.List(ctx, model.KindComplexTask, ListOptions{Viewer: p})
	if err != nil {
		return nil, err
	}
	platforms := p.MemberPlatforms
	if platforms == nil {
		platforms = []string{}
	}
	return &ComplexTaskList{Tasks: tasks, UserPlatforms: platforms}, nil
}

// ListSkipped returns the tasks the user has skipped, across both task kinds.
func (s *TaskService) ListSkipped(ctx context.Context, userID string) (*SkippedTaskList, error) {
	p, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := &SkippedTaskList{Tasks: []model.Item{}, SkippedTaskIDs: []string{}}
	if len(p.SkippedTasks) == 0 {
		return out, nil
	}
	out.SkippedTaskIDs = p.SkippedTasks

	for _, kind := range []model.Kind{model.KindSimpleTask, model.KindComplexTask} {
		items, err := s.content.List(ctx, kind, ListOptions{})
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if p.HasSkipped(string(it.ID)) {
				out.Tasks = append(out.Tasks, it)
			}
		}
	}
	return out, nil
}

// taskKind routes a task ID to the kind that owns it.
func taskKind(taskID string) model.Kind {
	if strings.HasPrefix(taskID, model.KindSimpleTask.IDPrefix()) {
		return model.KindSimpleTask
	}
	return model.KindComplexTask
}

// Act records that the user completed or skipped a task.
//
// Skipping only records the ID. Completing requires a live task, pays its
// reward as a task_complete transaction, then marks the task completed on the
// profile. A non-repeatable task can only be
// completed once. The two writes are not atomic: if the profile write fails
// the credit stands and the error is returned.
func (s *TaskService) Act(ctx context.Context, userID, taskID string, action model.TaskAction) (*TaskOutcome, error) {
	if taskID == "" {
		return nil, apperror.ValidationFailed("task_id", "task_id is required")
	}
	p, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := &TaskOutcome{Action: action, TaskID: taskID}

	switch action {
	case model.ActionSkip:
		if _, err := s.profiles.Update(ctx, userID, func(p *model.Profile) error {
			if p.HasSkipped(taskID) {
				return repository.ErrNoChange
			}
			p.SkippedTasks = append(p.SkippedTasks, taskID)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("service/task: skipping %s for %s: %w", taskID, userID, err)
		}
		out.Message = "Task skipped."
		return out, nil

	case model.ActionComplete:
		task, err := s.content.GetAvailable(ctx, taskKind(taskID), model.ItemID(taskID))
		if err != nil {
			return nil, err
		}
		if !task.Repeatable && p.HasCompleted(taskID) {
			return nil, apperror.AlreadyDone("task already completed")
		}

		rec, err := s.balances.credit(ctx, userID, task.Reward, model.TxTypeTaskComplete, "Completed task: "+task.Title)
		if err != nil {
			return nil, err
		}
		out.Reward = task.Reward
		out.Balance = rec.Balance

		if _, err := s.profiles.Update(ctx, userID, func(p *model.Profile) error {
			markCompleted(p, task, taskID)
			return nil
		}); err != nil {
			s.logger.Error("task credited but profile not updated",
				slog.String("user_id", userID),
				slog.String("task_id", taskID),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("service/task: recording completion of %s for %s: %w", taskID, userID, err)
		}

		s.logger.Info("task completed",
			slog.String("user_id", userID),
			slog.String("task_id", taskID),
			slog.Int64("reward", task.Reward),
		)
		out.Message = fmt.Sprintf("Task completed! You earned %d coins.", task.Reward)
		return out, nil

	default:
		return nil, apperror.ValidationFailed("action", "action must be complete or skip")
	}
}

func markCompleted(p *model.Profile, task *model.Item, taskID string) {
	if !p.HasCompleted(taskID) {
		p.CompletedTasks = append(p.CompletedTasks, taskID)
	}
	p.SkippedTasks = slices.DeleteFunc(p.SkippedTasks, func(id string) bool { return id == taskID })

	if p.TaskStats == nil {
		p.TaskStats = model.NewTaskStats()
	}
	p.TaskStats.TotalCompleted++
	category := task.Category
	if category == "" {
		category = model.CategoryOther
	}
	if _, ok := p.TaskStats.ByCategory[category]; ok {
		p.TaskStats.ByCategory[category]++
	}
	p.Stats.TotalEarned += task.Reward
}

// Unskip moves a task back into the user's available list.
func (s *TaskService) Unskip(ctx context.Context, userID, taskID string) error {
	if taskID == "" {
		return apperror.ValidationFailed("task_id", "task_id is required")
	}
	if _, err := s.requireUser(ctx, userID); err != nil {
		return err
	}
	_, err := s.profiles.Update(ctx, userID, func(p *model.Profile) error {
		if !p.HasSkipped(taskID) {
			return repository.ErrNoChange
		}
		p.SkippedTasks = slices.DeleteFunc(p.SkippedTasks, func(id string) bool { return id == taskID })
		return nil
	})
	if err != nil {
		return fmt.Errorf("service/task: unskipping %s for %s: %w", taskID, userID, err)
	}
	return nil
}

// Reset clears task progress and returns a message describing what was reset.
// Balances and stats are untouched.
func (s *TaskService) Reset(ctx context.Context, userID string, action model.ResetAction) (string, error) {
	if _, err := s.requireUser(ctx, userID); err != nil {
		return "", err
	}

	var msg string
	_, err := s.profiles.Update(ctx, userID, func(p *model.Profile) error {
		switch action {
		case model.ResetCompleted:
			p.CompletedTasks = []string{}
			msg = "Completed tasks reset"
		case model.ResetSkipped:
			p.SkippedTasks = []string{}
			msg = "Skipped tasks reset"
		case model.ResetAll:
			p.CompletedTasks = []string{}
			p.SkippedTasks = []string{}
			msg = "All task progress reset"
		default:
			return apperror.ValidationFailed("action", "invalid action")
		}
		return nil
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return "", err
		}
		return "", fmt.Errorf("service/task: resetting tasks for %s: %w", userID, err)
	}
	return msg, nil
}
