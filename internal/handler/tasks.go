package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/model"
	"github.com/sakif/clickforcharity/internal/service"
)

// TaskService is what the public listing and task progress endpoints need.
type TaskService interface {
	ListAds(ctx context.Context, userID string) ([]model.Item, error)
	ListSimple(ctx context.Context, userID string) ([]model.Item, error)
	ListComplex(ctx context.Context, userID string) (*service.ComplexTaskList, error)
	ListSkipped(ctx context.Context, userID string) (*service.SkippedTaskList, error)
	Act(ctx context.Context, userID, taskID string, action model.TaskAction) (*service.TaskOutcome, error)
	Unskip(ctx context.Context, userID, taskID string) error
	Reset(ctx context.Context, userID string, action model.ResetAction) (string, error)
}

// BannerLister lists banner ads.
type BannerLister interface {
	List(ctx context.Context, kind model.Kind, opts service.ListOptions) ([]model.Item, error)
}

// TaskHandler serves the ad and task listings and records task progress.
type TaskHandler struct {
	tasks   TaskService
	banners BannerLister
	logger  *slog.Logger
}

func NewTaskHandler(tasks TaskService, banners BannerLister, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, banners: banners, logger: logger}
}

// HandleGetAds returns the visible ads as a bare array.
func (h *TaskHandler) HandleGetAds(w http.ResponseWriter, r *http.Request) {
	ads, err := h.tasks.ListAds(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		fail(w, r, h.logger, "listing ads", err)
		return
	}
	writeJSON(w, http.StatusOK, ads)
}

// HandleGetSimpleTasks returns the visible simple tasks as a bare array.
func (h *TaskHandler) HandleGetSimpleTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.ListSimple(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		fail(w, r, h.logger, "listing simple tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) HandleGetComplexTasks(w http.ResponseWriter, r *http.Request) {
	list, err := h.tasks.ListComplex(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		fail(w, r, h.logger, "listing complex tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"tasks":         list.Tasks,
		"userPlatforms": list.UserPlatforms,
		"totalTasks":    len(list.Tasks),
	})
}

func (h *TaskHandler) HandleGetSkippedTasks(w http.ResponseWriter, r *http.Request) {
	list, err := h.tasks.ListSkipped(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		fail(w, r, h.logger, "listing skipped tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"tasks":          list.Tasks,
		"skippedTaskIds": list.SkippedTaskIDs,
		"totalSkipped":   len(list.Tasks),
	})
}

// HandleGetBannerAds returns the live banners, optionally for one placement.
func (h *TaskHandler) HandleGetBannerAds(w http.ResponseWriter, r *http.Request) {
	banners, err := h.banners.List(r.Context(), model.KindBanner, service.ListOptions{})
	if err != nil {
		fail(w, r, h.logger, "listing banners", err)
		return
	}
	if placement := r.URL.Query().Get("placement"); placement != "" {
		filtered := make([]model.Item, 0, len(banners))
		for _, b := range banners {
			if b.Placement == placement {
				filtered = append(filtered, b)
			}
		}
		banners = filtered
	}
	writeJSON(w, http.StatusOK, banners)
}

type taskActionRequest struct {
	UserID string       `json:"user_id"`
	TaskID model.ItemID `json:"task_id"`
	Action string       `json:"action"`
}

// HandleUpdateUserTasks records a completion or a skip.
//
//	POST /api/update-user-tasks {"user_id": "42-alice", "task_id": "simple_3", "action": "complete"}
func (h *TaskHandler) HandleUpdateUserTasks(w http.ResponseWriter, r *http.Request) {
	var req taskActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	action, ok := model.ParseTaskAction(req.Action)
	if !ok {
		writeError(w, apperror.ValidationFailed("action", "invalid action - must be 'complete' or 'skip'"))
		return
	}

	out, err := h.tasks.Act(r.Context(), req.UserID, string(req.TaskID), action)
	if err != nil {
		fail(w, r, h.logger, "recording task action", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"action":     out.Action.String(),
		"task_id":    out.TaskID,
		"reward":     out.Reward,
		"newBalance": out.Balance,
		"message":    out.Message,
	})
}

func (h *TaskHandler) HandleUnskipTask(w http.ResponseWriter, r *http.Request) {
	var req taskActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.tasks.Unskip(r.Context(), req.UserID, string(req.TaskID)); err != nil {
		fail(w, r, h.logger, "unskipping task", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Task restored successfully",
		"task_id": req.TaskID,
	})
}

func (h *TaskHandler) HandleResetTasks(w http.ResponseWriter, r *http.Request) {
	var req taskActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	action, ok := model.ParseResetAction(req.Action)
	if !ok {
		writeError(w, apperror.ValidationFailed("action", "invalid action"))
		return
	}

	msg, err := h.tasks.Reset(r.Context(), req.UserID, action)
	if err != nil {
		fail(w, r, h.logger, "resetting tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msg,
		"user_id": req.UserID,
	})
}
