package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sakif/clickforcharity/internal/alert"
	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/model"
	"github.com/sakif/clickforcharity/internal/repository"
	"github.com/sakif/clickforcharity/internal/resolver"
)

// ConflictResolver runs one resolution pass.
type ConflictResolver interface {
	Run(ctx context.Context, dryRun bool) (*model.RunStatus, error)
}

// ResolverHandler exposes the conflict resolver's health and a manual trigger.
// An overdue resolver is reported to the notifier at most once per maxAge.
type ResolverHandler struct {
	resolver ConflictResolver
	runs     repository.RunRecorder
	maxAge   time.Duration
	notifier alert.Notifier
	now      func() time.Time
	logger   *slog.Logger

	mu          sync.Mutex
	lastAlerted time.Time
}

func NewResolverHandler(
	r ConflictResolver,
	runs repository.RunRecorder,
	maxAge time.Duration,
	notifier alert.Notifier,
	logger *slog.Logger,
) *ResolverHandler {
	if notifier == nil {
		notifier = alert.Nop{}
	}
	return &ResolverHandler{
		resolver: r,
		runs:     runs,
		maxAge:   maxAge,
		notifier: notifier,
		now:      time.Now,
		logger:   logger,
	}
}

// HandleStatus is meant for an uptime monitor: 200 when the last run succeeded
// recently, 500 otherwise.
//
//	GET /api/resolver-status
func (h *ResolverHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	health, err := resolver.CheckHealth(r.Context(), h.runs, h.now(), h.maxAge)
	if err != nil {
		fail(w, r, h.logger, "checking resolver health", err)
		return
	}
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusInternalServerError
	}
	if health.Overdue {
		h.alertOverdue(r.Context(), health)
	}
	writeJSON(w, status, health)
}

func (h *ResolverHandler) alertOverdue(ctx context.Context, health *resolver.Health) {
	now := h.now()
	h.mu.Lock()
	if !h.lastAlerted.IsZero() && now.Sub(h.lastAlerted) < h.maxAge {
		h.mu.Unlock()
		return
	}
	h.lastAlerted = now
	h.mu.Unlock()

	if err := h.notifier.Notify(ctx, "Balance conflict resolver is overdue", health.Message); err != nil {
		h.logger.Error("failed to send overdue alert", slog.String("error", err.Error()))
	}
}

// HandleResolve runs the resolver now.
//
//	POST /api/admin/resolve-conflicts?dry_run=true
func (h *ResolverHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	dryRun := false
	if v := r.URL.Query().Get("dry_run"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, apperror.ValidationFailed("dry_run", "dry_run must be true or false"))
			return
		}
		dryRun = b
	}

	run, err := h.resolver.Run(r.Context(), dryRun)
	if err != nil {
		fail(w, r, h.logger, "running conflict resolver", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HandleHealthz is the liveness probe.
func HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
