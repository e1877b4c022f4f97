package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/model"
	"github.com/sakif/clickforcharity/internal/repository"
)

// Worker runs the resolver on a fixed interval inside the server process, so a
// deployment does not depend on an external cron entry.
type Worker struct {
	resolver *Resolver
	interval time.Duration
	logger   *slog.Logger
}

func NewWorker(r *Resolver, interval time.Duration, logger *slog.Logger) *Worker {
	return &Worker{resolver: r, interval: interval, logger: logger}
}

// Run resolves once immediately and then on every tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w.interval <= 0 {
		return
	}
	w.logger.Info("conflict resolver worker started", slog.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.resolver.Run(ctx, false); err != nil {
			w.logger.Error("conflict resolver run failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			w.logger.Info("conflict resolver worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Health is the resolver's health as seen by the status endpoint.
type Health struct {
	LastRun *model.RunStatus `json:"last_run"`
	Age     string           `json:"age,omitempty"`
	Overdue bool             `json:"overdue"`
	Healthy bool             `json:"healthy"`
	Message string           `json:"message"`
}

// CheckHealth reads the last recorded run. The resolver is unhealthy when it has
// never run, when the last run failed, or when the last run finished more than
// maxAge ago.
func CheckHealth(ctx context.Context, runs repository.RunRecorder, now time.Time, maxAge time.Duration) (*Health, error) {
	last, err := runs.LastRun(ctx)
	if errors.Is(err, apperror.ErrNotFound) {
		return &Health{Overdue: true, Message: "conflict resolver has never run"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolver: reading last run: %w", err)
	}

	age := now.Sub(last.FinishedAt)
	h := &Health{
		LastRun: last,
		Age:     age.Truncate(time.Second).String(),
		Overdue: age > maxAge,
	}
	switch {
	case h.Overdue:
		h.Message = fmt.Sprintf("last run finished %s ago, more than %s", h.Age, maxAge)
	case !last.Success:
		h.Message = fmt.Sprintf("last run reported %d error(s)", len(last.Errors))
	default:
		h.Healthy = true
		h.Message = "ok"
	}
	return h, nil
}

// OpenLogFile opens (creating if needed) the resolver's append-only log file.
func OpenLogFile(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("resolver: creating log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("resolver: opening log file: %w", err)
	}
	return f, nil
}
