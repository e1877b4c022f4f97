package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/clickforcharity/internal/model"
)

// BalanceService is what the balance endpoints need from service.BalanceService.
type BalanceService interface {
	Get(ctx context.Context, userID string) (*model.Balance, error)
	CreditAdView(ctx context.Context, userID string, reward int64, adID string) (*model.Balance, error)
	ApplyNetChange(ctx context.Context, userID string, delta int64) (*model.Balance, error)
}

// BalanceHandler serves the balance read, ad credit and net-change flush
// endpoints.
type BalanceHandler struct {
	svc    BalanceService
	logger *slog.Logger
}

func NewBalanceHandler(svc BalanceService, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{svc: svc, logger: logger}
}

type updateBalanceRequest struct {
	UserID string       `json:"userId"`
	Reward int64        `json:"reward"`
	AdID   model.ItemID `json:"adId"`
}

// HandleUpdateBalance credits one ad view.
//
//	POST /api/update_balance {"userId": "42-alice", "reward": 10, "adId": 3}
//	→ {"success": true, "newBalance": 25, "reward": 10}
func (h *BalanceHandler) HandleUpdateBalance(w http.ResponseWriter, r *http.Request) {
	var req updateBalanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.svc.CreditAdView(r.Context(), req.UserID, req.Reward, string(req.AdID))
	if err != nil {
		fail(w, r, h.logger, "crediting ad view", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"newBalance": rec.Balance,
		"reward":     req.Reward,
	})
}

type writeBalanceRequest struct {
	UserID    string `json:"user_id"`
	NetChange int64  `json:"net_change"`
}

// HandleWriteBalance applies a client's buffered net change.
//
//	POST /api/write_balance {"user_id": "42-alice", "net_change": -5}
//	→ {"success": true, "balance": 20}
func (h *BalanceHandler) HandleWriteBalance(w http.ResponseWriter, r *http.Request) {
	var req writeBalanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.svc.ApplyNetChange(r.Context(), req.UserID, req.NetChange)
	if err != nil {
		fail(w, r, h.logger, "applying net change", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"balance": rec.Balance,
	})
}

// HandleGetBalance returns the stored balance; users without a record read 0.
//
//	GET /api/get_balance?user_id=42-alice
//	→ {"success": true, "balance": 20, "last_updated": 1760000000}
func (h *BalanceHandler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		fail(w, r, h.logger, "reading balance", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"balance":      rec.Balance,
		"last_updated": rec.LastUpdated,
	})
}
