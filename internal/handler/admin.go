package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/model"
	"github.com/sakif/clickforcharity/internal/service"
)

// ContentService is what the admin content endpoints need.
type ContentService interface {
	List(ctx context.Context, kind model.Kind, opts service.ListOptions) ([]model.Item, error)
	Create(ctx context.Context, kind model.Kind, draft model.Item) (*model.Item, error)
	SoftDelete(ctx context.Context, kind model.Kind, id model.ItemID) (*model.Item, error)
}

// AdminHandler manages ads, tasks and banners. Routes are mounted behind
// auth.RequireAdmin and take the kind from the {kind} path segment.
type AdminHandler struct {
	content ContentService
	logger  *slog.Logger
}

func NewAdminHandler(content ContentService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{content: content, logger: logger}
}

func kindParam(r *http.Request) (model.Kind, error) {
	kind, ok := model.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		return "", apperror.NotFound("content kind", chi.URLParam(r, "kind"))
	}
	return kind, nil
}

// HandleList shows every item of a kind, disabled ones included.
func (h *AdminHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	items, err := h.content.List(r.Context(), kind, service.ListOptions{ShowAll: true})
	if err != nil {
		fail(w, r, h.logger, "admin listing", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleCreate validates and stores a new item.
//
//	POST /api/admin/simple-tasks {...} → 201 {"success": true, "id": "simple_4", "item": {...}}
func (h *AdminHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var draft model.Item
	if err := decodeJSON(w, r, &draft); err != nil {
		writeError(w, err)
		return
	}

	item, err := h.content.Create(r.Context(), kind, draft)
	if err != nil {
		fail(w, r, h.logger, "creating content item", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"id":      item.ID,
		"item":    item,
	})
}

// HandleDelete soft deletes an item.
func (h *AdminHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id := model.ItemID(chi.URLParam(r, "id"))

	item, err := h.content.SoftDelete(r.Context(), kind, id)
	if err != nil {
		fail(w, r, h.logger, "deleting content item", err)
		return
	}
	resp := map[string]any{
		"success": true,
		"id":      item.ID,
		"message": "Deleted.",
	}
	if item.DeletedUntil != nil {
		resp["deletedUntil"] = *item.DeletedUntil
		resp["message"] = "Deleted. It can be restored by editing its file until " +
			time.Unix(*item.DeletedUntil, 0).UTC().Format(time.RFC3339) + "."
	}
	writeJSON(w, http.StatusOK, resp)
}
