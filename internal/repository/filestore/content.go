package filestore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/model"
	"github.com/sakif/clickforcharity/internal/repository"
)

// Content exposes the ads/tasks/banners half of the store.
type Content struct {
	s      *Store
	logger *slog.Logger
}

var _ repository.ContentRepository = (*Content)(nil)

// Content returns the content repository backed by this store. Unreadable item
// files are logged and left out of listings.
func (s *Store) Content(logger *slog.Logger) *Content {
	return &Content{s: s, logger: logger}
}

func (c *Content) path(kind model.Kind, id model.ItemID) string {
	return filepath.Join(c.s.kindDir(kind), string(id)+contentExt)
}

func (c *Content) List(ctx context.Context, kind model.Kind) ([]model.Item, error) {
	dir := c.s.kindDir(kind)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if isNotExist(err) {
			return []model.Item{}, nil
		}
		return nil, fmt.Errorf("filestore: listing %s: %w", kind, err)
	}

	items := make([]model.Item, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != contentExt {
			continue
		}
		var it model.Item
		if err := readJSON(filepath.Join(dir, name), &it); err != nil {
			c.logger.Warn("skipping unreadable item",
				slog.String("kind", string(kind)),
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		// The file name is the primary key, whatever the body says.
		it.ID = model.ItemID(strings.TrimSuffix(name, contentExt))
		items = append(items, it)
	}
	return items, nil
}

func (c *Content) Get(ctx context.Context, kind model.Kind, id model.ItemID) (*model.Item, error) {
	if !safeName(string(id)) {
		return nil, apperror.NotFound(kindNoun(kind), string(id))
	}
	var it model.Item
	if err := readJSON(c.path(kind, id), &it); err != nil {
		if isNotExist(err) {
			return nil, apperror.NotFound(kindNoun(kind), string(id))
		}
		return nil, fmt.Errorf("filestore: reading %s %s: %w", kind, id, err)
	}
	it.ID = id
	return &it, nil
}

func (c *Content) Create(ctx context.Context, kind model.Kind, item *model.Item) error {
	unlock := c.s.locks.Lock("content:" + string(kind))
	defer unlock()

	entries, err := os.ReadDir(c.s.kindDir(kind))
	if err != nil && !isNotExist(err) {
		return fmt.Errorf("filestore: listing %s: %w", kind, err)
	}
	next := 1
	for _, e := range entries {
		id := model.ItemID(strings.TrimSuffix(e.Name(), contentExt))
		if n, ok := kind.SequenceOf(id); ok && n >= next {
			next = n + 1
		}
	}

	item.ID = kind.FormatID(next)
	if err := writeJSON(c.path(kind, item.ID), item); err != nil {
		return fmt.Errorf("filestore: creating %s %s: %w", kind, item.ID, err)
	}
	return nil
}

func (c *Content) Save(ctx context.Context, kind model.Kind, item *model.Item) error {
	if !safeName(string(item.ID)) {
		return apperror.ValidationFailed("id", "invalid item id")
	}
	unlock := c.s.locks.Lock("content:" + string(kind) + ":" + string(item.ID))
	defer unlock()

	if err := writeJSON(c.path(kind, item.ID), item); err != nil {
		return fmt.Errorf("filestore: writing %s %s: %w", kind, item.ID, err)
	}
	return nil
}

func (c *Content) Delete(ctx context.Context, kind model.Kind, id model.ItemID) error {
	if !safeName(string(id)) {
		return nil
	}
	if err := os.Remove(c.path(kind, id)); err != nil && !isNotExist(err) {
		return fmt.Errorf("filestore: deleting %s %s: %w", kind, id, err)
	}
	return nil
}

func kindNoun(k model.Kind) string {
	switch k {
	case model.KindAd:
		return "ad"
	case model.KindSimpleTask, model.KindComplexTask:
		return "task"
	case model.KindBanner:
		return "banner"
	default:
		return "item"
	}
}
