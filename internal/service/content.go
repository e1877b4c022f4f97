package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/availability"
	"github.com/sakif/clickforcharity/internal/model"
	"github.com/sakif/clickforcharity/internal/repository"
)

const (
	MaxSimpleTaskDuration  = 59
	DefaultSoftDeleteGrace = 30 * time.Minute
	DefaultAdCooldown      = 23 * time.Hour
)

// ContentService manages ads, simple tasks, complex tasks and banner ads: the
// admin lifecycle (create, soft delete) and the filtered public listings.
type ContentService struct {
	repo     repository.ContentRepository
	grace    time.Duration
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewContentService(repo repository.ContentRepository, grace, cooldown time.Duration, logger *slog.Logger) *ContentService {
	if grace <= 0 {
		grace = DefaultSoftDeleteGrace
	}
	return &ContentService{
		repo:     repo,
		grace:    grace,
		cooldown: cooldown,
		logger:   logger,
		now:      time.Now,
	}
}

// ListOptions selects who a listing is for.
type ListOptions struct {
	// Viewer personalises the listing; nil lists for an anonymous visitor.
	Viewer *model.Profile
	// ShowAll includes disabled items (admin view).
	ShowAll bool
}

// List returns the items of kind visible under opts, in natural ID order.
// Items that are past their soft-delete grace window or expiry are deleted as
// a side effect; a failed delete is logged and retried on the next listing.
func (s *ContentService) List(ctx context.Context, kind model.Kind, opts ListOptions) ([]model.Item, error) {
	items, err := s.repo.List(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("service/content: listing %s: %w", kind, err)
	}

	visible, purge := availability.Filter(items, kind, availability.Options{
		Now:      s.now(),
		ShowAll:  opts.ShowAll,
		Viewer:   opts.Viewer,
		Cooldown: s.cooldown,
	})

	for _, id := range purge {
		if err := s.repo.Delete(ctx, kind, id); err != nil {
			s.logger.Error("failed to purge content item",
				slog.String("kind", string(kind)),
				slog.String("id", string(id)),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.logger.Info("purged content item", slog.String("kind", string(kind)), slog.String("id", string(id)))
	}
	return visible, nil
}

// Get returns one item regardless of its visibility.
func (s *ContentService) Get(ctx context.Context, kind model.Kind, id model.ItemID) (*model.Item, error) {
	if _, ok := kind.SequenceOf(id); !ok {
		return nil, apperror.NotFound(string(kind), string(id))
	}
	return s.repo.Get(ctx, kind, id)
}

// GetAvailable returns one item if it is live: not deleted, expired or
// disabled. Anything else is not found.
func (s *ContentService) GetAvailable(ctx context.Context, kind model.Kind, id model.ItemID) (*model.Item, error) {
	item, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if availability.Evaluate(item, kind, availability.Options{Now: s.now()}) != availability.Keep {
		return nil, apperror.NotFound(string(kind), string(id))
	}
	return item, nil
}

// Create validates draft for kind, stamps it and stores it under the next
// free ID. Fields that do not belong to the kind are dropped.
func (s *ContentService) Create(ctx context.Context, kind model.Kind, draft model.Item) (*model.Item, error) {
	now := s.now()

	var (
		item *model.Item
		err  error
	)
	switch kind {
	case model.KindAd:
		item, err = buildAd(draft, now)
	case model.KindSimpleTask:
		item, err = buildSimpleTask(draft)
	case model.KindComplexTask:
		item, err = buildComplexTask(draft)
	case model.KindBanner:
		item, err = buildBanner(draft)
	default:
		return nil, apperror.ValidationFailed("kind", "unknown content kind")
	}
	if err != nil {
		return nil, err
	}
	item.CreatedAt = now.Unix()

	if err := s.repo.Create(ctx, kind, item); err != nil {
		return nil, fmt.Errorf("service/content: creating %s: %w", kind, err)
	}

	s.logger.Info("content item created",
		slog.String("kind", string(kind)),
		slog.String("id", string(item.ID)),
	)
	return item, nil
}

// SoftDelete hides an item immediately and schedules its removal once the
// grace window has passed. Deleting an already soft-deleted item keeps its
// original schedule.
func (s *ContentService) SoftDelete(ctx context.Context, kind model.Kind, id model.ItemID) (*model.Item, error) {
	if _, ok := kind.SequenceOf(id); !ok {
		return nil, apperror.ValidationFailed("id", fmt.Sprintf("invalid %s id", kind))
	}

	item, err := s.repo.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if item.DeletedAt != nil {
		return item, nil
	}

	now := s.now()
	item.DeletedAt = model.Int64Ptr(now.Unix())
	item.DeletedUntil = model.Int64Ptr(now.Add(s.grace).Unix())
	if err := s.repo.Save(ctx, kind, item); err != nil {
		return nil, fmt.Errorf("service/content: soft deleting %s %s: %w", kind, id, err)
	}

	s.logger.Info("content item soft deleted",
		slog.String("kind", string(kind)),
		slog.String("id", string(id)),
		slog.Int64("deleted_until", *item.DeletedUntil),
	)
	return item, nil
}

// =========================================================================
// PER-KIND VALIDATION
// =========================================================================

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperror.ValidationFailed(field, field+" is required")
	}
	return nil
}

func validURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperror.ValidationFailed("url", "invalid URL")
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func buildAd(d model.Item, now time.Time) (*model.Item, error) {
	if err := required("title", d.Title); err != nil {
		return nil, err
	}
	if err := required("instructions", d.Instructions); err != nil {
		return nil, err
	}
	if err := validURL(d.URL); err != nil {
		return nil, err
	}
	if d.Reward <= 0 {
		return nil, apperror.ValidationFailed("reward", "reward must be positive")
	}
	if d.Duration <= 0 {
		return nil, apperror.ValidationFailed("duration", "duration must be positive")
	}
	if d.CampaignDuration < 0 {
		return nil, apperror.ValidationFailed("campaignDuration", "campaign duration cannot be negative")
	}

	ad := &model.Item{
		Title:            strings.TrimSpace(d.Title),
		Instructions:     strings.TrimSpace(d.Instructions),
		URL:              strings.TrimSpace(d.URL),
		Reward:           d.Reward,
		Duration:         d.Duration,
		CampaignDuration: d.CampaignDuration,
	}
	if d.CampaignDuration > 0 {
		ad.ExpiresAt = model.Int64Ptr(now.Unix() + int64(d.CampaignDuration)*86400)
	}
	return ad, nil
}

func buildSimpleTask(d model.Item) (*model.Item, error) {
	for _, f := range []struct{ name, value string }{
		{"title", d.Title},
		{"shortDescription", d.ShortDescription},
		{"instructions", d.Instructions},
		{"url", d.URL},
		{"type", d.Type},
	} {
		if err := required(f.name, f.value); err != nil {
			return nil, err
		}
	}
	if err := validURL(d.URL); err != nil {
		return nil, err
	}
	if d.Reward <= 0 {
		return nil, apperror.ValidationFailed("reward", "reward must be positive")
	}
	if d.Duration <= 0 || d.Duration > MaxSimpleTaskDuration {
		return nil, apperror.ValidationFailed("duration",
			fmt.Sprintf("duration must be between 1 and %d seconds", MaxSimpleTaskDuration))
	}

	return &model.Item{
		Title:            strings.TrimSpace(d.Title),
		ShortDescription: strings.TrimSpace(d.ShortDescription),
		Instructions:     strings.TrimSpace(d.Instructions),
		URL:              strings.TrimSpace(d.URL),
		Reward:           d.Reward,
		Duration:         d.Duration,
		Type:             strings.TrimSpace(d.Type),
	}, nil
}

func buildComplexTask(d model.Item) (*model.Item, error) {
	if err := firstErr(
		required("title", d.Title),
		required("platform", d.Platform),
		required("category", d.Category),
	); err != nil {
		return nil, err
	}
	if err := validURL(d.URL); err != nil {
		return nil, err
	}
	if d.Reward <= 0 {
		return nil, apperror.ValidationFailed("reward", "reward must be positive")
	}
	if d.ExpiryDate != "" {
		if _, ok := d.ExpiryTime(); !ok {
			return nil, apperror.ValidationFailed("expiryDate", "unrecognised date format")
		}
	}

	enabled := true
	if d.Enabled != nil {
		enabled = *d.Enabled
	}
	return &model.Item{
		Title:        strings.TrimSpace(d.Title),
		Instructions: strings.TrimSpace(d.Instructions),
		URL:          strings.TrimSpace(d.URL),
		Reward:       d.Reward,
		Duration:     d.Duration,
		Platform:     strings.ToLower(strings.TrimSpace(d.Platform)),
		Category:     strings.ToLower(strings.TrimSpace(d.Category)),
		Repeatable:   d.Repeatable,
		Enabled:      model.BoolPtr(enabled),
		ExpiryDate:   strings.TrimSpace(d.ExpiryDate),
	}, nil
}

func buildBanner(d model.Item) (*model.Item, error) {
	if err := required("html", d.HTML); err != nil {
		return nil, err
	}
	placement := d.Placement
	if placement == "" {
		placement = d.Type
	}
	if !slices.Contains(model.Placements, placement) {
		return nil, apperror.ValidationFailed("placement", "placement must be one of "+strings.Join(model.Placements, ", "))
	}
	if err := checkBannerHTML(d.HTML); err != nil {
		return nil, err
	}
	return &model.Item{
		HTML:      strings.TrimSpace(d.HTML),
		Placement: placement,
	}, nil
}

// checkBannerHTML requires the markup to contain a link or an image, which
// rejects pasted plain text and broken snippets.
func checkBannerHTML(markup string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return apperror.ValidationFailed("html", "banner html could not be parsed")
	}
	if doc.Find("a[href], img[src], iframe[src]").Length() == 0 {
		return apperror.ValidationFailed("html", "banner html must contain a link or an image")
	}
	return nil
}
