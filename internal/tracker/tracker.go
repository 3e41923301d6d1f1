// Package tracker implements the submission path: validate, seed fetch,
// create and confirm.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pricetracker/internal/fetcher"
	"pricetracker/internal/models"
	"pricetracker/internal/notifier"
	"pricetracker/internal/store"
)

const defaultSeedTimeout = 60 * time.Second

// Submission is a request to start tracking a product page
type Submission struct {
	SourceURL    string
	NotifyTarget string
	MinThreshold *decimal.Decimal
	MaxThreshold *decimal.Decimal
}

// Config holds submission settings
type Config struct {
	// SupportedDomains limits which hosts may be tracked. Empty allows any
	// http(s) host.
	SupportedDomains []string
	SeedTimeout      time.Duration
	Logger           *slog.Logger
}

// Service creates, lists and clears tracked items
type Service struct {
	store    store.Store
	fetcher  fetcher.Fetcher
	notifier notifier.Notifier
	cfg      Config
	logger   *slog.Logger
}

// New creates a Service. notifier may be nil.
func New(st store.Store, f fetcher.Fetcher, n notifier.Notifier, cfg Config) *Service {
	if cfg.SeedTimeout <= 0 {
		cfg.SeedTimeout = defaultSeedTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:    st,
		fetcher:  f,
		notifier: n,
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "tracker"),
	}
}

// Validate checks a submission's shape and returns it normalized. It performs
// no I/O.
func (s *Service) Validate(sub Submission) (Submission, error) {
	sub.SourceURL = strings.TrimSpace(sub.SourceURL)
	host, err := fetcher.Host(sub.SourceURL)
	if err != nil {
		return sub, &models.ValidationError{Field: "source_url", Message: "must be an http or https URL"}
	}
	if len(s.cfg.SupportedDomains) > 0 && !fetcher.MatchDomain(host, s.cfg.SupportedDomains) {
		return sub, &models.ValidationError{Field: "source_url", Message: fmt.Sprintf("host %s is not a supported source", host)}
	}

	addr, err := mail.ParseAddress(strings.TrimSpace(sub.NotifyTarget))
	if err != nil {
		return sub, &models.ValidationError{Field: "notify_target", Message: "must be a valid email address"}
	}
	sub.NotifyTarget = addr.Address

	if err := models.ValidateThresholds(sub.MinThreshold, sub.MaxThreshold); err != nil {
		return sub, err
	}
	return sub, nil
}

// Track validates sub, fetches the seed price under the seed timeout and
// persists the item. Nothing is stored unless the seed fetch succeeds. A
// failed welcome message does not fail the submission.
func (s *Service) Track(ctx context.Context, sub Submission) (*models.TrackedItem, error) {
	sub, err := s.Validate(sub)
	if err != nil {
		return nil, err
	}

	if dup, err := s.isTracked(ctx, sub); err != nil {
		return nil, err
	} else if dup {
		return nil, store.ErrDuplicate
	}

	seedCtx, cancel := context.WithTimeout(ctx, s.cfg.SeedTimeout)
	defer cancel()

	obs, err := s.fetcher.Fetch(seedCtx, sub.SourceURL)
	if err != nil {
		s.logger.Warn("seed fetch failed", "url", sub.SourceURL, "kind", fetcher.KindOf(err), "error", err)
		return nil, fmt.Errorf("seed fetch failed: %w", err)
	}

	item, err := s.store.Create(ctx, models.TrackedItem{
		SourceURL:      sub.SourceURL,
		NotifyTarget:   sub.NotifyTarget,
		Title:          obs.Title,
		LastKnownPrice: obs.Price,
		MinThreshold:   sub.MinThreshold,
		MaxThreshold:   sub.MaxThreshold,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("item tracked",
		"item_id", item.ID,
		"url", item.SourceURL,
		"price", item.LastKnownPrice.StringFixed(models.PricePlaces))

	s.welcome(ctx, *item)
	return item, nil
}

// List returns every tracked item
func (s *Service) List(ctx context.Context) ([]models.TrackedItem, error) {
	return s.store.List(ctx)
}

// Clear removes every tracked item
func (s *Service) Clear(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("tracked items cleared", "count", n)
	return n, nil
}

func (s *Service) isTracked(ctx context.Context, sub Submission) (bool, error) {
	items, err := s.store.List(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list items: %w", err)
	}
	for _, item := range items {
		if item.SourceURL == sub.SourceURL && item.NotifyTarget == sub.NotifyTarget {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) welcome(ctx context.Context, item models.TrackedItem) {
	if s.notifier == nil {
		return
	}

	err := s.notifier.Welcome(ctx, item)
	switch {
	case err == nil:
	case errors.Is(err, notifier.ErrNotConfigured):
		s.logger.Debug("welcome skipped, mailer not configured", "item_id", item.ID)
	default:
		s.logger.Warn("welcome notification failed", "item_id", item.ID, "error", err)
	}
}
