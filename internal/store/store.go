// Package store persists tracked items and their last known prices.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"pricetracker/internal/models"
)

var (
	// ErrDuplicate is returned when the same URL is already tracked for the same target.
	ErrDuplicate = errors.New("item already tracked for this target")
	// ErrNotFound is returned when an item does not exist (e.g. cleared mid-cycle).
	ErrNotFound = errors.New("item not found")
)

// Store is the durable record of tracked items.
type Store interface {
	// List returns every tracked item, oldest first.
	List(ctx context.Context) ([]models.TrackedItem, error)

	// Create validates and inserts item, assigning its ID and CreatedAt.
	// Returns a *models.ValidationError or ErrDuplicate without persisting anything.
	Create(ctx context.Context, item models.TrackedItem) (*models.TrackedItem, error)

	// UpdatePrice sets LastKnownPrice and LastCheckedAt together as one atomic write.
	UpdatePrice(ctx context.Context, id string, price decimal.Decimal, checkedAt time.Time) error

	// DeleteAll removes every item and returns how many were removed.
	DeleteAll(ctx context.Context) (int64, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// prepare validates item and normalizes its amounts before insertion.
func prepare(item models.TrackedItem, now time.Time) (models.TrackedItem, error) {
	if err := item.Validate(); err != nil {
		return item, err
	}
	item.LastKnownPrice = models.NormalizePrice(item.LastKnownPrice)
	if item.MinThreshold != nil {
		v := models.NormalizePrice(*item.MinThreshold)
		item.MinThreshold = &v
	}
	if item.MaxThreshold != nil {
		v := models.NormalizePrice(*item.MaxThreshold)
		item.MaxThreshold = &v
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.LastCheckedAt.IsZero() {
		item.LastCheckedAt = item.CreatedAt
	}
	return item, nil
}
