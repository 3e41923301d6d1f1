package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PricePlaces is the fixed precision every monetary amount is held at.
const PricePlaces = 2

// TrackedItem is a product page whose price is re-checked every cycle.
type TrackedItem struct {
	ID             string           `json:"id"`
	SourceURL      string           `json:"source_url"`
	NotifyTarget   string           `json:"notify_target"`
	Title          string           `json:"title,omitempty"`
	LastKnownPrice decimal.Decimal  `json:"last_known_price"`
	MinThreshold   *decimal.Decimal `json:"min_threshold,omitempty"`
	MaxThreshold   *decimal.Decimal `json:"max_threshold,omitempty"`
	LastCheckedAt  time.Time        `json:"last_checked_at"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Validate checks the invariants a stored item must satisfy.
func (i *TrackedItem) Validate() error {
	if i.SourceURL == "" {
		return &ValidationError{Field: "source_url", Message: "is required"}
	}
	if i.NotifyTarget == "" {
		return &ValidationError{Field: "notify_target", Message: "is required"}
	}
	if i.LastKnownPrice.IsNegative() {
		return &ValidationError{Field: "last_known_price", Message: "must not be negative"}
	}
	return ValidateThresholds(i.MinThreshold, i.MaxThreshold)
}

// ValidateThresholds checks that each bound is non-negative and that min < max
// when both are set. Bounds are compared at stored precision.
func ValidateThresholds(min, max *decimal.Decimal) error {
	if min != nil && min.IsNegative() {
		return &ValidationError{Field: "min_threshold", Message: "must not be negative"}
	}
	if max != nil && max.IsNegative() {
		return &ValidationError{Field: "max_threshold", Message: "must not be negative"}
	}
	if min != nil && max != nil && !NormalizePrice(*min).LessThan(NormalizePrice(*max)) {
		return &ValidationError{Field: "min_threshold", Message: "must be less than max_threshold"}
	}
	return nil
}

// NormalizePrice rounds an amount to the fixed precision used for comparisons.
func NormalizePrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(PricePlaces)
}

// ValidationError reports bad input rejected before anything is persisted.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
