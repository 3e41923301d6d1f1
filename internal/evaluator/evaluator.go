// Package evaluator decides whether a freshly observed price warrants a notification.
package evaluator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"pricetracker/internal/models"
)

// Kind is the type of change a decision reports.
type Kind string

const (
	NoChange         Kind = "no_change"
	PriceChanged     Kind = "price_changed"
	ThresholdCrossed Kind = "threshold_crossed"
)

// Bound names which threshold was crossed.
type Bound string

const (
	BoundMin Bound = "min"
	BoundMax Bound = "max"
)

// Decision is the outcome of comparing a new price against an item's stored state.
// Bound and Threshold are only set for ThresholdCrossed.
type Decision struct {
	Kind      Kind
	Bound     Bound
	Old       decimal.Decimal
	New       decimal.Decimal
	Threshold decimal.Decimal
}

// String renders the decision for logs.
func (d Decision) String() string {
	switch d.Kind {
	case PriceChanged:
		return fmt.Sprintf("price_changed(%s -> %s)", d.Old.StringFixed(2), d.New.StringFixed(2))
	case ThresholdCrossed:
		return fmt.Sprintf("threshold_crossed(%s, %s, %s)", d.Bound, d.New.StringFixed(2), d.Threshold.StringFixed(2))
	default:
		return string(d.Kind)
	}
}

// Notifiable reports whether the decision should reach the notify target.
func (d Decision) Notifiable() bool {
	return d.Kind != NoChange
}

// Evaluate compares newPrice with item.LastKnownPrice and the item's thresholds.
// Amounts are compared at fixed two-place precision. The result always holds
// at least one decision; when both thresholds are crossed at once (a violated
// configuration) both are reported, min before max. Evaluate has no side effects.
func Evaluate(item models.TrackedItem, newPrice decimal.Decimal) []Decision {
	oldPrice := models.NormalizePrice(item.LastKnownPrice)
	newPrice = models.NormalizePrice(newPrice)

	if newPrice.Equal(oldPrice) {
		return []Decision{{Kind: NoChange, Old: oldPrice, New: newPrice}}
	}

	var decisions []Decision
	if item.MinThreshold != nil {
		min := models.NormalizePrice(*item.MinThreshold)
		if newPrice.LessThanOrEqual(min) {
			decisions = append(decisions, Decision{
				Kind:      ThresholdCrossed,
				Bound:     BoundMin,
				Old:       oldPrice,
				New:       newPrice,
				Threshold: min,
			})
		}
	}
	if item.MaxThreshold != nil {
		max := models.NormalizePrice(*item.MaxThreshold)
		if newPrice.GreaterThanOrEqual(max) {
			decisions = append(decisions, Decision{
				Kind:      ThresholdCrossed,
				Bound:     BoundMax,
				Old:       oldPrice,
				New:       newPrice,
				Threshold: max,
			})
		}
	}
	if len(decisions) > 0 {
		return decisions
	}

	return []Decision{{Kind: PriceChanged, Old: oldPrice, New: newPrice}}
}
