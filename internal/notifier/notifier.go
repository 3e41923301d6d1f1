// Package notifier delivers change decisions to an item's notify target.
package notifier

import (
	"context"
	"errors"
	"fmt"

	"pricetracker/internal/evaluator"
	"pricetracker/internal/models"
)

// ErrNotConfigured is returned when no mail transport has been configured.
// Callers treat it as a skipped notification, not a failure.
var ErrNotConfigured = errors.New("notifications are not configured")

// Notifier dispatches messages about tracked items
type Notifier interface {
	// Notify sends one message for a non-NoChange decision
	Notify(ctx context.Context, target string, d evaluator.Decision, item models.TrackedItem) error

	// Welcome confirms that item is now being tracked
	Welcome(ctx context.Context, item models.TrackedItem) error
}

// Mailer sends a plain-text message to a single recipient
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NotificationError reports a failed delivery. It is distinct from fetch
// failures so the scheduler can log it without retrying.
type NotificationError struct {
	Target string
	Cause  error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification to %s failed: %v", e.Target, e.Cause)
}

func (e *NotificationError) Unwrap() error {
	return e.Cause
}
