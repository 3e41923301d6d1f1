package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"pricetracker/internal/evaluator"
	"pricetracker/internal/models"
)

const (
	alertSubject   = "Price Alert!"
	welcomeSubject = "Product Tracking Confirmation"

	// DefaultCurrencySymbol prefixes amounts in message bodies
	DefaultCurrencySymbol = "₹"
)

// EmailNotifier renders decisions as plain-text e-mail
type EmailNotifier struct {
	mailer   Mailer
	currency string
	logger   *slog.Logger
}

// NewEmailNotifier creates a notifier that sends through mailer. A nil mailer
// yields a notifier whose every call returns ErrNotConfigured.
func NewEmailNotifier(mailer Mailer, currency string, logger *slog.Logger) *EmailNotifier {
	if currency == "" {
		currency = DefaultCurrencySymbol
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailNotifier{
		mailer:   mailer,
		currency: currency,
		logger:   logger,
	}
}

// Notify sends a price alert for d
func (n *EmailNotifier) Notify(ctx context.Context, target string, d evaluator.Decision, item models.TrackedItem) error {
	return n.send(ctx, target, alertSubject, n.alertBody(d, item))
}

// Welcome sends the tracking confirmation for a newly created item
func (n *EmailNotifier) Welcome(ctx context.Context, item models.TrackedItem) error {
	return n.send(ctx, item.NotifyTarget, welcomeSubject, n.welcomeBody(item))
}

func (n *EmailNotifier) send(ctx context.Context, target, subject, body string) error {
	if n.mailer == nil {
		return ErrNotConfigured
	}

	if err := n.mailer.Send(ctx, target, subject, body); err != nil {
		return &NotificationError{Target: target, Cause: err}
	}

	n.logger.Info("notification sent", "target", target, "subject", subject)
	return nil
}

func (n *EmailNotifier) alertBody(d evaluator.Decision, item models.TrackedItem) string {
	var b strings.Builder

	b.WriteString("Price changed for your tracked product!\n\n")
	if item.Title != "" {
		fmt.Fprintf(&b, "Product: %s\n", item.Title)
	}
	fmt.Fprintf(&b, "Product URL: %s\n", item.SourceURL)
	fmt.Fprintf(&b, "Old Price: %s\n", n.amount(d.Old))
	fmt.Fprintf(&b, "New Price: %s\n", n.amount(d.New))

	if d.Kind == evaluator.ThresholdCrossed {
		switch d.Bound {
		case evaluator.BoundMin:
			fmt.Fprintf(&b, "\nThe price has dropped below your minimum threshold of %s!\n", n.amount(d.Threshold))
		case evaluator.BoundMax:
			fmt.Fprintf(&b, "\nThe price has exceeded your maximum threshold of %s!\n", n.amount(d.Threshold))
		}
	}

	b.WriteString("\nCheck it out now!\n")
	return b.String()
}

func (n *EmailNotifier) welcomeBody(item models.TrackedItem) string {
	var b strings.Builder

	b.WriteString("Thank you for using Price Tracker!\n\n")
	b.WriteString("We have successfully added the following product to our tracking system:\n")
	if item.Title != "" {
		fmt.Fprintf(&b, "%s\n", item.Title)
	}
	fmt.Fprintf(&b, "%s\n\n", item.SourceURL)
	fmt.Fprintf(&b, "Current price: %s\n", n.amount(item.LastKnownPrice))
	if item.MinThreshold != nil {
		fmt.Fprintf(&b, "Minimum threshold: %s\n", n.amount(*item.MinThreshold))
	}
	if item.MaxThreshold != nil {
		fmt.Fprintf(&b, "Maximum threshold: %s\n", n.amount(*item.MaxThreshold))
	}
	b.WriteString("\nYou will receive email notifications when the price changes.\n")
	return b.String()
}

func (n *EmailNotifier) amount(d decimal.Decimal) string {
	return n.currency + d.StringFixed(models.PricePlaces)
}
