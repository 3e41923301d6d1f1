package notifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"pricetracker/internal/evaluator"
	"pricetracker/internal/models"
	"pricetracker/internal/testutil"
)

func testItem() models.TrackedItem {
	min := decimal.RequireFromString("100")
	max := decimal.RequireFromString("200")
	return models.TrackedItem{
		ID:             "item-1",
		SourceURL:      "https://www.amazon.in/dp/B01",
		NotifyTarget:   "buyer@example.com",
		Title:          "Stand Mixer",
		LastKnownPrice: decimal.RequireFromString("150"),
		MinThreshold:   &min,
		MaxThreshold:   &max,
	}
}

func TestEmailNotifier_Notify(t *testing.T) {
	item := testItem()

	tests := []struct {
		name     string
		decision evaluator.Decision
		contains []string
		excludes []string
	}{
		{
			name: "price changed",
			decision: evaluator.Decision{
				Kind: evaluator.PriceChanged,
				Old:  decimal.RequireFromString("150"),
				New:  decimal.RequireFromString("149.5"),
			},
			contains: []string{"Old Price: ₹150.00", "New Price: ₹149.50", item.SourceURL, "Stand Mixer"},
			excludes: []string{"threshold"},
		},
		{
			name: "min crossed",
			decision: evaluator.Decision{
				Kind:      evaluator.ThresholdCrossed,
				Bound:     evaluator.BoundMin,
				Old:       decimal.RequireFromString("150"),
				New:       decimal.RequireFromString("99"),
				Threshold: decimal.RequireFromString("100"),
			},
			contains: []string{"dropped below your minimum threshold of ₹100.00"},
		},
		{
			name: "max crossed",
			decision: evaluator.Decision{
				Kind:      evaluator.ThresholdCrossed,
				Bound:     evaluator.BoundMax,
				Old:       decimal.RequireFromString("150"),
				New:       decimal.RequireFromString("250"),
				Threshold: decimal.RequireFromString("200"),
			},
			contains: []string{"exceeded your maximum threshold of ₹200.00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &testutil.RecordingMailer{}
			n := NewEmailNotifier(mailer, "", nil)

			if err := n.Notify(context.Background(), item.NotifyTarget, tt.decision, item); err != nil {
				t.Fatalf("Notify() failed: %v", err)
			}

			msgs := mailer.Messages()
			if len(msgs) != 1 {
				t.Fatalf("sent %d messages, want 1", len(msgs))
			}
			if msgs[0].Target != item.NotifyTarget {
				t.Errorf("Target = %q, want %q", msgs[0].Target, item.NotifyTarget)
			}
			if msgs[0].Subject != "Price Alert!" {
				t.Errorf("Subject = %q, want %q", msgs[0].Subject, "Price Alert!")
			}
			for _, s := range tt.contains {
				if !strings.Contains(msgs[0].Body, s) {
					t.Errorf("body missing %q:\n%s", s, msgs[0].Body)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(msgs[0].Body, s) {
					t.Errorf("body unexpectedly contains %q:\n%s", s, msgs[0].Body)
				}
			}
		})
	}
}

func TestEmailNotifier_Welcome(t *testing.T) {
	mailer := &testutil.RecordingMailer{}
	n := NewEmailNotifier(mailer, "$", nil)

	if err := n.Welcome(context.Background(), testItem()); err != nil {
		t.Fatalf("Welcome() failed: %v", err)
	}

	msgs := mailer.Messages()
	if len(msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(msgs))
	}
	if msgs[0].Subject != welcomeSubject {
		t.Errorf("Subject = %q, want %q", msgs[0].Subject, welcomeSubject)
	}
	for _, s := range []string{"Current price: $150.00", "Minimum threshold: $100.00", "Maximum threshold: $200.00"} {
		if !strings.Contains(msgs[0].Body, s) {
			t.Errorf("body missing %q:\n%s", s, msgs[0].Body)
		}
	}
}

func TestEmailNotifier_MailerFailure(t *testing.T) {
	cause := errors.New("connection reset")
	n := NewEmailNotifier(&testutil.RecordingMailer{Err: cause}, "", nil)

	err := n.Notify(context.Background(), "buyer@example.com", evaluator.Decision{Kind: evaluator.PriceChanged}, testItem())

	var nerr *NotificationError
	if !errors.As(err, &nerr) {
		t.Fatalf("Notify() error = %v, want *NotificationError", err)
	}
	if nerr.Target != "buyer@example.com" {
		t.Errorf("Target = %q, want %q", nerr.Target, "buyer@example.com")
	}
	if !errors.Is(err, cause) {
		t.Error("NotificationError should unwrap to the mailer error")
	}
}

func TestEmailNotifier_NotConfigured(t *testing.T) {
	n := NewEmailNotifier(nil, "", nil)

	if err := n.Notify(context.Background(), "buyer@example.com", evaluator.Decision{Kind: evaluator.PriceChanged}, testItem()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Notify() error = %v, want ErrNotConfigured", err)
	}
	if err := n.Welcome(context.Background(), testItem()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Welcome() error = %v, want ErrNotConfigured", err)
	}
}

func TestNewSMTPMailer_Incomplete(t *testing.T) {
	tests := []struct {
		name string
		cfg  SMTPConfig
	}{
		{"empty", SMTPConfig{}},
		{"missing password", SMTPConfig{Server: "smtp.example.com", Username: "user"}},
		{"missing server", SMTPConfig{Username: "user", Password: "secret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if m := NewSMTPMailer(tt.cfg, nil); m != nil {
				t.Errorf("NewSMTPMailer() = %+v, want nil", m)
			}
		})
	}

	var m *SMTPMailer
	if err := m.Send(context.Background(), "a@example.com", "s", "b"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("nil mailer Send() error = %v, want ErrNotConfigured", err)
	}
}

func TestNewSMTPMailer_Defaults(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Server: "smtp.example.com", Username: "user@example.com", Password: "secret"}, nil)
	if m == nil {
		t.Fatal("NewSMTPMailer() = nil, want mailer")
	}
	if m.cfg.Port != 587 {
		t.Errorf("Port = %d, want 587", m.cfg.Port)
	}
	if m.cfg.From != "user@example.com" {
		t.Errorf("From = %q, want %q", m.cfg.From, "user@example.com")
	}
}
