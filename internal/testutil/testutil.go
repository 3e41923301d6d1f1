// Package testutil provides test doubles shared across packages.
package testutil

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"pricetracker/internal/evaluator"
	"pricetracker/internal/fetcher"
	"pricetracker/internal/models"
)

// MockFetcher is a mock implementation of the Fetcher interface for testing
type MockFetcher struct {
	FetchFunc func(ctx context.Context, sourceURL string) (*fetcher.Observation, error)

	mu    sync.Mutex
	calls []string
}

// Fetch implements the Fetcher interface
func (m *MockFetcher) Fetch(ctx context.Context, sourceURL string) (*fetcher.Observation, error) {
	m.mu.Lock()
	m.calls = append(m.calls, sourceURL)
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, sourceURL)
	}
	return &fetcher.Observation{Price: decimal.Zero, Attempts: 1}, nil
}

// Calls returns the URLs fetched so far, in call order
func (m *MockFetcher) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// NewMockFetcher creates a mock fetcher with a fixed outcome per URL. URLs
// missing from both maps fail with a not_found error.
func NewMockFetcher(prices map[string]string, failures map[string]error) *MockFetcher {
	return &MockFetcher{
		FetchFunc: func(ctx context.Context, sourceURL string) (*fetcher.Observation, error) {
			if err, ok := failures[sourceURL]; ok {
				return nil, err
			}
			if p, ok := prices[sourceURL]; ok {
				return &fetcher.Observation{
					Price:    decimal.RequireFromString(p),
					Title:    "Test Product",
					Attempts: 1,
				}, nil
			}
			return nil, fetcher.NewNotFoundError(0, "no scripted price")
		},
	}
}

// Message is one message captured by a recording double
type Message struct {
	Target   string
	Subject  string
	Body     string
	Decision evaluator.Decision
	Item     models.TrackedItem
}

// RecordingMailer captures sent mail and optionally fails
type RecordingMailer struct {
	Err error

	mu       sync.Mutex
	messages []Message
}

// Send implements notifier.Mailer
func (m *RecordingMailer) Send(ctx context.Context, to, subject, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Message{Target: to, Subject: subject, Body: body})
	return nil
}

// Messages returns a copy of the captured mail
func (m *RecordingMailer) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

// RecordingNotifier captures decisions and welcomes; NotifyErr and WelcomeErr
// force failures.
type RecordingNotifier struct {
	NotifyErr  error
	WelcomeErr error

	mu       sync.Mutex
	alerts   []Message
	welcomes []models.TrackedItem
}

// Notify implements notifier.Notifier
func (n *RecordingNotifier) Notify(ctx context.Context, target string, d evaluator.Decision, item models.TrackedItem) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, Message{Target: target, Decision: d, Item: item})
	return n.NotifyErr
}

// Welcome implements notifier.Notifier
func (n *RecordingNotifier) Welcome(ctx context.Context, item models.TrackedItem) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.welcomes = append(n.welcomes, item)
	return n.WelcomeErr
}

// Alerts returns every Notify call, including failed ones
func (n *RecordingNotifier) Alerts() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.alerts...)
}

// Welcomes returns every Welcome call, including failed ones
func (n *RecordingNotifier) Welcomes() []models.TrackedItem {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.TrackedItem(nil), n.welcomes...)
}
