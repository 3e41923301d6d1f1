package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"pricetracker/internal/evaluator"
	"pricetracker/internal/fetcher"
	"pricetracker/internal/metrics"
	"pricetracker/internal/models"
	"pricetracker/internal/notifier"
	"pricetracker/internal/store"
)

// CycleReport summarizes one pass over the tracked items
type CycleReport struct {
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	Items     int       `json:"items"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Notified  int       `json:"notified"`
	// Skipped counts items not processed because a stop was requested or the
	// item was removed mid-cycle.
	Skipped int `json:"skipped"`
	// Contended is set when another process held the cycle lock
	Contended bool   `json:"contended,omitempty"`
	Error     string `json:"error,omitempty"`
}

type itemResult int

const (
	itemSucceeded itemResult = iota
	itemFailed
	itemSkipped
)

// RunCycle runs a single cycle synchronously and returns its report
func (s *Scheduler) RunCycle(ctx context.Context) CycleReport {
	return s.cycle(ctx, nil)
}

func (s *Scheduler) cycle(ctx context.Context, stop <-chan struct{}) CycleReport {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	report := CycleReport{Started: s.cfg.Now().UTC()}
	defer func() {
		report.Finished = s.cfg.Now().UTC()
		s.mu.Lock()
		last := report
		s.last = &last
		s.mu.Unlock()
	}()

	if s.cfg.Locker != nil {
		token, ok, err := s.cfg.Locker.Acquire(ctx, s.cfg.Interval)
		if err != nil {
			s.logger.Error("failed to acquire cycle lock, skipping cycle", "error", err)
			report.Error = err.Error()
			return report
		}
		if !ok {
			s.logger.Info("cycle lock held by another process, skipping cycle")
			s.cfg.Metrics.CycleSkipped()
			report.Contended = true
			return report
		}
		defer func() {
			if err := s.cfg.Locker.Release(context.WithoutCancel(ctx), token); err != nil {
				s.logger.Warn("failed to release cycle lock", "error", err)
			}
		}()
	}

	items, err := s.store.List(ctx)
	if err != nil {
		s.logger.Error("failed to list tracked items",
			"condition", "fatal_infrastructure",
			"error", err)
		report.Error = err.Error()
		return report
	}
	report.Items = len(items)

	s.logger.Info("cycle started", "items", len(items))

	var mu sync.Mutex
	record := func(r itemResult, notified int) {
		mu.Lock()
		defer mu.Unlock()
		switch r {
		case itemSucceeded:
			report.Succeeded++
		case itemFailed:
			report.Failed++
		case itemSkipped:
			report.Skipped++
		}
		report.Notified += notified
	}

	p := pool.New().WithMaxGoroutines(s.cfg.Workers)
	for _, item := range items {
		if stopped(ctx, stop) {
			record(itemSkipped, 0)
			continue
		}
		p.Go(func() {
			// Go blocks while all workers are busy, so re-check once a slot frees up
			if stopped(ctx, stop) {
				record(itemSkipped, 0)
				return
			}
			record(s.processItem(ctx, item))
		})
	}
	p.Wait()

	s.cfg.Metrics.ObserveCycle(time.Since(report.Started), len(items))
	s.logger.Info("cycle finished",
		"items", report.Items,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"notified", report.Notified,
		"skipped", report.Skipped,
		"duration", time.Since(report.Started))

	return report
}

// processItem runs fetch, evaluate, persist and notify for one item. Every
// failure is contained here.
func (s *Scheduler) processItem(ctx context.Context, item models.TrackedItem) (result itemResult, notified int) {
	logger := s.logger.With("item_id", item.ID, "url", item.SourceURL)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("item processing panicked", "panic", r)
			result, notified = itemFailed, 0
		}
	}()

	obs, err := s.fetcher.Fetch(ctx, item.SourceURL)
	if err != nil {
		s.logFetchFailure(logger, err)
		return itemFailed, 0
	}
	s.cfg.Metrics.ObserveFetch(metrics.OutcomeSuccess, obs.Attempts)

	decisions := evaluator.Evaluate(item, obs.Price)
	checkedAt := s.cfg.Now().UTC()

	// Persist before notifying so stored state holds even if delivery fails
	if err := s.store.UpdatePrice(ctx, item.ID, obs.Price, checkedAt); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Info("item removed during cycle, skipping")
			return itemSkipped, 0
		}
		logger.Error("failed to persist price", "error", err)
		return itemFailed, 0
	}

	updated := item
	updated.LastKnownPrice = models.NormalizePrice(obs.Price)
	updated.LastCheckedAt = checkedAt

	for _, d := range decisions {
		s.cfg.Metrics.ObserveDecision(string(d.Kind))
		logger.Info("item checked", "decision", d.String(), "attempts", obs.Attempts)

		if !d.Notifiable() {
			continue
		}
		if s.notify(ctx, logger, d, updated) {
			notified++
		}
	}

	return itemSucceeded, notified
}

func (s *Scheduler) notify(ctx context.Context, logger *slog.Logger, d evaluator.Decision, item models.TrackedItem) bool {
	if s.notifier == nil {
		s.cfg.Metrics.ObserveNotification(metrics.NotifySkipped)
		return false
	}

	err := s.notifier.Notify(ctx, item.NotifyTarget, d, item)
	switch {
	case err == nil:
		s.cfg.Metrics.ObserveNotification(metrics.NotifySent)
		return true
	case errors.Is(err, notifier.ErrNotConfigured):
		logger.Debug("notification skipped, mailer not configured", "decision", d.String())
		s.cfg.Metrics.ObserveNotification(metrics.NotifySkipped)
	default:
		logger.Error("notification failed",
			"kind", "notification_failure",
			"decision", d.String(),
			"error", err)
		s.cfg.Metrics.ObserveNotification(metrics.NotifyFailed)
	}
	return false
}

func (s *Scheduler) logFetchFailure(logger *slog.Logger, err error) {
	kind := fetcher.KindOf(err)
	attempts := 0
	var fe *fetcher.FetchError
	if errors.As(err, &fe) {
		attempts = fe.Attempts
	}
	if kind == "" {
		kind = "unknown"
	}
	s.cfg.Metrics.ObserveFetch(string(kind), attempts)

	msg := "fetch failed, will retry next cycle"
	if fe != nil && fe.Structural() {
		msg = "page structure not recognized, will retry next cycle"
	}
	logger.Warn(msg, "kind", kind, "attempts", attempts, "error", err)
}
