// Package scheduler owns the repeating check cycle over all tracked items.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pricetracker/internal/fetcher"
	"pricetracker/internal/lock"
	"pricetracker/internal/metrics"
	"pricetracker/internal/notifier"
	"pricetracker/internal/store"
)

// State is the lifecycle state of a scheduler handle
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

const (
	defaultInterval = time.Hour
	defaultWorkers  = 4
)

// Config holds scheduler tuning
type Config struct {
	Interval time.Duration
	Workers  int

	// Locker, when set, guards each cycle with a lease of TTL Interval so
	// only one process runs a cycle at a time.
	Locker lock.Locker

	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.Workers < 1 {
		c.Workers = defaultWorkers
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Scheduler is the handle for the background check loop. Construct one per
// process and share it; Start is idempotent.
type Scheduler struct {
	store    store.Store
	fetcher  fetcher.Fetcher
	notifier notifier.Notifier
	cfg      Config
	logger   *slog.Logger

	// cycleMu keeps cycles from overlapping, including direct RunCycle calls
	cycleMu sync.Mutex

	mu     sync.Mutex
	state  State
	stopCh chan struct{}
	done   chan struct{}
	last   *CycleReport
}

// New creates a stopped scheduler. notifier may be nil, in which case
// decisions are evaluated and persisted but never delivered.
func New(st store.Store, f fetcher.Fetcher, n notifier.Notifier, cfg Config) *Scheduler {
	cfg.defaults()
	return &Scheduler{
		store:    st,
		fetcher:  f,
		notifier: n,
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "scheduler"),
		state:    StateStopped,
	}
}

// State returns the current lifecycle state
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastReport returns the summary of the most recent finished cycle
func (s *Scheduler) LastReport() (CycleReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return CycleReport{}, false
	}
	return *s.last, true
}

// Interval returns the configured period between cycles
func (s *Scheduler) Interval() time.Duration {
	return s.cfg.Interval
}

// Start launches the background loop. It returns false without doing anything
// if the loop is already running. The first cycle begins immediately.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		s.logger.Warn("scheduler already running, start ignored")
		return false
	}

	s.state = StateRunning
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx, s.stopCh, s.done)

	s.logger.Info("scheduler started", "interval", s.cfg.Interval, "workers", s.cfg.Workers)
	return true
}

// Stop requests the loop to stop and waits for it to exit or for ctx to end.
// No new item or cycle starts after Stop is called; in-flight items finish.
// Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler loop terminated",
				"condition", "fatal_infrastructure",
				"panic", r)
		}

		s.mu.Lock()
		s.state = StateStopped
		s.stopCh = nil
		s.mu.Unlock()

		s.logger.Info("scheduler stopped")
	}()

	for {
		if stopped(ctx, stop) {
			return
		}

		s.cycle(ctx, stop)

		timer := time.NewTimer(s.cfg.Interval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// stopped reports whether either stop signal has fired
func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
