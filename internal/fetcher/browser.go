package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const defaultWaitTimeout = 10 * time.Second

// Renderer loads a page in a script-capable browser and returns its DOM as HTML.
type Renderer interface {
	Render(ctx context.Context, pageURL, waitSelector string) (string, error)
}

// BrowserOptions configures the headless browser used for dynamic pages.
type BrowserOptions struct {
	// ControlURL is the DevTools WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	ControlURL string
	// Bin is the Chrome binary used when launching locally. Empty = auto-detect/download.
	Bin string
	// WaitTimeout bounds how long to wait for the price element. Default: 10s.
	WaitTimeout time.Duration
	// UserAgent overrides the browser's user agent.
	UserAgent string
	Logger    *slog.Logger
}

// RodRenderer renders pages with a stealth-patched headless Chrome driven by Rod.
// The browser is started lazily on first use and shared by all renders.
type RodRenderer struct {
	opts    BrowserOptions
	mu      sync.Mutex
	browser *rod.Browser
}

// NewRodRenderer creates a renderer. No browser is started until the first Render.
func NewRodRenderer(opts BrowserOptions) *RodRenderer {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = defaultWaitTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &RodRenderer{opts: opts}
}

func (r *RodRenderer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	controlURL := r.opts.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(true).
			NoSandbox(true).
			Set("disable-gpu").
			Set("disable-dev-shm-usage")
		if r.opts.Bin != "" {
			l = l.Bin(r.opts.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	r.browser = b
	r.opts.Logger.Info("browser connected", "control_url", controlURL)
	return b, nil
}

// Render navigates a fresh stealth tab to pageURL, waits up to WaitTimeout for
// waitSelector, and returns the DOM. A missing element is not an error here:
// the caller inspects the returned markup to tell challenge pages from layout drift.
func (r *RodRenderer) Render(ctx context.Context, pageURL, waitSelector string) (string, error) {
	b, err := r.connect()
	if err != nil {
		return "", err
	}

	page, err := stealth.Page(b)
	if err != nil {
		r.reset()
		return "", fmt.Errorf("browser: create tab: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx)
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.opts.UserAgent}); err != nil {
		r.opts.Logger.Warn("browser: set user agent failed", "error", err)
	}

	if err := page.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}

	if waitSelector != "" {
		if _, err := page.Timeout(r.opts.WaitTimeout).Element(waitSelector); err != nil {
			r.opts.Logger.Debug("browser: wait for element", "url", pageURL, "selector", waitSelector, "error", err)
		}
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("browser: read DOM: %w", err)
	}
	return html, nil
}

func (r *RodRenderer) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		_ = r.browser.Close()
		r.browser = nil
	}
}

// Close shuts the browser down.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}

// BrowserFetcher reads prices from pages that need script execution to render.
type BrowserFetcher struct {
	renderer       Renderer
	profile        PageProfile
	limiter        HostLimiter
	maxAttempts    int
	attemptTimeout time.Duration
	retryWait      time.Duration
	retryMaxWait   time.Duration
	logger         *slog.Logger
}

// NewBrowserFetcher creates a fetcher that renders pages through renderer.
// Attempt bounds and backoff come from opts, the same as the static strategy.
func NewBrowserFetcher(renderer Renderer, opts ClientOptions, profile PageProfile, limiter HostLimiter) *BrowserFetcher {
	opts.defaults()
	return &BrowserFetcher{
		renderer:       renderer,
		profile:        profile,
		limiter:        limiter,
		maxAttempts:    opts.MaxAttempts,
		attemptTimeout: opts.AttemptTimeout,
		retryWait:      opts.RetryWait,
		retryMaxWait:   opts.RetryMaxWait,
		logger:         opts.Logger,
	}
}

// Fetch renders sourceURL and extracts its price, retrying blocked and network
// failures with exponential backoff.
func (f *BrowserFetcher) Fetch(ctx context.Context, sourceURL string) (*Observation, error) {
	host, err := Host(sourceURL)
	if err != nil {
		return nil, NewNotFoundError(0, err.Error())
	}

	attempts := 0
	var obs *Observation
	operation := func() error {
		attempts++
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, host); err != nil {
				return backoff.Permanent(NewNetworkError(err))
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
		defer cancel()

		html, err := f.renderer.Render(attemptCtx, sourceURL, f.profile.WaitSelector)
		if err != nil {
			fe := NewNetworkError(err)
			if ctx.Err() != nil {
				return backoff.Permanent(fe)
			}
			return fe
		}

		o, err := Inspect(html, f.profile)
		if err != nil {
			var fe *FetchError
			if errors.As(err, &fe) && fe.Retryable {
				return err
			}
			return backoff.Permanent(err)
		}
		obs = o
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.retryWait
	b.MaxInterval = f.retryMaxWait
	b.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		f.logger.Debug("retrying rendered price fetch",
			"url", sourceURL,
			"attempt", attempts,
			"kind", KindOf(err),
			"wait", wait)
	}

	err = backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.maxAttempts-1)), ctx),
		notify)
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			fe = NewNetworkError(err)
		}
		fe.Attempts = attempts
		return nil, fe
	}

	obs.Attempts = attempts
	return obs, nil
}
