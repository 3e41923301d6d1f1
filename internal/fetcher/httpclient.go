package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"resty.dev/v3"
)

const (
	// Default retry configuration
	defaultMaxAttempts      = 3
	defaultAttemptTimeout   = 20 * time.Second
	defaultRetryWaitTime    = 2 * time.Second
	defaultRetryMaxWaitTime = 30 * time.Second

	// DefaultUserAgent identifies requests as a desktop browser to avoid trivial blocking
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// ClientOptions configures the HTTP client used by the static strategy.
type ClientOptions struct {
	UserAgent      string
	MaxAttempts    int
	AttemptTimeout time.Duration
	RetryWait      time.Duration
	RetryMaxWait   time.Duration
	Logger         *slog.Logger
}

func (o *ClientOptions) defaults() {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = defaultAttemptTimeout
	}
	if o.RetryWait <= 0 {
		o.RetryWait = defaultRetryWaitTime
	}
	if o.RetryMaxWait <= 0 {
		o.RetryMaxWait = defaultRetryMaxWaitTime
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// NewHTTPClient creates a new HTTP client with browser-like headers, a
// per-attempt timeout, and retry logic with exponential backoff. Only
// failures classified as retryable (blocked, network) are retried.
func NewHTTPClient(opts ClientOptions, profile PageProfile) *resty.Client {
	opts.defaults()

	client := resty.New().
		SetTimeout(opts.AttemptTimeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.9").
		SetRetryCount(opts.MaxAttempts - 1).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		AddRetryConditions(retryCondition(profile)).
		AddRetryHooks(retryHook(opts.Logger, profile))

	return client
}

// retryCondition determines whether a request should be retried based on the response and error
func retryCondition(profile PageProfile) resty.RetryConditionFunc {
	return func(r *resty.Response, err error) bool {
		fe := classifyResponse(r, err, profile)
		return fe != nil && fe.Retryable
	}
}

// retryHook logs retry attempts for observability
func retryHook(logger *slog.Logger, profile PageProfile) resty.RetryHookFunc {
	return func(r *resty.Response, err error) {
		fe := classifyResponse(r, err, profile)
		if fe == nil {
			return
		}
		args := []any{"kind", fe.Kind}
		if r != nil && r.Request != nil {
			args = append(args, "url", r.Request.URL, "attempt", r.Request.Attempt)
		}
		if err != nil {
			args = append(args, "error", err.Error())
		} else if r != nil {
			args = append(args, "status_code", r.StatusCode())
		}
		logger.Debug("retrying price fetch", args...)
	}
}

// classifyResponse maps a transport result to a FetchError, or nil when the
// response is a readable page. Price extraction failures are decided later by Inspect.
func classifyResponse(r *resty.Response, err error, profile PageProfile) *FetchError {
	if err != nil {
		fe := NewNetworkError(err)
		switch {
		case errors.Is(err, context.Canceled):
			fe.Message = "request cancelled"
		case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
			fe.Message = "request timed out"
		}
		return fe
	}
	if r == nil {
		return NewNetworkError(errors.New("empty response"))
	}
	if !r.IsSuccess() {
		return ClassifyHTTPStatus(r.StatusCode())
	}
	if isChallengeHTML(r.String(), profile) {
		return NewBlockedError(r.StatusCode(), "anti-automation challenge page served")
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
