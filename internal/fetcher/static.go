package fetcher

import (
	"context"
	"log/slog"

	"resty.dev/v3"
)

// HostLimiter throttles requests per source host.
type HostLimiter interface {
	Wait(ctx context.Context, host string) error
}

// StaticFetcher reads prices from server-rendered HTML pages.
type StaticFetcher struct {
	client  *resty.Client
	profile PageProfile
	logger  *slog.Logger
}

// NewStaticFetcher creates a new static page fetcher. limiter may be nil;
// when set it is consulted before every attempt, retries included.
func NewStaticFetcher(opts ClientOptions, profile PageProfile, limiter HostLimiter) *StaticFetcher {
	opts.defaults()
	client := NewHTTPClient(opts, profile)
	if limiter != nil {
		client.AddRequestMiddleware(throttle(limiter))
	}
	return &StaticFetcher{
		client:  client,
		profile: profile,
		logger:  opts.Logger,
	}
}

// throttle waits on the host's limiter ahead of each attempt
func throttle(limiter HostLimiter) resty.RequestMiddleware {
	return func(_ *resty.Client, r *resty.Request) error {
		host, err := Host(r.URL)
		if err != nil {
			return err
		}
		return limiter.Wait(r.Context(), host)
	}
}

// Fetch retrieves the current price from the page at sourceURL
func (f *StaticFetcher) Fetch(ctx context.Context, sourceURL string) (*Observation, error) {
	if _, err := Host(sourceURL); err != nil {
		return nil, NewNotFoundError(0, err.Error())
	}

	resp, err := f.client.R().
		SetContext(ctx).
		Get(sourceURL)

	attempts := 1
	if resp != nil && resp.Request != nil && resp.Request.Attempt > 0 {
		attempts = resp.Request.Attempt
	}

	if fe := classifyResponse(resp, err, f.profile); fe != nil {
		fe.Attempts = attempts
		return nil, fe
	}

	obs, err := Inspect(resp.String(), f.profile)
	if err != nil {
		if fe, ok := err.(*FetchError); ok {
			fe.Attempts = attempts
		}
		return nil, err
	}
	obs.Attempts = attempts

	f.logger.Debug("fetched price",
		"url", sourceURL,
		"price", obs.Price.StringFixed(2),
		"attempts", attempts)

	return obs, nil
}

// Close releases the underlying HTTP client
func (f *StaticFetcher) Close() error {
	return f.client.Close()
}
