package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Fetcher is the core interface that every price retrieval strategy implements.
// Static HTML sources and script-rendered sources sit behind the same contract.
type Fetcher interface {
	// Fetch retrieves the current price for the product at sourceURL.
	// Any failure is returned as a *FetchError so callers can branch on its Kind.
	Fetch(ctx context.Context, sourceURL string) (*Observation, error)
}

// Router dispatches each URL to the browser strategy when its host is listed
// as dynamic and to the static strategy otherwise.
type Router struct {
	static         Fetcher
	browser        Fetcher
	dynamicDomains []string
}

// NewRouter creates a Router. browser may be nil, in which case every URL is
// fetched statically.
func NewRouter(static, browser Fetcher, dynamicDomains []string) *Router {
	return &Router{
		static:         static,
		browser:        browser,
		dynamicDomains: dynamicDomains,
	}
}

// Fetch implements the Fetcher interface
func (r *Router) Fetch(ctx context.Context, sourceURL string) (*Observation, error) {
	return r.For(sourceURL).Fetch(ctx, sourceURL)
}

// For returns the strategy used for sourceURL.
func (r *Router) For(sourceURL string) Fetcher {
	if r.browser == nil {
		return r.static
	}
	host, err := Host(sourceURL)
	if err != nil {
		return r.static
	}
	if MatchDomain(host, r.dynamicDomains) {
		return r.browser
	}
	return r.static
}

// Host returns the lower-cased host of a retrievable http(s) URL.
func Host(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("url has no host")
	}
	return strings.ToLower(u.Hostname()), nil
}

// MatchDomain reports whether host equals one of domains or is a subdomain of it.
func MatchDomain(host string, domains []string) bool {
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "."))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
