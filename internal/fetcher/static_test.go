package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pricetracker/internal/ratelimit"
)

func testClientOptions() ClientOptions {
	return ClientOptions{
		MaxAttempts:    3,
		AttemptTimeout: 2 * time.Second,
		RetryWait:      time.Millisecond,
		RetryMaxWait:   5 * time.Millisecond,
	}
}

func newTestStaticFetcher(t *testing.T, opts ClientOptions) *StaticFetcher {
	t.Helper()
	f := NewStaticFetcher(opts, DefaultProfile(), ratelimit.Unlimited())
	t.Cleanup(func() { f.Close() })
	return f
}

func TestStaticFetcher_Fetch_Success(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != DefaultUserAgent {
			t.Errorf("User-Agent = %q, want %q", ua, DefaultUserAgent)
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(productPage("Espresso Machine", "₹1,234.50")))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	fetcher := newTestStaticFetcher(t, testClientOptions())

	obs, err := fetcher.Fetch(context.Background(), server.URL+"/dp/B0001")
	if err != nil {
		t.Fatalf("Fetch() returned unexpected error: %v", err)
	}

	if want := decimal.RequireFromString("1234.50"); !obs.Price.Equal(want) {
		t.Errorf("Fetch() price = %s, want %s", obs.Price, want)
	}
	if obs.Title != "Espresso Machine" {
		t.Errorf("Fetch() title = %q, want %q", obs.Title, "Espresso Machine")
	}
}

func TestStaticFetcher_Fetch_BlockedThenSuccess(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		if hits.Add(1) < 3 {
			w.Write([]byte(captchaPage))
			return
		}
		w.Write([]byte(productPage("Kettle", "$99")))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	fetcher := newTestStaticFetcher(t, testClientOptions())

	obs, err := fetcher.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch() returned unexpected error: %v", err)
	}

	if want := decimal.RequireFromString("99"); !obs.Price.Equal(want) {
		t.Errorf("Fetch() price = %s, want %s", obs.Price, want)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hit %d times, want 3", got)
	}
}

type recordingLimiter struct {
	mu    sync.Mutex
	hosts []string
}

func (l *recordingLimiter) Wait(_ context.Context, host string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hosts = append(l.hosts, host)
	return nil
}

func TestStaticFetcher_Fetch_LimiterPerAttempt(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(productPage("Toaster", "₹899")))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	limiter := &recordingLimiter{}
	fetcher := NewStaticFetcher(testClientOptions(), DefaultProfile(), limiter)
	defer fetcher.Close()

	if _, err := fetcher.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Fetch() returned unexpected error: %v", err)
	}

	wantHost, _ := Host(server.URL)
	if len(limiter.hosts) != 3 {
		t.Fatalf("limiter consulted %d times, want 3", len(limiter.hosts))
	}
	for i, host := range limiter.hosts {
		if host != wantHost {
			t.Errorf("limiter call %d host = %q, want %q", i, host, wantHost)
		}
	}
}

func TestStaticFetcher_Fetch_BlockedExhausted(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(captchaPage))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	fetcher := newTestStaticFetcher(t, testClientOptions())

	_, err := fetcher.Fetch(context.Background(), server.URL)
	if got := KindOf(err); got != KindBlocked {
		t.Fatalf("Fetch() kind = %q, want %q (err: %v)", got, KindBlocked, err)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hit %d times, want 3", got)
	}
}

func TestStaticFetcher_Fetch_NotRetried(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{"404 page", http.StatusNotFound, "", KindNotFound},
		{"missing price markup", http.StatusOK, noPricePage, KindNotFound},
		{"unparsable price", http.StatusOK, productPage("Gadget", "Price not available"), KindParseFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			fetcher := newTestStaticFetcher(t, testClientOptions())

			_, err := fetcher.Fetch(context.Background(), server.URL)
			if got := KindOf(err); got != tt.want {
				t.Fatalf("Fetch() kind = %q, want %q (err: %v)", got, tt.want, err)
			}
			if got := hits.Load(); got != 1 {
				t.Errorf("server hit %d times, want 1", got)
			}
		})
	}
}

func TestStaticFetcher_Fetch_ServerErrorRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	fetcher := newTestStaticFetcher(t, testClientOptions())

	_, err := fetcher.Fetch(context.Background(), server.URL)
	if got := KindOf(err); got != KindNetwork {
		t.Fatalf("Fetch() kind = %q, want %q (err: %v)", got, KindNetwork, err)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hit %d times, want 3", got)
	}
}

func TestStaticFetcher_Fetch_AttemptTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	opts := testClientOptions()
	opts.MaxAttempts = 1
	opts.AttemptTimeout = 50 * time.Millisecond
	fetcher := newTestStaticFetcher(t, opts)

	start := time.Now()
	_, err := fetcher.Fetch(context.Background(), server.URL)
	if got := KindOf(err); got != KindNetwork {
		t.Fatalf("Fetch() kind = %q, want %q (err: %v)", got, KindNetwork, err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Fetch() took %v, want it bounded by the attempt timeout", elapsed)
	}
}

func TestStaticFetcher_Fetch_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	fetcher := newTestStaticFetcher(t, testClientOptions())

	_, err := fetcher.Fetch(context.Background(), url)
	if got := KindOf(err); got != KindNetwork {
		t.Errorf("Fetch() kind = %q, want %q (err: %v)", got, KindNetwork, err)
	}
}

func TestStaticFetcher_Fetch_InvalidURL(t *testing.T) {
	fetcher := newTestStaticFetcher(t, testClientOptions())

	_, err := fetcher.Fetch(context.Background(), "ftp://example.com/item")
	if got := KindOf(err); got != KindNotFound {
		t.Errorf("Fetch() kind = %q, want %q", got, KindNotFound)
	}
}
