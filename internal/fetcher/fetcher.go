package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/IshaanNene/scrapeoracle/internal/config"
	"github.com/IshaanNene/scrapeoracle/internal/logging"
	"github.com/IshaanNene/scrapeoracle/internal/observability"
	"github.com/IshaanNene/scrapeoracle/internal/types"
)

// Attempt is the transient record of one try at a URL.
type Attempt struct {
	URL       string
	Number    int
	Proxy     ProxyEntry // empty means direct
	UserAgent string
}

// Result is what a transport got back for an attempt that reached the server.
type Result struct {
	StatusCode int
	Body       []byte
}

// Transport performs a single GET for an attempt. Network-level failures are
// returned as errors; any HTTP status is a Result.
type Transport interface {
	Do(ctx context.Context, a Attempt) (*Result, error)

	// Close releases any resources held by the transport.
	Close() error

	// Type returns the transport type identifier.
	Type() string
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures a Fetcher.
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	UserAgents []string

	// Rand drives proxy and user-agent choice. Defaults to a time-seeded source.
	Rand *rand.Rand

	// Sleep defaults to a context-aware timer.
	Sleep SleepFunc

	Metrics *observability.Metrics
}

// Fetcher retries a transport with a fixed delay, rotating proxies and user
// agents per attempt.
type Fetcher struct {
	transport Transport
	pool      *ProxyPool
	opts      Options
	logger    *slog.Logger
}

// New creates a Fetcher.
func New(transport Transport, pool *ProxyPool, opts Options, logger *slog.Logger) *Fetcher {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = config.DefaultUserAgents
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Fetcher{
		transport: transport,
		pool:      pool,
		opts:      opts,
		logger:    logger.With("component", "fetcher", "transport", transport.Type()),
	}
}

// Fetch returns the body of the first attempt answered with 200. After
// MaxRetries misses it returns an error wrapping types.ErrNoContent. The delay
// runs between attempts, not after the last one.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	for n := 1; n <= f.opts.MaxRetries; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		a := Attempt{
			URL:       rawURL,
			Number:    n,
			Proxy:     f.pool.Pick(f.opts.Rand),
			UserAgent: f.opts.UserAgents[f.opts.Rand.Intn(len(f.opts.UserAgents))],
		}
		f.logger.Info("fetching page", "url", rawURL, "attempt", n, "proxy", string(a.Proxy))

		res, err := f.transport.Do(ctx, a)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.opts.Metrics.FetchAttempt("error")
			f.logger.Error("error fetching page, retrying",
				"error", &types.FetchError{URL: rawURL, Attempt: n, Err: err},
			)
		case res.StatusCode == http.StatusOK:
			f.opts.Metrics.FetchAttempt("ok")
			logging.Success(f.logger, "page fetched", "url", rawURL, "attempt", n, "size", len(res.Body))
			return res.Body, nil
		default:
			f.opts.Metrics.FetchAttempt("status")
			logging.Failure(f.logger, "unexpected status, retrying",
				"url", rawURL, "attempt", n, "status", res.StatusCode,
			)
		}

		if n < f.opts.MaxRetries {
			if err := f.opts.Sleep(ctx, f.opts.RetryDelay); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempts", types.ErrNoContent, rawURL, f.opts.MaxRetries)
}

// Close releases the transport.
func (f *Fetcher) Close() error {
	return f.transport.Close()
}

// NewTransport builds the transport named by cfg.Fetcher.Type.
func NewTransport(cfg *config.Config, logger *slog.Logger) (Transport, error) {
	switch cfg.Fetcher.Type {
	case "http":
		return NewHTTPTransport(&cfg.Fetcher, logger), nil
	case "browser":
		return NewBrowserTransport(&cfg.Fetcher, logger), nil
	default:
		return nil, fmt.Errorf("unsupported fetcher type: %s", cfg.Fetcher.Type)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
