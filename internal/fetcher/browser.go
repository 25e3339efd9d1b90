package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/scrapeoracle/internal/config"
)

// BrowserTransport implements Transport with a headless Chromium driven by Rod,
// for pages that only render their product grid client-side. Chromium takes its
// proxy at launch, so one browser is kept per proxy and started on first use.
type BrowserTransport struct {
	cfg      *config.FetcherConfig
	browsers map[ProxyEntry]*browserInstance
	mu       sync.Mutex
	logger   *slog.Logger
}

type browserInstance struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewBrowserTransport creates a browser transport. No browser is launched
// until the first attempt.
func NewBrowserTransport(cfg *config.FetcherConfig, logger *slog.Logger) *BrowserTransport {
	return &BrowserTransport{
		cfg:      cfg,
		browsers: make(map[ProxyEntry]*browserInstance),
		logger:   logger.With("component", "browser_transport"),
	}
}

// Do navigates a fresh stealth page to the attempt's URL and returns the
// rendered HTML with the status of the main document response.
func (t *BrowserTransport) Do(ctx context.Context, a Attempt) (*Result, error) {
	browser, err := t.browserFor(a.Proxy)
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("stealth page: %w", err)
	}
	defer func() { _ = page.Close() }()

	page = page.Context(ctx).Timeout(t.cfg.RequestTimeout)

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: a.UserAgent}); err != nil {
		t.logger.Warn("failed to set user agent", "error", err)
	}

	status := 0
	waitDocument := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		status = e.Response.Status
		return true
	})

	start := time.Now()
	if err := page.Navigate(a.URL); err != nil {
		return nil, err
	}
	waitDocument()

	if err := page.WaitStable(300 * time.Millisecond); err != nil {
		t.logger.Warn("page stability timeout, continuing", "url", a.URL, "error", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}
	if status == 0 {
		// Served from cache or a non-network scheme: the document loaded.
		status = 200
	}

	t.logger.Debug("browser fetch complete",
		"url", a.URL,
		"status", status,
		"size", len(html),
		"duration", time.Since(start),
	)
	return &Result{StatusCode: status, Body: []byte(html)}, nil
}

// Close shuts down every launched browser.
func (t *BrowserTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	for proxy, inst := range t.browsers {
		if err := inst.browser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		inst.launcher.Cleanup()
		delete(t.browsers, proxy)
	}
	return firstErr
}

// Type returns the transport type identifier.
func (t *BrowserTransport) Type() string {
	return "browser"
}

func (t *BrowserTransport) browserFor(proxy ProxyEntry) (*rod.Browser, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if inst, ok := t.browsers[proxy]; ok {
		return inst.browser, nil
	}

	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled")
	if proxy != "" {
		l = l.Proxy(string(proxy))
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	t.browsers[proxy] = &browserInstance{launcher: l, browser: browser}
	t.logger.Info("browser launched", "proxy", string(proxy))
	return browser, nil
}
