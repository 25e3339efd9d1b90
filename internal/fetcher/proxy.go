package fetcher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"

	"github.com/IshaanNene/scrapeoracle/internal/config"
)

// ProxyEntry is a scheme://host:port proxy address.
type ProxyEntry string

// URL parses the entry. Entries in a pool were validated on the way in.
func (p ProxyEntry) URL() (*url.URL, error) {
	return url.Parse(string(p))
}

// ProxyPool is the set of proxies built once per run. It is read-only after
// construction.
type ProxyPool struct {
	entries []ProxyEntry
}

// NewProxyPool wraps a fixed set of entries.
func NewProxyPool(entries []ProxyEntry) *ProxyPool {
	return &ProxyPool{entries: entries}
}

// BuildProxyPool merges the static proxies from config with one best-effort
// refresh from the provider. It never fails: with nothing usable the pool is empty
// and fetches go direct.
func BuildProxyPool(ctx context.Context, cfg *config.ProxyConfig, client *http.Client, logger *slog.Logger) *ProxyPool {
	logger = logger.With("component", "proxy_pool")

	var entries []ProxyEntry
	for _, raw := range cfg.URLs {
		if entry, ok := parseProxyLine(raw); ok {
			entries = append(entries, entry)
		} else {
			logger.Warn("invalid static proxy", "proxy", raw)
		}
	}

	if cfg.Enabled && cfg.ProviderURL != "" {
		entries = append(entries, Refresh(ctx, client, cfg.ProviderURL, logger)...)
	}

	logger.Info("proxy pool ready", "count", len(entries))
	return NewProxyPool(entries)
}

// Refresh performs one GET against the provider and returns the HTTP proxies it
// lists. Any failure is logged and yields an empty set.
func Refresh(ctx context.Context, client *http.Client, providerURL string, logger *slog.Logger) []ProxyEntry {
	entries, err := refresh(ctx, client, providerURL)
	if err != nil {
		logger.Warn("error fetching proxies, continuing without", "provider", providerURL, "error", err)
		return nil
	}
	return entries
}

func refresh(ctx context.Context, client *http.Client, providerURL string) ([]ProxyEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, providerURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read provider body: %w", err)
	}
	return ParseProxyList(string(body)), nil
}

// ParseProxyList keeps the lines of a provider response whose scheme is http or
// https and that carry a host.
func ParseProxyList(body string) []ProxyEntry {
	var entries []ProxyEntry
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		if entry, ok := parseProxyLine(scanner.Text()); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

func parseProxyLine(line string) (ProxyEntry, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(strings.ToLower(line), "http") {
		return "", false
	}
	u, err := url.Parse(line)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return ProxyEntry(line), true
}

// Pick returns a uniformly random entry, or "" when the pool is empty.
func (p *ProxyPool) Pick(rng *rand.Rand) ProxyEntry {
	if p == nil || len(p.entries) == 0 {
		return ""
	}
	return p.entries[rng.Intn(len(p.entries))]
}

// Len returns the number of proxies in the pool.
func (p *ProxyPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Entries returns a copy of the pool's entries.
func (p *ProxyPool) Entries() []ProxyEntry {
	if p == nil {
		return nil
	}
	return append([]ProxyEntry(nil), p.entries...)
}
