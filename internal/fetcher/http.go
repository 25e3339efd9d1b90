package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"

	"github.com/IshaanNene/scrapeoracle/internal/config"
)

// ErrBodyTooLarge is returned when a decoded response body exceeds
// fetcher.max_body_size.
var ErrBodyTooLarge = errors.New("response body too large")

// HTTPTransport implements Transport using net/http. One client is kept per
// proxy so connections are reused across attempts through the same proxy.
// All clients share one cookie jar, so a cookie set on a rejected attempt is
// sent on the next one.
type HTTPTransport struct {
	base    *http.Transport
	jar     http.CookieJar
	cfg     *config.FetcherConfig
	clients map[ProxyEntry]*http.Client
	mu      sync.Mutex
	logger  *slog.Logger
}

// NewHTTPTransport creates a new HTTP transport.
func NewHTTPTransport(cfg *config.FetcherConfig, logger *slog.Logger) *HTTPTransport {
	base := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSInsecure,
		},
		DisableCompression: true, // decoded below, including brotli
	}

	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	return &HTTPTransport{
		base:    base,
		jar:     jar,
		cfg:     cfg,
		clients: make(map[ProxyEntry]*http.Client),
		logger:  logger.With("component", "http_transport"),
	}
}

// Do issues one GET for the attempt.
func (t *HTTPTransport) Do(ctx context.Context, a Attempt) (*Result, error) {
	client, err := t.clientFor(a.Proxy)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", a.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &Result{StatusCode: resp.StatusCode}, nil
	}

	decoded, err := decompressReader(resp)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	defer decoded.Close()

	var reader io.Reader = decoded
	if t.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(decoded, t.cfg.MaxBodySize+1)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if t.cfg.MaxBodySize > 0 && int64(len(raw)) > t.cfg.MaxBodySize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, t.cfg.MaxBodySize)
	}

	body, err := io.ReadAll(utf8Reader(bytes.NewReader(raw), resp.Header.Get("Content-Type")))
	if err != nil {
		return nil, fmt.Errorf("convert body: %w", err)
	}

	t.logger.Debug("fetch complete",
		"url", a.URL,
		"status", resp.StatusCode,
		"size", len(body),
		"duration", time.Since(start),
	)
	return &Result{StatusCode: resp.StatusCode, Body: body}, nil
}

// Close releases idle connections.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.clients {
		c.CloseIdleConnections()
	}
	return nil
}

// Type returns the transport type identifier.
func (t *HTTPTransport) Type() string {
	return "http"
}

func (t *HTTPTransport) clientFor(proxy ProxyEntry) (*http.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[proxy]; ok {
		return c, nil
	}

	transport := t.base.Clone()
	if proxy != "" {
		u, err := proxy.URL()
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", proxy, err)
		}
		transport.Proxy = http.ProxyURL(u)
	} else {
		transport.Proxy = nil
	}

	c := &http.Client{
		Transport: transport,
		Jar:       t.jar,
		Timeout:   t.cfg.RequestTimeout,
	}
	t.clients[proxy] = c
	return c, nil
}

// decompressReader returns the decoded response body. Closing it does not
// close resp.Body.
func decompressReader(resp *http.Response) (io.ReadCloser, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "deflate":
		return flate.NewReader(resp.Body), nil
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	default:
		return io.NopCloser(resp.Body), nil
	}
}

// utf8Reader converts textual bodies to UTF-8 based on the declared or sniffed
// charset. Non-text bodies pass through untouched.
func utf8Reader(r io.Reader, contentType string) io.Reader {
	ct := strings.ToLower(contentType)
	if ct != "" && !strings.Contains(ct, "text") && !strings.Contains(ct, "html") && !strings.Contains(ct, "xml") {
		return r
	}
	converted, err := charset.NewReader(r, contentType)
	if err != nil {
		return r
	}
	return converted
}
