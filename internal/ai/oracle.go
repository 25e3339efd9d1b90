// Package ai streams structured-data extractions from a generative model.
package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/IshaanNene/scrapeoracle/internal/config"
	"github.com/IshaanNene/scrapeoracle/internal/types"
)

// Oracle turns a prompt into a lazily produced sequence of text chunks.
// The sequence is finite and may be ranged over once. A non-nil error ends it.
type Oracle interface {
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]

	// Provider returns the backend name (gemini, ollama, openai).
	Provider() string
}

// Request is a single generation call.
type Request struct {
	Prompt            string
	SystemInstruction string
	Model             string // overrides the configured model when set
}

// Collect drains seq, calling onChunk (if non-nil) for every chunk as it
// arrives, and returns the concatenation. Any error discards the partial text.
func Collect(seq iter.Seq2[string, error], onChunk func(string)) (string, error) {
	var sb strings.Builder
	for chunk, err := range seq {
		if err != nil {
			return "", err
		}
		if onChunk != nil {
			onChunk(chunk)
		}
		sb.WriteString(chunk)
	}
	return sb.String(), nil
}

// NewOracle creates the adapter for cfg.Provider.
func NewOracle(cfg *config.AIConfig, apiKey string, logger *slog.Logger) (Oracle, error) {
	base := newClient(cfg, apiKey, logger)
	switch cfg.Provider {
	case "gemini":
		return &Gemini{client: base}, nil
	case "ollama":
		return &Ollama{client: base}, nil
	case "openai":
		return &OpenAI{client: base}, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// client holds what every provider adapter shares: the HTTP client, the
// credentials and the setup retry policy.
type client struct {
	cfg    *config.AIConfig
	apiKey string
	http   *http.Client
	logger *slog.Logger
}

func newClient(cfg *config.AIConfig, apiKey string, logger *slog.Logger) *client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 120 * time.Second

	return &client{
		cfg:    cfg,
		apiKey: apiKey,
		// Streams are bounded by the caller's context, not a client timeout.
		http:   &http.Client{Transport: transport},
		logger: logger.With("component", "oracle", "provider", cfg.Provider),
	}
}

func (c *client) model(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.cfg.Model
}

func (c *client) systemInstruction(req Request) string {
	if req.SystemInstruction != "" {
		return req.SystemInstruction
	}
	return c.cfg.SystemInstruction
}

func (c *client) endpoint(fallback string) string {
	if c.cfg.Endpoint != "" {
		return strings.TrimRight(c.cfg.Endpoint, "/")
	}
	return fallback
}

func (c *client) fail(model string, err error) error {
	return &types.OracleError{Provider: c.cfg.Provider, Model: model, Err: err}
}

// statusError is a non-2xx response from the generation service.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

func (c *client) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInitial
	b.Multiplier = c.cfg.RetryMultiplier
	b.MaxInterval = c.cfg.RetryMax
	b.MaxElapsedTime = c.cfg.RetryTimeout
	b.Reset()
	return b
}

// open performs the call setup under exponential backoff: it returns the
// first 2xx response, retrying rate limits, server errors and network
// failures until the retry budget runs out. Other client errors are final.
func (c *client) open(ctx context.Context, build func(context.Context) (*http.Request, error)) (*http.Response, error) {
	op := func() (*http.Response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		serr := &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if retryableStatus(resp.StatusCode) {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("oracle call failed, retrying", "error", err, "backoff", wait)
	}

	resp, err := backoff.RetryNotifyWithData(op, backoff.WithContext(c.backOff(), ctx), notify)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return nil, err
	}
	return resp, nil
}
