// Package extract turns fetched HTML into the text handed to the model.
package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/markusmobius/go-trafilatura"

	"github.com/IshaanNene/scrapeoracle/internal/config"
)

// Extractor converts a page body to text. An empty string with a nil error
// means the page had nothing extractable.
type Extractor interface {
	Extract(pageURL string, body []byte) (string, error)

	// Name returns the extractor's identifier.
	Name() string
}

// New builds the extractor chain described by cfg: the base mode, optionally
// narrowed to a CSS or XPath scope, optionally capped in length.
func New(cfg *config.ExtractConfig, logger *slog.Logger) (Extractor, error) {
	var ex Extractor
	switch cfg.Mode {
	case "trafilatura":
		ex = &TrafilaturaExtractor{logger: logger.With("component", "trafilatura_extractor")}
	case "readable":
		ex = &ReadableExtractor{}
	case "raw":
		ex = &RawExtractor{}
	default:
		return nil, fmt.Errorf("unsupported extract mode: %s", cfg.Mode)
	}

	switch {
	case cfg.ScopeCSS != "":
		ex = &CSSScope{Selector: cfg.ScopeCSS, Next: ex}
	case cfg.ScopeXPath != "":
		ex = &XPathScope{Expr: cfg.ScopeXPath, Next: ex}
	}

	if cfg.MaxChars > 0 {
		ex = &Truncate{MaxChars: cfg.MaxChars, Next: ex}
	}
	return ex, nil
}

// TrafilaturaExtractor keeps the main content of the page and drops
// boilerplate (navigation, footers, cookie banners).
type TrafilaturaExtractor struct {
	logger *slog.Logger
}

func (e *TrafilaturaExtractor) Name() string { return "trafilatura" }

func (e *TrafilaturaExtractor) Extract(pageURL string, body []byte) (string, error) {
	opts := trafilatura.Options{EnableFallback: true}
	if u, err := url.Parse(pageURL); err == nil {
		opts.OriginalURL = u
	}

	result, err := trafilatura.Extract(bytes.NewReader(body), opts)
	if err != nil {
		return "", fmt.Errorf("trafilatura: %w", err)
	}
	if result == nil {
		return "", nil
	}

	text := strings.TrimSpace(result.ContentText)
	e.logger.Debug("content extracted", "url", pageURL, "chars", len(text))
	return text, nil
}

// ReadableExtractor strips scripts, styles and page chrome and returns the
// whitespace-collapsed body text.
type ReadableExtractor struct{}

func (e *ReadableExtractor) Name() string { return "readable" }

func (e *ReadableExtractor) Extract(_ string, body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	root = root.Clone()
	root.Find("script, style, noscript, nav, footer, header, aside, svg").Remove()

	return strings.Join(strings.Fields(root.Text()), " "), nil
}

// RawExtractor passes the page through, for prompts that need the markup
// itself (link extraction reads href attributes).
type RawExtractor struct{}

func (e *RawExtractor) Name() string { return "raw" }

func (e *RawExtractor) Extract(_ string, body []byte) (string, error) {
	return strings.TrimSpace(string(body)), nil
}

// Truncate caps the output of Next at MaxChars runes.
type Truncate struct {
	MaxChars int
	Next     Extractor
}

func (t *Truncate) Name() string { return t.Next.Name() }

func (t *Truncate) Extract(pageURL string, body []byte) (string, error) {
	text, err := t.Next.Extract(pageURL, body)
	if err != nil || t.MaxChars <= 0 {
		return text, err
	}
	runes := []rune(text)
	if len(runes) > t.MaxChars {
		return string(runes[:t.MaxChars]), nil
	}
	return text, nil
}
