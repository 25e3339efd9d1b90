package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// CSSScope narrows the page to the elements matching Selector before handing
// them to Next. A page with no match yields no content.
type CSSScope struct {
	Selector string
	Next     Extractor
}

func (s *CSSScope) Name() string { return s.Next.Name() + "+css" }

func (s *CSSScope) Extract(pageURL string, body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var parts []string
	var outerErr error
	doc.Find(s.Selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		h, err := goquery.OuterHtml(sel)
		if err != nil {
			outerErr = err
			return false
		}
		parts = append(parts, h)
		return true
	})
	if outerErr != nil {
		return "", fmt.Errorf("render scope %q: %w", s.Selector, outerErr)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return s.Next.Extract(pageURL, wrapFragment(parts))
}

// XPathScope narrows the page to the nodes matching Expr.
type XPathScope struct {
	Expr string
	Next Extractor
}

func (s *XPathScope) Name() string { return s.Next.Name() + "+xpath" }

func (s *XPathScope) Extract(pageURL string, body []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	nodes, err := htmlquery.QueryAll(doc, s.Expr)
	if err != nil {
		return "", fmt.Errorf("invalid xpath %q: %w", s.Expr, err)
	}
	if len(nodes) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		parts = append(parts, htmlquery.OutputHTML(n, true))
	}
	return s.Next.Extract(pageURL, wrapFragment(parts))
}

func wrapFragment(parts []string) []byte {
	return []byte("<html><body>" + strings.Join(parts, "\n") + "</body></html>")
}
