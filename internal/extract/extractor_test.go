package extract

import (
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/scrapeoracle/internal/config"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const productPage = `<html><head><title>Monitors</title><style>.x{color:red}</style></head>
<body>
<header>Site header</header>
<nav><a href="/">Home</a></nav>
<div class="grid">
  <div class="card"><a href="/p/1">Acme 27" Monitor</a><span class="price">$199</span></div>
  <div class="card"><a href="/p/2">Acme 32" Monitor</a><span class="price">$299</span></div>
</div>
<script>var tracking = 1;</script>
<footer>Footer links</footer>
</body></html>`

func TestReadableExtractor(t *testing.T) {
	text, err := (&ReadableExtractor{}).Extract("https://shop.example/", []byte(productPage))
	require.NoError(t, err)
	assert.Contains(t, text, `Acme 27" Monitor`)
	assert.Contains(t, text, "$299")
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "Site header")
	assert.NotContains(t, text, "Footer links")
}

func TestRawExtractor(t *testing.T) {
	text, err := (&RawExtractor{}).Extract("", []byte("  <p>x</p>\n"))
	require.NoError(t, err)
	assert.Equal(t, "<p>x</p>", text)

	text, err = (&RawExtractor{}).Extract("", nil)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestCSSScope(t *testing.T) {
	ex := &CSSScope{Selector: ".card", Next: &RawExtractor{}}
	text, err := ex.Extract("https://shop.example/", []byte(productPage))
	require.NoError(t, err)
	assert.Contains(t, text, `href="/p/1"`)
	assert.Contains(t, text, `href="/p/2"`)
	assert.NotContains(t, text, "Site header")

	missing := &CSSScope{Selector: ".nothing", Next: &RawExtractor{}}
	text, err = missing.Extract("https://shop.example/", []byte(productPage))
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestXPathScope(t *testing.T) {
	ex := &XPathScope{Expr: `//span[@class="price"]`, Next: &ReadableExtractor{}}
	text, err := ex.Extract("https://shop.example/", []byte(productPage))
	require.NoError(t, err)
	assert.Equal(t, "$199 $299", text)

	bad := &XPathScope{Expr: "//[", Next: &RawExtractor{}}
	_, err = bad.Extract("https://shop.example/", []byte(productPage))
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	ex := &Truncate{MaxChars: 3, Next: &RawExtractor{}}
	text, err := ex.Extract("", []byte("héllo"))
	require.NoError(t, err)
	assert.Equal(t, "hél", text)
}

func TestTrafilaturaExtractsArticle(t *testing.T) {
	para := strings.Repeat("The Acme 27 inch monitor offers a sharp display with accurate colours and a sturdy stand. ", 6)
	page := `<html><head><title>Acme 27 review</title></head><body>
<nav><a href="/">Home</a> <a href="/deals">Deals</a></nav>
<article><h1>Acme 27 review</h1><p>` + para + `</p><p>` + para + `</p><p>Price: $199. Rating: 4.5 of 5.</p></article>
<footer>Copyright</footer></body></html>`

	ex := &TrafilaturaExtractor{logger: testLogger}
	text, err := ex.Extract("https://shop.example/reviews/acme-27", []byte(page))
	require.NoError(t, err)
	assert.Contains(t, text, "sturdy stand")
}

func TestNewBuildsChain(t *testing.T) {
	ex, err := New(&config.ExtractConfig{Mode: "readable", ScopeCSS: ".grid", MaxChars: 10}, testLogger)
	require.NoError(t, err)
	assert.Equal(t, "readable+css", ex.Name())

	text, err := ex.Extract("https://shop.example/", []byte(productPage))
	require.NoError(t, err)
	assert.Equal(t, `Acme 27" M`, text)

	_, err = New(&config.ExtractConfig{Mode: "ocr"}, testLogger)
	assert.Error(t, err)
}
