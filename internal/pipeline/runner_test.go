package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/scrapeoracle/internal/ai"
	"github.com/IshaanNene/scrapeoracle/internal/extract"
	"github.com/IshaanNene/scrapeoracle/internal/links"
	"github.com/IshaanNene/scrapeoracle/internal/storage"
	"github.com/IshaanNene/scrapeoracle/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// mapFetcher serves fixed bodies and fails every other URL with ErrNoContent.
type mapFetcher struct {
	pages   map[string]string
	fetched []string
}

func (f *mapFetcher) Fetch(_ context.Context, rawURL string) ([]byte, error) {
	f.fetched = append(f.fetched, rawURL)
	body, ok := f.pages[rawURL]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrNoContent, rawURL)
	}
	return []byte(body), nil
}

// scriptedOracle answers call n with respond(n, req).
type scriptedOracle struct {
	respond  func(n int, req ai.Request) ([]string, error)
	requests []ai.Request
}

func (o *scriptedOracle) Provider() string { return "scripted" }

func (o *scriptedOracle) Stream(ctx context.Context, req ai.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		o.requests = append(o.requests, req)
		chunks, err := o.respond(len(o.requests), req)
		if ctxErr := ctx.Err(); ctxErr != nil {
			yield("", ctxErr)
			return
		}
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
		if err != nil {
			yield("", err)
		}
	}
}

// echoOracle replies with "R<n>" for call n.
func echoOracle() *scriptedOracle {
	return &scriptedOracle{respond: func(n int, _ ai.Request) ([]string, error) {
		return []string{fmt.Sprintf("R%d", n)}, nil
	}}
}

type recordingSink struct {
	err       error
	artifacts []*storage.Artifact
}

func (s *recordingSink) Store(_ context.Context, a *storage.Artifact) error {
	s.artifacts = append(s.artifacts, a)
	return s.err
}
func (s *recordingSink) Close() error { return nil }
func (s *recordingSink) Name() string { return "recording" }

type harness struct {
	root    string
	fetcher *mapFetcher
	oracle  *scriptedOracle
	runner  *Runner
}

func newHarness(t *testing.T, pages map[string]string, oracle *scriptedOracle, mirror storage.Sink) *harness {
	t.Helper()
	root := t.TempDir()
	f := &mapFetcher{pages: pages}
	deps := Deps{
		Fetcher:   f,
		Extractor: &extract.RawExtractor{},
		Oracle:    oracle,
		Writer:    storage.NewFileWriter(root, testLogger),
		RunID:     "run-test",
	}
	if mirror != nil {
		deps.Mirror = mirror
	}
	return &harness{root: root, fetcher: f, oracle: oracle, runner: New(deps, testLogger)}
}

func (h *harness) read(t *testing.T, parts ...string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(append([]string{h.root}, parts...)...))
	require.NoError(t, err)
	return string(b)
}

func TestBatchSkipsInvalidURLAndAppendsInOrder(t *testing.T) {
	h := newHarness(t, map[string]string{
		"https://a.example/p1": "page one",
		"https://a.example/p2": "page two",
	}, echoOracle(), nil)

	file := filepath.Join(t.TempDir(), "links.json")
	require.NoError(t, os.WriteFile(file, []byte(`["https://a.example/p1", "not-a-url", "https://a.example/p2"]`), 0o644))
	items, err := links.Load(file)
	require.NoError(t, err)

	sum, err := h.runner.Run(context.Background(), items, RunOptions{
		Prompt: "Extract products",
		Output: "ProductData.json",
		Mode:   storage.ModeAppend,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.Count(types.StatePersisted))
	assert.Equal(t, 1, sum.Count(types.StateSkipped))
	assert.Equal(t, []string{"https://a.example/p1", "https://a.example/p2"}, h.fetcher.fetched)
	assert.Equal(t, "R1R2", h.read(t, "a.example", "ProductData.json"))

	require.Len(t, h.oracle.requests, 2)
	assert.Equal(t, "Extract products and make sure to close JSON syntax with }]}, page one", h.oracle.requests[0].Prompt)
}

func TestChunksConcatenateIntoArtifact(t *testing.T) {
	oracle := &scriptedOracle{respond: func(int, ai.Request) ([]string, error) {
		return []string{"Hel", "lo, ", "World"}, nil
	}}
	h := newHarness(t, map[string]string{"https://a.example/p": "x"}, oracle, nil)

	var live strings.Builder
	_, err := h.runner.Run(context.Background(), links.Single("https://a.example/p"), RunOptions{
		Output:  "out.json",
		Mode:    storage.ModeReplace,
		OnChunk: func(c string) { live.WriteString(c) },
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello, World", h.read(t, "a.example", "out.json"))
	assert.Equal(t, "Hello, World", live.String())
}

func TestOracleFailureSkipsItem(t *testing.T) {
	oracle := &scriptedOracle{respond: func(n int, _ ai.Request) ([]string, error) {
		if n == 1 {
			return []string{"partial"}, errors.New("stream reset")
		}
		return []string{"second"}, nil
	}}
	h := newHarness(t, map[string]string{
		"https://a.example/p1": "one",
		"https://a.example/p2": "two",
	}, oracle, nil)

	items := []types.LinkItem{{Index: 0, URL: "https://a.example/p1"}, {Index: 1, URL: "https://a.example/p2"}}
	sum, err := h.runner.Run(context.Background(), items, RunOptions{Output: "out.json", Mode: storage.ModeAppend})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Count(types.StateOracleFailed))
	assert.Equal(t, 1, sum.Count(types.StatePersisted))
	assert.Equal(t, "second", h.read(t, "a.example", "out.json"))
}

func TestFetchAndExtractFailuresContinue(t *testing.T) {
	h := newHarness(t, map[string]string{
		"https://a.example/blank": "   \n ",
		"https://b.example/ok":    "content",
	}, echoOracle(), nil)

	items := []types.LinkItem{
		{Index: 0, URL: "https://a.example/down"},
		{Index: 1, URL: "https://a.example/blank"},
		{Index: 2, URL: "https://b.example/ok"},
	}
	sum, err := h.runner.Run(context.Background(), items, RunOptions{Output: "out.json", Mode: storage.ModeAppend})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Count(types.StateFetchFailed))
	assert.Equal(t, 1, sum.Count(types.StateExtractFailed))
	assert.Equal(t, 1, sum.Count(types.StatePersisted))
	assert.Len(t, h.oracle.requests, 1)

	_, err = os.Stat(filepath.Join(h.root, "a.example", "out.json"))
	assert.True(t, os.IsNotExist(err))
	assert.DirExists(t, filepath.Join(h.root, "a.example"))
	assert.Equal(t, "R1", h.read(t, "b.example", "out.json"))
}

func TestWriteModes(t *testing.T) {
	pages := map[string]string{"https://a.example/1": "1", "https://a.example/2": "2"}
	items := []types.LinkItem{{Index: 0, URL: "https://a.example/1"}, {Index: 1, URL: "https://a.example/2"}}

	seed := func(h *harness) {
		require.NoError(t, os.MkdirAll(filepath.Join(h.root, "a.example"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(h.root, "a.example", "out.json"), []byte("old|"), 0o644))
	}

	h := newHarness(t, pages, echoOracle(), nil)
	seed(h)
	_, err := h.runner.Run(context.Background(), items, RunOptions{Output: "out.json", Mode: storage.ModeAppend})
	require.NoError(t, err)
	assert.Equal(t, "old|R1R2", h.read(t, "a.example", "out.json"))

	h = newHarness(t, pages, echoOracle(), nil)
	seed(h)
	_, err = h.runner.Run(context.Background(), items, RunOptions{Output: "out.json", Mode: storage.ModeAppend, Truncate: true})
	require.NoError(t, err)
	assert.Equal(t, "R1R2", h.read(t, "a.example", "out.json"))

	h = newHarness(t, pages, echoOracle(), nil)
	seed(h)
	_, err = h.runner.Run(context.Background(), items[:1], RunOptions{Output: "out.json", Mode: storage.ModeReplace})
	require.NoError(t, err)
	assert.Equal(t, "R1", h.read(t, "a.example", "out.json"))
}

func TestKeepPages(t *testing.T) {
	h := newHarness(t, map[string]string{"https://a.example/p": "extracted body"}, echoOracle(), nil)

	items := []types.LinkItem{
		{Index: 3, URL: "https://a.example/p"},
		{Index: 0, URL: "https://a.example/p", Field: "shop"},
	}
	_, err := h.runner.Run(context.Background(), items, RunOptions{Output: "out.json", KeepPages: true})
	require.NoError(t, err)
	assert.Equal(t, "extracted body", h.read(t, "a.example", "pages", "data3.txt"))
	assert.Equal(t, "extracted body", h.read(t, "a.example", "pages", "shop", "data0.txt"))
}

func TestInterruptLeavesNoPartialArtifact(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	oracle := &scriptedOracle{respond: func(int, ai.Request) ([]string, error) {
		cancel()
		return []string{"never"}, nil
	}}
	h := newHarness(t, map[string]string{
		"https://a.example/1": "1",
		"https://a.example/2": "2",
	}, oracle, nil)

	items := []types.LinkItem{{Index: 0, URL: "https://a.example/1"}, {Index: 1, URL: "https://a.example/2"}}
	sum, err := h.runner.Run(ctx, items, RunOptions{Output: "out.json", Mode: storage.ModeAppend})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsInterrupted(err))
	assert.Zero(t, sum.Total)
	assert.Equal(t, []string{"https://a.example/1"}, h.fetcher.fetched)

	_, statErr := os.Stat(filepath.Join(h.root, "a.example", "out.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestStorageFailureAbortsRun(t *testing.T) {
	h := newHarness(t, map[string]string{"https://a.example/1": "1"}, echoOracle(), nil)
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "a.example"), []byte("not a directory"), 0o644))

	_, err := h.runner.Run(context.Background(), links.Single("https://a.example/1"), RunOptions{Output: "out.json"})
	var serr *types.StorageError
	require.ErrorAs(t, err, &serr)
	assert.False(t, IsInterrupted(err))
}

func TestMirrorReceivesArtifactsAndFailuresAreNotFatal(t *testing.T) {
	sink := &recordingSink{err: errors.New("mongo down")}
	h := newHarness(t, map[string]string{
		"https://a.example/1": "1",
		"https://a.example/2": "2",
	}, echoOracle(), sink)

	items := []types.LinkItem{{Index: 0, URL: "https://a.example/1", Field: "f"}, {Index: 1, URL: "https://a.example/2", Field: "f"}}
	sum, err := h.runner.Run(context.Background(), items, RunOptions{Output: "out.json", Mode: storage.ModeAppend})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Count(types.StatePersisted))

	require.Len(t, sink.artifacts, 2)
	a := sink.artifacts[1]
	assert.Equal(t, "run-test", a.RunID)
	assert.Equal(t, "a.example", a.Scope)
	assert.Equal(t, "R2", a.Content)
	assert.Equal(t, "f", a.Field)
	assert.Equal(t, storage.ModeAppend, a.Mode)
}

func TestOracleCallsAreThrottled(t *testing.T) {
	pages := map[string]string{"https://a.example/1": "1", "https://a.example/2": "2", "https://a.example/3": "3"}
	oracle := echoOracle()
	root := t.TempDir()
	r := New(Deps{
		Fetcher:     &mapFetcher{pages: pages},
		Extractor:   &extract.RawExtractor{},
		Oracle:      oracle,
		Writer:      storage.NewFileWriter(root, testLogger),
		OracleDelay: 40 * time.Millisecond,
	}, testLogger)
	assert.NotEmpty(t, r.RunID())

	items := []types.LinkItem{{URL: "https://a.example/1"}, {URL: "https://a.example/2"}, {URL: "https://a.example/3"}}
	start := time.Now()
	_, err := r.Run(context.Background(), items, RunOptions{Output: "out.json", Mode: storage.ModeAppend})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestOracleDelayFollowsSlowCalls(t *testing.T) {
	const (
		delay = 50 * time.Millisecond
		call  = 80 * time.Millisecond
	)
	var starts, ends []time.Time
	oracle := &scriptedOracle{respond: func(n int, _ ai.Request) ([]string, error) {
		starts = append(starts, time.Now())
		time.Sleep(call)
		ends = append(ends, time.Now())
		if n == 2 {
			return nil, errors.New("quota exceeded")
		}
		return []string{"ok"}, nil
	}}
	pages := map[string]string{"https://a.example/1": "1", "https://a.example/2": "2", "https://a.example/3": "3"}
	r := New(Deps{
		Fetcher:     &mapFetcher{pages: pages},
		Extractor:   &extract.RawExtractor{},
		Oracle:      oracle,
		Writer:      storage.NewFileWriter(t.TempDir(), testLogger),
		OracleDelay: delay,
	}, testLogger)

	items := []types.LinkItem{{URL: "https://a.example/1"}, {URL: "https://a.example/2"}, {URL: "https://a.example/3"}}
	_, err := r.Run(context.Background(), items, RunOptions{Output: "out.json", Mode: storage.ModeAppend})
	require.NoError(t, err)

	require.Len(t, starts, 3)
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(ends[i-1]), delay-5*time.Millisecond, "gap before call %d", i+1)
	}
}

func TestBuildPrompt(t *testing.T) {
	assert.Equal(t, "P and make sure to close JSON syntax with }]}, C", BuildPrompt("P", "C", true))
	assert.Equal(t, "P, C", BuildPrompt("P", "C", false))
}

func TestDiscover(t *testing.T) {
	oracle := &scriptedOracle{respond: func(n int, req ai.Request) ([]string, error) {
		if n == 1 {
			return []string{"https://a.example/p1\n", "\nhttps://a.example/p2\n"}, nil
		}
		return []string{fmt.Sprintf("D%d|", n-1)}, nil
	}}
	h := newHarness(t, map[string]string{
		"https://a.example/s?k=monitor": `<a href="/p1">one</a><a href="/p2">two</a>`,
		"https://a.example/p1":          "first product",
		"https://a.example/p2":          "second product",
	}, oracle, nil)

	sum, err := h.runner.Discover(context.Background(), DiscoverOptions{
		BaseURL: "https://a.example/s?k=",
		Query:   "monitor",
		Fields:  "Title,Price",
		Output:  "ProductData.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Count(types.StatePersisted))

	assert.Equal(t, "https://a.example/p1\n\nhttps://a.example/p2\n", h.read(t, "a.example", LinksFile))
	assert.Equal(t, "D1|D2|", h.read(t, "a.example", "ProductData.txt"))

	require.Len(t, h.oracle.requests, 3)
	assert.True(t, strings.HasPrefix(h.oracle.requests[0].Prompt, IndexPagePrompt+", <a href"))
	assert.Contains(t, h.oracle.requests[1].Prompt, "Title,Price")
	assert.True(t, strings.HasSuffix(h.oracle.requests[1].Prompt, ", first product"))
	assert.Contains(t, h.oracle.requests[0].SystemInstruction, "a.example")
}

func TestDiscoverWithNoLinks(t *testing.T) {
	oracle := &scriptedOracle{respond: func(int, ai.Request) ([]string, error) { return []string{"\n"}, nil }}
	h := newHarness(t, map[string]string{"https://a.example/": "<html></html>"}, oracle, nil)

	sum, err := h.runner.Discover(context.Background(), DiscoverOptions{BaseURL: "https://a.example/", Output: "out.txt"})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Total)
	assert.Len(t, h.oracle.requests, 1)

	_, err = h.runner.Discover(context.Background(), DiscoverOptions{BaseURL: "nope"})
	var cerr *types.ConfigError
	assert.ErrorAs(t, err, &cerr)
}
