package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/scrapeoracle/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestDomainScope(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://a.example/p1", "a.example"},
		{"https://A.Example/p2?q=1#frag", "a.example"},
		{"http://a.example:8080/", "a.example_8080"},
		{"https://shop.a.example/x", "shop.a.example"},
	}
	for _, tt := range tests {
		got, err := DomainScope(tt.url)
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, got, tt.url)
	}

	for _, bad := range []string{"not-a-url", "", "/relative/path", "http://../x", "://broken", "1234"} {
		_, err := DomainScope(bad)
		assert.ErrorIs(t, err, types.ErrInvalidURL, bad)
	}
}

func TestSameHostSameScope(t *testing.T) {
	a, err := DomainScope("https://a.example/p1")
	require.NoError(t, err)
	b, err := DomainScope("https://a.example/deep/p2?ref=home")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEnsureDirIsIdempotent(t *testing.T) {
	root := t.TempDir()
	w := NewFileWriter(root, testLogger)

	require.NoError(t, w.EnsureDir("a.example"))
	require.NoError(t, w.EnsureDir("a.example"))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsDir())

	inner, err := os.ReadDir(filepath.Join(root, "a.example"))
	require.NoError(t, err)
	assert.Empty(t, inner)
}

func TestWriteAppendPreservesOrder(t *testing.T) {
	w := NewFileWriter(t.TempDir(), testLogger)
	path := w.ArtifactPath("a.example", "ProductData.json")

	require.NoError(t, w.Write(path, "old", ModeReplace))
	require.NoError(t, w.Write(path, "[1]", ModeAppend))
	require.NoError(t, w.Write(path, "[2]", ModeAppend))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old[1][2]", string(got))
}

func TestWriteReplaceTruncates(t *testing.T) {
	w := NewFileWriter(t.TempDir(), testLogger)
	path := w.ArtifactPath("a.example", "pages", "data0.txt")

	require.NoError(t, w.Write(path, "a much longer first body", ModeReplace))
	require.NoError(t, w.Write(path, "short", ModeReplace))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "short", string(got))
}

func TestWriteFailureIsStorageError(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "a.example")
	require.NoError(t, os.WriteFile(blocker, []byte("file, not dir"), 0o644))

	w := NewFileWriter(root, testLogger)
	err := w.Write(w.ArtifactPath("a.example", "out.json"), "x", ModeAppend)

	var serr *types.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "file", serr.Backend)

	assert.ErrorAs(t, w.EnsureDir("a.example"), &serr)
}

type recordingSink struct {
	name   string
	err    error
	stored []*Artifact
	closed bool
}

func (s *recordingSink) Store(_ context.Context, a *Artifact) error {
	s.stored = append(s.stored, a)
	return s.err
}
func (s *recordingSink) Close() error { s.closed = true; return nil }
func (s *recordingSink) Name() string { return s.name }

func TestMultiSinkFansOut(t *testing.T) {
	failing := &recordingSink{name: "down", err: errors.New("connection reset")}
	ok := &recordingSink{name: "ok"}
	multi := NewMultiSink([]Sink{failing, ok}, testLogger)
	assert.Equal(t, 2, multi.Len())

	a := &Artifact{URL: "https://a.example/p1", Content: "[]"}
	err := multi.Store(context.Background(), a)
	assert.ErrorContains(t, err, "connection reset")
	assert.Len(t, ok.stored, 1, "a failing sink does not starve the others")

	require.NoError(t, multi.Close())
	assert.True(t, failing.closed)
	assert.True(t, ok.closed)

	var none *MultiSink
	assert.NoError(t, none.Store(context.Background(), a))
	assert.Zero(t, none.Len())
}

func TestArtifactDocument(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := artifactDocument(&Artifact{
		RunID:     "run-1",
		Index:     2,
		Field:     "links",
		URL:       "https://a.example/p2",
		Scope:     "a.example",
		Path:      "out/a.example/ProductData.json",
		Mode:      ModeAppend,
		Content:   `{"products":[]}`,
		Timestamp: ts,
	})

	assert.Equal(t, "run-1", doc["run_id"])
	assert.Equal(t, "a.example", doc["domain"])
	assert.Equal(t, "append", doc["mode"])
	assert.Equal(t, "links", doc["field"])
	assert.Equal(t, ts, doc["timestamp"])

	doc = artifactDocument(&Artifact{})
	_, hasField := doc["field"]
	assert.False(t, hasField)
}
