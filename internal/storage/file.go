// Package storage persists model responses under per-domain directories and
// optionally mirrors them to MongoDB.
package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/IshaanNene/scrapeoracle/internal/types"
)

// DomainScope maps a URL to the directory name its artifacts live under: the
// lower-cased host, with the port kept and ":" replaced by "_". Every URL of
// one host shares a scope regardless of path or query.
func DomainScope(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", types.ErrInvalidURL, rawURL, err)
	}

	scope := strings.ReplaceAll(strings.ToLower(u.Host), ":", "_")
	if scope == "" || scope == "." || scope == ".." || strings.ContainsAny(scope, `/\`) {
		return "", fmt.Errorf("%w: %q has no usable host", types.ErrInvalidURL, rawURL)
	}
	return scope, nil
}

// FileWriter writes artifacts below a root directory.
type FileWriter struct {
	root   string
	logger *slog.Logger
}

// NewFileWriter creates a writer rooted at dir.
func NewFileWriter(dir string, logger *slog.Logger) *FileWriter {
	if dir == "" {
		dir = "."
	}
	return &FileWriter{
		root:   dir,
		logger: logger.With("component", "file_writer"),
	}
}

func (w *FileWriter) Name() string { return "file" }

// Root returns the directory artifacts are written under.
func (w *FileWriter) Root() string { return w.root }

// EnsureDir creates the scope directory if it does not exist. Calling it
// again for the same scope is a no-op.
func (w *FileWriter) EnsureDir(scope string) error {
	dir := filepath.Join(w.root, scope)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &types.StorageError{Backend: w.Name(), Path: dir, Err: err}
	}
	return nil
}

// ArtifactPath joins name under the scope directory.
func (w *FileWriter) ArtifactPath(scope string, name ...string) string {
	return filepath.Join(append([]string{w.root, scope}, name...)...)
}

// Write stores content at path in a single write call, creating parent
// directories as needed.
func (w *FileWriter) Write(path, content string, mode WriteMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &types.StorageError{Backend: w.Name(), Path: path, Err: err}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if mode == ModeAppend {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return &types.StorageError{Backend: w.Name(), Path: path, Err: err}
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return &types.StorageError{Backend: w.Name(), Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &types.StorageError{Backend: w.Name(), Path: path, Err: err}
	}

	w.logger.Debug("artifact written", "path", path, "mode", mode, "bytes", len(content))
	return nil
}
