package storage

import (
	"context"
	"log/slog"
	"time"
)

// WriteMode selects how an artifact meets existing content at its path.
type WriteMode int

const (
	// ModeReplace truncates the file before writing.
	ModeReplace WriteMode = iota
	// ModeAppend adds to the end of the file.
	ModeAppend
)

func (m WriteMode) String() string {
	if m == ModeAppend {
		return "append"
	}
	return "replace"
}

// Artifact is one persisted model response together with its provenance.
type Artifact struct {
	RunID     string
	Index     int
	Field     string
	URL       string
	Scope     string
	Path      string
	Mode      WriteMode
	Content   string
	Timestamp time.Time
}

// Sink mirrors artifacts to a secondary backend. Mirror failures never
// abort a run.
type Sink interface {
	// Store persists one artifact.
	Store(ctx context.Context, a *Artifact) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the sink identifier.
	Name() string
}

// MultiSink fans artifacts out to several sinks.
type MultiSink struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMultiSink creates a sink that writes to every backend in sinks.
func NewMultiSink(sinks []Sink, logger *slog.Logger) *MultiSink {
	return &MultiSink{
		sinks:  sinks,
		logger: logger.With("component", "multi_sink"),
	}
}

func (s *MultiSink) Name() string { return "multi" }

// Len reports how many sinks are attached.
func (s *MultiSink) Len() int {
	if s == nil {
		return 0
	}
	return len(s.sinks)
}

func (s *MultiSink) Store(ctx context.Context, a *Artifact) error {
	if s == nil {
		return nil
	}
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Store(ctx, a); err != nil {
			s.logger.Error("mirror store failed", "sink", sink.Name(), "url", a.URL, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *MultiSink) Close() error {
	if s == nil {
		return nil
	}
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
