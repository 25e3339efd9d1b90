// Package pipeline drives link items through fetch, extraction, generation
// and persistence, one item at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/IshaanNene/scrapeoracle/internal/ai"
	"github.com/IshaanNene/scrapeoracle/internal/extract"
	"github.com/IshaanNene/scrapeoracle/internal/logging"
	"github.com/IshaanNene/scrapeoracle/internal/observability"
	"github.com/IshaanNene/scrapeoracle/internal/storage"
	"github.com/IshaanNene/scrapeoracle/internal/types"
)

// ClosingInstruction is appended to every structured-data prompt.
const ClosingInstruction = "and make sure to close JSON syntax with }]}"

// Fetcher returns a page body or an error wrapping types.ErrNoContent.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Writer persists artifacts below per-domain directories.
type Writer interface {
	EnsureDir(scope string) error
	ArtifactPath(scope string, name ...string) string
	Write(path, content string, mode storage.WriteMode) error
}

// Deps are the collaborators a Runner drives.
type Deps struct {
	Fetcher   Fetcher
	Extractor extract.Extractor
	Oracle    ai.Oracle
	Writer    Writer

	// Mirror receives every persisted artifact. Optional.
	Mirror storage.Sink

	// OracleDelay is the pause between the end of one oracle call and the
	// start of the next. Zero disables throttling.
	OracleDelay time.Duration

	Metrics *observability.Metrics

	// RunID tags artifacts and log lines. Generated when empty.
	RunID string
}

// RunOptions controls a single Run.
type RunOptions struct {
	Prompt            string
	SystemInstruction string
	Model             string

	// Output is the artifact file name inside each domain directory.
	Output string
	Mode   storage.WriteMode

	// Truncate replaces each output file on its first write in this run and
	// appends afterwards.
	Truncate bool

	// KeepPages also writes the extracted text to pages/data<Index>.txt.
	KeepPages bool

	// PlainPrompt sends "<prompt>, <content>" without the JSON closing instruction.
	PlainPrompt bool

	// Extractor overrides the runner's extractor for this run.
	Extractor extract.Extractor

	// OnChunk observes generated text as it streams.
	OnChunk func(string)
}

// Runner executes the per-item state machine.
type Runner struct {
	deps    Deps
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Runner.
func New(deps Deps, logger *slog.Logger) *Runner {
	if deps.RunID == "" {
		deps.RunID = uuid.NewString()
	}

	return &Runner{
		deps:    deps,
		limiter: newThrottle(deps.OracleDelay),
		logger:  logger.With("component", "runner", "run_id", deps.RunID),
	}
}

// newThrottle returns a limiter holding one token, so the first oracle call
// does not wait.
func newThrottle(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// oracleDone restarts the throttle from now: the next Wait returns once
// OracleDelay has passed since the call that just ended.
func (r *Runner) oracleDone() {
	if r.deps.OracleDelay <= 0 {
		return
	}
	r.limiter = newThrottle(r.deps.OracleDelay)
	r.limiter.Allow()
}

// RunID returns the identifier attached to this runner's artifacts.
func (r *Runner) RunID() string { return r.deps.RunID }

// Run processes items in order. Per-item failures are logged and counted;
// the run only stops early on a persistence failure (a *types.StorageError)
// or when ctx is cancelled (an error wrapping types.ErrInterrupted).
func (r *Runner) Run(ctx context.Context, items []types.LinkItem, opts RunOptions) (Summary, error) {
	sum := newSummary()
	written := make(map[string]bool)

	r.logger.Info("run started", "items", len(items), "output", opts.Output, "mode", opts.Mode)
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return sum, interrupted(err)
		}

		state, err := r.process(ctx, item, opts, written)
		if err != nil {
			if ctx.Err() != nil {
				return sum, interrupted(ctx.Err())
			}
			r.logger.Error("run aborted", "item", item.String(), "error", err)
			return sum, err
		}
		sum.add(state)
		r.deps.Metrics.Item(string(state))
	}

	r.logger.Info("run finished", sum.logArgs()...)
	return sum, nil
}

func interrupted(cause error) error {
	return fmt.Errorf("%w: %w", types.ErrInterrupted, cause)
}

func (r *Runner) process(ctx context.Context, item types.LinkItem, opts RunOptions, written map[string]bool) (types.ItemState, error) {
	log := r.logger.With("item", item.String())

	scope, err := storage.DomainScope(item.URL)
	if err != nil {
		log.Warn("invalid URL, skipping", "error", err)
		return types.StateSkipped, nil
	}
	if err := r.deps.Writer.EnsureDir(scope); err != nil {
		return "", err
	}

	body, err := r.deps.Fetcher.Fetch(ctx, item.URL)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logging.Failure(log, "failed to fetch content, skipping", "error", err)
		return types.StateFetchFailed, nil
	}

	extractor := r.deps.Extractor
	if opts.Extractor != nil {
		extractor = opts.Extractor
	}
	text, err := extractor.Extract(item.URL, body)
	if err == nil && text == "" {
		err = types.ErrEmptyExtraction
	}
	if err != nil {
		logging.Failure(log, "no extractable text, skipping", "extractor", extractor.Name(), "error", err)
		return types.StateExtractFailed, nil
	}
	log.Debug("content extracted", "chars", len(text))

	if opts.KeepPages {
		if err := r.deps.Writer.Write(r.pagePath(scope, item), text, storage.ModeReplace); err != nil {
			return "", err
		}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req := ai.Request{
		Prompt:            BuildPrompt(opts.Prompt, text, !opts.PlainPrompt),
		SystemInstruction: opts.SystemInstruction,
		Model:             opts.Model,
	}
	log.Info("generating", "provider", r.deps.Oracle.Provider())
	response, err := ai.Collect(r.deps.Oracle.Stream(ctx, req), func(chunk string) {
		r.deps.Metrics.OracleChunk()
		if opts.OnChunk != nil {
			opts.OnChunk(chunk)
		}
	})
	r.oracleDone()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Error("error in oracle, skipping", "error", err)
		return types.StateOracleFailed, nil
	}

	path := r.deps.Writer.ArtifactPath(scope, opts.Output)
	mode := opts.Mode
	if opts.Truncate && !written[path] {
		mode = storage.ModeReplace
	}
	if err := r.deps.Writer.Write(path, response, mode); err != nil {
		return "", err
	}
	written[path] = true
	r.deps.Metrics.Persisted(len(response))
	logging.Success(log, "response saved", "path", path, "mode", mode, "bytes", len(response))

	if r.deps.Mirror != nil {
		artifact := &storage.Artifact{
			RunID:     r.deps.RunID,
			Index:     item.Index,
			Field:     item.Field,
			URL:       item.URL,
			Scope:     scope,
			Path:      path,
			Mode:      mode,
			Content:   response,
			Timestamp: time.Now().UTC(),
		}
		if err := r.deps.Mirror.Store(ctx, artifact); err != nil {
			log.Warn("mirror failed", "sink", r.deps.Mirror.Name(), "error", err)
		}
	}
	return types.StatePersisted, nil
}

func (r *Runner) pagePath(scope string, item types.LinkItem) string {
	name := fmt.Sprintf("data%d.txt", item.Index)
	if item.Field != "" {
		return r.deps.Writer.ArtifactPath(scope, "pages", item.Field, name)
	}
	return r.deps.Writer.ArtifactPath(scope, "pages", name)
}

// BuildPrompt joins the user prompt and the page content. With closing set,
// the JSON closing instruction sits between them.
func BuildPrompt(prompt, content string, closing bool) string {
	if closing {
		return fmt.Sprintf("%s %s, %s", prompt, ClosingInstruction, content)
	}
	return fmt.Sprintf("%s, %s", prompt, content)
}

// IsInterrupted reports whether err ended a run because of cancellation.
func IsInterrupted(err error) bool {
	return errors.Is(err, types.ErrInterrupted)
}
