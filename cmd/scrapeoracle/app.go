package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/scrapeoracle/internal/ai"
	"github.com/IshaanNene/scrapeoracle/internal/config"
	"github.com/IshaanNene/scrapeoracle/internal/extract"
	"github.com/IshaanNene/scrapeoracle/internal/fetcher"
	"github.com/IshaanNene/scrapeoracle/internal/logging"
	"github.com/IshaanNene/scrapeoracle/internal/observability"
	"github.com/IshaanNene/scrapeoracle/internal/pipeline"
	"github.com/IshaanNene/scrapeoracle/internal/storage"
	"github.com/IshaanNene/scrapeoracle/internal/types"
)

const defaultPrompt = "Extract product links from webpage"

// defaultModels is used when --llm switches provider but the model still
// names the gemini default.
var defaultModels = map[string]string{
	"ollama": "llama3.2",
	"openai": "gpt-4o-mini",
}

// runFlags are the per-command flags shared by extract, scrape and discover.
type runFlags struct {
	prompt     string
	output     string
	model      string
	maxRetries int
	retryDelay time.Duration
}

func addRunFlags(cmd *cobra.Command, rf *runFlags, withPrompt bool) {
	if withPrompt {
		cmd.Flags().StringVarP(&rf.prompt, "prompt", "p", defaultPrompt, "prompt for the model")
	}
	cmd.Flags().StringVarP(&rf.output, "output", "o", "", "output file name inside each domain folder (default from config)")
	cmd.Flags().StringVarP(&rf.model, "model", "m", "", "model name (default from config)")
	cmd.Flags().IntVar(&rf.maxRetries, "max-retries", 0, "maximum fetch attempts per page (default from config)")
	cmd.Flags().DurationVar(&rf.retryDelay, "retry-delay", 0, "delay between fetch attempts, e.g. 5s (default from config)")
}

// loadConfig reads the config file and environment, then applies CLI flags.
func loadConfig(cmd *cobra.Command, rf runFlags) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, &types.ConfigError{Field: "config", Err: err}
	}
	applyCLIOverrides(cmd, cfg, rf)
	if err := config.Validate(cfg); err != nil {
		return nil, &types.ConfigError{Field: "config", Err: err}
	}
	return cfg, nil
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config, rf runFlags) {
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if noProxy {
		cfg.Proxy.Enabled = false
	}
	if metricsFile != "" {
		cfg.Metrics.File = metricsFile
	}
	if llmProvider != "" && llmProvider != cfg.AI.Provider {
		cfg.AI.Provider = llmProvider
		if m, ok := defaultModels[llmProvider]; ok && cfg.AI.Model == config.DefaultConfig().AI.Model {
			cfg.AI.Model = m
		}
	}
	if outputDir != "" {
		cfg.Storage.OutputDir = outputDir
	}
	if keepPages {
		cfg.Pipeline.KeepPages = true
	}
	if truncate {
		cfg.Pipeline.Truncate = true
	}
	if render {
		cfg.Fetcher.Type = "browser"
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Storage.Output = rf.output
	}
	if flags.Changed("model") {
		cfg.AI.Model = rf.model
	}
	if flags.Changed("max-retries") {
		cfg.Fetcher.MaxRetries = rf.maxRetries
	}
	if flags.Changed("retry-delay") {
		cfg.Fetcher.RetryDelay = rf.retryDelay
	}
}

// app holds the components of one command invocation.
type app struct {
	cfg     *config.Config
	fetcher *fetcher.Fetcher
	mirror  storage.Sink
	metrics *observability.Metrics
	runner  *pipeline.Runner
	out     io.Writer
	logger  *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) (*app, error) {
	apiKey, err := config.APIKey(cfg.AI.Provider)
	if err != nil {
		return nil, err
	}
	oracle, err := ai.NewOracle(&cfg.AI, apiKey, logger)
	if err != nil {
		return nil, &types.ConfigError{Field: "ai.provider", Err: err}
	}
	ex, err := extract.New(&cfg.Extract, logger)
	if err != nil {
		return nil, &types.ConfigError{Field: "extract.mode", Err: err}
	}

	metrics := observability.NewMetrics(logger)

	pool := fetcher.BuildProxyPool(ctx, &cfg.Proxy, &http.Client{Timeout: cfg.Proxy.Timeout}, logger)
	logger.Info("proxy pool ready", "proxies", pool.Len())

	transport, err := fetcher.NewTransport(cfg, logger)
	if err != nil {
		return nil, &types.ConfigError{Field: "fetcher.type", Err: err}
	}
	opts := fetcher.Options{
		MaxRetries: cfg.Fetcher.MaxRetries,
		RetryDelay: cfg.Fetcher.RetryDelay,
		UserAgents: cfg.Fetcher.UserAgents,
		Metrics:    metrics,
	}
	if cfg.Fetcher.Seed != 0 {
		opts.Rand = rand.New(rand.NewSource(cfg.Fetcher.Seed))
	}
	f := fetcher.New(transport, pool, opts, logger)

	var mirror storage.Sink
	if cfg.Storage.Mongo.URI != "" {
		sink, err := storage.NewMongoSink(ctx, &cfg.Storage.Mongo, logger)
		if err != nil {
			logger.Warn("mongodb mirror disabled", "error", err)
		} else {
			mirror = storage.NewMultiSink([]storage.Sink{sink}, logger)
		}
	}

	runner := pipeline.New(pipeline.Deps{
		Fetcher:     f,
		Extractor:   ex,
		Oracle:      oracle,
		Writer:      storage.NewFileWriter(cfg.Storage.OutputDir, logger),
		Mirror:      mirror,
		OracleDelay: cfg.Pipeline.OracleDelay,
		Metrics:     metrics,
	}, logger)

	return &app{
		cfg:     cfg,
		fetcher: f,
		mirror:  mirror,
		metrics: metrics,
		runner:  runner,
		out:     out,
		logger:  logger,
	}, nil
}

// echo prints streamed model output as it arrives.
func (a *app) echo(chunk string) {
	fmt.Fprint(a.out, chunk)
}

func (a *app) runOptions(prompt string, mode storage.WriteMode) pipeline.RunOptions {
	return pipeline.RunOptions{
		Prompt:    prompt,
		Output:    a.cfg.Storage.Output,
		Mode:      mode,
		Truncate:  a.cfg.Pipeline.Truncate,
		KeepPages: a.cfg.Pipeline.KeepPages,
		OnChunk:   a.echo,
	}
}

func (a *app) Close() {
	if err := a.fetcher.Close(); err != nil {
		a.logger.Warn("fetcher close failed", "error", err)
	}
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.logger.Warn("mirror close failed", "error", err)
		}
	}
	if err := a.metrics.WriteFile(a.cfg.Metrics.File); err != nil {
		a.logger.Warn("metrics not written", "error", err)
	}
}

// runWith loads the configuration, builds the app and runs fn under a context
// cancelled by SIGINT/SIGTERM. prepare, when set, adjusts the config first.
func runWith(cmd *cobra.Command, rf runFlags, prepare func(*config.Config), fn func(context.Context, *app) (pipeline.Summary, error)) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfig(cmd, rf)
	if err != nil {
		return err
	}
	if prepare != nil {
		prepare(cfg)
	}
	logger := setupLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, cmd.OutOrStdout(), logger)
	if err != nil {
		logger.Error("setup failed", "error", err)
		return err
	}
	defer a.Close()

	logger.Info("starting run",
		"run_id", a.runner.RunID(),
		"provider", cfg.AI.Provider,
		"model", cfg.AI.Model,
		"fetcher", cfg.Fetcher.Type,
		"output_dir", cfg.Storage.OutputDir,
	)

	start := time.Now()
	sum, err := fn(ctx, a)
	printSummary(cmd.OutOrStdout(), sum, time.Since(start), cfg, err)

	if pipeline.IsInterrupted(err) {
		logging.Failure(logger, "interrupted, stopping")
	}
	return err
}

func printSummary(w io.Writer, sum pipeline.Summary, elapsed time.Duration, cfg *config.Config, err error) {
	switch {
	case pipeline.IsInterrupted(err):
		fmt.Fprintf(w, "\n⚠️  Interrupted after %s\n", elapsed.Round(time.Millisecond))
	case err != nil:
		fmt.Fprintf(w, "\n❌ Run failed after %s\n", elapsed.Round(time.Millisecond))
	default:
		fmt.Fprintf(w, "\n✅ Run complete in %s\n", elapsed.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "   Items:     %d total, %d saved\n", sum.Total, sum.Count(types.StatePersisted))
	fmt.Fprintf(w, "   Missed:    %d invalid, %d not fetched, %d empty, %d model errors\n",
		sum.Count(types.StateSkipped),
		sum.Count(types.StateFetchFailed),
		sum.Count(types.StateExtractFailed),
		sum.Count(types.StateOracleFailed),
	)
	fmt.Fprintf(w, "   Output:    %s\n", filepath.Join(cfg.Storage.OutputDir, "<domain>", cfg.Storage.Output))
}
