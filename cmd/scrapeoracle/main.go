package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/IshaanNene/scrapeoracle/internal/config"
	"github.com/IshaanNene/scrapeoracle/internal/logging"
)

var (
	cfgFile     string
	verbose     bool
	noProxy     bool
	metricsFile string
	llmProvider string
	outputDir   string
	keepPages   bool
	truncate    bool
	render      bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scrapeoracle",
		Short: "ScrapeOracle: fetch pages through rotating proxies and extract structured data with an LLM",
		Long: `ScrapeOracle fetches web pages through a pool of free HTTP proxies with
rotating user agents, extracts the readable text and streams it through a
generative model that returns structured data. Responses are saved under a
directory named after each page's host.

Modes:
  extract <url>          one page, output replaced
  scrape -f links.json   every link in a file, output appended
  discover <base-url>    find product links on a listing page, then scrape them

Credentials:
  GEMINI_API_KEY  for --llm gemini (default)
  OPENAI_API_KEY  for --llm openai`,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file path")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&noProxy, "no-proxy", false, "skip the proxy provider and fetch directly")
	pf.StringVar(&metricsFile, "metrics-file", "", "write prometheus counters to this file when the run ends")
	pf.StringVar(&llmProvider, "llm", "", "LLM provider: gemini, ollama, openai (default from config)")
	pf.StringVar(&outputDir, "output-dir", "", "directory the per-domain folders are created in")
	pf.BoolVar(&keepPages, "keep-pages", false, "also save extracted page text to <domain>/pages/")
	pf.BoolVar(&truncate, "truncate", false, "replace output files on their first write in this run instead of appending")
	pf.BoolVar(&render, "render", false, "fetch pages with a headless browser")

	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(discoverCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	return rootCmd
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ScrapeOracle %s\n", config.Version)
		},
	}
}

// configCmd prints the effective configuration as YAML.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, runFlags{})
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return enc.Close()
		},
	}
}

// setupLogger creates the structured logger described by cfg.Logging.
func setupLogger(cfg *config.Config) *slog.Logger {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	return logging.New(os.Stderr, cfg.Logging.Format, level)
}
