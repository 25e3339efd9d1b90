package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/scrapeoracle/internal/config"
	"github.com/IshaanNene/scrapeoracle/internal/links"
	"github.com/IshaanNene/scrapeoracle/internal/pipeline"
	"github.com/IshaanNene/scrapeoracle/internal/storage"
)

// extractCmd creates the "extract" subcommand.
func extractCmd() *cobra.Command {
	var rf runFlags
	cmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "Extract structured data from a single page",
		Long: `Fetch one page, extract its text and ask the model for structured data.
The response replaces <output-dir>/<domain>/<output>.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWith(cmd, rf, nil, func(ctx context.Context, a *app) (pipeline.Summary, error) {
				return a.runner.Run(ctx, links.Single(args[0]), a.runOptions(rf.prompt, storage.ModeReplace))
			})
		},
	}
	addRunFlags(cmd, &rf, true)
	return cmd
}

// scrapeCmd creates the "scrape" subcommand.
func scrapeCmd() *cobra.Command {
	var rf runFlags
	var file string
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Extract structured data from every link in a file",
		Long: `Process every link of a JSON records file (field by field, in order of first
appearance) or a text file with one URL per line. Responses are appended to
<output-dir>/<domain>/<output>; use --truncate to start each file fresh.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := links.Load(file)
			if err != nil {
				return err
			}
			return runWith(cmd, rf, nil, func(ctx context.Context, a *app) (pipeline.Summary, error) {
				return a.runner.Run(ctx, items, a.runOptions(rf.prompt, storage.ModeAppend))
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON or text file with target links")
	_ = cmd.MarkFlagRequired("file")
	addRunFlags(cmd, &rf, true)
	return cmd
}

// discoverCmd creates the "discover" subcommand.
func discoverCmd() *cobra.Command {
	var rf runFlags
	var query, fields string
	cmd := &cobra.Command{
		Use:   "discover <base-url>",
		Short: "Find product links on a listing page and scrape each of them",
		Long: `Fetch <base-url><query>, ask the model for the product links on it and save
them to <domain>/links.txt. Every link is then fetched and parsed for the
fields named by --data, appending to <domain>/<output>.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plainText := func(cfg *config.Config) { cfg.AI.ResponseMIMEType = "text/plain" }
			return runWith(cmd, rf, plainText, func(ctx context.Context, a *app) (pipeline.Summary, error) {
				return a.runner.Discover(ctx, pipeline.DiscoverOptions{
					BaseURL:   args[0],
					Query:     query,
					Fields:    fields,
					Output:    a.cfg.Storage.Output,
					KeepPages: a.cfg.Pipeline.KeepPages,
					Truncate:  a.cfg.Pipeline.Truncate,
					OnChunk:   a.echo,
				})
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "monitor", "query appended to the base URL")
	cmd.Flags().StringVarP(&fields, "data", "d", "Title,Price", "data fields to parse from each product page")
	addRunFlags(cmd, &rf, false)
	return cmd
}
