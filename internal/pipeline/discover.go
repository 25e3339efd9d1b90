package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IshaanNene/scrapeoracle/internal/extract"
	"github.com/IshaanNene/scrapeoracle/internal/links"
	"github.com/IshaanNene/scrapeoracle/internal/storage"
	"github.com/IshaanNene/scrapeoracle/internal/types"
)

// LinksFile is where discover mode keeps the links found on the index page.
const LinksFile = "links.txt"

// IndexPagePrompt asks the model for the product links on a listing page.
const IndexPagePrompt = `- Extract and list all product URLs from the uploaded webpage.
- Ensure that only full product links are included, excluding any unrelated data.
- Clean the links to remove unnecessary parameters or tracking information,
  retaining only the essential parts of the URLs.
- In the response give only the links, one per line.
  Example: https://www.example.com/../link
- Do not give any kind of explanation.`

// DataParsePrompt asks the model for the named fields of one product page.
func DataParsePrompt(fields string) string {
	return fmt.Sprintf(`- Parse the provided content and extract the following data:
  %[1]s.
- Ensure the output is well-structured and formatted like this:
  No: <Serial Number>   Title: Value1   Price: Value2 or any other field named above ...
- Exclude any irrelevant information, boilerplate content, or page navigation data.
- Handle edge cases gracefully where data fields (e.g., %[1]s) may be missing.
- Do not include any explanations, metadata, or commentary in the response.`, fields)
}

// DiscoverSystemInstruction frames both discover stages for the model.
func DiscoverSystemInstruction(fields, scope string, now time.Time) string {
	return fmt.Sprintf(`- You are an expert web scraping assistant extracting structured data from raw web pages.
- Parse the data fields %[1]s with exceptional precision and output them in a clean, consistent format.
- Extract clean, fully-formed product URLs, omitting tracking or session parameters, and
  reconstruct relative links against the base URL.
- Start the output with a header:
  Data Extracted from %[2]s
  Date: %[3]s
  ----------------------------------------------------
- When parsing links, give only the links.
- Do not provide explanations, comments or code fences; the output is saved to a file as is.`,
		fields, scope, now.Format("06-01-02"))
}

// DiscoverOptions controls a discover run.
type DiscoverOptions struct {
	BaseURL string
	Query   string

	// Fields names the data to extract from each product page, e.g. "Title,Price".
	Fields string
	Output string
	Model  string

	KeepPages bool
	Truncate  bool
	OnChunk   func(string)
}

// Discover fetches BaseURL+Query, asks the model for the product links on
// it, stores them in <scope>/links.txt and then runs every link through the
// data-parse prompt, appending to <scope>/<Output>.
func (r *Runner) Discover(ctx context.Context, opts DiscoverOptions) (Summary, error) {
	indexURL := opts.BaseURL + opts.Query
	scope, err := storage.DomainScope(indexURL)
	if err != nil {
		return Summary{}, &types.ConfigError{Field: "base-url", Err: err}
	}
	system := DiscoverSystemInstruction(opts.Fields, scope, time.Now())

	total, err := r.Run(ctx, links.Single(indexURL), RunOptions{
		Prompt:            IndexPagePrompt,
		SystemInstruction: system,
		Model:             opts.Model,
		Output:            LinksFile,
		Mode:              storage.ModeReplace,
		PlainPrompt:       true,
		Extractor:         &extract.RawExtractor{},
		OnChunk:           opts.OnChunk,
	})
	if err != nil {
		return total, err
	}
	if total.Count(types.StatePersisted) == 0 {
		r.logger.Warn("index page produced no links", "url", indexURL)
		return total, nil
	}

	items, err := links.Load(r.deps.Writer.ArtifactPath(scope, LinksFile))
	if errors.Is(err, links.ErrNoLinks) {
		r.logger.Warn("index page produced no links", "url", indexURL)
		return total, nil
	}
	if err != nil {
		return total, err
	}
	r.logger.Info("links discovered", "count", len(items), "scope", scope)

	sum, err := r.Run(ctx, items, RunOptions{
		Prompt:            DataParsePrompt(opts.Fields),
		SystemInstruction: system,
		Model:             opts.Model,
		Output:            opts.Output,
		Mode:              storage.ModeAppend,
		Truncate:          opts.Truncate,
		KeepPages:         opts.KeepPages,
		PlainPrompt:       true,
		OnChunk:           opts.OnChunk,
	})
	total.Merge(sum)
	return total, err
}
