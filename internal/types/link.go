package types

import "fmt"

// LinkItem is one unit of work: a URL to fetch, extract and persist.
type LinkItem struct {
	// Index is the position of the link within its source field. It orders log
	// output and names intermediate files.
	Index int

	// URL is the raw target, not yet validated.
	URL string

	// Field is the link-collection field the URL came from, empty for single URLs
	// and text files.
	Field string
}

func (l LinkItem) String() string {
	if l.Field != "" {
		return fmt.Sprintf("[%s/%d] %s", l.Field, l.Index, l.URL)
	}
	return fmt.Sprintf("[%d] %s", l.Index, l.URL)
}

// ItemState is the terminal state reached by a LinkItem.
type ItemState string

const (
	StateSkipped       ItemState = "skipped"
	StateFetchFailed   ItemState = "fetch_failed"
	StateExtractFailed ItemState = "extract_failed"
	StateOracleFailed  ItemState = "oracle_failed"
	StatePersisted     ItemState = "persisted"
)
