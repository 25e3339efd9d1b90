// Package links turns the run input (a single URL, a JSON records file or a
// plain link list) into an ordered sequence of link items.
package links

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/IshaanNene/scrapeoracle/internal/types"
)

// ErrNoLinks is returned when a link file holds no entries.
var ErrNoLinks = errors.New("link collection is empty")

// Single wraps one URL as a sequence of length one.
func Single(rawURL string) []types.LinkItem {
	return []types.LinkItem{{Index: 0, URL: strings.TrimSpace(rawURL)}}
}

// Load reads a link collection from path. Files ending in .json are parsed as
// records (see ParseJSON); anything else is read as one URL per line.
func Load(path string) ([]types.LinkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.ConfigError{Field: "file", Err: err}
	}

	var items []types.LinkItem
	if strings.EqualFold(filepath.Ext(path), ".json") {
		items, err = ParseJSON(bytes.NewReader(data))
	} else {
		items, err = ParseText(bytes.NewReader(data))
	}
	if err != nil {
		return nil, &types.ConfigError{Field: "file", Err: fmt.Errorf("%s: %w", path, err)}
	}
	if len(items) == 0 {
		return nil, &types.ConfigError{Field: "file", Err: fmt.Errorf("%s: %w", path, ErrNoLinks)}
	}
	return items, nil
}

// ParseText reads one URL per line, skipping blank lines. Index is the
// position among the non-blank lines.
func ParseText(r io.Reader) ([]types.LinkItem, error) {
	var items []types.LinkItem
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		items = append(items, types.LinkItem{Index: len(items), URL: line})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read links: %w", err)
	}
	return items, nil
}

// ParseJSON walks a link collection field by field. The input is either an
// array of records ([{"a": url, "b": url}, ...]), a flat array of URLs
// (["url", ...], read as one unnamed field) or an object of columns
// ({"a": [url, ...], "b": [url, ...]}).
//
// Fields are visited in order of first appearance, and within a field the
// records in file order; Index is the record position. Records without the
// field (or with null) are skipped. Non-string values are kept in their JSON
// text form and are rejected later as invalid URLs.
func ParseJSON(r io.Reader) ([]types.LinkItem, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode links: %w", err)
	}

	var t *table
	switch tok {
	case json.Delim('['):
		t, err = decodeRecords(dec)
	case json.Delim('{'):
		t, err = decodeColumns(dec)
	default:
		return nil, fmt.Errorf("decode links: expected array or object, got %v", tok)
	}
	if err != nil {
		return nil, fmt.Errorf("decode links: %w", err)
	}
	return t.items(), nil
}

// table is a sparse field -> position -> value grid that remembers field order.
type table struct {
	fields []string
	cells  map[string]map[int]string
	rows   int
}

func newTable() *table {
	return &table{cells: make(map[string]map[int]string)}
}

func (t *table) set(field string, row int, value string) {
	col, ok := t.cells[field]
	if !ok {
		col = make(map[int]string)
		t.cells[field] = col
		t.fields = append(t.fields, field)
	}
	col[row] = value
	if row+1 > t.rows {
		t.rows = row + 1
	}
}

func (t *table) items() []types.LinkItem {
	var items []types.LinkItem
	for _, field := range t.fields {
		col := t.cells[field]
		for row := 0; row < t.rows; row++ {
			v, ok := col[row]
			if !ok {
				continue
			}
			items = append(items, types.LinkItem{Index: row, URL: v, Field: field})
		}
	}
	return items
}

func decodeRecords(dec *json.Decoder) (*table, error) {
	t := newTable()
	for row := 0; dec.More(); row++ {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if tok != json.Delim('{') {
			v, ok := scalarToken(tok)
			if !ok {
				return nil, fmt.Errorf("record %d: expected object or URL, got %v", row, tok)
			}
			if v != nil {
				t.set("", row, *v)
			}
			continue
		}
		for dec.More() {
			field, value, err := decodeEntry(dec)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", row, err)
			}
			if value != nil {
				t.set(field, row, *value)
			}
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return t, nil
}

func decodeColumns(dec *json.Decoder) (*table, error) {
	t := newTable()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		field, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected field name, got %v", tok)
		}

		var column []json.RawMessage
		if err := dec.Decode(&column); err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		for row, raw := range column {
			if v := scalar(raw); v != nil {
				t.set(field, row, *v)
			}
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return t, nil
}

func decodeEntry(dec *json.Decoder) (string, *string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", nil, err
	}
	field, ok := tok.(string)
	if !ok {
		return "", nil, fmt.Errorf("expected field name, got %v", tok)
	}

	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return "", nil, fmt.Errorf("field %q: %w", field, err)
	}
	return field, scalar(raw), nil
}

// scalar returns the string form of a JSON value, or nil for null.
func scalar(raw json.RawMessage) *string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		s = strings.TrimSpace(s)
		return &s
	}
	s = string(trimmed)
	return &s
}

// scalarToken is scalar for a value already read with Token. Nested arrays
// and objects are not scalars.
func scalarToken(tok json.Token) (*string, bool) {
	var s string
	switch v := tok.(type) {
	case nil:
		return nil, true
	case string:
		s = strings.TrimSpace(v)
	case json.Number:
		s = v.String()
	case bool:
		s = strconv.FormatBool(v)
	default:
		return nil, false
	}
	return &s, true
}
