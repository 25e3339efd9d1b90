package ai

import (
	"bufio"
	"io"
	"iter"
	"strings"
)

const maxLineSize = 4 * 1024 * 1024

func newLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	return sc
}

// sseData yields the data payload of each server-sent event in r. Multi-line
// data fields are joined with "\n"; comments and other fields are ignored.
func sseData(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		sc := newLineScanner(r)
		var lines []string
		flush := func() bool {
			if len(lines) == 0 {
				return true
			}
			data := strings.Join(lines, "\n")
			lines = lines[:0]
			return yield(data, nil)
		}

		for sc.Scan() {
			line := strings.TrimRight(sc.Text(), "\r")
			if line == "" {
				if !flush() {
					return
				}
				continue
			}
			if v, ok := strings.CutPrefix(line, "data:"); ok {
				lines = append(lines, strings.TrimPrefix(v, " "))
			}
		}
		if err := sc.Err(); err != nil {
			yield("", err)
			return
		}
		flush()
	}
}

// ndjsonLines yields each non-blank line of a newline-delimited JSON stream.
func ndjsonLines(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		sc := newLineScanner(r)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			if !yield(line, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield("", err)
		}
	}
}
