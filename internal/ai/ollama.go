package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
)

const ollamaEndpoint = "http://localhost:11434"

// Ollama streams from a local Ollama server, which answers with one JSON
// object per line.
type Ollama struct {
	*client
}

func (o *Ollama) Provider() string { return "ollama" }

type ollamaChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func (o *Ollama) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		model := o.model(req)
		payload := map[string]any{
			"model":  model,
			"prompt": req.Prompt,
			"stream": true,
			"options": map[string]any{
				"temperature": o.cfg.Temperature,
			},
		}
		if si := o.systemInstruction(req); si != "" {
			payload["system"] = si
		}
		if o.cfg.ResponseMIMEType == "application/json" {
			payload["format"] = "json"
		}
		body, err := json.Marshal(payload)
		if err != nil {
			yield("", o.fail(model, err))
			return
		}

		resp, err := o.open(ctx, func(ctx context.Context) (*http.Request, error) {
			r, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint(ollamaEndpoint)+"/api/generate", bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			r.Header.Set("Content-Type", "application/json")
			return r, nil
		})
		if err != nil {
			yield("", o.fail(model, err))
			return
		}
		defer resp.Body.Close()

		for line, err := range ndjsonLines(resp.Body) {
			if err != nil {
				yield("", o.fail(model, fmt.Errorf("read stream: %w", err)))
				return
			}

			var chunk ollamaChunk
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				yield("", o.fail(model, fmt.Errorf("decode chunk: %w", err)))
				return
			}
			if chunk.Error != "" {
				yield("", o.fail(model, errors.New(chunk.Error)))
				return
			}
			if chunk.Response != "" && !yield(chunk.Response, nil) {
				return
			}
			if chunk.Done {
				return
			}
		}
	}
}
