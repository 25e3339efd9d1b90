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

const openAIEndpoint = "https://api.openai.com/v1"

// OpenAI streams chat completions from any OpenAI-compatible endpoint.
type OpenAI struct {
	*client
}

func (o *OpenAI) Provider() string { return "openai" }

type openAIChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (o *OpenAI) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		model := o.model(req)

		messages := []map[string]string{}
		if si := o.systemInstruction(req); si != "" {
			messages = append(messages, map[string]string{"role": "system", "content": si})
		}
		messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})

		body, err := json.Marshal(map[string]any{
			"model":       model,
			"messages":    messages,
			"temperature": o.cfg.Temperature,
			"stream":      true,
		})
		if err != nil {
			yield("", o.fail(model, err))
			return
		}

		resp, err := o.open(ctx, func(ctx context.Context) (*http.Request, error) {
			r, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint(openAIEndpoint)+"/chat/completions", bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			r.Header.Set("Content-Type", "application/json")
			r.Header.Set("Authorization", "Bearer "+o.apiKey)
			return r, nil
		})
		if err != nil {
			yield("", o.fail(model, err))
			return
		}
		defer resp.Body.Close()

		for data, err := range sseData(resp.Body) {
			if err != nil {
				yield("", o.fail(model, fmt.Errorf("read stream: %w", err)))
				return
			}
			if data == "[DONE]" {
				return
			}

			var chunk openAIChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				yield("", o.fail(model, fmt.Errorf("decode chunk: %w", err)))
				return
			}
			if chunk.Error != nil {
				yield("", o.fail(model, errors.New(chunk.Error.Message)))
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(chunk.Choices[0].Delta.Content, nil) {
				return
			}
		}
	}
}
