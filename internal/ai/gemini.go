package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"
)

const geminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"

var geminiHarmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// Gemini streams from the Generative Language REST API using server-sent events.
type Gemini struct {
	*client
}

func (g *Gemini) Provider() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	Contents          []geminiContent       `json:"contents"`
	SystemInstruction *geminiContent        `json:"systemInstruction,omitempty"`
	GenerationConfig  map[string]any        `json:"generationConfig"`
	SafetySettings    []geminiSafetySetting `json:"safetySettings"`
}

type geminiChunk struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Gemini) payload(req Request) ([]byte, error) {
	genCfg := map[string]any{"temperature": g.cfg.Temperature}
	if g.cfg.ResponseMIMEType != "" {
		genCfg["responseMimeType"] = g.cfg.ResponseMIMEType
	}

	body := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: genCfg,
	}
	if si := g.systemInstruction(req); si != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: si}}}
	}
	for _, c := range geminiHarmCategories {
		body.SafetySettings = append(body.SafetySettings, geminiSafetySetting{Category: c, Threshold: "BLOCK_NONE"})
	}
	return json.Marshal(body)
}

func (g *Gemini) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		model := g.model(req)
		payload, err := g.payload(req)
		if err != nil {
			yield("", g.fail(model, err))
			return
		}

		target := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse",
			g.endpoint(geminiEndpoint), url.PathEscape(model))

		resp, err := g.open(ctx, func(ctx context.Context) (*http.Request, error) {
			r, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
			if err != nil {
				return nil, err
			}
			r.Header.Set("Content-Type", "application/json")
			r.Header.Set("x-goog-api-key", g.apiKey)
			return r, nil
		})
		if err != nil {
			yield("", g.fail(model, err))
			return
		}
		defer resp.Body.Close()

		g.logger.Debug("stream opened", "model", model)
		for data, err := range sseData(resp.Body) {
			if err != nil {
				yield("", g.fail(model, fmt.Errorf("read stream: %w", err)))
				return
			}

			var chunk geminiChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				yield("", g.fail(model, fmt.Errorf("decode chunk: %w", err)))
				return
			}
			if chunk.Error != nil {
				yield("", g.fail(model, fmt.Errorf("stream error %d: %s", chunk.Error.Code, chunk.Error.Message)))
				return
			}
			if chunk.PromptFeedback.BlockReason != "" {
				yield("", g.fail(model, errors.New("prompt blocked: "+chunk.PromptFeedback.BlockReason)))
				return
			}

			text := chunk.text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

func (c *geminiChunk) text() string {
	if len(c.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range c.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}
