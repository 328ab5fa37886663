package llm

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaClient calls a self-hosted model through /api/generate.
type OllamaClient struct {
	model   string
	baseURL string
	http    *resty.Client
}

func NewOllama(model, baseURL string, timeout time.Duration) *OllamaClient {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaClient{model: model, baseURL: baseURL, http: newHTTP(timeout)}
}

func (c *OllamaClient) Name() string {
	return "ollama:" + c.model
}

type ollamaResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (c *OllamaClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	start := time.Now()

	body := map[string]any{
		"model":  c.model,
		"prompt": req.Prompt,
		"stream": false,
	}
	if req.System != "" {
		body["system"] = req.System
	}
	if req.JSON {
		body["format"] = "json"
	}
	opts := map[string]any{}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if len(opts) > 0 {
		body["options"] = opts
	}

	var out ollamaResponse
	if err := postJSON(ctx, c.http, "ollama", joinURL(c.baseURL, "api/generate"), nil, body, &out); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(out.Response)
	if text == "" {
		return nil, ErrEmptyCompletion
	}

	return &Completion{
		Text:             text,
		Model:            c.model,
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
		Latency:          time.Since(start),
	}, nil
}
