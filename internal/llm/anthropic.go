package llm

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultAnthropicURL = "https://api.anthropic.com"
	anthropicVersion    = "2023-06-01"
	// the messages API requires max_tokens
	anthropicMaxTokens = 1000
	// temperature used by the original Claude runs
	anthropicTemperature = 0.7
)

type AnthropicClient struct {
	model   string
	apiKey  string
	baseURL string
	http    *resty.Client
}

func NewAnthropic(model, apiKey, baseURL string, timeout time.Duration) *AnthropicClient {
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}
	return &AnthropicClient{model: model, apiKey: apiKey, baseURL: baseURL, http: newHTTP(timeout)}
}

func (c *AnthropicClient) Name() string {
	return "anthropic:" + c.model
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	start := time.Now()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}
	temperature := anthropicTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	body := map[string]any{
		"model":       c.model,
		"max_tokens":  maxTokens,
		"temperature": temperature,
		"messages":    []chatMessage{{Role: "user", Content: req.Prompt}},
	}
	if req.System != "" {
		body["system"] = req.System
	}

	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var out anthropicResponse
	if err := postJSON(ctx, c.http, "anthropic", joinURL(c.baseURL, "v1/messages"), headers, body, &out); err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, ErrEmptyCompletion
	}

	return &Completion{
		Text:             text,
		Model:            c.model,
		PromptTokens:     out.Usage.InputTokens,
		CompletionTokens: out.Usage.OutputTokens,
		Latency:          time.Since(start),
	}, nil
}
