package llm

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultOpenAIURL     = "https://api.openai.com/v1"
	defaultOpenRouterURL = "https://openrouter.ai/api/v1"
)

// ChatClient speaks the OpenAI chat completions protocol, which OpenRouter
// also implements.
type ChatClient struct {
	provider string
	model    string
	apiKey   string
	baseURL  string
	// OpenAI renamed max_tokens; OpenRouter still expects the old name.
	maxTokensField string
	headers        map[string]string
	http           *resty.Client
}

func NewOpenAI(model, apiKey, baseURL string, timeout time.Duration) *ChatClient {
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	return &ChatClient{
		provider:       "openai",
		model:          model,
		apiKey:         apiKey,
		baseURL:        baseURL,
		maxTokensField: "max_completion_tokens",
		http:           newHTTP(timeout),
	}
}

func NewOpenRouter(model, apiKey, baseURL string, timeout time.Duration) *ChatClient {
	if baseURL == "" {
		baseURL = defaultOpenRouterURL
	}
	return &ChatClient{
		provider:       "openrouter",
		model:          model,
		apiKey:         apiKey,
		baseURL:        baseURL,
		maxTokensField: "max_tokens",
		headers: map[string]string{
			"HTTP-Referer": "https://github.com/valpere/moraleval",
			"X-Title":      "moraleval",
		},
		http: newHTTP(timeout),
	}
}

func (c *ChatClient) Name() string {
	return c.provider + ":" + c.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *ChatClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	start := time.Now()

	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := map[string]any{
		"model":    c.model,
		"messages": messages,
	}
	if req.MaxTokens > 0 {
		body[c.maxTokensField] = req.MaxTokens
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.JSON {
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	for k, v := range c.headers {
		headers[k] = v
	}

	var out chatResponse
	if err := postJSON(ctx, c.http, c.provider, joinURL(c.baseURL, "chat/completions"), headers, body, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyCompletion
	}

	model := out.Model
	if model == "" {
		model = c.model
	}
	return &Completion{
		Text:             strings.TrimSpace(out.Choices[0].Message.Content),
		Model:            model,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		Latency:          time.Since(start),
	}, nil
}
