// Package llm talks to the chat APIs of the models under test and of the
// judge. Every provider is reached over plain HTTP with resty.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
)

var ErrEmptyCompletion = errors.New("empty completion")

// maxErrorBody caps how many bytes of a response body an APIError shows.
const maxErrorBody = 300

type Request struct {
	System    string
	Prompt    string
	MaxTokens int
	// Temperature is left to the provider when nil.
	Temperature *float64
	// JSON asks the provider for a JSON object when it supports that.
	JSON bool
}

type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Client is one model behind one provider.
type Client interface {
	// Name is the provider:model spec the client was built from.
	Name() string
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// APIError is a non-2xx reply from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, body)
}

// Retryable reports whether the status suggests trying again later.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

func newHTTP(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

// postJSON sends body to url and decodes a 2xx reply into out.
func postJSON(ctx context.Context, c *resty.Client, provider, url string, headers map[string]string, body, out any) error {
	resp, err := c.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		Post(url)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", provider, err)
	}
	if resp.IsError() {
		return &APIError{Provider: provider, StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", provider, err)
	}
	return nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
