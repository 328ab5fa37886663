package llm

import (
	"fmt"
	"strings"
	"time"
)

// Options carries what New needs to build any provider.
type Options struct {
	OpenAIKey     string
	AnthropicKey  string
	GeminiKey     string
	OpenRouterKey string
	OllamaURL     string
	// BaseURLs overrides a provider's endpoint, keyed by provider name.
	BaseURLs map[string]string
	Timeout  time.Duration
}

// ParseSpec splits "provider:model" at the first colon, so OpenRouter ids
// such as "openrouter:qwen/qwen3-4b:free" keep their own suffix.
func ParseSpec(spec string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(strings.TrimSpace(spec), ":")
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)
	if !ok || provider == "" || model == "" {
		return "", "", fmt.Errorf("invalid model spec %q, expected provider:model", spec)
	}
	return provider, model, nil
}

// New builds the client for a provider:model spec.
func New(spec string, opts Options) (Client, error) {
	provider, model, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	base := opts.BaseURLs[provider]

	requireKey := func(key, env string) error {
		if key == "" {
			return fmt.Errorf("%s: API key not configured (set %s)", spec, env)
		}
		return nil
	}

	switch provider {
	case "openai":
		if err := requireKey(opts.OpenAIKey, "OPENAI_API_KEY"); err != nil {
			return nil, err
		}
		return NewOpenAI(model, opts.OpenAIKey, base, opts.Timeout), nil
	case "openrouter":
		if err := requireKey(opts.OpenRouterKey, "OPENROUTER_API_KEY"); err != nil {
			return nil, err
		}
		return NewOpenRouter(model, opts.OpenRouterKey, base, opts.Timeout), nil
	case "anthropic", "claude":
		if err := requireKey(opts.AnthropicKey, "ANTHROPIC_API_KEY"); err != nil {
			return nil, err
		}
		return NewAnthropic(model, opts.AnthropicKey, base, opts.Timeout), nil
	case "gemini", "google":
		if err := requireKey(opts.GeminiKey, "GEMINI_API_KEY"); err != nil {
			return nil, err
		}
		return NewGemini(model, opts.GeminiKey, base, opts.Timeout), nil
	case "ollama":
		if base == "" {
			base = opts.OllamaURL
		}
		return NewOllama(model, base, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown provider %q in %q", provider, spec)
	}
}
