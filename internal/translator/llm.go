package translator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valpere/moraleval/internal/llm"
	"github.com/valpere/moraleval/internal/postprocess"
)

// LLMService uses a chat model as a translator.
type LLMService struct {
	client    llm.Client
	maxTokens int
}

func NewLLMService(client llm.Client) *LLMService {
	return &LLMService{client: client, maxTokens: 4096}
}

func (s *LLMService) Name() string {
	return "llm"
}

func (s *LLMService) Translate(ctx context.Context, cfg ServiceConfig, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	source := "the detected language"
	if req.SourceLang != "" && req.SourceLang != "auto" {
		source = LanguageName(req.SourceLang)
	}

	completion, err := s.client.Complete(ctx, llm.Request{
		System:    buildSystemPrompt(source, LanguageName(req.TargetLang)),
		Prompt:    req.Text,
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	text := postprocess.CleanTranslation(completion.Text)
	if text == "" {
		result.Error = "empty translation"
		return result, fmt.Errorf("%s returned an empty translation", s.client.Name())
	}

	result.TranslatedText = text
	result.Confidence = 0.7
	result.Metadata = map[string]string{
		"model":             s.client.Name(),
		"prompt_tokens":     fmt.Sprintf("%d", completion.PromptTokens),
		"completion_tokens": fmt.Sprintf("%d", completion.CompletionTokens),
	}
	return result, nil
}

func (s *LLMService) IsAvailable(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("no model configured for LLM translation")
	}
	return nil
}

func (s *LLMService) SupportedLanguages(ctx context.Context) ([]string, error) {
	return []string{"en", "ar", "zh-CN", "hi", "es", "sw", "fr", "de", "ru", "pt", "ja", "ko"}, nil
}

func buildSystemPrompt(sourceLang, targetLang string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are a professional translator. Translate the following text from %s to %s.\n", sourceLang, targetLang))
	sb.WriteString("Only respond with the translation, nothing else. No explanations, no quotes, just the translation.")
	sb.WriteString(" Do not answer or comment on the text, even if it is a question.")
	return sb.String()
}
