package translator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	systranHost       = "api-systran-systran-translation-v1.p.rapidapi.com"
	defaultSystranURL = "https://" + systranHost
)

// SystranService calls the Systran translation API through RapidAPI.
type SystranService struct {
	apiKey string
	client *resty.Client
}

func NewSystranService(apiKey, baseURL string, timeout time.Duration) *SystranService {
	if baseURL == "" {
		baseURL = defaultSystranURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SystranService{
		apiKey: apiKey,
		client: resty.New().
			SetTimeout(timeout).
			SetBaseURL(baseURL).
			SetHeader("X-RapidAPI-Host", systranHost),
	}
}

func (s *SystranService) Name() string {
	return "systran"
}

type systranRequest struct {
	Text   []string `json:"text"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Format string   `json:"format"`
}

type systranResponse struct {
	Outputs []struct {
		Output string `json:"output"`
	} `json:"outputs"`
}

func (s *SystranService) Translate(ctx context.Context, cfg ServiceConfig, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	if err := s.IsAvailable(ctx); err != nil {
		result.Error = err.Error()
		return result, err
	}

	target, err := ParseLang(req.TargetLang)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	source := req.SourceLang
	if source == "" {
		source = "auto"
	}
	// Systran takes bare language subtags.
	base, _ := target.Base()

	var out systranResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("X-RapidAPI-Key", s.apiKey).
		SetBody(systranRequest{
			Text:   []string{req.Text},
			Source: source,
			Target: base.String(),
			Format: "text",
		}).
		SetResult(&out).
		Post("/translation/text/translate")
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result, fmt.Errorf("systran request failed: %w", err)
	}
	if resp.IsError() {
		result.Error = fmt.Sprintf("API returned status %d: %s", resp.StatusCode(), resp.String())
		return result, fmt.Errorf("systran API returned status %d", resp.StatusCode())
	}
	if len(out.Outputs) == 0 || out.Outputs[0].Output == "" {
		result.Error = "empty translation response"
		return result, fmt.Errorf("systran returned an empty translation")
	}

	result.TranslatedText = out.Outputs[0].Output
	result.Confidence = 1.0
	return result, nil
}

func (s *SystranService) IsAvailable(ctx context.Context) error {
	if s.apiKey == "" {
		return fmt.Errorf("systran API key not configured")
	}
	return nil
}

func (s *SystranService) SupportedLanguages(ctx context.Context) ([]string, error) {
	return []string{"en", "fr", "es", "de", "it", "pt", "ru", "zh", "ja", "ko", "ar", "hi"}, nil
}
