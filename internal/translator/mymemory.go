package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultMyMemoryURL = "https://api.mymemory.translated.net"

// MyMemoryService calls the free MyMemory API. Passing an email raises the
// daily quota.
type MyMemoryService struct {
	email   string
	baseURL string
	client  *resty.Client
}

func NewMyMemoryService(email, baseURL string, timeout time.Duration) *MyMemoryService {
	if baseURL == "" {
		baseURL = defaultMyMemoryURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MyMemoryService{
		email:   email,
		baseURL: baseURL,
		client:  resty.New().SetTimeout(timeout).SetBaseURL(baseURL),
	}
}

func (s *MyMemoryService) Name() string {
	return "mymemory"
}

type myMemoryResponse struct {
	ResponseData struct {
		TranslatedText string  `json:"translatedText"`
		Match          float64 `json:"match"`
	} `json:"responseData"`
	// responseStatus is a number on success and sometimes a string on error
	ResponseStatus  json.Number `json:"responseStatus"`
	ResponseDetails string      `json:"responseDetails"`
}

func (s *MyMemoryService) Translate(ctx context.Context, cfg ServiceConfig, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	source := req.SourceLang
	if source == "" || source == "auto" {
		source = "en"
	}
	srcTag, err := ParseLang(source)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	dstTag, err := ParseLang(req.TargetLang)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	params := map[string]string{
		"q":        req.Text,
		"langpair": srcTag.String() + "|" + dstTag.String(),
	}
	if s.email != "" {
		params["de"] = s.email
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/get")
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result, fmt.Errorf("mymemory request failed: %w", err)
	}
	if resp.IsError() {
		result.Error = fmt.Sprintf("API returned status %d", resp.StatusCode())
		return result, fmt.Errorf("mymemory API returned status %d", resp.StatusCode())
	}

	var out myMemoryResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		result.Error = fmt.Sprintf("failed to decode response: %v", err)
		return result, fmt.Errorf("failed to decode mymemory response: %w", err)
	}
	if out.ResponseStatus.String() != "200" {
		result.Error = fmt.Sprintf("API error: %s (%s)", out.ResponseDetails, out.ResponseStatus)
		return result, fmt.Errorf("mymemory API error: %s", out.ResponseDetails)
	}

	result.TranslatedText = out.ResponseData.TranslatedText
	result.Confidence = min(max(out.ResponseData.Match, 0), 1)
	return result, nil
}

func (s *MyMemoryService) IsAvailable(ctx context.Context) error {
	return nil
}

func (s *MyMemoryService) SupportedLanguages(ctx context.Context) ([]string, error) {
	return []string{
		"en", "es", "fr", "de", "it", "pt", "ru", "ja", "ko", "zh-CN",
		"ar", "hi", "sw", "nl", "pl", "tr", "sv", "he", "th", "vi",
		"id", "ms", "cs", "hu", "ro", "uk", "bg", "ca", "el", "fi",
	}, nil
}
