package translator

import (
	"context"
	"fmt"
	"os"
	"time"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// GoogleService calls Cloud Translation (v2). Credentials come from the
// service config or, when empty, from the application default chain.
type GoogleService struct {
	credentials string
}

func NewGoogleService(credentials string) *GoogleService {
	return &GoogleService{credentials: credentials}
}

func (s *GoogleService) Name() string {
	return "google"
}

func (s *GoogleService) clientOptions(cfg ServiceConfig) []option.ClientOption {
	var opts []option.ClientOption
	creds := cfg.Credentials
	if creds == "" {
		creds = s.credentials
	}
	if creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	if cfg.ProjectID != "" {
		opts = append(opts, option.WithQuotaProject(cfg.ProjectID))
	}
	return opts
}

func (s *GoogleService) Translate(ctx context.Context, cfg ServiceConfig, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	target, err := ParseLang(req.TargetLang)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	var opts *translate.Options
	if req.SourceLang != "" && req.SourceLang != "auto" {
		source, err := ParseLang(req.SourceLang)
		if err != nil {
			result.Error = err.Error()
			return result, err
		}
		opts = &translate.Options{Source: source, Format: translate.Text}
	}

	client, err := translate.NewClient(ctx, s.clientOptions(cfg)...)
	if err != nil {
		result.Error = fmt.Sprintf("failed to create client: %v", err)
		return result, fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	translations, err := client.Translate(ctx, []string{req.Text}, target, opts)
	if err != nil {
		result.Error = fmt.Sprintf("translation failed: %v", err)
		return result, fmt.Errorf("translation failed: %w", err)
	}
	if len(translations) == 0 {
		result.Error = "no translation returned"
		return result, fmt.Errorf("no translation returned")
	}

	result.TranslatedText = translations[0].Text
	result.Confidence = 1.0
	if src := translations[0].Source; src != language.Und {
		result.Metadata = map[string]string{"detected_source": src.String()}
	}
	return result, nil
}

// IsAvailable checks that a configured credentials file exists. Without one
// the client falls back to application default credentials at call time.
func (s *GoogleService) IsAvailable(ctx context.Context) error {
	if s.credentials == "" {
		return nil
	}
	if _, err := os.Stat(s.credentials); err != nil {
		return fmt.Errorf("google credentials: %w", err)
	}
	return nil
}

func (s *GoogleService) SupportedLanguages(ctx context.Context) ([]string, error) {
	client, err := translate.NewClient(ctx, s.clientOptions(ServiceConfig{})...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	langs, err := client.SupportedLanguages(ctx, language.English)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(langs))
	for _, l := range langs {
		codes = append(codes, l.Tag.String())
	}
	return codes, nil
}
