// Package config loads harness settings from config files, .env files and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/valpere/moraleval/internal/logger"
)

const (
	configName = "moraleval"
	envPrefix  = "MORALEVAL"
)

type Config struct {
	Env         string            `mapstructure:"-"`
	Dataset     DatasetConfig     `mapstructure:"dataset"`
	API         APIConfig         `mapstructure:"api"`
	Models      ModelsConfig      `mapstructure:"models"`
	Run         RunConfig         `mapstructure:"run"`
	Judge       JudgeConfig       `mapstructure:"judge"`
	Translation TranslationConfig `mapstructure:"translation"`
	Store       StoreConfig       `mapstructure:"store"`
	Log         logger.Config     `mapstructure:"log"`
	Publish     PublishConfig     `mapstructure:"publish"`
}

type DatasetConfig struct {
	Manifest   string `mapstructure:"manifest"`
	ResultsDir string `mapstructure:"results_dir"`
}

// APIConfig holds provider credentials. Key names follow the [API] section
// of the legacy master_config.ini.
type APIConfig struct {
	OpenAIKey         string `mapstructure:"openai_api_key"`
	AnthropicKey      string `mapstructure:"anthropic_api_key"`
	GeminiKey         string `mapstructure:"gemini_api_key"`
	OpenRouterKey     string `mapstructure:"openrouter_api_key"`
	GoogleCredentials string `mapstructure:"google_credentials"`
	GoogleProject     string `mapstructure:"google_project"`
	MyMemoryEmail     string `mapstructure:"mymemory_email"`
	SystranKey        string `mapstructure:"systran_api_key"`
	OllamaURL         string `mapstructure:"ollama_url"`
}

// ModelsConfig lists models as provider:model specs.
type ModelsConfig struct {
	Respondents []string `mapstructure:"respondents"`
	Judge       string   `mapstructure:"judge"`
}

type RunConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	JudgeRetryDelay time.Duration `mapstructure:"judge_retry_delay"`
	RateLimit       time.Duration `mapstructure:"rate_limit"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxTokens       int           `mapstructure:"max_tokens"`

	// Temperature is nil unless configured; providers then use their own.
	Temperature        *float64 `mapstructure:"temperature"`
	RoundTripThreshold float64  `mapstructure:"round_trip_threshold"`
}

// JudgeConfig tunes the grading calls separately from respondent calls.
type JudgeConfig struct {
	// MaxTokens caps the verdict length; 0 leaves it to the provider.
	MaxTokens int `mapstructure:"max_tokens"`
}

type TranslationConfig struct {
	Services []string      `mapstructure:"services"`
	LLMModel string        `mapstructure:"llm_model"`
	MaxChars int           `mapstructure:"max_chars"`
	Delay    time.Duration `mapstructure:"delay"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Validate bool          `mapstructure:"validate"`
	NoCache  bool          `mapstructure:"no_cache"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type PublishConfig struct {
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// Options select which files Load reads.
type Options struct {
	// Env selects .env.<env> and moraleval.<env>.* overlays.
	Env string
	// ConfigFile is an explicit config path; when empty the search paths are used.
	ConfigFile string
	// DotEnvDir is where .env files are looked up. Defaults to the working directory.
	DotEnvDir string
}

var searchPaths = []string{".", "./config", "$HOME/.config/moraleval"}

// conventional environment names checked after the prefixed ones
var envAliases = map[string]string{
	"api.openai_api_key":     "OPENAI_API_KEY",
	"api.anthropic_api_key":  "ANTHROPIC_API_KEY",
	"api.gemini_api_key":     "GEMINI_API_KEY",
	"api.openrouter_api_key": "OPENROUTER_API_KEY",
	"api.google_credentials": "GOOGLE_APPLICATION_CREDENTIALS",
	"api.google_project":     "GOOGLE_CLOUD_PROJECT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dataset.manifest", "dataset.yaml")
	v.SetDefault("dataset.results_dir", "./LLMEvals")

	v.SetDefault("api.openai_api_key", "")
	v.SetDefault("api.anthropic_api_key", "")
	v.SetDefault("api.gemini_api_key", "")
	v.SetDefault("api.openrouter_api_key", "")
	v.SetDefault("api.google_credentials", "")
	v.SetDefault("api.google_project", "")
	v.SetDefault("api.mymemory_email", "")
	v.SetDefault("api.systran_api_key", "")
	v.SetDefault("api.ollama_url", "http://localhost:11434")

	v.SetDefault("models.respondents", []string{"openai:gpt-5", "anthropic:claude-sonnet-4-20250514"})
	v.SetDefault("models.judge", "gemini:gemini-2.5-pro")

	v.SetDefault("run.max_attempts", 3)
	v.SetDefault("run.retry_delay", 30*time.Second)
	v.SetDefault("run.judge_retry_delay", 5*time.Second)
	v.SetDefault("run.rate_limit", time.Second)
	v.SetDefault("run.request_timeout", 120*time.Second)
	v.SetDefault("run.max_tokens", 1000)
	v.SetDefault("run.round_trip_threshold", 0.5)

	v.SetDefault("judge.max_tokens", 0)

	v.SetDefault("translation.services", []string{"google", "mymemory"})
	v.SetDefault("translation.llm_model", "")
	v.SetDefault("translation.max_chars", 4500)
	v.SetDefault("translation.delay", 2*time.Second)
	v.SetDefault("translation.timeout", 30*time.Second)
	v.SetDefault("translation.validate", true)
	v.SetDefault("translation.no_cache", false)

	v.SetDefault("store.path", "./data/moraleval.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")

	v.SetDefault("publish.bucket", "")
	v.SetDefault("publish.prefix", "moraleval")
	v.SetDefault("publish.region", "us-east-1")
	v.SetDefault("publish.endpoint", "")
	v.SetDefault("publish.access_key", "")
	v.SetDefault("publish.secret_key", "")
}

// Load builds the configuration. Precedence, highest first: environment
// variables, moraleval.<env>.* overlay, base config file, defaults.
func Load(opts Options) (*Config, error) {
	if err := loadDotEnv(opts.DotEnvDir, opts.Env); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	// no default, so Unmarshal only sees the env var once it is bound
	if err := v.BindEnv("run.temperature"); err != nil {
		return nil, fmt.Errorf("bind env run.temperature: %w", err)
	}

	base, err := readBase(v, opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	if opts.Env != "" {
		if overlay := findOverlay(base, opts.Env); overlay != "" {
			v.SetConfigFile(overlay)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("failed to merge %s: %w", overlay, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Env = opts.Env

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Run.MaxAttempts < 1 {
		return fmt.Errorf("run.max_attempts must be at least 1, got %d", c.Run.MaxAttempts)
	}
	if c.Run.MaxTokens < 1 {
		return fmt.Errorf("run.max_tokens must be positive, got %d", c.Run.MaxTokens)
	}
	if c.Judge.MaxTokens < 0 {
		return fmt.Errorf("judge.max_tokens must not be negative, got %d", c.Judge.MaxTokens)
	}
	if c.Run.RoundTripThreshold < 0 || c.Run.RoundTripThreshold > 1 {
		return fmt.Errorf("run.round_trip_threshold must be within [0, 1], got %v", c.Run.RoundTripThreshold)
	}
	if len(c.Translation.Services) == 0 {
		return errors.New("translation.services must name at least one service")
	}
	if c.Dataset.Manifest == "" {
		return errors.New("dataset.manifest is required")
	}
	return nil
}

func readBase(v *viper.Viper, file string) (string, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return "", fmt.Errorf("failed to read config %s: %w", file, err)
		}
		return file, nil
	}

	v.SetConfigName(configName)
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read config: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// findOverlay returns moraleval.<env>.<ext> next to the base config, or the
// first match in the search paths when no base config was found.
func findOverlay(base, env string) string {
	if base != "" {
		ext := filepath.Ext(base)
		candidate := strings.TrimSuffix(base, ext) + "." + env + ext
		if fileExists(candidate) {
			return candidate
		}
		return ""
	}

	for _, dir := range searchPaths {
		dir = os.ExpandEnv(dir)
		for _, ext := range viper.SupportedExts {
			candidate := filepath.Join(dir, configName+"."+env+"."+ext)
			if fileExists(candidate) {
				return candidate
			}
		}
	}
	return ""
}

// loadDotEnv loads .env.<env> and then .env. godotenv never overrides a
// variable that is already set, so the environment-specific file wins.
func loadDotEnv(dir, env string) error {
	var files []string
	if env != "" {
		files = append(files, filepath.Join(dir, ".env."+env))
	}
	files = append(files, filepath.Join(dir, ".env"))

	for _, f := range files {
		if !fileExists(f) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
