// Package pipeline runs the benchmark stages one item at a time: translate
// prompts, collect model responses, translate responses back to the source
// language and grade them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/valpere/moraleval/internal"
	"github.com/valpere/moraleval/internal/chunker"
	"github.com/valpere/moraleval/internal/dataset"
	"github.com/valpere/moraleval/internal/judge"
	"github.com/valpere/moraleval/internal/llm"
	"github.com/valpere/moraleval/internal/logger"
	"github.com/valpere/moraleval/internal/store"
	"github.com/valpere/moraleval/internal/translator"
)

// ErrItemsFailed is returned by Run when at least one item failed in some
// stage. The failures are in the store's failure log.
var ErrItemsFailed = errors.New("some items failed")

// Translator is the translation backend, normally an orchestrator over the
// configured services.
type Translator interface {
	ExecuteWithFallback(ctx context.Context, cfg translator.ServiceConfig, req translator.TranslateRequest) (*translator.ServiceResult, error)
}

type languageValidator interface {
	IsValid(text, lang string) (bool, error)
}

type Config struct {
	// Models to collect responses from, as provider:model specs. Respond
	// and Retry need a client for each in Deps.Models.
	Models []string
	// Languages and Categories narrow the run by name or code; empty means
	// everything in the manifest.
	Languages  []string
	Categories []string

	MaxAttempts int
	RetryDelay  time.Duration
	// RateLimit is the minimum interval between two model calls.
	RateLimit   time.Duration
	MaxTokens   int
	Temperature *float64

	// MaxChars is the longest text sent to a translator in one request.
	MaxChars           int
	NoCache            bool
	RoundTripThreshold float64
}

type Deps struct {
	Manifest   *dataset.Manifest
	Store      *store.Store
	Translator Translator
	// ServiceConfig is passed to every translation call.
	ServiceConfig translator.ServiceConfig
	Models        map[string]llm.Client
	Judge         judge.Judge
	// Validator checks the language of model answers; nil skips the check.
	Validator languageValidator
}

// StageStats counts items by outcome. Skipped items were already done or not
// ready for the stage.
type StageStats struct {
	Stage     string `json:"stage"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

func (s StageStats) String() string {
	return fmt.Sprintf("%s: %d processed, %d skipped, %d failed", s.Stage, s.Processed, s.Skipped, s.Failed)
}

// TotalFailed sums the failures of all stages.
func TotalFailed(stats []StageStats) int {
	n := 0
	for _, s := range stats {
		n += s.Failed
	}
	return n
}

type Pipeline struct {
	manifest      *dataset.Manifest
	store         *store.Store
	translator    Translator
	serviceConfig translator.ServiceConfig
	models        map[string]llm.Client
	judge         judge.Judge
	validator     languageValidator
	limiter       *rate.Limiter
	config        Config
	runID         string
	log           *slog.Logger
}

func New(deps Deps, config Config) (*Pipeline, error) {
	if deps.Manifest == nil || deps.Store == nil {
		return nil, errors.New("pipeline needs a manifest and a store")
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1000
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Every(config.RateLimit)
	}

	return &Pipeline{
		manifest:      deps.Manifest,
		store:         deps.Store,
		translator:    deps.Translator,
		serviceConfig: deps.ServiceConfig,
		models:        deps.Models,
		judge:         deps.Judge,
		validator:     deps.Validator,
		limiter:       rate.NewLimiter(limit, 1),
		config:        config,
		log:           logger.Named("pipeline"),
	}, nil
}

// StartRun records a new run; failures logged afterwards carry its id.
func (p *Pipeline) StartRun(ctx context.Context, env string) (string, error) {
	run := internal.Run{ID: uuid.NewString(), Env: env, StartedAt: time.Now().UTC()}
	if err := p.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	p.runID = run.ID
	p.log.Info("run started", "run_id", run.ID, "env", env)
	return run.ID, nil
}

// Run executes translate, respond, back-translate and grade in order. It
// stops early only on errors that are not about a single item; per-item
// failures are counted and reported as ErrItemsFailed at the end.
func (p *Pipeline) Run(ctx context.Context) ([]StageStats, error) {
	stages := []func(context.Context) (StageStats, error){
		p.Translate,
		p.Respond,
		p.BackTranslate,
		p.Grade,
	}

	var all []StageStats
	for _, stage := range stages {
		stats, err := stage(ctx)
		all = append(all, stats)
		if err != nil {
			return all, err
		}
	}
	if TotalFailed(all) > 0 {
		return all, ErrItemsFailed
	}
	return all, nil
}

func (p *Pipeline) categories() ([]dataset.Category, error) {
	if len(p.config.Categories) == 0 {
		return p.manifest.Categories, nil
	}
	out := make([]dataset.Category, 0, len(p.config.Categories))
	for _, name := range p.config.Categories {
		c, ok := p.manifest.Category(name)
		if !ok {
			return nil, fmt.Errorf("unknown category %q", name)
		}
		out = append(out, c)
	}
	return out, nil
}

func (p *Pipeline) languages() ([]internal.Language, error) {
	if len(p.config.Languages) == 0 {
		return p.manifest.Languages, nil
	}
	out := make([]internal.Language, 0, len(p.config.Languages))
	for _, name := range p.config.Languages {
		l, ok := p.manifest.Language(name)
		if !ok {
			return nil, fmt.Errorf("unknown language %q", name)
		}
		out = append(out, l)
	}
	return out, nil
}

func (p *Pipeline) targetLanguages() ([]internal.Language, error) {
	langs, err := p.languages()
	if err != nil {
		return nil, err
	}
	var out []internal.Language
	for _, l := range langs {
		if !p.manifest.IsSource(l) {
			out = append(out, l)
		}
	}
	return out, nil
}

// fail logs an item failure and appends it to the failure log. Only a
// store error is returned.
func (p *Pipeline) fail(ctx context.Context, stats *StageStats, key string, err error) error {
	stats.Failed++
	p.log.Error("item failed", "stage", stats.Stage, "key", key, "error", err)
	rec := internal.Failure{RunID: p.runID, Stage: stats.Stage, Key: key, Message: err.Error()}
	if serr := p.store.RecordFailure(ctx, rec); serr != nil {
		return fmt.Errorf("failed to record failure for %s: %w", key, serr)
	}
	return nil
}

func (p *Pipeline) finish(stats StageStats, start time.Time) {
	p.log.Info("stage finished",
		"stage", stats.Stage,
		"processed", stats.Processed,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"elapsed", time.Since(start).Round(time.Millisecond))
}

// translateText translates text chunk by chunk and reports the services
// used. With cache set, whole texts are looked up in and saved to the
// translation memory.
func (p *Pipeline) translateText(ctx context.Context, text, source, target string, cache bool) (string, string, error) {
	if p.translator == nil {
		return "", "", errors.New("no translation services configured")
	}
	cache = cache && !p.config.NoCache

	if cache {
		cached, found, err := p.store.GetCachedTranslation(ctx, text, source, target)
		if err != nil {
			p.log.Warn("translation memory lookup failed", "error", err)
		} else if found {
			return cached, "memory", nil
		}
	}

	chunks := chunker.Split(text, p.config.MaxChars)
	if len(chunks) == 0 {
		return "", "", errors.New("nothing to translate")
	}

	parts := make([]string, 0, len(chunks))
	var services []string
	for _, chunk := range chunks {
		res, err := p.translator.ExecuteWithFallback(ctx, p.serviceConfig, translator.TranslateRequest{
			Text:       chunk,
			SourceLang: source,
			TargetLang: target,
		})
		if err != nil {
			return "", "", err
		}
		parts = append(parts, res.TranslatedText)
		if len(services) == 0 || services[len(services)-1] != res.ServiceName {
			services = append(services, res.ServiceName)
		}
	}

	translated := strings.Join(parts, "\n\n")
	service := strings.Join(services, "+")
	if cache {
		if err := p.store.SaveToMemory(ctx, text, source, target, translated, service); err != nil {
			p.log.Warn("failed to save to translation memory", "error", err)
		}
	}
	return translated, service, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
