// Package orchestrator runs translation services one after another until
// one of them produces a usable translation.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/valpere/moraleval/internal/logger"
	"github.com/valpere/moraleval/internal/translator"
	"github.com/valpere/moraleval/internal/validator"
)

type OrchestratorConfig struct {
	// Timeout bounds a single call to a single service.
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	// SkipValidation accepts output without checking its language.
	SkipValidation bool
	// Languages narrows the validator's detector; empty means all.
	Languages []string
}

type OrchestratorResult struct {
	// Results holds every attempt that returned text, valid or not.
	Results   []translator.ServiceResult
	Errors    []error
	Succeeded int
	Failed    int
	// Winner is the first valid result, nil when every service failed.
	Winner *translator.ServiceResult
}

type languageValidator interface {
	IsValid(text, lang string) (bool, error)
}

type Orchestrator struct {
	services  []translator.TranslationService
	config    OrchestratorConfig
	validator languageValidator
	log       *slog.Logger
}

func New(services []translator.TranslationService, config OrchestratorConfig) *Orchestrator {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 2 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	o := &Orchestrator{
		services: services,
		config:   config,
		log:      logger.Named("orchestrator"),
	}
	if !config.SkipValidation {
		o.validator = validator.New(config.Languages...)
	}
	return o
}

// Services returns the names of the configured services in fallback order.
func (o *Orchestrator) Services() []string {
	names := make([]string, len(o.services))
	for i, s := range o.services {
		names[i] = s.Name()
	}
	return names
}

// Execute tries each service in order, up to MaxAttempts times each, and
// stops at the first result that passes validation. A service whose output
// fails validation is not retried; the next service is tried instead.
func (o *Orchestrator) Execute(ctx context.Context, cfg translator.ServiceConfig, req translator.TranslateRequest) *OrchestratorResult {
	result := &OrchestratorResult{}

services:
	for _, svc := range o.services {
		for attempt := 1; attempt <= o.config.MaxAttempts; attempt++ {
			if ctx.Err() != nil {
				result.Errors = append(result.Errors, ctx.Err())
				result.Failed++
				return result
			}
			if attempt > 1 {
				if err := sleep(ctx, o.config.RetryDelay); err != nil {
					result.Errors = append(result.Errors, err)
					result.Failed++
					return result
				}
			}

			res, err := o.call(ctx, svc, cfg, req)
			if err != nil {
				o.log.Warn("translation attempt failed",
					"service", svc.Name(), "attempt", attempt, "target", req.TargetLang, "error", err)
				result.Errors = append(result.Errors, err)
				result.Failed++
				continue
			}
			result.Results = append(result.Results, *res)

			if o.validator != nil {
				if ok, verr := o.validator.IsValid(res.TranslatedText, req.TargetLang); !ok {
					err := fmt.Errorf("%s: %w", svc.Name(), verr)
					o.log.Warn("translation failed validation",
						"service", svc.Name(), "attempt", attempt, "target", req.TargetLang, "error", verr)
					result.Errors = append(result.Errors, err)
					result.Failed++
					continue services
				}
			}

			result.Succeeded++
			result.Winner = &result.Results[len(result.Results)-1]
			return result
		}
	}
	return result
}

func (o *Orchestrator) call(ctx context.Context, svc translator.TranslationService, cfg translator.ServiceConfig, req translator.TranslateRequest) (*translator.ServiceResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	res, err := svc.Translate(callCtx, cfg, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", svc.Name(), err)
	}
	if res == nil {
		return nil, fmt.Errorf("%s: no result", svc.Name())
	}
	if res.Error != "" {
		return nil, fmt.Errorf("%s: %s", svc.Name(), res.Error)
	}
	if res.TranslatedText == "" {
		return nil, fmt.Errorf("%s: empty translation", svc.Name())
	}
	return res, nil
}

// ExecuteWithFallback returns the winning result, or nil with the collected
// errors when every service failed.
func (o *Orchestrator) ExecuteWithFallback(ctx context.Context, cfg translator.ServiceConfig, req translator.TranslateRequest) (*translator.ServiceResult, error) {
	result := o.Execute(ctx, cfg, req)
	if result.Winner != nil {
		return result.Winner, nil
	}
	if len(result.Errors) == 0 {
		return nil, fmt.Errorf("no translation services configured")
	}
	return nil, fmt.Errorf("all translation services failed: %w", result.Errors[len(result.Errors)-1])
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
