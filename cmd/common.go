/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/valpere/moraleval/internal/dataset"
	"github.com/valpere/moraleval/internal/judge"
	"github.com/valpere/moraleval/internal/llm"
	"github.com/valpere/moraleval/internal/logger"
	"github.com/valpere/moraleval/internal/orchestrator"
	"github.com/valpere/moraleval/internal/pipeline"
	"github.com/valpere/moraleval/internal/store"
	"github.com/valpere/moraleval/internal/translator"
	"github.com/valpere/moraleval/internal/validator"
)

// app bundles what the commands work with.
type app struct {
	manifest *dataset.Manifest
	store    *store.Store
	pipeline *pipeline.Pipeline
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

// needs selects the clients an app is built with; building a client
// requires its API key.
type needs struct {
	translator bool
	models     bool
	judge      bool
}

func loadManifest() (*dataset.Manifest, error) {
	m, err := dataset.LoadManifest(cfg.Dataset.Manifest)
	if errors.Is(err, fs.ErrNotExist) {
		logger.L().Warn("manifest not found, using the default layout", "path", cfg.Dataset.Manifest)
		return dataset.DefaultManifest(), nil
	}
	return m, err
}

func openStore() (*store.Store, error) {
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func llmOptions() llm.Options {
	return llm.Options{
		OpenAIKey:     cfg.API.OpenAIKey,
		AnthropicKey:  cfg.API.AnthropicKey,
		GeminiKey:     cfg.API.GeminiKey,
		OpenRouterKey: cfg.API.OpenRouterKey,
		OllamaURL:     cfg.API.OllamaURL,
		Timeout:       cfg.Run.RequestTimeout,
	}
}

// buildServices constructs the translation services named in the config,
// in fallback order.
func buildServices(names []string) ([]translator.TranslationService, error) {
	var list []translator.TranslationService

	for _, name := range names {
		switch name {
		case "google":
			list = append(list, translator.NewGoogleService(cfg.API.GoogleCredentials))
		case "mymemory":
			list = append(list, translator.NewMyMemoryService(cfg.API.MyMemoryEmail, "", cfg.Translation.Timeout))
		case "systran":
			list = append(list, translator.NewSystranService(cfg.API.SystranKey, "", cfg.Translation.Timeout))
		case "llm":
			if cfg.Translation.LLMModel == "" {
				return nil, fmt.Errorf("translation service llm needs translation.llm_model")
			}
			client, err := llm.New(cfg.Translation.LLMModel, llmOptions())
			if err != nil {
				return nil, err
			}
			list = append(list, translator.NewLLMService(client))
		default:
			fmt.Fprintf(os.Stderr, "Unknown service: %s, skipping\n", name)
		}
	}

	if len(list) == 0 {
		return nil, fmt.Errorf("no valid services configured")
	}
	return list, nil
}

func languageCodes(m *dataset.Manifest) []string {
	codes := make([]string, 0, len(m.Languages))
	for _, l := range m.Languages {
		codes = append(codes, l.Code)
	}
	return codes
}

func buildOrchestrator(m *dataset.Manifest) (*orchestrator.Orchestrator, error) {
	services, err := buildServices(cfg.Translation.Services)
	if err != nil {
		return nil, err
	}
	return orchestrator.New(services, orchestrator.OrchestratorConfig{
		Timeout:        cfg.Translation.Timeout,
		MaxAttempts:    cfg.Run.MaxAttempts,
		RetryDelay:     cfg.Translation.Delay,
		SkipValidation: !cfg.Translation.Validate,
		Languages:      languageCodes(m),
	}), nil
}

func buildJudge() (judge.Judge, error) {
	client, err := llm.New(cfg.Models.Judge, llmOptions())
	if err != nil {
		return nil, fmt.Errorf("judge: %w", err)
	}
	return judge.NewLLMJudge(client, judge.Config{
		MaxAttempts: cfg.Run.MaxAttempts,
		RetryDelay:  cfg.Run.JudgeRetryDelay,
		MaxTokens:   cfg.Judge.MaxTokens,
	}), nil
}

// Stage filters shared by run and the single-stage commands.
var (
	onlyLanguages  []string
	onlyCategories []string
)

func addFilterFlags(c *cobra.Command) {
	c.Flags().StringSliceVarP(&onlyLanguages, "language", "l", nil, "Only these languages, by name or code (default: all)")
	c.Flags().StringSliceVarP(&onlyCategories, "category", "c", nil, "Only these categories (default: all)")
}

func pipelineConfig() pipeline.Config {
	return pipeline.Config{
		Models:             cfg.Models.Respondents,
		Languages:          onlyLanguages,
		Categories:         onlyCategories,
		MaxAttempts:        cfg.Run.MaxAttempts,
		RetryDelay:         cfg.Run.RetryDelay,
		RateLimit:          cfg.Run.RateLimit,
		MaxTokens:          cfg.Run.MaxTokens,
		Temperature:        cfg.Run.Temperature,
		MaxChars:           cfg.Translation.MaxChars,
		NoCache:            cfg.Translation.NoCache,
		RoundTripThreshold: cfg.Run.RoundTripThreshold,
	}
}

// newApp opens the store and builds a pipeline with the clients n asks for.
func newApp(n needs) (*app, error) {
	m, err := loadManifest()
	if err != nil {
		return nil, err
	}
	db, err := openStore()
	if err != nil {
		return nil, err
	}
	a := &app{manifest: m, store: db}

	deps := pipeline.Deps{
		Manifest: m,
		Store:    db,
		ServiceConfig: translator.ServiceConfig{
			Credentials: cfg.API.GoogleCredentials,
			ProjectID:   cfg.API.GoogleProject,
		},
		Models: make(map[string]llm.Client),
	}

	if n.translator {
		orch, err := buildOrchestrator(m)
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Translator = orch
	}

	pcfg := pipelineConfig()
	if n.models {
		for _, spec := range pcfg.Models {
			client, err := llm.New(spec, llmOptions())
			if err != nil {
				a.Close()
				return nil, err
			}
			deps.Models[spec] = client
		}
		deps.Validator = validator.New(languageCodes(m)...)
	}

	if n.judge {
		j, err := buildJudge()
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Judge = j
	}

	p, err := pipeline.New(deps, pcfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pipeline = p
	return a, nil
}
