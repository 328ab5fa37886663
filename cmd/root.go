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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valpere/moraleval/internal/config"
	"github.com/valpere/moraleval/internal/logger"
)

var version = "0.1.0"

var (
	envName    string
	configFile string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "moraleval",
	Short: "Multilingual moral reasoning benchmark for LLMs",
	Long: `Sends moral and ethics prompts, translated into several languages, to
LLM APIs, translates the answers back to English and grades them against a
rubric with an LLM judge.

Stages run one item at a time and resume from the SQLite store, so an
interrupted or partly failed run is finished by running it again.

Use "moraleval run" for the whole pipeline.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(config.Options{Env: envName, ConfigFile: configFile})
		if err != nil {
			return err
		}
		if err := logger.Init(loaded.Log); err != nil {
			return fmt.Errorf("failed to initialise logger: %w", err)
		}
		cfg = loaded
		logger.L().Debug("configuration loaded", "env", envName, "manifest", cfg.Dataset.Manifest)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envName, "env", "e", "", "Environment name: loads .env.<env> and moraleval.<env>.* overlays")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: moraleval.yaml in ., ./config or ~/.config/moraleval)")
}
