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
	"slices"

	"github.com/spf13/cobra"

	"github.com/valpere/moraleval/internal/pipeline"
)

var (
	retryModel    string
	retryCategory string
	retryLanguage string
	retryRows     []int
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Ask a model again for selected prompts and regrade the answers",
	Long: `Collects a new response for the given rows of one category and language,
translates it back and grades it. Rows are 1-based prompt positions in the
category's prompt file. The new attempt replaces the old one in reports; the
old attempt stays in the store.`,
	Example: `  moraleval retry --model openai:gpt-4o --category Legality --language Arabic --rows 3,7`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if len(retryRows) == 0 {
			return errors.New("--rows is required")
		}
		if !slices.Contains(cfg.Models.Respondents, retryModel) {
			cfg.Models.Respondents = append(cfg.Models.Respondents, retryModel)
		}

		a, err := newApp(needs{translator: true, models: true, judge: true})
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.pipeline.StartRun(ctx, envName); err != nil {
			return err
		}
		stats, err := a.pipeline.Retry(ctx, pipeline.RetryRequest{
			Model:    retryModel,
			Category: retryCategory,
			Language: retryLanguage,
			Rows:     retryRows,
		})
		printStats(stats)
		if err != nil {
			return err
		}
		if pipeline.TotalFailed(stats) > 0 {
			return pipeline.ErrItemsFailed
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)

	retryCmd.Flags().StringVarP(&retryModel, "model", "m", "", "Model spec, e.g. openai:gpt-4o (required)")
	retryCmd.Flags().StringVarP(&retryCategory, "category", "c", "", "Category name (required)")
	retryCmd.Flags().StringVarP(&retryLanguage, "language", "l", "", "Language name or code (required)")
	retryCmd.Flags().IntSliceVarP(&retryRows, "rows", "r", nil, "1-based prompt rows to retry")

	retryCmd.MarkFlagRequired("model")
	retryCmd.MarkFlagRequired("category")
	retryCmd.MarkFlagRequired("language")
}
