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

	"github.com/spf13/cobra"

	"github.com/valpere/moraleval/internal/pipeline"
)

type stageFunc func(*pipeline.Pipeline, context.Context) (pipeline.StageStats, error)

// stageCommand builds a command that runs a single pipeline stage. Stages
// read what earlier stages left in the dataset directory and the store, so
// they can be run one by one in order.
func stageCommand(use, short string, n needs, run stageFunc) *cobra.Command {
	c := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(n)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.pipeline.StartRun(ctx, envName); err != nil {
				return err
			}
			stats, err := run(a.pipeline, ctx)
			printStats([]pipeline.StageStats{stats})
			if err != nil {
				return err
			}
			if stats.Failed > 0 {
				return pipeline.ErrItemsFailed
			}
			return nil
		},
	}
	addFilterFlags(c)
	return c
}

func init() {
	rootCmd.AddCommand(
		stageCommand("translate", "Translate the prompts into every target language",
			needs{translator: true}, (*pipeline.Pipeline).Translate),
		stageCommand("respond", "Collect a response from every model for every translated prompt",
			needs{models: true}, (*pipeline.Pipeline).Respond),
		stageCommand("backtranslate", "Translate model responses back to English",
			needs{translator: true}, (*pipeline.Pipeline).BackTranslate),
		stageCommand("grade", "Grade back-translated responses with the judge model",
			needs{judge: true}, (*pipeline.Pipeline).Grade),
	)
}
