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
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/moraleval/internal/logger"
	"github.com/valpere/moraleval/internal/pipeline"
	"github.com/valpere/moraleval/internal/report"
)

var skipReport bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the whole benchmark and write the reports",
	Long: `Translates the prompts, collects responses from every configured model,
translates the responses back to English, grades them and writes the CSV and
JSON reports to the results directory.

Work already in the store is skipped, so running again after a failure only
repeats the items that failed or were never reached.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(needs{translator: true, models: true, judge: true})
		if err != nil {
			return err
		}
		defer a.Close()

		runID, err := a.pipeline.StartRun(ctx, envName)
		if err != nil {
			return err
		}

		stats, runErr := a.pipeline.Run(ctx)
		printStats(stats)
		if runErr != nil && !errors.Is(runErr, pipeline.ErrItemsFailed) {
			return runErr
		}

		if !skipReport {
			summary, err := report.New(a.store, a.manifest).Generate(ctx, report.Options{
				Dir:    cfg.Dataset.ResultsDir,
				Models: cfg.Models.Respondents,
			})
			if err != nil {
				return fmt.Errorf("failed to write reports: %w", err)
			}
			fmt.Printf("Wrote %d evaluation files to %s\n", len(summary.Files), cfg.Dataset.ResultsDir)
		}

		logger.L().Info("run finished", "run_id", runID, "failed", pipeline.TotalFailed(stats))
		if runErr != nil {
			return fmt.Errorf("run %s: %w (see failures in %s)", runID, runErr, cfg.Store.Path)
		}
		return nil
	},
}

func printStats(stats []pipeline.StageStats) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tPROCESSED\tSKIPPED\tFAILED")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", s.Stage, s.Processed, s.Skipped, s.Failed)
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(runCmd)

	addFilterFlags(runCmd)
	runCmd.Flags().BoolVar(&skipReport, "no-report", false, "Do not write reports after the run")
}
