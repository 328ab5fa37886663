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
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/valpere/moraleval/internal/report"
)

var checkRoundTrip bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify translations and responses, optionally by round trip",
	Long: `Checks that every prompt has exactly one non-empty translation per target
language and that every stored response belongs to a known prompt.

With --round-trip each translation is also translated back into the source
language and compared with the original prompt; results go to roundtrip.csv
in the results directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(needs{translator: checkRoundTrip})
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := a.pipeline.Check(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Prompts: %d, translations: %d, responses: %d\n", rep.Prompts, rep.Translations, rep.Responses)
		for _, issue := range rep.Issues {
			fmt.Printf("  %s\n", issue)
		}
		counts := rep.Counts()
		for _, k := range slices.Sorted(maps.Keys(counts)) {
			fmt.Printf("%-28s %d\n", string(k)+":", counts[k])
		}

		failedRoundTrips := 0
		if checkRoundTrip {
			if _, err := a.pipeline.StartRun(ctx, envName); err != nil {
				return err
			}
			rows, stats, err := a.pipeline.RoundTrip(ctx)
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Dataset.ResultsDir, report.RoundTripFile)
			if err := report.WriteRoundTrip(path, rows); err != nil {
				return err
			}
			for _, r := range rows {
				if !r.Passed {
					failedRoundTrips++
					fmt.Printf("  round trip %s %s: similarity %.2f\n", r.PromptID, r.Lang, r.Similarity)
				}
			}
			fmt.Printf("%s (%d below threshold), written to %s\n", stats, failedRoundTrips, path)
			failedRoundTrips += stats.Failed
		}

		if !rep.OK() || failedRoundTrips > 0 {
			return fmt.Errorf("check failed: %d issues, %d round trip failures", len(rep.Issues), failedRoundTrips)
		}
		fmt.Println("OK")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)

	addFilterFlags(checkCmd)
	checkCmd.Flags().BoolVar(&checkRoundTrip, "round-trip", false, "Also translate every translation back and compare")
}
