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
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/moraleval/internal/report"
)

var reportDir string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write evaluation CSVs, accuracy and consistency reports",
	Long: `Writes per-model, per-category, per-language evaluation files plus the
summary, accuracy, consistency and results.json reports from what is in the
store. Nothing is sent to any API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadManifest()
		if err != nil {
			return err
		}
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		dir := reportDir
		if dir == "" {
			dir = cfg.Dataset.ResultsDir
		}
		summary, err := report.New(db, m).Generate(cmd.Context(), report.Options{
			Dir:    dir,
			Models: cfg.Models.Respondents,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Wrote %d evaluation files to %s\n\n", len(summary.Files), dir)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MODEL\tLANG\tCATEGORY\tGRADED\tMEAN\tPASS")
		for _, r := range summary.Accuracy {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%.2f\t%.0f%%\n",
				r.Model, r.Lang, r.Category, r.Graded, r.Count, r.Mean, r.PassRate*100)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVarP(&reportDir, "output", "o", "", "Results directory (default: dataset.results_dir)")
}
