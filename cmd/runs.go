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
)

var (
	failuresRun   string
	failuresStage string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tENV\tSTARTED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, r.Env, r.StartedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List item failures from the failure log",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		failures, err := db.Failures(cmd.Context(), failuresRun, failuresStage)
		if err != nil {
			return fmt.Errorf("failed to list failures: %w", err)
		}
		if len(failures) == 0 {
			fmt.Println("No failures recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSTAGE\tITEM\tERROR")
		for _, f := range failures {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				f.CreatedAt.Local().Format("2006-01-02 15:04:05"), f.Stage, f.Key, snippet(f.Message, 80))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(failuresCmd)

	failuresCmd.Flags().StringVar(&failuresRun, "run", "", "Only failures of this run id")
	failuresCmd.Flags().StringVar(&failuresStage, "stage", "", "Only failures of this stage (translate, respond, backtranslate, grade, roundtrip)")
}
