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

	"github.com/spf13/cobra"

	"github.com/valpere/moraleval/internal/publish"
)

var (
	publishRunID  string
	publishLatest bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the results directory to S3-compatible storage",
	Long: `Uploads every report in the results directory to the configured bucket.
Objects are keyed <prefix>/<run id>/<path>; with --latest the id of the most
recent run in the store is used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		runID := publishRunID
		if publishLatest {
			db, err := openStore()
			if err != nil {
				return err
			}
			runs, err := db.ListRuns(ctx)
			db.Close()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				return errors.New("no runs recorded")
			}
			runID = runs[0].ID
		}

		p, err := publish.New(ctx, publish.Config{
			Bucket:    cfg.Publish.Bucket,
			Prefix:    cfg.Publish.Prefix,
			Region:    cfg.Publish.Region,
			Endpoint:  cfg.Publish.Endpoint,
			AccessKey: cfg.Publish.AccessKey,
			SecretKey: cfg.Publish.SecretKey,
		})
		if err != nil {
			return err
		}

		uris, err := p.UploadDir(ctx, cfg.Dataset.ResultsDir, runID)
		for _, u := range uris {
			fmt.Println(u)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().StringVar(&publishRunID, "run-id", "", "Key objects under this run id")
	publishCmd.Flags().BoolVar(&publishLatest, "latest", false, "Key objects under the most recent run id")
	publishCmd.MarkFlagsMutuallyExclusive("run-id", "latest")
}
