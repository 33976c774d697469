package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

// newBackfillCmd drains every pending usage record synchronously (spec
// §12 feature 6), for operators recovering from an outage in the async
// worker or catching up after a bulk async ingest.
func newBackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Price every pending usage record and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			total, err := appCtx.immediateWorker().Run(cmd.Context())
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(struct{ Processed int }{Processed: total})
		},
	}
	return cmd
}
