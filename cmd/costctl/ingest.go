package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ingest"
)

// newIngestCmd implements the `ingest` command (spec §6 CLI surface): it
// reads one usage record as JSON from --file (or stdin) and hands it to
// internal/ingest.Pipeline, matching the wire format of §6's ingestion
// format (the usage-record fields of §3, with ID optional).
func newIngestCmd() *cobra.Command {
	var file string
	var async bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest one usage record",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := os.Stdin
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			raw, err := io.ReadAll(r)
			if err != nil {
				return err
			}

			var input domain.UsageIngestInput
			if err := json.Unmarshal(raw, &input); err != nil {
				return fmt.Errorf("decoding usage record: %w", err)
			}

			mode := ingest.Sync
			if async {
				mode = ingest.Async
			}

			now := appCtx.clk.Now()
			result, err := appCtx.pipeline.Ingest(cmd.Context(), input, mode, now)
			if err != nil {
				return err
			}

			return json.NewEncoder(os.Stdout).Encode(result)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to a JSON usage record; defaults to stdin")
	cmd.Flags().BoolVar(&async, "async", false, "leave the record pending for the background worker instead of pricing it inline")
	return cmd
}
