package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
)

// newQueryCmd implements the `query` command (spec §6's list_usage /
// list_costs query surface). --kind selects which repository to page
// through; both share the same filter flags and a --limit page size. No
// cursor flags are exposed, so each call returns the first page only.
func newQueryCmd() *cobra.Command {
	var kind, orgID, projectID, provider, model string
	var start, end string
	var limit int

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List usage or cost records",
		RunE: func(cmd *cobra.Command, args []string) error {
			startT, endT, err := parseRange(start, end)
			if err != nil {
				return err
			}
			page := storage.Page{Limit: limit}

			switch kind {
			case "costs":
				filter := storage.CostFilter{
					OrganizationID: orgID,
					ProjectID:      optionalString(projectID),
					Provider:       optionalProvider(provider),
					Model:          optionalString(model),
					Start:          startT,
					End:            endT,
				}
				records, err := appCtx.repos.Cost.ListCurrent(cmd.Context(), appCtx.db, filter, page)
				if err != nil {
					return err
				}
				return json.NewEncoder(os.Stdout).Encode(records)
			default:
				filter := storage.UsageFilter{
					OrganizationID: orgID,
					ProjectID:      optionalString(projectID),
					Provider:       optionalProvider(provider),
					Model:          optionalString(model),
					Start:          startT,
					End:            endT,
				}
				records, err := appCtx.repos.Usage.List(cmd.Context(), appCtx.db, filter, page)
				if err != nil {
					return err
				}
				return json.NewEncoder(os.Stdout).Encode(records)
			}
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "usage", "record kind to list: usage or costs")
	cmd.Flags().StringVar(&orgID, "org", "", "organization_id filter (required)")
	cmd.Flags().StringVar(&projectID, "project", "", "project_id filter")
	cmd.Flags().StringVar(&provider, "provider", "", "provider filter")
	cmd.Flags().StringVar(&model, "model", "", "model name filter")
	cmd.Flags().StringVar(&start, "start", "", "RFC3339 window start, inclusive")
	cmd.Flags().StringVar(&end, "end", "", "RFC3339 window end, exclusive")
	cmd.Flags().IntVar(&limit, "limit", 100, "page size")
	cmd.MarkFlagRequired("org")
	return cmd
}

func parseRange(start, end string) (time.Time, time.Time, error) {
	var startT, endT time.Time
	var err error
	if start != "" {
		startT, err = time.Parse(time.RFC3339, start)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if end != "" {
		endT, err = time.Parse(time.RFC3339, end)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		endT = time.Now().UTC()
	}
	return startT, endT, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalProvider(s string) *domain.Provider {
	if s == "" {
		return nil
	}
	p := domain.Provider(s)
	return &p
}
