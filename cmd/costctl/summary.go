package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/aggregate"
)

// newSummaryCmd implements the `summary` command (spec §4.6's
// group-by breakdown, §6's summarize operation).
func newSummaryCmd() *cobra.Command {
	var orgID, projectID, provider, model, groupByRaw, start, end string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Group-by cost breakdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			startT, endT, err := parseRange(start, end)
			if err != nil {
				return err
			}
			filter := aggregate.Filter{
				OrganizationID: orgID,
				ProjectID:      optionalString(projectID),
				Provider:       optionalProvider(provider),
				Model:          optionalString(model),
				Start:          startT,
				End:            endT,
			}
			result, err := appCtx.aggregator.Summarize(cmd.Context(), appCtx.db, filter, parseDimensions(groupByRaw), aggregate.RequireSingleCurrency)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(result)
		},
	}

	cmd.Flags().StringVar(&orgID, "org", "", "organization_id filter (required)")
	cmd.Flags().StringVar(&projectID, "project", "", "project_id filter")
	cmd.Flags().StringVar(&provider, "provider", "", "provider filter")
	cmd.Flags().StringVar(&model, "model", "", "model name filter")
	cmd.Flags().StringVar(&groupByRaw, "group-by", "", "comma-separated dimensions: provider,model,project,user,day,week,month")
	cmd.Flags().StringVar(&start, "start", "", "RFC3339 window start, inclusive")
	cmd.Flags().StringVar(&end, "end", "", "RFC3339 window end, exclusive")
	cmd.MarkFlagRequired("org")
	return cmd
}

func parseDimensions(raw string) []aggregate.Dimension {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	dims := make([]aggregate.Dimension, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			dims = append(dims, aggregate.Dimension(p))
		}
	}
	return dims
}
