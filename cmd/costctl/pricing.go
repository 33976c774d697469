package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/events"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/pricing"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/pricing/seed"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
)

// newPricingCmd implements the `pricing` command group (spec §6:
// `pricing {add, list, get, close}`).
func newPricingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Manage pricing tables",
	}
	cmd.AddCommand(newPricingAddCmd(), newPricingListCmd(), newPricingGetCmd(), newPricingCloseCmd(), newPricingSeedCmd())
	return cmd
}

// repoStore adapts a storage.PricingRepository bound to a fixed Querier
// into a pricing.Store, so callers written against the database-agnostic
// contract (seed.SeedDefaults, pricing.CachingStore) work unchanged
// whether the store is in-process or SQL-backed.
type repoStore struct {
	repo storage.PricingRepository
	db   storage.Querier
}

func (s repoStore) Insert(ctx context.Context, table *domain.PricingTable) error {
	return s.repo.Insert(ctx, s.db, table)
}
func (s repoStore) Close(ctx context.Context, previousID ids.ID, endDate time.Time) error {
	return s.repo.Close(ctx, s.db, previousID, endDate)
}
func (s repoStore) Resolve(ctx context.Context, provider domain.Provider, model string, at time.Time, region *string) (*domain.PricingTable, error) {
	return s.repo.Resolve(ctx, s.db, provider, model, at, region)
}
func (s repoStore) List(ctx context.Context, provider *domain.Provider, model *string, activeAt *time.Time) ([]domain.PricingTable, error) {
	return s.repo.List(ctx, s.db, provider, model, activeAt)
}

// newPricingSeedCmd loads the engine's illustrative built-in pricing set
// (spec §12 feature 2) into the configured store, for local development
// and integration tests that need pricing coverage without hand-authoring
// a pricing table.
func newPricingSeedCmd() *cobra.Command {
	var effectiveDate string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the built-in illustrative pricing set",
		RunE: func(cmd *cobra.Command, args []string) error {
			var at time.Time
			if effectiveDate != "" {
				t, err := time.Parse(time.RFC3339, effectiveDate)
				if err != nil {
					return err
				}
				at = t
			}
			store := pricing.NewCachingStore(repoStore{repo: appCtx.repos.Pricing, db: appCtx.db})
			return seed.SeedDefaults(cmd.Context(), store, appCtx.clk, at)
		},
	}
	cmd.Flags().StringVar(&effectiveDate, "effective-date", "", "RFC3339 effective date for seeded tables; defaults to the Unix epoch")
	return cmd
}

// newPricingAddCmd inserts a new pricing table from JSON on --file/stdin,
// then rescans already-ingested usage the interval covers (spec §4.7).
func newPricingAddCmd() *cobra.Command {
	var file string
	var noRescan bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Insert a pricing table",
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
			var table domain.PricingTable
			if err := json.Unmarshal(raw, &table); err != nil {
				return fmt.Errorf("decoding pricing table: %w", err)
			}
			if ids.IsNil(table.ID) {
				table.ID = ids.New()
			}
			if err := table.Validate(); err != nil {
				return err
			}

			if err := appCtx.repos.Pricing.Insert(cmd.Context(), appCtx.db, &table); err != nil {
				return err
			}

			now := appCtx.clk.Now()
			var rescanned int
			if !noRescan {
				result, err := appCtx.rescanner.Rescan(cmd.Context(), &table)
				if err != nil {
					return err
				}
				rescanned = result.Recomputed
			}
			appCtx.sink.Emit(cmd.Context(), events.NewPricingInserted(string(table.Provider), table.ModelName, table.ID.String(), rescanned > 0, now))

			return json.NewEncoder(os.Stdout).Encode(struct {
				Table      domain.PricingTable
				Recomputed int
			}{Table: table, Recomputed: rescanned})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a JSON pricing table; defaults to stdin")
	cmd.Flags().BoolVar(&noRescan, "no-rescan", false, "skip recomputing already-priced usage covered by the new interval")
	return cmd
}

func newPricingListCmd() *cobra.Command {
	var provider, model, activeAt string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pricing tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			var at *time.Time
			if activeAt != "" {
				t, err := time.Parse(time.RFC3339, activeAt)
				if err != nil {
					return err
				}
				at = &t
			}
			tables, err := appCtx.repos.Pricing.List(cmd.Context(), appCtx.db, optionalProvider(provider), optionalString(model), at)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(tables)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "provider filter")
	cmd.Flags().StringVar(&model, "model", "", "model name filter")
	cmd.Flags().StringVar(&activeAt, "active-at", "", "RFC3339 instant the table must be active at")
	return cmd
}

func newPricingGetCmd() *cobra.Command {
	var provider, model, at, region string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Resolve the pricing table covering an instant",
		RunE: func(cmd *cobra.Command, args []string) error {
			atT := time.Now().UTC()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return err
				}
				atT = t
			}
			table, err := appCtx.repos.Pricing.Resolve(cmd.Context(), appCtx.db, domain.Provider(provider), model, atT, optionalString(region))
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(table)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "provider (required)")
	cmd.Flags().StringVar(&model, "model", "", "model name (required)")
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 instant; defaults to now")
	cmd.Flags().StringVar(&region, "region", "", "region, if pricing is region-scoped")
	cmd.MarkFlagRequired("provider")
	cmd.MarkFlagRequired("model")
	return cmd
}

func newPricingCloseCmd() *cobra.Command {
	var id, endDate string

	cmd := &cobra.Command{
		Use:   "close",
		Short: "End an open pricing interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			previousID, err := ids.Parse(id)
			if err != nil {
				return err
			}
			end, err := time.Parse(time.RFC3339, endDate)
			if err != nil {
				return err
			}
			return appCtx.repos.Pricing.Close(cmd.Context(), appCtx.db, previousID, end)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "pricing table ID to close (required)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "RFC3339 end date (required)")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("end-date")
	return cmd
}
