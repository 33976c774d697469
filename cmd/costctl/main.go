package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/config"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
)

// Exit codes per spec §6's CLI sketch.
const (
	exitOK          = 0
	exitValidation  = 64
	exitUnavailable = 69
	exitInternal    = 70
)

var appCtx *app

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func newRootCmd() *cobra.Command {
	var databaseURL string

	root := &cobra.Command{
		Use:           "costctl",
		Short:         "Thin CLI over the LLM cost-tracking core engine",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if databaseURL != "" {
				cfg.DatabaseURL = databaseURL
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			appCtx = a
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if appCtx != nil {
				appCtx.close()
			}
		},
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", "", "storage DSN (postgres:// or a sqlite file path); overrides DATABASE_URL")
	root.PersistentFlags().StringVar(&redisAddr, "redis-addr", "", "Redis address for the pricing cache; empty uses the in-process cache")

	root.AddCommand(
		newIngestCmd(),
		newIngestKafkaCmd(),
		newQueryCmd(),
		newSummaryCmd(),
		newExportCmd(),
		newPricingCmd(),
		newBackfillCmd(),
		newForecastCmd(),
	)

	return root
}

// exitCodeFor maps the engine's closed error taxonomy onto the CLI's exit
// codes (spec §6: 0 success, 64 validation, 69 upstream unavailable, 70
// internal).
func exitCodeFor(err error) int {
	var e *errs.Error
	if !errors.As(err, &e) {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitInternal
	}
	fmt.Fprintln(os.Stderr, "error:", e.Error())

	switch e.Kind {
	case errs.KindDuplicateIngest:
		return exitOK
	case errs.KindValidation, errs.KindPricingNotFound, errs.KindPricingOverlapConflict,
		errs.KindPricingStructureMismatch, errs.KindCurrencyMixed, errs.KindInsufficientHistory,
		errs.KindArithmeticOverflow:
		return exitValidation
	case errs.KindPersistence, errs.KindTimeout, errs.KindCancelled:
		return exitUnavailable
	default:
		return exitInternal
	}
}
