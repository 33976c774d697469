package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/forecast"
)

// newForecastCmd implements the forecast engine's surface (spec §4.8):
// point-forecast, anomaly detection, and budget projection, each over a
// bucketed historical cost series.
func newForecastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Project future cost and flag anomalies",
	}
	cmd.AddCommand(newForecastRunCmd(), newForecastAnomaliesCmd(), newForecastBudgetCmd())
	return cmd
}

func newForecastRunCmd() *cobra.Command {
	var orgID, start, end, width, model string
	var window, horizon int
	var confidence float64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Project cost forward from the historical series",
		RunE: func(cmd *cobra.Command, args []string) error {
			startT, endT, err := parseRange(start, end)
			if err != nil {
				return err
			}
			opts := forecast.Options{
				Model:           forecast.Model(model),
				Window:          window,
				ConfidenceLevel: confidence,
				Horizon:         horizon,
			}
			result, err := appCtx.forecaster.Forecast(cmd.Context(), appCtx.db, orgID, startT, endT, forecast.BucketWidth(width), opts)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(result)
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organization_id (required)")
	cmd.Flags().StringVar(&start, "start", "", "RFC3339 window start, inclusive (required)")
	cmd.Flags().StringVar(&end, "end", "", "RFC3339 window end, exclusive (required)")
	cmd.Flags().StringVar(&width, "bucket", string(forecast.BucketDay), "bucket width: hour, day, week, or month")
	cmd.Flags().StringVar(&model, "model", string(forecast.ModelLinear), "forecast model: linear, moving_average, or exponential_smoothing")
	cmd.Flags().IntVar(&window, "window", 0, "moving-average window; 0 uses the model default")
	cmd.Flags().IntVar(&horizon, "horizon", 1, "number of buckets to project forward")
	cmd.Flags().Float64Var(&confidence, "confidence", forecast.DefaultConfidenceLevel, "confidence level for the projection interval")
	cmd.MarkFlagRequired("org")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

func newForecastAnomaliesCmd() *cobra.Command {
	var orgID, start, end, width, method string
	var threshold float64

	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Flag buckets outside the historical series' envelope",
		RunE: func(cmd *cobra.Command, args []string) error {
			startT, endT, err := parseRange(start, end)
			if err != nil {
				return err
			}
			opts := forecast.AnomalyOptions{
				Method:     forecast.AnomalyMethod(method),
				ZThreshold: threshold,
			}
			anomalies, err := appCtx.forecaster.DetectAnomalies(cmd.Context(), appCtx.db, orgID, startT, endT, forecast.BucketWidth(width), opts)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(anomalies)
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organization_id (required)")
	cmd.Flags().StringVar(&start, "start", "", "RFC3339 window start, inclusive (required)")
	cmd.Flags().StringVar(&end, "end", "", "RFC3339 window end, exclusive (required)")
	cmd.Flags().StringVar(&width, "bucket", string(forecast.BucketDay), "bucket width: hour, day, week, or month")
	cmd.Flags().StringVar(&method, "method", string(forecast.MethodZScore), "detector: zscore or iqr")
	cmd.Flags().Float64Var(&threshold, "threshold", forecast.DefaultZThreshold, "zscore method only: |z| threshold")
	cmd.MarkFlagRequired("org")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

func newForecastBudgetCmd() *cobra.Command {
	var orgID, start, end, width, model string
	var window, horizon int
	var confidence, budget, spentSoFar float64

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Project spend against a budget for the period",
		RunE: func(cmd *cobra.Command, args []string) error {
			startT, endT, err := parseRange(start, end)
			if err != nil {
				return err
			}
			opts := forecast.Options{
				Model:           forecast.Model(model),
				Window:          window,
				ConfidenceLevel: confidence,
				Horizon:         horizon,
			}
			result, err := appCtx.forecaster.ProjectBudget(cmd.Context(), appCtx.db, orgID, startT, endT, forecast.BucketWidth(width), opts, budget, spentSoFar)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(result)
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organization_id (required)")
	cmd.Flags().StringVar(&start, "start", "", "RFC3339 window start, inclusive (required)")
	cmd.Flags().StringVar(&end, "end", "", "RFC3339 window end, exclusive (required)")
	cmd.Flags().StringVar(&width, "bucket", string(forecast.BucketDay), "bucket width: hour, day, week, or month")
	cmd.Flags().StringVar(&model, "model", string(forecast.ModelLinear), "forecast model: linear, moving_average, or exponential_smoothing")
	cmd.Flags().IntVar(&window, "window", 0, "moving-average window; 0 uses the model default")
	cmd.Flags().IntVar(&horizon, "horizon", 1, "number of buckets to project forward")
	cmd.Flags().Float64Var(&confidence, "confidence", forecast.DefaultConfidenceLevel, "confidence level for the projection interval")
	cmd.Flags().Float64Var(&budget, "budget", 0, "total allowed spend for the period (required)")
	cmd.Flags().Float64Var(&spentSoFar, "spent", 0, "cost already incurred in the current period")
	cmd.MarkFlagRequired("org")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	cmd.MarkFlagRequired("budget")
	return cmd
}
