package forecast

import (
	"context"
	"math"
	"time"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
)

// BudgetResult is the outcome of a budget projection (spec §4.8
// "Budget projection").
type BudgetResult struct {
	// ForecastAtPeriodEnd is the projected cumulative spend at the end of
	// the projected period: spentSoFar plus the point forecast of every
	// projected bucket.
	ForecastAtPeriodEnd float64
	// ProbabilityOfExceedance is P(actual spend for the period > budget),
	// approximated via the residual-sigma normal model.
	ProbabilityOfExceedance float64
	// WarningBucket is the first projected bucket whose confidence
	// interval's lower bound alone exceeds the remaining budget, nil if
	// none does within the projected horizon.
	WarningBucket *time.Time
}

// ProjectBudget forecasts organizationID's cost over horizon buckets past
// [start, end) and evaluates it against budget, the total allowed spend
// for the period (spec §4.8). spentSoFar is the cost already incurred in
// the current period and is added to every projected bucket's cumulative
// total before comparison against budget.
func (f *Forecaster) ProjectBudget(ctx context.Context, q storage.Querier, organizationID string, start, end time.Time, width BucketWidth, opts Options, budget, spentSoFar float64) (*BudgetResult, error) {
	series, err := BuildSeries(ctx, q, f.costs, f.usage, organizationID, start, end, width)
	if err != nil {
		return nil, err
	}
	return projectBudget(series, opts, budget, spentSoFar)
}

func projectBudget(series Series, opts Options, budget, spentSoFar float64) (*BudgetResult, error) {
	values := series.values()
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	if err := requireHistory(len(values), window); err != nil {
		return nil, err
	}
	if opts.Horizon <= 0 {
		opts.Horizon = 1
	}

	level := opts.ConfidenceLevel
	if level <= 0 {
		level = DefaultConfidenceLevel
	}
	z := zFor(level)

	_, forecastAt, residualStd := fitModel(values, opts.Model, window, opts.Alpha)
	margin := z * residualStd

	last := series.Points[len(series.Points)-1].Bucket
	cumulative := spentSoFar
	var warningBucket *time.Time

	for step := 1; step <= opts.Horizon; step++ {
		bucketTime := last
		for i := 0; i < step; i++ {
			bucketTime = series.Width.next(bucketTime)
		}
		value := forecastAt(step)
		cumulative += value
		lower := clampNonNegative(cumulative - margin)

		remaining := budget
		if warningBucket == nil && lower > remaining {
			t := bucketTime
			warningBucket = &t
		}
	}

	finalValue := spentSoFar
	for step := 1; step <= opts.Horizon; step++ {
		finalValue += forecastAt(step)
	}

	probability := 1.0
	if residualStd > 0 {
		// P(total > budget) for total ~ N(finalValue, residualStd):
		// 1 - CDF((budget - finalValue) / residualStd).
		zExcess := (budget - finalValue) / residualStd
		probability = 1 - normalCDF(zExcess)
	} else if finalValue <= budget {
		probability = 0
	}
	probability = math.Min(1, math.Max(0, probability))

	return &BudgetResult{
		ForecastAtPeriodEnd:     finalValue,
		ProbabilityOfExceedance: probability,
		WarningBucket:           warningBucket,
	}, nil
}

// normalCDF is the standard normal cumulative distribution function.
func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
