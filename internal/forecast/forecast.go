package forecast

import (
	"context"
	"log/slog"
	"time"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/clock"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/events"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/logx"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
)

// TrendDirection summarizes a series' recent direction of travel.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// trendChangeThreshold is the average-bucket-over-bucket change below
// which the series is considered stable rather than trending.
const trendChangeThreshold = 0.01

// Options configures a single Forecast call.
type Options struct {
	Model           Model
	Window          int     // moving average window; 0 -> DefaultWindow
	Alpha           *float64 // exponential smoothing; nil -> grid-fit
	ConfidenceLevel float64  // 0 -> DefaultConfidenceLevel
	Horizon         int      // number of buckets to project forward
}

// Interval is a symmetric confidence interval around a point forecast.
type Interval struct {
	Lower, Upper, Level float64
}

// ProjectedPoint is one forecast bucket.
type ProjectedPoint struct {
	Bucket time.Time
	Value  float64
	Interval
}

// Trend describes the historical series' direction and growth.
type Trend struct {
	Direction  TrendDirection
	GrowthRate float64 // percent change from first to last observation
}

// Result is a completed forecast run (spec §4.8, emitted as the
// forecast.generated event).
type Result struct {
	Model       Model
	Points      []ProjectedPoint
	Trend       Trend
	GeneratedAt time.Time
}

// Forecaster runs forecast and anomaly-detection operations over a
// bucketed cost series.
type Forecaster struct {
	costs storage.CostRepository
	usage storage.UsageRepository
	clock clock.Clock
	sink  events.Sink
	log   *slog.Logger
}

// Option configures a Forecaster.
type Option func(*Forecaster)

// WithSink attaches the observability sink events are emitted through
// (spec §6's observability contract). The default is events.NoopSink{}.
func WithSink(sink events.Sink) Option {
	return func(f *Forecaster) { f.sink = sink }
}

// New builds a Forecaster over the given repositories.
func New(costs storage.CostRepository, usage storage.UsageRepository, c clock.Clock, opts ...Option) *Forecaster {
	if c == nil {
		c = clock.NewSystem()
	}
	f := &Forecaster{costs: costs, usage: usage, clock: c, sink: events.NoopSink{}, log: logx.WithComponent("forecast")}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forecast bucketizes cost for the organization over [start, end), fits
// the requested model, and projects opts.Horizon buckets forward with a
// symmetric confidence interval (spec §4.8). It returns InsufficientHistory
// if the series has fewer than max(7, 2*window) buckets.
func (f *Forecaster) Forecast(ctx context.Context, q storage.Querier, organizationID string, start, end time.Time, width BucketWidth, opts Options) (*Result, error) {
	series, err := BuildSeries(ctx, q, f.costs, f.usage, organizationID, start, end, width)
	if err != nil {
		return nil, err
	}
	result, err := f.forecastSeries(series, opts)
	if err != nil {
		return nil, err
	}
	f.sink.Emit(ctx, events.NewForecastGenerated(organizationID, string(result.Model), len(result.Points), string(result.Trend.Direction), result.GeneratedAt))
	return result, nil
}

func (f *Forecaster) forecastSeries(series Series, opts Options) (*Result, error) {
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

	model, forecastAt, residualStd := fitModel(values, opts.Model, window, opts.Alpha)

	margin := z * residualStd
	last := series.Points[len(series.Points)-1].Bucket
	points := make([]ProjectedPoint, 0, opts.Horizon)
	for step := 1; step <= opts.Horizon; step++ {
		bucketTime := last
		for i := 0; i < step; i++ {
			bucketTime = series.Width.next(bucketTime)
		}
		value := forecastAt(step)
		points = append(points, ProjectedPoint{
			Bucket: bucketTime,
			Value:  value,
			Interval: Interval{
				Lower: clampNonNegative(value - margin),
				Upper: value + margin,
				Level: level,
			},
		})
	}

	return &Result{
		Model:  model,
		Points: points,
		Trend: Trend{
			Direction:  trendDirection(values),
			GrowthRate: growthRate(values),
		},
		GeneratedAt: f.clock.Now(),
	}, nil
}

// fitModel dispatches to the requested model's fit function, returning
// the resolved model name, a function projecting stepsAhead buckets past
// the end of the historical series, and the model's in-sample residual
// standard deviation.
func fitModel(values []float64, requested Model, window int, alpha *float64) (Model, func(stepsAhead int) float64, float64) {
	model := requested
	if model == "" {
		model = ModelLinear
	}

	switch model {
	case ModelMovingAverage:
		fc, rstd := movingAverageFit(values, window)
		return model, func(int) float64 { return fc }, rstd // flat projection
	case ModelExponentialSmoothing:
		fc, rstd, _ := exponentialSmoothingFit(values, alpha)
		return model, func(int) float64 { return fc }, rstd // flat projection
	default:
		a, b, rstd := linearFit(values)
		lastIndex := len(values) - 1
		return ModelLinear, func(stepsAhead int) float64 { return a + b*float64(lastIndex+stepsAhead) }, rstd
	}
}

// trendDirection classifies the average bucket-over-bucket change of the
// last three observations (falling back to the full series when fewer
// than three are available).
func trendDirection(values []float64) TrendDirection {
	if len(values) < 2 {
		return TrendStable
	}
	recent := values
	if len(values) > 3 {
		recent = values[len(values)-3:]
	}
	sum := 0.0
	for i := 1; i < len(recent); i++ {
		sum += recent[i] - recent[i-1]
	}
	avg := sum / float64(len(recent)-1)
	switch {
	case avg > trendChangeThreshold:
		return TrendIncreasing
	case avg < -trendChangeThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// growthRate is the percent change from the series' first to last
// observation; 0 when undefined (fewer than two points, or a zero base).
func growthRate(values []float64) float64 {
	if len(values) < 2 || values[0] == 0 {
		return 0
	}
	return ((values[len(values)-1] - values[0]) / values[0]) * 100
}
