package forecast

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/events"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
)

// AnomalyMethod selects a detector (spec §4.8 "Anomaly detection").
type AnomalyMethod string

const (
	MethodZScore AnomalyMethod = "zscore"
	MethodIQR    AnomalyMethod = "iqr"
)

// Anomaly flags one bucket whose observed value lies outside the
// detector's threshold envelope.
type Anomaly struct {
	Bucket time.Time
	Value  float64
	Score  float64 // z-score for MethodZScore, distance from the nearer IQR fence for MethodIQR
}

// AnomalyOptions configures a DetectAnomalies call.
type AnomalyOptions struct {
	Method    AnomalyMethod
	ZThreshold float64 // MethodZScore only; 0 -> DefaultZThreshold
}

// DetectAnomalies bucketizes cost for the organization over [start, end)
// and flags buckets outside the chosen detector's envelope (spec §4.8).
func (f *Forecaster) DetectAnomalies(ctx context.Context, q storage.Querier, organizationID string, start, end time.Time, width BucketWidth, opts AnomalyOptions) ([]Anomaly, error) {
	series, err := BuildSeries(ctx, q, f.costs, f.usage, organizationID, start, end, width)
	if err != nil {
		return nil, err
	}
	anomalies, err := detectAnomalies(series, opts)
	if err != nil {
		return nil, err
	}
	method := string(opts.Method)
	if method == "" {
		method = string(MethodZScore)
	}
	now := f.clock.Now()
	for _, a := range anomalies {
		f.sink.Emit(ctx, events.NewAnomalyDetected(organizationID, method, a.Bucket, a.Value, a.Score, now))
	}
	return anomalies, nil
}

func detectAnomalies(series Series, opts AnomalyOptions) ([]Anomaly, error) {
	values := series.values()
	if err := requireHistory(len(values), 0); err != nil {
		return nil, err
	}

	switch opts.Method {
	case MethodIQR:
		return detectIQR(series), nil
	default:
		threshold := opts.ZThreshold
		if threshold <= 0 {
			threshold = DefaultZThreshold
		}
		return detectZScore(series, threshold), nil
	}
}

func detectZScore(series Series, threshold float64) []Anomaly {
	values := series.values()
	mu := mean(values)
	sigma := stddev(values)
	if sigma == 0 {
		return nil
	}
	var out []Anomaly
	for _, p := range series.Points {
		z := (p.Value - mu) / sigma
		if math.Abs(z) > threshold {
			out = append(out, Anomaly{Bucket: p.Bucket, Value: p.Value, Score: z})
		}
	}
	return out
}

func detectIQR(series Series) []Anomaly {
	values := append([]float64(nil), series.values()...)
	sort.Float64s(values)
	q1 := percentile(values, 0.25)
	q3 := percentile(values, 0.75)
	iqr := q3 - q1
	lowerFence := q1 - 1.5*iqr
	upperFence := q3 + 1.5*iqr

	var out []Anomaly
	for _, p := range series.Points {
		switch {
		case p.Value < lowerFence:
			out = append(out, Anomaly{Bucket: p.Bucket, Value: p.Value, Score: lowerFence - p.Value})
		case p.Value > upperFence:
			out = append(out, Anomaly{Bucket: p.Bucket, Value: p.Value, Score: p.Value - upperFence})
		}
	}
	return out
}

// percentile computes the pth percentile of a pre-sorted slice using
// linear interpolation between closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
