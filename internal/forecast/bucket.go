// Package forecast implements the engine's time-series forecasting and
// anomaly detection subsystem (spec §4.8): linear regression, moving
// average, and single exponential smoothing forecasts with confidence
// intervals, plus z-score/IQR anomaly detection and budget projection.
// It is grounded on the bucketing-and-regression shape of a cost
// forecaster found elsewhere in the ecosystem, adapted to the engine's
// own cost-record storage and decimal money type.
package forecast

import (
	"context"
	"sort"
	"time"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
)

// BucketWidth is one of the fixed-width intervals the forecaster can
// group cost records into (spec §4.8 "Bucketing").
type BucketWidth string

const (
	BucketHour  BucketWidth = "hour"
	BucketDay   BucketWidth = "day"
	BucketWeek  BucketWidth = "week"
	BucketMonth BucketWidth = "month"
)

// truncate rounds t down to the start of its bucket in UTC.
func (b BucketWidth) truncate(t time.Time) time.Time {
	t = t.UTC()
	switch b {
	case BucketHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case BucketWeek:
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		// ISO week starts Monday; time.Weekday Sunday==0.
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	case BucketMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // BucketDay
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// next returns the start of the bucket following t.
func (b BucketWidth) next(t time.Time) time.Time {
	switch b {
	case BucketHour:
		return t.Add(time.Hour)
	case BucketWeek:
		return t.AddDate(0, 0, 7)
	case BucketMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Point is one bucket of a bucketed cost series.
type Point struct {
	Bucket time.Time
	Value  float64
}

// Series is an evenly spaced, zero-filled sequence of bucketed cost
// totals, in ascending bucket order.
type Series struct {
	Width  BucketWidth
	Points []Point
}

// BuildSeries queries cost over [start, end) for the organization and
// reduces it into an evenly spaced series, bucketed by the usage record's
// timestamp (the same "day/week/month" a summarize call groups by, spec
// §4.6) rather than when the cost happened to be calculated. Buckets with
// no activity are zero-filled (spec §4.8 "Bucketing"). It consults
// current (non-superseded) cost records directly, consistent with the
// aggregator's rule that pending records are excluded from totals.
func BuildSeries(ctx context.Context, q storage.Querier, costs storage.CostRepository, usage storage.UsageRepository, organizationID string, start, end time.Time, width BucketWidth) (Series, error) {
	filter := storage.CostFilter{OrganizationID: organizationID, Start: start, End: end}
	records, err := costs.ListCurrent(ctx, q, filter, storage.Page{Limit: 0})
	if err != nil {
		return Series{}, err
	}

	totals := map[time.Time]float64{}
	for i := range records {
		rec := &records[i]
		if rec.Pending {
			continue
		}
		usageRec, err := usage.GetByID(ctx, q, rec.UsageID)
		if err != nil {
			return Series{}, err
		}
		if usageRec == nil {
			continue
		}
		key := width.truncate(usageRec.Timestamp)
		f, _ := rec.TotalCost.Float64()
		totals[key] += f
	}

	return zeroFill(totals, start, end, width), nil
}

func zeroFill(totals map[time.Time]float64, start, end time.Time, width BucketWidth) Series {
	points := make([]Point, 0, len(totals))
	for cur := width.truncate(start); cur.Before(end); cur = width.next(cur) {
		points = append(points, Point{Bucket: cur, Value: totals[cur]})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Bucket.Before(points[j].Bucket) })
	return Series{Width: width, Points: points}
}

// values extracts the series' values in bucket order, the fixed summation
// order spec §4.8's determinism clause requires.
func (s Series) values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// minHistory is the minimum bucket count spec §4.8 requires before a
// forecast or anomaly scan may run: max(7, 2*window).
func minHistory(window int) int {
	need := 2 * window
	if need < 7 {
		need = 7
	}
	return need
}

func requireHistory(have, window int) error {
	need := minHistory(window)
	if have < need {
		return errs.InsufficientHistory(have, need)
	}
	return nil
}
