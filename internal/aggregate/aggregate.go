// Package aggregate implements deterministic group-by summaries over cost
// records (spec §4.6). It consults cost records directly — it never
// re-prices — and works against any storage.CostRepository, so it runs
// unchanged over storage/postgres, storage/sqlite, or a test double.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/logx"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/money"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
)

// Dimension is one of the group-by axes spec §4.6 allows.
type Dimension string

const (
	ByProvider Dimension = "provider"
	ByModel    Dimension = "model"
	ByProject  Dimension = "project"
	ByUser     Dimension = "user"
	ByDay      Dimension = "day"
	ByWeek     Dimension = "week"
	ByMonth    Dimension = "month"
)

// CurrencyPolicy governs how summarize reacts to a window spanning more
// than one currency.
type CurrencyPolicy int

const (
	RequireSingleCurrency CurrencyPolicy = iota
	RejectMixed
)

// Filter narrows the cost records a summarize call considers.
type Filter struct {
	OrganizationID string
	ProjectID      *string
	Provider       *domain.Provider
	Model          *string
	TagsAnyOf      []string
	Start, End     time.Time
}

// GroupResult is one row of a summarize call's breakdown.
type GroupResult struct {
	Key                string
	TotalCost          money.Money
	TotalTokens        uint64
	RequestCount       int
	AvgCostPerRequest  money.Money
}

// SummaryResult is summarize's output: per-group rows plus an overall row
// (spec §4.6, §8 property 7: the overall row's total_cost equals the sum
// of the group rows' total_cost, which equals the sum of the underlying
// cost records' total_cost).
type SummaryResult struct {
	Groups       []GroupResult
	Overall      GroupResult
	Currency     string
	PendingCount int
}

// Aggregator runs summarize queries against a CostRepository and the
// usage records needed to resolve grouping dimensions (provider/model
// live on the usage record, not the cost record).
type Aggregator struct {
	costs storage.CostRepository
	usage storage.UsageRepository
	log   *slog.Logger
}

// New builds an Aggregator over the given repositories.
func New(costs storage.CostRepository, usage storage.UsageRepository) *Aggregator {
	return &Aggregator{costs: costs, usage: usage, log: logx.WithComponent("aggregate")}
}

// Summarize computes the group-by breakdown described by filter and
// groupBy (spec §4.6). Group ordering is lexicographic on the group key,
// ties broken by total_cost descending.
func (a *Aggregator) Summarize(ctx context.Context, q storage.Querier, filter Filter, groupBy []Dimension, policy CurrencyPolicy) (*SummaryResult, error) {
	costFilter := storage.CostFilter{
		OrganizationID: filter.OrganizationID,
		ProjectID:      filter.ProjectID,
		Provider:       filter.Provider,
		Model:          filter.Model,
		Tags:           filter.TagsAnyOf,
		Start:          filter.Start,
		End:            filter.End,
	}
	records, err := a.costs.ListCurrent(ctx, q, costFilter, storage.Page{Limit: 0})
	if err != nil {
		return nil, err
	}

	currencies := map[string]struct{}{}
	groups := map[string]*groupAccumulator{}
	overall := &groupAccumulator{}
	pending := 0

	for i := range records {
		rec := &records[i]
		currencies[rec.Currency] = struct{}{}
		if rec.Pending {
			pending++
			continue
		}

		usageRec, err := a.usage.GetByID(ctx, q, rec.UsageID)
		if err != nil {
			return nil, err
		}
		if usageRec == nil {
			continue
		}

		key := groupKey(groupBy, usageRec)
		g, ok := groups[key]
		if !ok {
			g = &groupAccumulator{key: key}
			groups[key] = g
		}
		g.add(rec, usageRec)
		overall.add(rec, usageRec)
	}

	if len(currencies) > 1 {
		names := make([]string, 0, len(currencies))
		for c := range currencies {
			names = append(names, c)
		}
		sort.Strings(names)
		return nil, errs.CurrencyMixed(names)
	}
	_ = policy // both policies reject mixed currencies; reserved for a future lenient mode

	currency := ""
	for c := range currencies {
		currency = c
	}

	out := make([]GroupResult, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.result())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].TotalCost.GreaterThan(out[j].TotalCost)
	})

	return &SummaryResult{
		Groups:       out,
		Overall:      overall.result(),
		Currency:     currency,
		PendingCount: pending,
	}, nil
}

type groupAccumulator struct {
	key          string
	totalCost    money.Money
	totalTokens  uint64
	requestCount int
}

func (g *groupAccumulator) add(rec *domain.CostRecord, usage *domain.UsageRecord) {
	if g.totalCost.IsZero() && g.requestCount == 0 {
		g.totalCost = money.Zero()
	}
	g.totalCost = g.totalCost.Add(rec.TotalCost)
	g.totalTokens += usage.TotalTokens
	g.requestCount++
}

func (g *groupAccumulator) result() GroupResult {
	avg := money.Zero()
	if g.requestCount > 0 {
		avg = money.RoundBank(g.totalCost.Div(decimal.NewFromInt(int64(g.requestCount))), money.DefaultScale)
	}
	total := g.totalCost
	if total.IsZero() {
		total = money.Zero()
	}
	return GroupResult{
		Key:               g.key,
		TotalCost:         total,
		TotalTokens:       g.totalTokens,
		RequestCount:      g.requestCount,
		AvgCostPerRequest: avg,
	}
}

func groupKey(dims []Dimension, usage *domain.UsageRecord) string {
	if len(dims) == 0 {
		return "all"
	}
	parts := make([]string, 0, len(dims))
	for _, d := range dims {
		switch d {
		case ByProvider:
			parts = append(parts, string(usage.Provider))
		case ByModel:
			parts = append(parts, usage.Model.Name)
		case ByProject:
			if usage.ProjectID != nil {
				parts = append(parts, *usage.ProjectID)
			} else {
				parts = append(parts, "")
			}
		case ByUser:
			if usage.UserID != nil {
				parts = append(parts, *usage.UserID)
			} else {
				parts = append(parts, "")
			}
		case ByDay:
			parts = append(parts, usage.Timestamp.Format("2006-01-02"))
		case ByWeek:
			year, week := usage.Timestamp.ISOWeek()
			parts = append(parts, fmt.Sprintf("%04d-W%02d", year, week))
		case ByMonth:
			parts = append(parts, usage.Timestamp.Format("2006-01"))
		}
	}
	return strings.Join(parts, "|")
}

