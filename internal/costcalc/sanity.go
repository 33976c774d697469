package costcalc

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/logx"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/money"
)

// DefaultSuspiciousCostThreshold is logged as a warning, never a hard
// failure, when a single cost record's total exceeds it. Grounded on the
// teacher's Calculator.Validate $100 suspicious-cost check.
var DefaultSuspiciousCostThreshold = decimal.NewFromInt(100)

// Sanitizer runs a post-calculation defense-in-depth check: non-negativity,
// input+output==total, and a configurable high-cost warning. It never
// rejects a record the calculator already produced; it only reports.
type Sanitizer struct {
	threshold decimal.Decimal
	log       *slog.Logger
}

// NewSanitizer builds a Sanitizer with the given warning threshold.
func NewSanitizer(threshold decimal.Decimal) *Sanitizer {
	return &Sanitizer{threshold: threshold, log: logx.WithComponent("costcalc.sanity")}
}

// Sanity runs the checks, returning an error only for structural
// violations (negative cost, sum mismatch) that indicate a calculator bug
// rather than a merely unusual result.
func (s *Sanitizer) Sanity(record *domain.CostRecord) error {
	if record == nil {
		return errs.Validation("record", "must not be nil")
	}
	if money.IsNegative(record.InputCost) || money.IsNegative(record.OutputCost) || money.IsNegative(record.TotalCost) {
		return errs.Validation("cost", "input_cost, output_cost, and total_cost must be non-negative")
	}
	if !record.InputCost.Add(record.OutputCost).Equal(record.TotalCost) {
		return errs.Validation("total_cost", "must equal input_cost + output_cost")
	}
	if record.TotalCost.GreaterThan(s.threshold) {
		s.log.Warn("cost record exceeds sanity threshold", "usage_id", record.UsageID, "total_cost", record.TotalCost.String(), "threshold", s.threshold.String())
	}
	return nil
}
