package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/money"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
)

type costRepo struct{}

const costColumns = `id, usage_id, input_cost, output_cost, total_cost, currency, pricing_table_id, pricing_snapshot, calculated_at, pending`

// Insert always appends a new row; recalculation never updates one in
// place, so CurrentByUsageID/ListCurrent select by latest calculated_at
// (spec §4.7, §8 property 8).
func (r *costRepo) Insert(ctx context.Context, q storage.Querier, cost *domain.CostRecord) error {
	snapshot, err := json.Marshal(cost.PricingSnapshot)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO cost_records (`+costColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		cost.ID, cost.UsageID, cost.InputCost.String(), cost.OutputCost.String(), cost.TotalCost.String(),
		cost.Currency, cost.PricingTableID, snapshot, cost.CalculatedAt, cost.Pending)
	return err
}

func (r *costRepo) CurrentByUsageID(ctx context.Context, q storage.Querier, usageID ids.ID) (*domain.CostRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+costColumns+` FROM cost_records
		WHERE usage_id = $1 ORDER BY calculated_at DESC, id DESC LIMIT 1`, usageID)
	rec, err := scanCostRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (r *costRepo) ListCurrent(ctx context.Context, q storage.Querier, filter storage.CostFilter, page storage.Page) ([]domain.CostRecord, error) {
	query := `
		SELECT DISTINCT ON (c.usage_id) ` + qualify("c", costColumns) + `
		FROM cost_records c
		JOIN usage_records u ON u.id = c.usage_id
		WHERE u.organization_id = $1 AND c.calculated_at >= $2 AND c.calculated_at <= $3`
	args := []any{filter.OrganizationID, filter.Start, filter.End}
	if filter.ProjectID != nil {
		args = append(args, *filter.ProjectID)
		query += " AND u.project_id = $" + itoa(len(args))
	}
	if filter.Provider != nil {
		args = append(args, *filter.Provider)
		query += " AND u.provider = $" + itoa(len(args))
	}
	if filter.Model != nil {
		args = append(args, *filter.Model)
		query += " AND u.model_name = $" + itoa(len(args))
	}
	query += ` ORDER BY c.usage_id, c.calculated_at DESC, c.id DESC`
	// A zero Limit returns every matching record; the aggregator, the
	// forecaster and export pass Page{Limit: 0} for the whole window.
	if page.Limit > 0 {
		args = append(args, page.Limit)
		query += ` LIMIT $` + itoa(len(args))
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.CostRecord, 0)
	for rows.Next() {
		rec, err := scanCostRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// PendingUsageIDs returns usage IDs with no cost record yet, or whose
// latest cost record is Pending, for the async worker pool to drain
// (spec §4.4, §12 feature 5).
func (r *costRepo) PendingUsageIDs(ctx context.Context, q storage.Querier, limit int) ([]ids.ID, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.QueryContext(ctx, `
		SELECT u.id FROM usage_records u
		LEFT JOIN LATERAL (
			SELECT pending FROM cost_records c
			WHERE c.usage_id = u.id
			ORDER BY c.calculated_at DESC, c.id DESC LIMIT 1
		) latest ON true
		WHERE latest.pending IS NULL OR latest.pending = true
		ORDER BY u.ts ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ids.ID, 0)
	for rows.Next() {
		var id ids.ID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanCostRecord(row rowScanner) (*domain.CostRecord, error) {
	var rec domain.CostRecord
	var inputCost, outputCost, totalCost string
	var snapshot []byte
	if err := row.Scan(
		&rec.ID, &rec.UsageID, &inputCost, &outputCost, &totalCost,
		&rec.Currency, &rec.PricingTableID, &snapshot, &rec.CalculatedAt, &rec.Pending,
	); err != nil {
		return nil, err
	}
	var err error
	if rec.InputCost, err = money.Parse(inputCost); err != nil {
		return nil, err
	}
	if rec.OutputCost, err = money.Parse(outputCost); err != nil {
		return nil, err
	}
	if rec.TotalCost, err = money.Parse(totalCost); err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &rec.PricingSnapshot); err != nil {
			return nil, err
		}
	}
	rec.CalculatedAt = rec.CalculatedAt.UTC()
	return &rec, nil
}

func qualify(alias, columns string) string {
	return alias + "." + strings.ReplaceAll(columns, ", ", ", "+alias+".")
}
