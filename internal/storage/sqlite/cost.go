package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/money"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
)

type costRepo struct{}

const costColumns = `id, usage_id, input_cost, output_cost, total_cost, currency, pricing_table_id, pricing_snapshot, calculated_at, pending`

func (r *costRepo) Insert(ctx context.Context, q storage.Querier, cost *domain.CostRecord) error {
	snapshot, err := json.Marshal(cost.PricingSnapshot)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO cost_records (`+costColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cost.ID.String(), cost.UsageID.String(), cost.InputCost.String(), cost.OutputCost.String(), cost.TotalCost.String(),
		cost.Currency, cost.PricingTableID.String(), snapshot, cost.CalculatedAt, cost.Pending)
	return err
}

func (r *costRepo) CurrentByUsageID(ctx context.Context, q storage.Querier, usageID ids.ID) (*domain.CostRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+costColumns+` FROM cost_records
		WHERE usage_id = ? ORDER BY calculated_at DESC, id DESC LIMIT 1`, usageID.String())
	rec, err := scanCostRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (r *costRepo) ListCurrent(ctx context.Context, q storage.Querier, filter storage.CostFilter, page storage.Page) ([]domain.CostRecord, error) {
	query := `
		SELECT c.id, c.usage_id, c.input_cost, c.output_cost, c.total_cost, c.currency, c.pricing_table_id, c.pricing_snapshot, c.calculated_at, c.pending
		FROM cost_records c
		JOIN usage_records u ON u.id = c.usage_id
		WHERE u.organization_id = ? AND c.calculated_at >= ? AND c.calculated_at <= ?`
	args := []any{filter.OrganizationID, filter.Start, filter.End}
	if filter.ProjectID != nil {
		query += ` AND u.project_id = ?`
		args = append(args, *filter.ProjectID)
	}
	if filter.Provider != nil {
		query += ` AND u.provider = ?`
		args = append(args, string(*filter.Provider))
	}
	if filter.Model != nil {
		query += ` AND u.model_name = ?`
		args = append(args, *filter.Model)
	}
	query += `
		AND c.id IN (
			SELECT c2.id FROM cost_records c2
			WHERE c2.usage_id = c.usage_id
			ORDER BY c2.calculated_at DESC, c2.id DESC LIMIT 1
		)
		ORDER BY c.usage_id, c.calculated_at DESC, c.id DESC`
	// A zero Limit returns every matching record; the aggregator, the
	// forecaster and export pass Page{Limit: 0} for the whole window.
	if page.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, page.Limit)
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

func (r *costRepo) PendingUsageIDs(ctx context.Context, q storage.Querier, limit int) ([]ids.ID, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.QueryContext(ctx, `
		SELECT u.id FROM usage_records u
		LEFT JOIN cost_records c ON c.usage_id = u.id AND c.id = (
			SELECT c2.id FROM cost_records c2 WHERE c2.usage_id = u.id ORDER BY c2.calculated_at DESC, c2.id DESC LIMIT 1
		)
		WHERE c.id IS NULL OR c.pending = 1
		ORDER BY u.ts ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ids.ID, 0)
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		id, err := ids.Parse(idStr)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanCostRecord(row rowScanner) (*domain.CostRecord, error) {
	var rec domain.CostRecord
	var id, usageID, pricingTableID, inputCost, outputCost, totalCost string
	var snapshot []byte
	var pending int
	if err := row.Scan(
		&id, &usageID, &inputCost, &outputCost, &totalCost,
		&rec.Currency, &pricingTableID, &snapshot, &rec.CalculatedAt, &pending,
	); err != nil {
		return nil, err
	}
	var err error
	if rec.ID, err = ids.Parse(id); err != nil {
		return nil, err
	}
	if rec.UsageID, err = ids.Parse(usageID); err != nil {
		return nil, err
	}
	if rec.PricingTableID, err = ids.Parse(pricingTableID); err != nil {
		return nil, err
	}
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
	rec.Pending = pending != 0
	rec.CalculatedAt = rec.CalculatedAt.UTC()
	return &rec, nil
}
