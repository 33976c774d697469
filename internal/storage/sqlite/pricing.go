package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/pricing"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
)

type pricingRepo struct{}

const pricingColumns = `id, provider, model_name, effective_date, end_date, structure_kind, structure, currency, region`

func (r *pricingRepo) Insert(ctx context.Context, q storage.Querier, table *domain.PricingTable) error {
	if err := table.Validate(); err != nil {
		return err
	}
	if ids.IsNil(table.ID) {
		table.ID = ids.New()
	}
	overlapping, err := r.OverlappingIntervals(ctx, q, table.Provider, table.ModelName, table.Region, table.EffectiveDate, table.EndDate)
	if err != nil {
		return err
	}
	if len(overlapping) > 0 {
		return errs.PricingOverlapConflict(overlapping[0].ID)
	}
	structure, err := json.Marshal(table.Structure)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO pricing_tables (`+pricingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		table.ID.String(), string(table.Provider), table.ModelName, table.EffectiveDate, table.EndDate,
		string(table.Structure.Kind), structure, table.Currency, table.Region)
	return err
}

func (r *pricingRepo) Close(ctx context.Context, q storage.Querier, previousID ids.ID, endDate time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE pricing_tables SET end_date = ?
		WHERE id = ? AND end_date IS NULL AND effective_date < ?`, endDate, previousID.String(), endDate)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.Validation("previous_id", "no such open pricing interval, or end_date precedes effective_date")
	}
	return nil
}

func (r *pricingRepo) Resolve(ctx context.Context, q storage.Querier, provider domain.Provider, model string, at time.Time, region *string) (*domain.PricingTable, error) {
	candidates := []string{model}
	if normalized := pricing.NormalizeModelName(model); normalized != model {
		candidates = append(candidates, normalized)
	}
	for _, name := range candidates {
		if region != nil {
			if row, err := r.resolveOne(ctx, q, provider, name, at, region); err == nil {
				return row, nil
			} else if !errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
		}
		if row, err := r.resolveOne(ctx, q, provider, name, at, nil); err == nil {
			return row, nil
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}
	regionStr := ""
	if region != nil {
		regionStr = *region
	}
	return nil, errs.PricingNotFound(string(provider), model, at, regionStr)
}

func (r *pricingRepo) resolveOne(ctx context.Context, q storage.Querier, provider domain.Provider, model string, at time.Time, region *string) (*domain.PricingTable, error) {
	query := `
		SELECT ` + pricingColumns + ` FROM pricing_tables
		WHERE provider = ? AND lower(model_name) = lower(?) AND effective_date <= ?
		AND (end_date IS NULL OR end_date > ?)`
	args := []any{string(provider), model, at, at}
	if region != nil {
		query += ` AND region = ?`
		args = append(args, *region)
	} else {
		query += ` AND region IS NULL`
	}
	query += ` ORDER BY effective_date DESC LIMIT 1`
	return scanPricingTable(q.QueryRowContext(ctx, query, args...))
}

func (r *pricingRepo) List(ctx context.Context, q storage.Querier, provider *domain.Provider, model *string, activeAt *time.Time) ([]domain.PricingTable, error) {
	query := `SELECT ` + pricingColumns + ` FROM pricing_tables WHERE 1=1`
	var args []any
	if provider != nil {
		query += ` AND provider = ?`
		args = append(args, string(*provider))
	}
	if model != nil {
		query += ` AND lower(model_name) = lower(?)`
		args = append(args, *model)
	}
	if activeAt != nil {
		query += ` AND effective_date <= ? AND (end_date IS NULL OR end_date > ?)`
		args = append(args, *activeAt, *activeAt)
	}
	query += ` ORDER BY effective_date ASC, id ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.PricingTable, 0)
	for rows.Next() {
		t, err := scanPricingTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *pricingRepo) OverlappingIntervals(ctx context.Context, q storage.Querier, provider domain.Provider, model string, region *string, effective time.Time, end *time.Time) ([]domain.PricingTable, error) {
	farFuture := time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	endBound := farFuture
	if end != nil {
		endBound = *end
	}
	query := `
		SELECT ` + pricingColumns + ` FROM pricing_tables
		WHERE provider = ? AND lower(model_name) = lower(?)
		AND effective_date < ?
		AND COALESCE(end_date, ?) > ?`
	args := []any{string(provider), model, endBound, farFuture, effective}
	if region != nil {
		query += ` AND region = ?`
		args = append(args, *region)
	} else {
		query += ` AND region IS NULL`
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.PricingTable, 0)
	for rows.Next() {
		t, err := scanPricingTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanPricingTable(row rowScanner) (*domain.PricingTable, error) {
	var t domain.PricingTable
	var id, provider, kind string
	var region *string
	var structure []byte
	if err := row.Scan(&id, &provider, &t.ModelName, &t.EffectiveDate, &t.EndDate, &kind, &structure, &t.Currency, &region); err != nil {
		return nil, err
	}
	parsed, err := ids.Parse(id)
	if err != nil {
		return nil, err
	}
	t.ID = parsed
	t.Provider = domain.Provider(provider)
	t.Region = region
	if err := json.Unmarshal(structure, &t.Structure); err != nil {
		return nil, err
	}
	t.Structure.Kind = domain.StructureKind(kind)
	t.EffectiveDate = t.EffectiveDate.UTC()
	if t.EndDate != nil {
		end := t.EndDate.UTC()
		t.EndDate = &end
	}
	return &t, nil
}
