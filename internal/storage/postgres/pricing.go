package postgres

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

// Insert rejects a table whose interval intersects an existing one in the
// same (provider, model, region) group, checked through OverlappingIntervals
// on q before the write. The schema carries no exclusion constraint, so the
// check and the write are only serialized when q is a serializable
// transaction.
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		table.ID, table.Provider, table.ModelName, table.EffectiveDate, table.EndDate,
		table.Structure.Kind, structure, table.Currency, table.Region)
	return err
}

func (r *pricingRepo) Close(ctx context.Context, q storage.Querier, previousID ids.ID, endDate time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE pricing_tables SET end_date = $1
		WHERE id = $2 AND end_date IS NULL AND effective_date < $1`, endDate, previousID)
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

// Resolve tries the exact model name before the normalized fallback name,
// region-specific before regionless, matching InMemoryStore's precedence
// (spec §12 feature 1).
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
		WHERE provider = $1 AND lower(model_name) = lower($2) AND effective_date <= $3
		AND (end_date IS NULL OR end_date > $3)`
	args := []any{provider, model, at}
	if region != nil {
		args = append(args, *region)
		query += ` AND region = $` + itoa(len(args))
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
		args = append(args, *provider)
		query += ` AND provider = $` + itoa(len(args))
	}
	if model != nil {
		args = append(args, *model)
		query += ` AND lower(model_name) = lower($` + itoa(len(args)) + `)`
	}
	if activeAt != nil {
		args = append(args, *activeAt, *activeAt)
		query += ` AND effective_date <= $` + itoa(len(args)-1) + ` AND (end_date IS NULL OR end_date > $` + itoa(len(args)) + `)`
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
	endExpr := "'9999-01-01'::timestamptz"
	args := []any{provider, model}
	query := `
		SELECT ` + pricingColumns + ` FROM pricing_tables
		WHERE provider = $1 AND lower(model_name) = lower($2)
		AND effective_date < COALESCE($` + itoa(len(args)+1) + `::timestamptz, ` + endExpr + `)`
	var endArg any
	if end != nil {
		endArg = *end
	}
	args = append(args, endArg)
	args = append(args, effective)
	query += ` AND COALESCE(end_date, ` + endExpr + `) > $` + itoa(len(args))
	if region != nil {
		args = append(args, *region)
		query += ` AND region = $` + itoa(len(args))
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
	var kind string
	var structure []byte
	if err := row.Scan(&t.ID, &t.Provider, &t.ModelName, &t.EffectiveDate, &t.EndDate, &kind, &structure, &t.Currency, &t.Region); err != nil {
		return nil, err
	}
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
