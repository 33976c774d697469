package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
)

type usageRepo struct{}

const usageColumns = `id, ts, provider, model_name, model_version, context_window, organization_id, project_id, user_id, prompt_tokens, completion_tokens, total_tokens, cached_tokens, reasoning_tokens, latency_ms, tags, metadata, ingested_at`

// Insert writes usage, returning inserted=false on an ID collision (spec §8
// property 5: re-ingesting the same ID is a no-op, not an error).
func (r *usageRepo) Insert(ctx context.Context, q storage.Querier, usage *domain.UsageRecord) (bool, error) {
	tags, err := json.Marshal(usage.Tags)
	if err != nil {
		return false, err
	}
	metadata, err := json.Marshal(usage.Metadata)
	if err != nil {
		return false, err
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO usage_records (`+usageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO NOTHING`,
		usage.ID, usage.Timestamp, usage.Provider, usage.Model.Name, usage.Model.Version, usage.Model.ContextWindow,
		usage.OrganizationID, usage.ProjectID, usage.UserID,
		usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens, usage.CachedTokens, usage.ReasoningTokens, usage.LatencyMs,
		tags, metadata, usage.IngestedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *usageRepo) GetByID(ctx context.Context, q storage.Querier, id ids.ID) (*domain.UsageRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT `+usageColumns+` FROM usage_records WHERE id = $1`, id)
	rec, err := scanUsageRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (r *usageRepo) List(ctx context.Context, q storage.Querier, filter storage.UsageFilter, page storage.Page) ([]domain.UsageRecord, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + usageColumns + ` FROM usage_records WHERE organization_id = $1 AND ts >= $2 AND ts <= $3`
	args := []any{filter.OrganizationID, filter.Start, filter.End}
	if filter.ProjectID != nil {
		args = append(args, *filter.ProjectID)
		query += fieldFilter("project_id", len(args))
	}
	if filter.Provider != nil {
		args = append(args, *filter.Provider)
		query += fieldFilter("provider", len(args))
	}
	if filter.Model != nil {
		args = append(args, *filter.Model)
		query += fieldFilter("model_name", len(args))
	}
	if page.CursorTimestamp != nil && page.CursorID != nil {
		args = append(args, *page.CursorTimestamp, *page.CursorID)
		query += ` AND (ts, id) < ($` + itoa(len(args)-1) + `, $` + itoa(len(args)) + `)`
	}
	args = append(args, limit)
	query += ` ORDER BY ts DESC, id DESC LIMIT $` + itoa(len(args))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsageRecords(rows)
}

func (r *usageRepo) ListByPricingScope(ctx context.Context, q storage.Querier, provider domain.Provider, model string, start time.Time, end *time.Time) ([]domain.UsageRecord, error) {
	query := `SELECT ` + usageColumns + ` FROM usage_records WHERE provider = $1 AND model_name = $2 AND ts >= $3`
	args := []any{provider, model, start}
	if end != nil {
		args = append(args, *end)
		query += ` AND ts < $` + itoa(len(args))
	}
	query += ` ORDER BY ts ASC, id ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsageRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUsageRecord(row rowScanner) (*domain.UsageRecord, error) {
	var rec domain.UsageRecord
	var tags, metadata []byte
	if err := row.Scan(
		&rec.ID, &rec.Timestamp, &rec.Provider, &rec.Model.Name, &rec.Model.Version, &rec.Model.ContextWindow,
		&rec.OrganizationID, &rec.ProjectID, &rec.UserID,
		&rec.PromptTokens, &rec.CompletionTokens, &rec.TotalTokens, &rec.CachedTokens, &rec.ReasoningTokens, &rec.LatencyMs,
		&tags, &metadata, &rec.IngestedAt,
	); err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &rec.Tags); err != nil {
			return nil, err
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, err
		}
	}
	rec.Timestamp = rec.Timestamp.UTC()
	rec.IngestedAt = rec.IngestedAt.UTC()
	return &rec, nil
}

func scanUsageRecords(rows *sql.Rows) ([]domain.UsageRecord, error) {
	out := make([]domain.UsageRecord, 0)
	for rows.Next() {
		rec, err := scanUsageRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
