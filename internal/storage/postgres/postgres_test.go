package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/domain"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ids"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/money"
)

// These tests exercise the query shapes the repository implementations
// build without a live Postgres instance: sqlmock stands in for the
// database/sql driver, asserting the statements and argument order the
// repositories hand to it, and feeding back rows for the scan side.

func usageRecordFixture() *domain.UsageRecord {
	return &domain.UsageRecord{
		ID:               ids.New(),
		Timestamp:        time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		Provider:         domain.ProviderOpenAI,
		Model:            domain.ModelDescriptor{Name: "gpt-4o", ContextWindow: 128000},
		OrganizationID:   "org-1",
		PromptTokens:     1000,
		CompletionTokens: 500,
		TotalTokens:      1500,
		IngestedAt:       time.Date(2024, 3, 15, 12, 0, 1, 0, time.UTC),
	}
}

func TestUsageRepo_Insert_ReturnsFalseOnConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	u := usageRecordFixture()
	mock.ExpectExec("INSERT INTO usage_records").
		WithArgs(u.ID, u.Timestamp, u.Provider, u.Model.Name, u.Model.Version, u.Model.ContextWindow,
			u.OrganizationID, u.ProjectID, u.UserID,
			u.PromptTokens, u.CompletionTokens, u.TotalTokens, u.CachedTokens, u.ReasoningTokens, u.LatencyMs,
			sqlmock.AnyArg(), sqlmock.AnyArg(), u.IngestedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := &usageRepo{}
	inserted, err := repo.Insert(context.Background(), db, u)
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepo_Insert_ReturnsTrueOnFreshRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	u := usageRecordFixture()
	mock.ExpectExec("INSERT INTO usage_records").
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := &usageRepo{}
	inserted, err := repo.Insert(context.Background(), db, u)
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepo_GetByID_ScansRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	u := usageRecordFixture()
	cols := []string{"id", "ts", "provider", "model_name", "model_version", "context_window",
		"organization_id", "project_id", "user_id", "prompt_tokens", "completion_tokens", "total_tokens",
		"cached_tokens", "reasoning_tokens", "latency_ms", "tags", "metadata", "ingested_at"}
	rows := sqlmock.NewRows(cols).AddRow(
		u.ID, u.Timestamp, u.Provider, u.Model.Name, u.Model.Version, u.Model.ContextWindow,
		u.OrganizationID, u.ProjectID, u.UserID,
		u.PromptTokens, u.CompletionTokens, u.TotalTokens, u.CachedTokens, u.ReasoningTokens, u.LatencyMs,
		[]byte(`{}`), []byte(`{}`), u.IngestedAt)
	mock.ExpectQuery("SELECT .* FROM usage_records WHERE id = \\$1").WithArgs(u.ID).WillReturnRows(rows)

	repo := &usageRepo{}
	got, err := repo.GetByID(context.Background(), db, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.OrganizationID, got.OrganizationID)
}

func TestUsageRepo_GetByID_NoRowsReturnsNilNotError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := ids.New()
	mock.ExpectQuery("SELECT .* FROM usage_records WHERE id = \\$1").WithArgs(id).WillReturnError(sql.ErrNoRows)

	repo := &usageRepo{}
	got, err := repo.GetByID(context.Background(), db, id)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCostRepo_Insert_AlwaysAppends(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cost := &domain.CostRecord{
		ID:           ids.New(),
		UsageID:      ids.New(),
		InputCost:    money.MustParse("0.005"),
		OutputCost:   money.MustParse("0.0075"),
		TotalCost:    money.MustParse("0.0125"),
		Currency:     "USD",
		CalculatedAt: time.Date(2024, 3, 15, 12, 0, 2, 0, time.UTC),
	}
	mock.ExpectExec("INSERT INTO cost_records").WillReturnResult(sqlmock.NewResult(1, 1))

	repo := &costRepo{}
	err = repo.Insert(context.Background(), db, cost)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
