package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saleslog/backend/internal/models"
)

type UsageRepo struct {
	pool *pgxpool.Pool
}

func NewUsageRepo(pool *pgxpool.Pool) *UsageRepo {
	return &UsageRepo{pool: pool}
}

func (r *UsageRepo) Insert(ctx context.Context, e *models.UsageEvent) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO usage_events (tenant_id, user_id, feature, model, input_tokens, output_tokens, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, e.TenantID, e.UserID, e.Feature, e.Model, e.InputTokens, e.OutputTokens, e.Metadata).
		Scan(&e.ID, &e.CreatedAt)
}

// SumWindow sums input+output tokens for the tenant in [from, to).
func (r *UsageRepo) SumWindow(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(input_tokens + output_tokens), 0)
		FROM usage_events
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
	`, tenantID, from, to).Scan(&total)
	return total, err
}

// SumWindowByFeature aggregates token totals per feature in [from, to).
func (r *UsageRepo) SumWindowByFeature(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT feature, COALESCE(SUM(input_tokens + output_tokens), 0)
		FROM usage_events
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY feature
	`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byFeature := make(map[string]int64)
	for rows.Next() {
		var feature string
		var total int64
		if err := rows.Scan(&feature, &total); err != nil {
			return nil, err
		}
		byFeature[feature] = total
	}
	return byFeature, rows.Err()
}
