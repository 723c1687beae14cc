package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saleslog/backend/internal/models"
)

type ScheduleRepo struct {
	pool *pgxpool.Pool
}

func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

func (r *ScheduleRepo) Insert(ctx context.Context, s *models.ScheduleEntry) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO schedule_entries
			(tenant_id, owner_id, note_id, client_id, title, description, amount, scheduled_at, status, action_owner, auto_generated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`, s.TenantID, s.OwnerID, s.NoteID, s.ClientID, s.Title, s.Description, s.Amount,
		s.ScheduledAt, s.Status, s.ActionOwner, s.AutoGenerated).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// ExistsAutoForNote reports whether an auto-generated entry with the same
// title and time already exists for the note. Re-running analysis over the
// same extraction must not duplicate schedule rows.
func (r *ScheduleRepo) ExistsAutoForNote(ctx context.Context, tenantID, noteID uuid.UUID, title string, at time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM schedule_entries
			WHERE tenant_id = $1 AND note_id = $2 AND title = $3 AND scheduled_at = $4 AND auto_generated
		)
	`, tenantID, noteID, title, at).Scan(&exists)
	return exists, err
}

func (r *ScheduleRepo) ListByNote(ctx context.Context, tenantID, noteID uuid.UUID) ([]*models.ScheduleEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, owner_id, note_id, client_id, title, description, amount,
			scheduled_at, status, action_owner, auto_generated, created_at, updated_at
		FROM schedule_entries
		WHERE tenant_id = $1 AND note_id = $2 ORDER BY scheduled_at
	`, tenantID, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ScheduleEntry
	for rows.Next() {
		var s models.ScheduleEntry
		if err := rows.Scan(&s.ID, &s.TenantID, &s.OwnerID, &s.NoteID, &s.ClientID, &s.Title,
			&s.Description, &s.Amount, &s.ScheduledAt, &s.Status, &s.ActionOwner,
			&s.AutoGenerated, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &s)
	}
	return list, rows.Err()
}
