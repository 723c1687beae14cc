package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saleslog/backend/internal/models"
)

type ContactRepo struct {
	pool *pgxpool.Pool
}

func NewContactRepo(pool *pgxpool.Pool) *ContactRepo {
	return &ContactRepo{pool: pool}
}

const contactColumns = `id, tenant_id, client_id, name, role, phone, email, is_primary, active, created_at, updated_at`

func scanContact(row interface{ Scan(...any) error }) (*models.Contact, error) {
	var c models.Contact
	err := row.Scan(&c.ID, &c.TenantID, &c.ClientID, &c.Name, &c.Role, &c.Phone, &c.Email,
		&c.IsPrimary, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ContactRepo) Insert(ctx context.Context, c *models.Contact) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO contacts (tenant_id, client_id, name, role, phone, email, is_primary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, active, created_at, updated_at
	`, c.TenantID, c.ClientID, c.Name, c.Role, c.Phone, c.Email, c.IsPrimary).
		Scan(&c.ID, &c.Active, &c.CreatedAt, &c.UpdatedAt)
}

func (r *ContactRepo) ListActiveByClient(ctx context.Context, tenantID, clientID uuid.UUID) ([]*models.Contact, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+contactColumns+` FROM contacts
		WHERE tenant_id = $1 AND client_id = $2 AND active ORDER BY created_at
	`, tenantID, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// FillEmptyFields sets role/phone/email only where the stored value is
// currently empty; populated fields are never overwritten.
func (r *ContactRepo) FillEmptyFields(ctx context.Context, id uuid.UUID, role, phone, email *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE contacts SET
			role  = COALESCE(NULLIF(role, ''), $2),
			phone = COALESCE(NULLIF(phone, ''), $3),
			email = COALESCE(NULLIF(email, ''), $4),
			updated_at = now()
		WHERE id = $1
	`, id, role, phone, email)
	return err
}

// HasPrimary reports whether the client already has an active primary contact.
func (r *ContactRepo) HasPrimary(ctx context.Context, tenantID, clientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM contacts
			WHERE tenant_id = $1 AND client_id = $2 AND is_primary AND active
		)
	`, tenantID, clientID).Scan(&exists)
	return exists, err
}
