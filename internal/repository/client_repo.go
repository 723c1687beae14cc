package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saleslog/backend/internal/models"
)

type ClientRepo struct {
	pool *pgxpool.Pool
}

func NewClientRepo(pool *pgxpool.Pool) *ClientRepo {
	return &ClientRepo{pool: pool}
}

const clientColumns = `id, tenant_id, name, contact_name, contact_phone, contact_email, active, created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (*models.Client, error) {
	var c models.Client
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.ContactName, &c.ContactPhone,
		&c.ContactEmail, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Insert creates a client row. A unique-violation (23505) on the tenant+name
// index is surfaced to the caller; the resolver recovers from it.
func (r *ClientRepo) Insert(ctx context.Context, c *models.Client) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO clients (tenant_id, name)
		VALUES ($1, $2)
		RETURNING id, active, created_at, updated_at
	`, c.TenantID, c.Name).Scan(&c.ID, &c.Active, &c.CreatedAt, &c.UpdatedAt)
}

func (r *ClientRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Client, error) {
	return scanClient(r.pool.QueryRow(ctx, `
		SELECT `+clientColumns+` FROM clients WHERE tenant_id = $1 AND id = $2 AND active
	`, tenantID, id))
}

func (r *ClientRepo) GetByExactName(ctx context.Context, tenantID uuid.UUID, name string) (*models.Client, error) {
	return scanClient(r.pool.QueryRow(ctx, `
		SELECT `+clientColumns+` FROM clients WHERE tenant_id = $1 AND name = $2 AND active
	`, tenantID, name))
}

func (r *ClientRepo) ListActive(ctx context.Context, tenantID uuid.UUID) ([]*models.Client, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+clientColumns+` FROM clients WHERE tenant_id = $1 AND active ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// FillContactCache mirrors primary-contact fields onto the client row,
// filling only columns that are currently empty.
func (r *ClientRepo) FillContactCache(ctx context.Context, tenantID, id uuid.UUID, name, phone, email *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE clients SET
			contact_name  = COALESCE(NULLIF(contact_name, ''), $3),
			contact_phone = COALESCE(NULLIF(contact_phone, ''), $4),
			contact_email = COALESCE(NULLIF(contact_email, ''), $5),
			updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id, name, phone, email)
	return err
}
