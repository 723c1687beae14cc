package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saleslog/backend/internal/models"
)

// APIKeyIdentity is the result of resolving a key hash: the key row plus
// the tenant/user identity the middleware puts into request context.
type APIKeyIdentity struct {
	Key      models.APIKey
	TenantID uuid.UUID
	UserID   uuid.UUID
	Role     string
}

type APIKeyRepo struct {
	pool *pgxpool.Pool
}

func NewAPIKeyRepo(pool *pgxpool.Pool) *APIKeyRepo {
	return &APIKeyRepo{pool: pool}
}

func (r *APIKeyRepo) Create(ctx context.Context, k *models.APIKey) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO api_keys (tenant_id, user_id, name, key_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, k.TenantID, k.UserID, k.Name, k.KeyHash).Scan(&k.ID, &k.CreatedAt)
}

// FindByKeyHash resolves a hashed bearer token to its identity and bumps
// last_used_at.
func (r *APIKeyRepo) FindByKeyHash(ctx context.Context, keyHash string) (*APIKeyIdentity, error) {
	var ident APIKeyIdentity
	err := r.pool.QueryRow(ctx, `
		UPDATE api_keys k
		SET last_used_at = now()
		FROM users u
		WHERE k.key_hash = $1 AND u.id = k.user_id
		RETURNING k.id, k.tenant_id, k.user_id, k.name, k.key_hash, k.last_used_at, k.created_at, u.role
	`, keyHash).Scan(
		&ident.Key.ID, &ident.Key.TenantID, &ident.Key.UserID, &ident.Key.Name,
		&ident.Key.KeyHash, &ident.Key.LastUsedAt, &ident.Key.CreatedAt, &ident.Role,
	)
	if err != nil {
		return nil, err
	}
	ident.TenantID = ident.Key.TenantID
	ident.UserID = ident.Key.UserID
	return &ident, nil
}
