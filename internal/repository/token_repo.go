package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saleslog/backend/internal/models"
)

type TokenRepo struct {
	pool *pgxpool.Pool
}

func NewTokenRepo(pool *pgxpool.Pool) *TokenRepo {
	return &TokenRepo{pool: pool}
}

func (r *TokenRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// DebitIfSufficient decrements the balance only when balance >= amount and
// reports whether a row was affected. Two concurrent debits that would
// overdraw cannot both succeed: each UPDATE's WHERE clause re-reads the
// committed balance. Call within a transaction and insert the ledger entry
// in the same transaction.
func (r *TokenRepo) DebitIfSufficient(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, amount int64) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE token_balances SET balance = balance - $1, updated_at = now()
		WHERE tenant_id = $2 AND balance >= $1
	`, amount, tenantID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CreditUpsert creates the balance row on first grant and adds amount.
func (r *TokenRepo) CreditUpsert(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, amount int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO token_balances (tenant_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO UPDATE
		SET balance = token_balances.balance + EXCLUDED.balance, updated_at = now()
	`, tenantID, amount)
	return err
}

func (r *TokenRepo) GetBalance(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE((SELECT balance FROM token_balances WHERE tenant_id = $1), 0)
	`, tenantID).Scan(&balance)
	return balance, err
}

// InsertLedgerTx appends a ledger entry inside the given transaction.
func (r *TokenRepo) InsertLedgerTx(ctx context.Context, tx pgx.Tx, e *models.TokenLedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO token_ledger (tenant_id, user_id, reason, feature, delta, year_month, ref_type, ref_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, e.TenantID, e.UserID, e.Reason, e.Feature, e.Delta, e.YearMonth, e.RefType, e.RefID, e.Metadata).
		Scan(&e.ID, &e.CreatedAt)
}

func (r *TokenRepo) ListLedger(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.TokenLedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, user_id, reason, feature, delta, year_month, ref_type, ref_id, metadata, created_at
		FROM token_ledger WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.TokenLedgerEntry
	for rows.Next() {
		var e models.TokenLedgerEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.UserID, &e.Reason, &e.Feature, &e.Delta,
			&e.YearMonth, &e.RefType, &e.RefID, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
