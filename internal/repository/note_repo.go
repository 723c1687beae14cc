package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saleslog/backend/internal/models"
)

type NoteRepo struct {
	pool *pgxpool.Pool
}

func NewNoteRepo(pool *pgxpool.Pool) *NoteRepo {
	return &NoteRepo{pool: pool}
}

const noteColumns = `id, tenant_id, owner_id, client_id, body, transcript, summary, extraction,
	amount, contact_name, analysis_done, active, created_at, updated_at`

func scanNote(row interface{ Scan(...any) error }) (*models.SalesNote, error) {
	var n models.SalesNote
	err := row.Scan(&n.ID, &n.TenantID, &n.OwnerID, &n.ClientID, &n.Body, &n.Transcript,
		&n.Summary, &n.Extraction, &n.Amount, &n.ContactName, &n.AnalysisDone, &n.Active,
		&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NoteRepo) Create(ctx context.Context, n *models.SalesNote) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO sales_notes (tenant_id, owner_id, client_id, body, amount, contact_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, analysis_done, active, created_at, updated_at
	`, n.TenantID, n.OwnerID, n.ClientID, n.Body, n.Amount, n.ContactName).
		Scan(&n.ID, &n.AnalysisDone, &n.Active, &n.CreatedAt, &n.UpdatedAt)
}

func (r *NoteRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.SalesNote, error) {
	return scanNote(r.pool.QueryRow(ctx, `
		SELECT `+noteColumns+` FROM sales_notes WHERE tenant_id = $1 AND id = $2 AND active
	`, tenantID, id))
}

func (r *NoteRepo) SetTranscript(ctx context.Context, tenantID, id uuid.UUID, transcript string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sales_notes SET transcript = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id, transcript)
	return err
}

// SetAnalysis stores the extraction outcome and flips the done flag.
func (r *NoteRepo) SetAnalysis(ctx context.Context, tenantID, id uuid.UUID, summary string, extraction json.RawMessage) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sales_notes SET summary = $3, extraction = $4, analysis_done = true, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id, summary, extraction)
	return err
}

// SetAmountIfEmpty sets the note amount only when no amount was entered.
func (r *NoteRepo) SetAmountIfEmpty(ctx context.Context, tenantID, id uuid.UUID, amount int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sales_notes SET amount = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND amount IS NULL
	`, tenantID, id, amount)
	return err
}

// SetContactNameIfEmpty sets the note's contact name only when empty.
func (r *NoteRepo) SetContactNameIfEmpty(ctx context.Context, tenantID, id uuid.UUID, name string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sales_notes SET contact_name = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND (contact_name IS NULL OR contact_name = '')
	`, tenantID, id, name)
	return err
}

// LinkClient sets the note's client link (caller-confirmed suggestion).
func (r *NoteRepo) LinkClient(ctx context.Context, tenantID, id, clientID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sales_notes SET client_id = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id, clientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type NoteFileRepo struct {
	pool *pgxpool.Pool
}

func NewNoteFileRepo(pool *pgxpool.Pool) *NoteFileRepo {
	return &NoteFileRepo{pool: pool}
}

func (r *NoteFileRepo) Create(ctx context.Context, f *models.NoteFile) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO note_files (tenant_id, note_id, storage_path, content_type, duration_seconds)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, f.TenantID, f.NoteID, f.StoragePath, f.ContentType, f.DurationSeconds).Scan(&f.ID, &f.CreatedAt)
}

func (r *NoteFileRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.NoteFile, error) {
	var f models.NoteFile
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, note_id, storage_path, content_type, duration_seconds, created_at
		FROM note_files WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&f.ID, &f.TenantID, &f.NoteID, &f.StoragePath, &f.ContentType, &f.DurationSeconds, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// FirstByNoteID returns the oldest attachment of a note, or pgx.ErrNoRows.
func (r *NoteFileRepo) FirstByNoteID(ctx context.Context, tenantID, noteID uuid.UUID) (*models.NoteFile, error) {
	var f models.NoteFile
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, note_id, storage_path, content_type, duration_seconds, created_at
		FROM note_files WHERE tenant_id = $1 AND note_id = $2
		ORDER BY created_at ASC LIMIT 1
	`, tenantID, noteID).Scan(&f.ID, &f.TenantID, &f.NoteID, &f.StoragePath, &f.ContentType, &f.DurationSeconds, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
