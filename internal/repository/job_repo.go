package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saleslog/backend/internal/models"
)

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `id, tenant_id, note_id, source_file_id, kind, status, error_message, result, requested_at, finished_at`

func scanJob(row interface{ Scan(...any) error }) (*models.ProcessingJob, error) {
	var j models.ProcessingJob
	err := row.Scan(&j.ID, &j.TenantID, &j.NoteID, &j.SourceFileID, &j.Kind, &j.Status,
		&j.ErrorMessage, &j.Result, &j.RequestedAt, &j.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// FindByKey looks up the job for (tenant, note, kind, file). fileID must be
// non-nil; jobs with a NULL source file are never reused. Returns (nil, nil)
// when no job exists.
func (r *JobRepo) FindByKey(ctx context.Context, tenantID, noteID uuid.UUID, kind string, fileID uuid.UUID) (*models.ProcessingJob, error) {
	j, err := scanJob(r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM processing_jobs
		WHERE tenant_id = $1 AND note_id = $2 AND kind = $3 AND source_file_id = $4
	`, tenantID, noteID, kind, fileID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (r *JobRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.ProcessingJob, error) {
	return scanJob(r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM processing_jobs WHERE tenant_id = $1 AND id = $2
	`, tenantID, id))
}

func (r *JobRepo) Create(ctx context.Context, j *models.ProcessingJob) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO processing_jobs (tenant_id, note_id, source_file_id, kind, status)
		VALUES ($1, $2, $3, $4, 'queued')
		RETURNING id, status, requested_at
	`, j.TenantID, j.NoteID, j.SourceFileID, j.Kind).Scan(&j.ID, &j.Status, &j.RequestedAt)
}

// MarkRunning moves a queued job to running. Terminal jobs are left alone.
func (r *JobRepo) MarkRunning(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs SET status = 'running'
		WHERE id = $1 AND status = 'queued'
	`, id)
	return err
}

func (r *JobRepo) MarkDone(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs SET status = 'done', result = $2, finished_at = now()
		WHERE id = $1 AND status IN ('queued', 'running')
	`, id, result)
	return err
}

func (r *JobRepo) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs SET status = 'failed', error_message = $2, finished_at = now()
		WHERE id = $1 AND status IN ('queued', 'running')
	`, id, message)
	return err
}

// FailStuck fails every job left in running longer than maxAge and returns
// how many rows it touched. Used by the background sweeper.
func (r *JobRepo) FailStuck(ctx context.Context, maxAge time.Duration, message string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs SET status = 'failed', error_message = $2, finished_at = now()
		WHERE status = 'running' AND requested_at < now() - $1::interval
	`, maxAge.String(), message)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
