package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saleslog/backend/internal/models"
	"github.com/saleslog/backend/internal/provider"
)

// Transcriber drives a single speech-to-text call per (tenant, note, file).
type Transcriber struct {
	Notes   NoteStore
	Files   FileStore
	Jobs    JobStore
	Meter   Metering
	Storage provider.Storage
	STT     provider.SpeechToText
	Logger  *slog.Logger
}

// TranscribeResult is the operation outcome.
type TranscribeResult struct {
	JobID  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
	Text   string    `json:"text,omitempty"`
}

// transcriptPayload is the job result payload.
type transcriptPayload struct {
	Text string `json:"text"`
}

// Transcribe is idempotent per (tenant, note, file): a done job returns its
// cached text with no provider call, a non-terminal job is resumed, and a
// failed job is terminal for the key.
func (t *Transcriber) Transcribe(ctx context.Context, tenantID, userID, noteID, fileID uuid.UUID, language string) (*TranscribeResult, error) {
	if _, err := t.Notes.GetByID(ctx, tenantID, noteID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("load note: %w", err)
	}

	job, err := t.Jobs.FindByKey(ctx, tenantID, noteID, models.JobKindTranscription, fileID)
	if err != nil {
		return nil, fmt.Errorf("find transcription job: %w", err)
	}
	switch {
	case job == nil:
		job = &models.ProcessingJob{
			TenantID:     tenantID,
			NoteID:       noteID,
			SourceFileID: &fileID,
			Kind:         models.JobKindTranscription,
		}
		if err := t.Jobs.Create(ctx, job); err != nil {
			return nil, fmt.Errorf("create transcription job: %w", err)
		}
	case job.Status == models.JobStatusDone:
		var payload transcriptPayload
		_ = json.Unmarshal(job.Result, &payload)
		return &TranscribeResult{JobID: job.ID, Status: job.Status, Text: payload.Text}, nil
	case job.Status == models.JobStatusFailed:
		return &TranscribeResult{JobID: job.ID, Status: job.Status},
			fmt.Errorf("%w: %s", ErrJobPreviouslyFailed, storedMessage(job))
	}
	if err := t.Jobs.MarkRunning(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("mark job running: %w", err)
	}

	file, err := t.Files.GetByID(ctx, tenantID, fileID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_ = t.Jobs.MarkFailed(ctx, job.ID, "source file not found")
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("load file: %w", err)
	}

	// Quota rejection is a rejected request, not a provider failure: the job
	// is not marked failed here.
	estimate := transcriptionCost(file.DurationSeconds)
	if err := t.Meter.CheckQuota(ctx, tenantID, estimate); err != nil {
		return nil, err
	}

	obj, err := t.Storage.GetBuffer(ctx, file.StoragePath)
	if err != nil {
		_ = t.Jobs.MarkFailed(ctx, job.ID, err.Error())
		return nil, err
	}

	text, err := t.STT.Transcribe(ctx, obj.Bytes, obj.ContentType, language)
	if err != nil {
		_ = t.Jobs.MarkFailed(ctx, job.ID, err.Error())
		return nil, err
	}

	if err := t.Notes.SetTranscript(ctx, tenantID, noteID, text); err != nil {
		_ = t.Jobs.MarkFailed(ctx, job.ID, err.Error())
		return nil, fmt.Errorf("persist transcript: %w", err)
	}
	payload, _ := json.Marshal(transcriptPayload{Text: text})
	if err := t.Jobs.MarkDone(ctx, job.ID, payload); err != nil {
		return nil, fmt.Errorf("mark job done: %w", err)
	}

	if err := t.Meter.RecordUsage(ctx, tenantID, userID, models.FeatureSpeechToText, "stt-v1", 0, estimate, usageMeta(job.ID)); err != nil {
		t.Logger.Error("record transcription usage failed", "job_id", job.ID, "error", err)
	}

	return &TranscribeResult{JobID: job.ID, Status: models.JobStatusDone, Text: text}, nil
}
