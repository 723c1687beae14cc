// Package pipeline drives the AI-assisted sales-note processing flow:
// transcription and analysis jobs, quota enforcement around provider calls,
// and the structured side effects of an extraction.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/saleslog/backend/internal/clients"
	"github.com/saleslog/backend/internal/models"
)

// Cost model for quota estimates.
const (
	// TokensPerAudioSecond prices speech-to-text by duration.
	TokensPerAudioSecond = 10
	// FlatTranscriptionCost applies when the file duration is unknown.
	FlatTranscriptionCost = 3000
	// AnalysisCostEstimate is the fixed estimate for one extraction call.
	AnalysisCostEstimate = 2000
)

var (
	// ErrEmptySource rejects analysis when the note has neither transcript
	// nor raw text. No job row is created.
	ErrEmptySource = errors.New("note has no transcript or text to analyze")
	// ErrNoteNotFound rejects requests for unknown or inactive notes.
	ErrNoteNotFound = errors.New("note not found")
	// ErrFileNotFound rejects requests naming an unknown file.
	ErrFileNotFound = errors.New("file not found")
	// ErrJobPreviouslyFailed is returned when the job for this key already
	// failed; the key is terminal and the stored message is surfaced.
	ErrJobPreviouslyFailed = errors.New("job previously failed")
)

// NoteStore is the sales-note persistence the pipeline needs.
type NoteStore interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.SalesNote, error)
	SetTranscript(ctx context.Context, tenantID, id uuid.UUID, transcript string) error
	SetAnalysis(ctx context.Context, tenantID, id uuid.UUID, summary string, extraction json.RawMessage) error
	SetAmountIfEmpty(ctx context.Context, tenantID, id uuid.UUID, amount int64) error
	SetContactNameIfEmpty(ctx context.Context, tenantID, id uuid.UUID, name string) error
}

// FileStore resolves note attachments.
type FileStore interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.NoteFile, error)
	FirstByNoteID(ctx context.Context, tenantID, noteID uuid.UUID) (*models.NoteFile, error)
}

// JobStore is the processing-job persistence.
type JobStore interface {
	FindByKey(ctx context.Context, tenantID, noteID uuid.UUID, kind string, fileID uuid.UUID) (*models.ProcessingJob, error)
	Create(ctx context.Context, j *models.ProcessingJob) error
	MarkRunning(ctx context.Context, id uuid.UUID) error
	MarkDone(ctx context.Context, id uuid.UUID, result json.RawMessage) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
}

// Metering is the quota/usage surface the pipeline consumes.
type Metering interface {
	CheckQuota(ctx context.Context, tenantID uuid.UUID, estimate int64) error
	RecordUsage(ctx context.Context, tenantID, userID uuid.UUID, feature, model string, inputTokens, outputTokens int64, metadata json.RawMessage) error
}

// ClientMatcher suggests a roster client for an extracted name.
type ClientMatcher interface {
	FindBestMatch(ctx context.Context, tenantID uuid.UUID, name string) (*clients.Match, error)
}

// transcriptionCost estimates STT cost from file duration.
func transcriptionCost(durationSeconds *float64) int64 {
	if durationSeconds == nil || *durationSeconds <= 0 {
		return FlatTranscriptionCost
	}
	return int64(*durationSeconds * TokensPerAudioSecond)
}

func usageMeta(jobID uuid.UUID) json.RawMessage {
	meta, _ := json.Marshal(map[string]string{"job_id": jobID.String()})
	return meta
}

func storedMessage(j *models.ProcessingJob) string {
	if j.ErrorMessage != nil {
		return *j.ErrorMessage
	}
	return "unknown failure"
}

func parseTime(v string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, v)
	return t, err == nil
}
