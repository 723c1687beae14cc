package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Processing job status enums. Transitions are forward-only:
// queued -> running -> done | failed. Nothing reverts a terminal state.
const (
	JobStatusQueued  = "queued"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// Processing job kinds.
const (
	JobKindTranscription = "transcription"
	JobKindAnalysis      = "analysis"
)

// ProcessingJob records one attempted AI invocation. A job is unique per
// (tenant, note, kind, source file); re-requests for the same key reuse the
// existing row. Text-only analyses carry a NULL source file, which the
// unique index deliberately does not deduplicate.
type ProcessingJob struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	NoteID       uuid.UUID       `json:"note_id"`
	SourceFileID *uuid.UUID      `json:"source_file_id,omitempty"`
	Kind         string          `json:"kind"`
	Status       string          `json:"status"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	RequestedAt  time.Time       `json:"requested_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// Terminal reports whether the job reached done or failed.
func (j *ProcessingJob) Terminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusFailed
}
