package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SalesNote is one field-visit record filed by a sales rep. The pipeline
// fills Transcript (speech-to-text) and Summary/Extraction (LLM) onto it;
// Amount and ContactName are only ever set when previously empty.
type SalesNote struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	OwnerID      uuid.UUID       `json:"owner_id"`
	ClientID     *uuid.UUID      `json:"client_id,omitempty"`
	Body         string          `json:"body"`
	Transcript   *string         `json:"transcript,omitempty"`
	Summary      *string         `json:"summary,omitempty"`
	Extraction   json.RawMessage `json:"extraction,omitempty"`
	Amount       *int64          `json:"amount,omitempty"`
	ContactName  *string         `json:"contact_name,omitempty"`
	AnalysisDone bool            `json:"analysis_done"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NoteFile is an uploaded attachment (voice recording) of a sales note.
// Upload and presigned-URL issuance happen outside this service; the
// pipeline only reads file metadata and fetches bytes from storage.
type NoteFile struct {
	ID              uuid.UUID `json:"id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	NoteID          uuid.UUID `json:"note_id"`
	StoragePath     string    `json:"storage_path"`
	ContentType     string    `json:"content_type"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
