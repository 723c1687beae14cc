package models

import (
	"time"

	"github.com/google/uuid"
)

// Schedule status enums.
const (
	ScheduleStatusScheduled = "scheduled"
	ScheduleStatusDone      = "done"
	ScheduleStatusCanceled  = "canceled"
)

// Action owner classification: who must perform the follow-up.
const (
	ActionOwnerSelf   = "self"
	ActionOwnerClient = "client"
	ActionOwnerShared = "shared"
)

// ScheduleEntry is a follow-up or meeting. Entries created by the analysis
// pipeline carry AutoGenerated = true; extraction never creates an entry
// for a dateless appointment.
type ScheduleEntry struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	OwnerID       uuid.UUID  `json:"owner_id"`
	NoteID        *uuid.UUID `json:"note_id,omitempty"`
	ClientID      *uuid.UUID `json:"client_id,omitempty"`
	Title         string     `json:"title"`
	Description   *string    `json:"description,omitempty"`
	Amount        *int64     `json:"amount,omitempty"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	Status        string     `json:"status"`
	ActionOwner   string     `json:"action_owner"`
	AutoGenerated bool       `json:"auto_generated"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
