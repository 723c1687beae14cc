package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Token ledger reason codes.
const (
	TokenReasonUsage       = "usage"
	TokenReasonManualGrant = "manual_grant"
	TokenReasonSignupGrant = "signup_grant"
	TokenReasonRefund      = "refund"
)

// AI feature codes, recorded on ledger entries and usage events.
const (
	FeatureSpeechToText = "speech_to_text"
	FeatureExtraction   = "llm_extraction"
)

// TokenBalance caches a tenant's prepaid token balance. The balance is never
// negative and always equals the sum of the tenant's ledger deltas; it is
// mutated only through the conditional debit / upsert credit in the repo.
type TokenBalance struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TokenLedgerEntry is an append-only signed balance delta. Entries are never
// mutated or deleted; debits carry a negative delta.
type TokenLedgerEntry struct {
	ID        uuid.UUID       `json:"id"`
	TenantID  uuid.UUID       `json:"tenant_id"`
	UserID    *uuid.UUID      `json:"user_id,omitempty"`
	Reason    string          `json:"reason"`
	Feature   *string         `json:"feature,omitempty"`
	Delta     int64           `json:"delta"`
	YearMonth string          `json:"year_month"`
	RefType   *string         `json:"ref_type,omitempty"`
	RefID     *uuid.UUID      `json:"ref_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// UsageEvent is an append-only record of one successful provider call. It is
// the source of truth for monthly quota checks.
type UsageEvent struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	UserID       uuid.UUID       `json:"user_id"`
	Feature      string          `json:"feature"`
	Model        string          `json:"model"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
