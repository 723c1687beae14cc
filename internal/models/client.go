package models

import (
	"time"

	"github.com/google/uuid"
)

// Client is a tenant's customer. Name is unique per tenant under exact
// match (enforced by a partial unique index on active rows). The cached
// contact fields mirror the primary contact and are filled only when empty.
type Client struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Name         string    `json:"name"`
	ContactName  *string   `json:"contact_name,omitempty"`
	ContactPhone *string   `json:"contact_phone,omitempty"`
	ContactEmail *string   `json:"contact_email,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Contact is a person at a client. At most one active contact per client
// may be primary.
type Contact struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	ClientID  uuid.UUID `json:"client_id"`
	Name      string    `json:"name"`
	Role      *string   `json:"role,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	Email     *string   `json:"email,omitempty"`
	IsPrimary bool      `json:"is_primary"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
