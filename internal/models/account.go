package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles within a workspace.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Tenant is an isolated company workspace. MonthlyTokenLimit is the plan
// allowance for the usage cap; nil means no active subscription and the
// configured default allowance applies.
type Tenant struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	MonthlyTokenLimit *int64    `json:"monthly_token_limit,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// User is a workspace member.
type User struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// APIKey authenticates programmatic access. Only the SHA-256 hash of the
// raw key is stored.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	UserID     uuid.UUID  `json:"user_id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
