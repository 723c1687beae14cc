// Package clients resolves freeform client-name references against a
// tenant's roster: normalization, fuzzy matching, and an idempotent
// find-or-create. Matching only ever suggests; it never merges two
// distinct businesses.
package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saleslog/backend/internal/models"
)

// DefaultThreshold is the minimum confidence for a suggestion.
const DefaultThreshold = 0.7

// Roster is the client persistence the resolver needs.
type Roster interface {
	ListActive(ctx context.Context, tenantID uuid.UUID) ([]*models.Client, error)
	GetByExactName(ctx context.Context, tenantID uuid.UUID, name string) (*models.Client, error)
	Insert(ctx context.Context, c *models.Client) error
}

// Match is a scored client suggestion.
type Match struct {
	ClientID   uuid.UUID `json:"client_id"`
	ClientName string    `json:"client_name"`
	Confidence float64   `json:"confidence"`
}

type Resolver struct {
	Clients   Roster
	Threshold float64
}

func NewResolver(roster Roster) *Resolver {
	return &Resolver{Clients: roster, Threshold: DefaultThreshold}
}

// FindBestMatch returns the best-scoring roster client at or above the
// confidence threshold, or nil when nothing qualifies.
func (r *Resolver) FindBestMatch(ctx context.Context, tenantID uuid.UUID, name string) (*Match, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	roster, err := r.Clients.ListActive(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	var best *Match
	for _, c := range roster {
		score := Similarity(name, c.Name)
		if score < r.Threshold {
			continue
		}
		if best == nil || score > best.Confidence {
			best = &Match{ClientID: c.ID, ClientName: c.Name, Confidence: score}
		}
	}
	return best, nil
}

// FindOrCreate returns the roster client whose normalized name equals the
// target's, creating it when absent. A unique-violation from a concurrent
// identical insert is recovered by re-querying the exact name; the conflict
// never reaches the caller.
func (r *Resolver) FindOrCreate(ctx context.Context, tenantID uuid.UUID, name string) (*models.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("client name is empty")
	}
	target := Normalize(name)
	roster, err := r.Clients.ListActive(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	for _, c := range roster {
		if Normalize(c.Name) == target {
			return c, nil
		}
	}

	client := &models.Client{TenantID: tenantID, Name: name}
	if err := r.Clients.Insert(ctx, client); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// A concurrent identical insert raced ahead of this one.
			return r.Clients.GetByExactName(ctx, tenantID, name)
		}
		return nil, fmt.Errorf("insert client: %w", err)
	}
	return client, nil
}
