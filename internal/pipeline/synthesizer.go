package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saleslog/backend/internal/extraction"
	"github.com/saleslog/backend/internal/models"
)

// ScheduleStore is the schedule persistence used by synthesis.
type ScheduleStore interface {
	Insert(ctx context.Context, s *models.ScheduleEntry) error
	ExistsAutoForNote(ctx context.Context, tenantID, noteID uuid.UUID, title string, at time.Time) (bool, error)
}

// ContactStore is the contact-roster persistence used by contact sync.
type ContactStore interface {
	ListActiveByClient(ctx context.Context, tenantID, clientID uuid.UUID) ([]*models.Contact, error)
	Insert(ctx context.Context, c *models.Contact) error
	FillEmptyFields(ctx context.Context, id uuid.UUID, role, phone, email *string) error
	HasPrimary(ctx context.Context, tenantID, clientID uuid.UUID) (bool, error)
}

// ClientCache mirrors primary-contact fields onto the client row.
type ClientCache interface {
	FillContactCache(ctx context.Context, tenantID, id uuid.UUID, name, phone, email *string) error
}

// Synthesizer turns an extraction's appointments into schedule entries and
// syncs extracted contacts into the client roster, idempotently.
type Synthesizer struct {
	Schedules ScheduleStore
	Contacts  ContactStore
	Clients   ClientCache
	Logger    *slog.Logger
}

// SyncSchedules creates one entry per appointment with a resolvable date;
// dateless appointments create nothing. Returns the id of the first entry
// created by this call, or nil when none were.
func (s *Synthesizer) SyncSchedules(ctx context.Context, note *models.SalesNote, appts []extraction.Appointment) (*uuid.UUID, error) {
	var firstID *uuid.UUID
	for _, a := range appts {
		if a.Date == nil || a.Title == "" {
			continue
		}
		at, ok := parseTime(*a.Date)
		if !ok {
			s.Logger.Warn("skipping appointment with unresolvable date",
				"note_id", note.ID, "title", a.Title, "date", *a.Date)
			continue
		}
		exists, err := s.Schedules.ExistsAutoForNote(ctx, note.TenantID, note.ID, a.Title, at)
		if err != nil {
			return firstID, fmt.Errorf("check existing schedule: %w", err)
		}
		if exists {
			continue
		}
		entry := &models.ScheduleEntry{
			TenantID:      note.TenantID,
			OwnerID:       note.OwnerID,
			NoteID:        &note.ID,
			ClientID:      note.ClientID,
			Title:         a.Title,
			ScheduledAt:   at,
			Status:        models.ScheduleStatusScheduled,
			ActionOwner:   actionOwnerOrDefault(a.ActionOwner),
			AutoGenerated: true,
		}
		if a.Desc != "" {
			desc := a.Desc
			entry.Description = &desc
		}
		if err := s.Schedules.Insert(ctx, entry); err != nil {
			return firstID, fmt.Errorf("insert schedule entry: %w", err)
		}
		if firstID == nil {
			id := entry.ID
			firstID = &id
		}
	}
	return firstID, nil
}

// SyncContacts merges extracted contacts into the client's roster. Existing
// contacts (matched by normalized name) only gain values for fields that are
// currently empty. When the client has no primary contact, the first newly
// inserted contact becomes primary and is mirrored into the client's cached
// contact fields.
func (s *Synthesizer) SyncContacts(ctx context.Context, tenantID, clientID uuid.UUID, extracted []extraction.ContactInfo) ([]*models.Contact, error) {
	if len(extracted) == 0 {
		return nil, nil
	}
	existing, err := s.Contacts.ListActiveByClient(ctx, tenantID, clientID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	hasPrimary, err := s.Contacts.HasPrimary(ctx, tenantID, clientID)
	if err != nil {
		return nil, fmt.Errorf("check primary contact: %w", err)
	}

	byName := make(map[string]*models.Contact, len(existing))
	for _, c := range existing {
		byName[normalizePersonName(c.Name)] = c
	}

	var synced []*models.Contact
	for _, in := range extracted {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			continue
		}
		if match, ok := byName[normalizePersonName(name)]; ok {
			if err := s.Contacts.FillEmptyFields(ctx, match.ID, in.Role, in.Phone, in.Email); err != nil {
				return synced, fmt.Errorf("fill contact fields: %w", err)
			}
			fillLocal(match, in)
			synced = append(synced, match)
			continue
		}

		contact := &models.Contact{
			TenantID:  tenantID,
			ClientID:  clientID,
			Name:      name,
			Role:      in.Role,
			Phone:     in.Phone,
			Email:     in.Email,
			IsPrimary: !hasPrimary,
		}
		if err := s.Contacts.Insert(ctx, contact); err != nil {
			return synced, fmt.Errorf("insert contact: %w", err)
		}
		if contact.IsPrimary {
			hasPrimary = true
			nameCopy := contact.Name
			if err := s.Clients.FillContactCache(ctx, tenantID, clientID, &nameCopy, contact.Phone, contact.Email); err != nil {
				return synced, fmt.Errorf("update client contact cache: %w", err)
			}
		}
		byName[normalizePersonName(contact.Name)] = contact
		synced = append(synced, contact)
	}
	return synced, nil
}

func fillLocal(c *models.Contact, in extraction.ContactInfo) {
	if empty(c.Role) && in.Role != nil {
		c.Role = in.Role
	}
	if empty(c.Phone) && in.Phone != nil {
		c.Phone = in.Phone
	}
	if empty(c.Email) && in.Email != nil {
		c.Email = in.Email
	}
}

func empty(v *string) bool {
	return v == nil || *v == ""
}

func normalizePersonName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func actionOwnerOrDefault(owner string) string {
	switch owner {
	case models.ActionOwnerSelf, models.ActionOwnerClient, models.ActionOwnerShared:
		return owner
	default:
		return models.ActionOwnerSelf
	}
}
