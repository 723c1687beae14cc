package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saleslog/backend/internal/clients"
	"github.com/saleslog/backend/internal/models"
	"github.com/saleslog/backend/internal/provider"
)

// ---------------------------------------------------------------------------
// In-memory mocks shared by the transcriber and analyzer tests.
// ---------------------------------------------------------------------------

// --- NoteStore ---

type mockNotes struct {
	mu    sync.Mutex
	notes map[uuid.UUID]*models.SalesNote
}

func newMockNotes(ns ...*models.SalesNote) *mockNotes {
	m := &mockNotes{notes: make(map[uuid.UUID]*models.SalesNote)}
	for _, n := range ns {
		m.notes[n.ID] = n
	}
	return m
}

func (m *mockNotes) GetByID(_ context.Context, tenantID, id uuid.UUID) (*models.SalesNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok || n.TenantID != tenantID {
		return nil, pgx.ErrNoRows
	}
	cp := *n
	return &cp, nil
}

func (m *mockNotes) SetTranscript(_ context.Context, _, id uuid.UUID, transcript string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[id].Transcript = &transcript
	return nil
}

func (m *mockNotes) SetAnalysis(_ context.Context, _, id uuid.UUID, summary string, extraction json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.notes[id]
	n.Summary = &summary
	n.Extraction = extraction
	n.AnalysisDone = true
	return nil
}

func (m *mockNotes) SetAmountIfEmpty(_ context.Context, _, id uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.notes[id]
	if n.Amount == nil {
		n.Amount = &amount
	}
	return nil
}

func (m *mockNotes) SetContactNameIfEmpty(_ context.Context, _, id uuid.UUID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.notes[id]
	if n.ContactName == nil || *n.ContactName == "" {
		n.ContactName = &name
	}
	return nil
}

func (m *mockNotes) get(id uuid.UUID) *models.SalesNote {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.notes[id]
	return &cp
}

// --- FileStore ---

type mockFiles struct {
	files map[uuid.UUID]*models.NoteFile
}

func newMockFiles(fs ...*models.NoteFile) *mockFiles {
	m := &mockFiles{files: make(map[uuid.UUID]*models.NoteFile)}
	for _, f := range fs {
		m.files[f.ID] = f
	}
	return m
}

func (m *mockFiles) GetByID(_ context.Context, tenantID, id uuid.UUID) (*models.NoteFile, error) {
	f, ok := m.files[id]
	if !ok || f.TenantID != tenantID {
		return nil, pgx.ErrNoRows
	}
	return f, nil
}

func (m *mockFiles) FirstByNoteID(_ context.Context, tenantID, noteID uuid.UUID) (*models.NoteFile, error) {
	var first *models.NoteFile
	for _, f := range m.files {
		if f.TenantID != tenantID || f.NoteID != noteID {
			continue
		}
		if first == nil || f.CreatedAt.Before(first.CreatedAt) {
			first = f
		}
	}
	if first == nil {
		return nil, pgx.ErrNoRows
	}
	return first, nil
}

// --- JobStore ---

type mockJobs struct {
	mu   sync.Mutex
	jobs []*models.ProcessingJob
}

func (m *mockJobs) FindByKey(_ context.Context, tenantID, noteID uuid.UUID, kind string, fileID uuid.UUID) (*models.ProcessingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.TenantID == tenantID && j.NoteID == noteID && j.Kind == kind &&
			j.SourceFileID != nil && *j.SourceFileID == fileID {
			return j, nil
		}
	}
	return nil, nil
}

func (m *mockJobs) Create(_ context.Context, j *models.ProcessingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j.ID = uuid.New()
	j.Status = models.JobStatusQueued
	j.RequestedAt = time.Now()
	m.jobs = append(m.jobs, j)
	return nil
}

func (m *mockJobs) MarkRunning(_ context.Context, id uuid.UUID) error {
	return m.transition(id, models.JobStatusRunning, nil, nil)
}

func (m *mockJobs) MarkDone(_ context.Context, id uuid.UUID, result json.RawMessage) error {
	return m.transition(id, models.JobStatusDone, result, nil)
}

func (m *mockJobs) MarkFailed(_ context.Context, id uuid.UUID, message string) error {
	return m.transition(id, models.JobStatusFailed, nil, &message)
}

func (m *mockJobs) transition(id uuid.UUID, status string, result json.RawMessage, msg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID != id {
			continue
		}
		if j.Terminal() {
			return fmt.Errorf("job %s is terminal (%s), cannot move to %s", id, j.Status, status)
		}
		j.Status = status
		if result != nil {
			j.Result = result
		}
		j.ErrorMessage = msg
		return nil
	}
	return fmt.Errorf("job %s not found", id)
}

func (m *mockJobs) byID(id uuid.UUID) *models.ProcessingJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			cp := *j
			return &cp
		}
	}
	return nil
}

func (m *mockJobs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// --- Metering ---

type mockMeter struct {
	mu         sync.Mutex
	quotaErr   error
	checkCalls int
	events     []*models.UsageEvent
}

func (m *mockMeter) CheckQuota(_ context.Context, _ uuid.UUID, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkCalls++
	return m.quotaErr
}

func (m *mockMeter) RecordUsage(_ context.Context, tenantID, userID uuid.UUID, feature, model string, in, out int64, metadata json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, &models.UsageEvent{
		TenantID:     tenantID,
		UserID:       userID,
		Feature:      feature,
		Model:        model,
		InputTokens:  in,
		OutputTokens: out,
		Metadata:     metadata,
	})
	return nil
}

// --- provider.Storage / provider.SpeechToText / provider.LLM ---

type mockStorage struct {
	calls int
	err   error
	data  []byte
}

func (m *mockStorage) GetBuffer(_ context.Context, _ string) (*provider.Object, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &provider.Object{Bytes: m.data, ContentType: "audio/m4a"}, nil
}

type mockSTT struct {
	calls int
	err   error
	text  string
}

func (m *mockSTT) Transcribe(_ context.Context, _ []byte, _, _ string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

type mockLLM struct {
	calls   int
	err     error
	content string
	model   string
}

func (m *mockLLM) Invoke(_ context.Context, _ provider.InvokeRequest) (*provider.InvokeResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	model := m.model
	if model == "" {
		model = "test-model"
	}
	return &provider.InvokeResponse{Content: m.content, Model: model, InputTokens: 700, OutputTokens: 300}, nil
}

// --- ClientMatcher ---

type mockMatcher struct {
	match *clients.Match
}

func (m *mockMatcher) FindBestMatch(_ context.Context, _ uuid.UUID, _ string) (*clients.Match, error) {
	return m.match, nil
}

// --- ScheduleStore / ContactStore / ClientCache ---

type mockSchedules struct {
	mu      sync.Mutex
	entries []*models.ScheduleEntry
}

func (m *mockSchedules) Insert(_ context.Context, s *models.ScheduleEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.New()
	cp := *s
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockSchedules) ExistsAutoForNote(_ context.Context, tenantID, noteID uuid.UUID, title string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.TenantID == tenantID && e.NoteID != nil && *e.NoteID == noteID &&
			e.AutoGenerated && e.Title == title && e.ScheduledAt.Equal(at) {
			return true, nil
		}
	}
	return false, nil
}

type mockContacts struct {
	mu       sync.Mutex
	contacts []*models.Contact
}

func (m *mockContacts) ListActiveByClient(_ context.Context, tenantID, clientID uuid.UUID) ([]*models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Contact
	for _, c := range m.contacts {
		if c.TenantID == tenantID && c.ClientID == clientID && c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockContacts) Insert(_ context.Context, c *models.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.New()
	c.Active = true
	m.contacts = append(m.contacts, c)
	return nil
}

func (m *mockContacts) FillEmptyFields(_ context.Context, id uuid.UUID, role, phone, email *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contacts {
		if c.ID != id {
			continue
		}
		if (c.Role == nil || *c.Role == "") && role != nil {
			c.Role = role
		}
		if (c.Phone == nil || *c.Phone == "") && phone != nil {
			c.Phone = phone
		}
		if (c.Email == nil || *c.Email == "") && email != nil {
			c.Email = email
		}
		return nil
	}
	return errors.New("contact not found")
}

func (m *mockContacts) HasPrimary(_ context.Context, tenantID, clientID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contacts {
		if c.TenantID == tenantID && c.ClientID == clientID && c.Active && c.IsPrimary {
			return true, nil
		}
	}
	return false, nil
}

type mockClientCache struct {
	name, phone, email *string
	calls              int
}

func (m *mockClientCache) FillContactCache(_ context.Context, _, _ uuid.UUID, name, phone, email *string) error {
	m.calls++
	if m.name == nil {
		m.name = name
	}
	if m.phone == nil {
		m.phone = phone
	}
	if m.email == nil {
		m.email = email
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testLogger() *slog.Logger { return slog.Default() }

func ptr[T any](v T) *T { return &v }
