package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/uuid"

	"github.com/saleslog/backend/internal/clients"
	"github.com/saleslog/backend/internal/extraction"
	"github.com/saleslog/backend/internal/models"
	"github.com/saleslog/backend/internal/tokens"
)

func testParser(t *testing.T) *extraction.Parser {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine test file path")
	}
	path := filepath.Join(filepath.Dir(file), "..", "..", "schemas", "extraction.v1.json")
	p, err := extraction.NewParser(path)
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	return p
}

type analyzeFixture struct {
	tenant, user uuid.UUID
	note         *models.SalesNote
	notes        *mockNotes
	files        *mockFiles
	jobs         *mockJobs
	meter        *mockMeter
	llm          *mockLLM
	matcher      *mockMatcher
	schedules    *mockSchedules
	contacts     *mockContacts
	cache        *mockClientCache
	an           *Analyzer
}

func newAnalyzeFixture(t *testing.T) *analyzeFixture {
	t.Helper()
	tenant := uuid.New()
	user := uuid.New()
	note := &models.SalesNote{
		ID:       uuid.New(),
		TenantID: tenant,
		OwnerID:  user,
		Body:     "오늘 삼성전자 방문. 김부장님과 2차 미팅 합의, 계약 규모 2억.",
		Active:   true,
	}
	f := &analyzeFixture{
		tenant:    tenant,
		user:      user,
		note:      note,
		notes:     newMockNotes(note),
		files:     newMockFiles(),
		jobs:      &mockJobs{},
		meter:     &mockMeter{},
		llm:       &mockLLM{},
		matcher:   &mockMatcher{},
		schedules: &mockSchedules{},
		contacts:  &mockContacts{},
		cache:     &mockClientCache{},
	}
	f.an = &Analyzer{
		Notes:    f.notes,
		Files:    f.files,
		Jobs:     f.jobs,
		Meter:    f.meter,
		LLM:      f.llm,
		Parser:   testParser(t),
		Resolver: f.matcher,
		Synth: &Synthesizer{
			Schedules: f.schedules,
			Contacts:  f.contacts,
			Clients:   f.cache,
			Logger:    testLogger(),
		},
		Logger: testLogger(),
	}
	return f
}

const extractionContent = `{
	"summary": "삼성전자 방문, 2차 미팅 합의",
	"appointments": [
		{"title": "2차 미팅", "date": "2026-09-10T14:00:00+09:00", "desc": "본사 회의실", "actionOwner": "shared"},
		{"title": "견적서 발송", "date": "2026-09-05T09:00:00+09:00", "desc": "", "actionOwner": "self"},
		{"title": "내부 검토 일정 조율", "date": null, "desc": "추후 확정", "actionOwner": "self"}
	],
	"clientName": "삼성전자",
	"contacts": [{"name": "김부장", "role": "구매팀장", "phone": "010-1234-5678", "email": null}],
	"amount": 200000000,
	"notes": ""
}`

func TestAnalyze_EndToEnd(t *testing.T) {
	f := newAnalyzeFixture(t)
	f.llm.content = extractionContent
	f.matcher.match = &clients.Match{ClientID: uuid.New(), ClientName: "삼성전자", Confidence: 1.0}

	res, err := f.an.Analyze(context.Background(), f.tenant, f.user, f.note.ID, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Status != models.JobStatusDone {
		t.Errorf("status: got %q, want done", res.Status)
	}
	if res.Degraded {
		t.Error("valid extraction should not be degraded")
	}

	// Two dated appointments become schedule rows; the dateless one does not.
	if len(f.schedules.entries) != 2 {
		t.Fatalf("schedule entries: got %d, want 2", len(f.schedules.entries))
	}
	if res.CreatedScheduleID == nil {
		t.Fatal("expected the first created schedule id")
	}
	if *res.CreatedScheduleID != f.schedules.entries[0].ID {
		t.Error("created_schedule_id should be the first entry created")
	}
	for _, e := range f.schedules.entries {
		if !e.AutoGenerated {
			t.Error("pipeline entries must be auto_generated")
		}
		if e.Status != models.ScheduleStatusScheduled {
			t.Errorf("entry status: got %q", e.Status)
		}
	}

	// Unlinked note plus an extracted client name yields a suggestion only.
	if res.ClientSuggestion == nil || res.ClientSuggestion.ClientName != "삼성전자" {
		t.Error("expected a client suggestion")
	}
	note := f.notes.get(f.note.ID)
	if note.ClientID != nil {
		t.Error("analysis must never link the note to a client")
	}

	// Amount and contact name fill empty note fields.
	if note.Amount == nil || *note.Amount != 200000000 {
		t.Error("amount not set on note")
	}
	if note.ContactName == nil || *note.ContactName != "김부장" {
		t.Error("contact name not set on note")
	}
	if !note.AnalysisDone || note.Summary == nil {
		t.Error("analysis result not persisted on note")
	}

	// Usage recorded from provider-reported token counts.
	if len(f.meter.events) != 1 {
		t.Fatalf("usage events: got %d, want 1", len(f.meter.events))
	}
	ev := f.meter.events[0]
	if ev.Feature != models.FeatureExtraction || ev.InputTokens != 700 || ev.OutputTokens != 300 {
		t.Errorf("usage event: %+v", ev)
	}
}

func TestAnalyze_DoesNotOverwriteUserFields(t *testing.T) {
	f := newAnalyzeFixture(t)
	f.note.Amount = ptr(int64(50_000_000))
	f.note.ContactName = ptr("이과장")
	f.llm.content = extractionContent

	if _, err := f.an.Analyze(context.Background(), f.tenant, f.user, f.note.ID, nil); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	note := f.notes.get(f.note.ID)
	if *note.Amount != 50_000_000 {
		t.Error("user-entered amount was overwritten")
	}
	if *note.ContactName != "이과장" {
		t.Error("user-entered contact name was overwritten")
	}
}

func TestAnalyze_LinkedNoteSyncsContacts(t *testing.T) {
	f := newAnalyzeFixture(t)
	clientID := uuid.New()
	f.note.ClientID = &clientID
	f.llm.content = extractionContent

	res, err := f.an.Analyze(context.Background(), f.tenant, f.user, f.note.ID, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	// Linked note: no suggestion, contacts synced into the roster.
	if res.ClientSuggestion != nil {
		t.Error("linked note must not get a client suggestion")
	}
	if len(f.contacts.contacts) != 1 {
		t.Fatalf("contacts: got %d, want 1", len(f.contacts.contacts))
	}
	c := f.contacts.contacts[0]
	if c.Name != "김부장" || !c.IsPrimary {
		t.Errorf("first synced contact should be primary: %+v", c)
	}
	// Primary contact mirrored into the client's cached fields.
	if f.cache.calls != 1 || f.cache.name == nil || *f.cache.name != "김부장" {
		t.Error("primary contact not mirrored onto the client")
	}
}

func TestAnalyze_DegradedOutput(t *testing.T) {
	f := newAnalyzeFixture(t)
	f.llm.content = "죄송하지만 JSON으로 변환할 수 없습니다."

	res, err := f.an.Analyze(context.Background(), f.tenant, f.user, f.note.ID, nil)
	if err != nil {
		t.Fatalf("degraded parse must not fail the operation: %v", err)
	}
	if !res.Degraded {
		t.Fatal("expected degraded result")
	}
	if res.Status != models.JobStatusDone {
		t.Errorf("degraded analysis still completes: got %q", res.Status)
	}
	if len(f.schedules.entries) != 0 {
		t.Error("degraded result must not create schedule entries")
	}
	note := f.notes.get(f.note.ID)
	if note.Summary == nil || *note.Summary == "" {
		t.Error("raw content should survive as the summary")
	}
	if note.Extraction != nil {
		t.Error("degraded analysis must not persist an extraction payload")
	}
}

func TestAnalyze_EmptySource(t *testing.T) {
	f := newAnalyzeFixture(t)
	f.note.Body = "   "

	_, err := f.an.Analyze(context.Background(), f.tenant, f.user, f.note.ID, nil)
	if !errors.Is(err, ErrEmptySource) {
		t.Fatalf("expected ErrEmptySource, got: %v", err)
	}
	if f.jobs.count() != 0 {
		t.Error("empty source must not create a job")
	}
	if f.llm.calls != 0 {
		t.Error("empty source must not reach the provider")
	}
}

func TestAnalyze_TranscriptPreferredOverBody(t *testing.T) {
	f := newAnalyzeFixture(t)
	f.note.Body = ""
	f.note.Transcript = ptr("전사된 텍스트입니다")
	f.llm.content = `{"summary": "ok"}`

	if _, err := f.an.Analyze(context.Background(), f.tenant, f.user, f.note.ID, nil); err != nil {
		t.Fatalf("Analyze with transcript only: %v", err)
	}
	if f.llm.calls != 1 {
		t.Error("transcript-backed note should be analyzed")
	}
}

// File-backed analyses are idempotent per (tenant, note, file); text-only
// analyses always run fresh.
func TestAnalyze_JobReuseRules(t *testing.T) {
	f := newAnalyzeFixture(t)
	f.llm.content = extractionContent
	file := &models.NoteFile{ID: uuid.New(), TenantID: f.tenant, NoteID: f.note.ID, StoragePath: "p", ContentType: "audio/m4a"}
	f.files.files[file.ID] = file
	ctx := context.Background()

	first, err := f.an.Analyze(ctx, f.tenant, f.user, f.note.ID, &file.ID)
	if err != nil {
		t.Fatalf("first Analyze: %v", err)
	}
	second, err := f.an.Analyze(ctx, f.tenant, f.user, f.note.ID, &file.ID)
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}
	if second.JobID != first.JobID {
		t.Error("file-backed replay should reuse the job")
	}
	if second.Summary != first.Summary || second.CreatedScheduleID == nil {
		t.Error("cached replay should return the original payload")
	}
	if f.llm.calls != 1 {
		t.Errorf("provider calls after replay: got %d, want 1", f.llm.calls)
	}
	if len(f.schedules.entries) != 2 {
		t.Errorf("cached replay created schedules: %d entries", len(f.schedules.entries))
	}

	// Text-only requests never reuse: each gets a fresh job and a fresh call.
	textFixture := newAnalyzeFixture(t)
	textFixture.llm.content = `{"summary": "ok"}`
	r1, err := textFixture.an.Analyze(ctx, textFixture.tenant, textFixture.user, textFixture.note.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := textFixture.an.Analyze(ctx, textFixture.tenant, textFixture.user, textFixture.note.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if r1.JobID == r2.JobID {
		t.Error("text-only analyses must not share a job")
	}
	if textFixture.llm.calls != 2 {
		t.Errorf("text-only provider calls: got %d, want 2", textFixture.llm.calls)
	}
}

func TestAnalyze_QuotaRejected(t *testing.T) {
	f := newAnalyzeFixture(t)
	f.meter.quotaErr = tokens.ErrQuotaExceeded

	_, err := f.an.Analyze(context.Background(), f.tenant, f.user, f.note.ID, nil)
	if !errors.Is(err, tokens.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got: %v", err)
	}
	if f.llm.calls != 0 {
		t.Error("no provider call after quota rejection")
	}
	if job := f.jobs.jobs[0]; job.Status == models.JobStatusFailed {
		t.Error("quota rejection must not fail the job")
	}
}

func TestAnalyze_ProviderFailureIsTerminal(t *testing.T) {
	f := newAnalyzeFixture(t)
	file := &models.NoteFile{ID: uuid.New(), TenantID: f.tenant, NoteID: f.note.ID, StoragePath: "p", ContentType: "audio/m4a"}
	f.files.files[file.ID] = file
	f.llm.err = errors.New("model overloaded")
	ctx := context.Background()

	if _, err := f.an.Analyze(ctx, f.tenant, f.user, f.note.ID, &file.ID); err == nil {
		t.Fatal("expected provider error")
	}
	if job := f.jobs.jobs[0]; job.Status != models.JobStatusFailed {
		t.Fatalf("job status: got %q, want failed", job.Status)
	}

	f.llm.err = nil
	_, err := f.an.Analyze(ctx, f.tenant, f.user, f.note.ID, &file.ID)
	if !errors.Is(err, ErrJobPreviouslyFailed) {
		t.Fatalf("expected ErrJobPreviouslyFailed, got: %v", err)
	}
	if f.llm.calls != 1 {
		t.Error("terminal key must not reach the provider again")
	}
}
