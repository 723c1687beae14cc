package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saleslog/backend/internal/clients"
	"github.com/saleslog/backend/internal/extraction"
	"github.com/saleslog/backend/internal/models"
	"github.com/saleslog/backend/internal/provider"
)

// extractionTemperature keeps the provider close to deterministic output.
const extractionTemperature = 0.2

// Analyzer drives one LLM extraction call per note and applies its side
// effects in a fixed order, each individually idempotent.
type Analyzer struct {
	Notes    NoteStore
	Files    FileStore
	Jobs     JobStore
	Meter    Metering
	LLM      provider.LLM
	Parser   *extraction.Parser
	Resolver ClientMatcher
	Synth    *Synthesizer
	Logger   *slog.Logger
}

// AnalyzeResult is the operation outcome. ClientSuggestion is advisory: the
// note is never linked to a client automatically.
type AnalyzeResult struct {
	JobID             uuid.UUID         `json:"job_id"`
	Status            string            `json:"status"`
	Summary           string            `json:"summary"`
	Degraded          bool              `json:"degraded"`
	CreatedScheduleID *uuid.UUID        `json:"created_schedule_id,omitempty"`
	ClientSuggestion  *clients.Match    `json:"client_suggestion,omitempty"`
	Contacts          []*models.Contact `json:"contacts,omitempty"`
}

// analysisPayload is the job result payload, shaped so a cached replay from
// the job row returns the same result the original call did.
type analysisPayload struct {
	Summary           string         `json:"summary"`
	Model             string         `json:"model"`
	Degraded          bool           `json:"degraded"`
	CreatedScheduleID *uuid.UUID     `json:"created_schedule_id,omitempty"`
	ClientSuggestion  *clients.Match `json:"client_suggestion,omitempty"`
}

// Analyze extracts structured CRM facts from the note's transcript (or raw
// text). Jobs with a source file are idempotent per (tenant, note, file);
// text-only analyses always get a fresh job.
func (a *Analyzer) Analyze(ctx context.Context, tenantID, userID, noteID uuid.UUID, fileID *uuid.UUID) (*AnalyzeResult, error) {
	note, err := a.Notes.GetByID(ctx, tenantID, noteID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("load note: %w", err)
	}

	text := note.Body
	if note.Transcript != nil && strings.TrimSpace(*note.Transcript) != "" {
		text = *note.Transcript
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptySource
	}

	file, err := a.selectFile(ctx, tenantID, noteID, fileID)
	if err != nil {
		return nil, err
	}

	job, err := a.findOrCreateJob(ctx, tenantID, noteID, file)
	if err != nil {
		return nil, err
	}
	if job.Status == models.JobStatusDone {
		return cachedAnalysis(job), nil
	}
	if job.Status == models.JobStatusFailed {
		return &AnalyzeResult{JobID: job.ID, Status: job.Status},
			fmt.Errorf("%w: %s", ErrJobPreviouslyFailed, storedMessage(job))
	}
	if err := a.Jobs.MarkRunning(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("mark job running: %w", err)
	}

	// Quota rejection is not a provider failure; the job is left for the
	// stuck-job sweeper rather than marked failed.
	if err := a.Meter.CheckQuota(ctx, tenantID, AnalysisCostEstimate); err != nil {
		return nil, err
	}

	resp, err := a.LLM.Invoke(ctx, provider.InvokeRequest{
		SystemPrompt: extraction.SystemPrompt,
		UserText:     text,
		Temperature:  extractionTemperature,
	})
	if err != nil {
		_ = a.Jobs.MarkFailed(ctx, job.ID, err.Error())
		return nil, err
	}

	parsed := a.Parser.Parse(resp.Content)
	if parsed.Degraded {
		a.Logger.Warn("extraction output degraded to summary-only",
			"tenant_id", tenantID, "note_id", noteID, "job_id", job.ID, "model", resp.Model)
	}
	rec := parsed.Record

	result := &AnalyzeResult{JobID: job.ID, Summary: rec.Summary, Degraded: parsed.Degraded}
	if err := a.applySideEffects(ctx, note, rec, result); err != nil {
		_ = a.Jobs.MarkFailed(ctx, job.ID, err.Error())
		return nil, err
	}

	var extractionJSON json.RawMessage
	if !parsed.Degraded {
		extractionJSON, _ = json.Marshal(rec)
	}
	if err := a.Notes.SetAnalysis(ctx, tenantID, noteID, rec.Summary, extractionJSON); err != nil {
		_ = a.Jobs.MarkFailed(ctx, job.ID, err.Error())
		return nil, fmt.Errorf("persist analysis: %w", err)
	}

	if err := a.Meter.RecordUsage(ctx, tenantID, userID, models.FeatureExtraction, resp.Model,
		resp.InputTokens, resp.OutputTokens, usageMeta(job.ID)); err != nil {
		a.Logger.Error("record extraction usage failed", "job_id", job.ID, "error", err)
	}

	payload, _ := json.Marshal(analysisPayload{
		Summary:           rec.Summary,
		Model:             resp.Model,
		Degraded:          parsed.Degraded,
		CreatedScheduleID: result.CreatedScheduleID,
		ClientSuggestion:  result.ClientSuggestion,
	})
	if err := a.Jobs.MarkDone(ctx, job.ID, payload); err != nil {
		return nil, fmt.Errorf("mark job done: %w", err)
	}
	result.Status = models.JobStatusDone
	return result, nil
}

// selectFile picks the explicit file, else the note's first attachment,
// else none (text-only analysis).
func (a *Analyzer) selectFile(ctx context.Context, tenantID, noteID uuid.UUID, fileID *uuid.UUID) (*models.NoteFile, error) {
	if fileID != nil {
		file, err := a.Files.GetByID(ctx, tenantID, *fileID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrFileNotFound
			}
			return nil, fmt.Errorf("load file: %w", err)
		}
		return file, nil
	}
	file, err := a.Files.FirstByNoteID(ctx, tenantID, noteID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load first attachment: %w", err)
	}
	return file, nil
}

func (a *Analyzer) findOrCreateJob(ctx context.Context, tenantID, noteID uuid.UUID, file *models.NoteFile) (*models.ProcessingJob, error) {
	if file != nil {
		job, err := a.Jobs.FindByKey(ctx, tenantID, noteID, models.JobKindAnalysis, file.ID)
		if err != nil {
			return nil, fmt.Errorf("find analysis job: %w", err)
		}
		if job != nil {
			return job, nil
		}
	}
	job := &models.ProcessingJob{
		TenantID: tenantID,
		NoteID:   noteID,
		Kind:     models.JobKindAnalysis,
	}
	if file != nil {
		job.SourceFileID = &file.ID
	}
	if err := a.Jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create analysis job: %w", err)
	}
	return job, nil
}

// applySideEffects runs the fixed post-extraction sequence: client
// suggestion, amount, primary contact name, contact sync, schedule
// synthesis. Extraction only fills fields the user left empty.
func (a *Analyzer) applySideEffects(ctx context.Context, note *models.SalesNote, rec extraction.Record, result *AnalyzeResult) error {
	if rec.ClientName != nil && *rec.ClientName != "" && note.ClientID == nil {
		match, err := a.Resolver.FindBestMatch(ctx, note.TenantID, *rec.ClientName)
		if err != nil {
			return fmt.Errorf("match client: %w", err)
		}
		result.ClientSuggestion = match
	}

	if rec.Amount != nil && note.Amount == nil {
		if err := a.Notes.SetAmountIfEmpty(ctx, note.TenantID, note.ID, *rec.Amount); err != nil {
			return fmt.Errorf("set note amount: %w", err)
		}
	}

	if len(rec.Contacts) > 0 && empty(note.ContactName) {
		if name := strings.TrimSpace(rec.Contacts[0].Name); name != "" {
			if err := a.Notes.SetContactNameIfEmpty(ctx, note.TenantID, note.ID, name); err != nil {
				return fmt.Errorf("set note contact name: %w", err)
			}
		}
	}

	if note.ClientID != nil {
		contacts, err := a.Synth.SyncContacts(ctx, note.TenantID, *note.ClientID, rec.Contacts)
		if err != nil {
			return fmt.Errorf("sync contacts: %w", err)
		}
		result.Contacts = contacts
	}

	createdID, err := a.Synth.SyncSchedules(ctx, note, rec.Appointments)
	if err != nil {
		return fmt.Errorf("sync schedules: %w", err)
	}
	result.CreatedScheduleID = createdID
	return nil
}

func cachedAnalysis(job *models.ProcessingJob) *AnalyzeResult {
	var payload analysisPayload
	_ = json.Unmarshal(job.Result, &payload)
	return &AnalyzeResult{
		JobID:             job.ID,
		Status:            job.Status,
		Summary:           payload.Summary,
		Degraded:          payload.Degraded,
		CreatedScheduleID: payload.CreatedScheduleID,
		ClientSuggestion:  payload.ClientSuggestion,
	}
}
