package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saleslog/backend/internal/middleware"
	"github.com/saleslog/backend/internal/models"
	"github.com/saleslog/backend/internal/pipeline"
)

// NoteRepoForHandler is the subset of the note repository the handler needs.
type NoteRepoForHandler interface {
	Create(ctx context.Context, n *models.SalesNote) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.SalesNote, error)
	LinkClient(ctx context.Context, tenantID, id, clientID uuid.UUID) error
}

// FileRepoForHandler persists attachments and resolves the default one.
type FileRepoForHandler interface {
	Create(ctx context.Context, f *models.NoteFile) error
	FirstByNoteID(ctx context.Context, tenantID, noteID uuid.UUID) (*models.NoteFile, error)
}

// ScheduleReader lists a note's schedule entries.
type ScheduleReader interface {
	ListByNote(ctx context.Context, tenantID, noteID uuid.UUID) ([]*models.ScheduleEntry, error)
}

// ClientResolverForHandler turns a raw client name into a client row.
type ClientResolverForHandler interface {
	FindOrCreate(ctx context.Context, tenantID uuid.UUID, name string) (*models.Client, error)
}

// TranscribeRunner and AnalyzeRunner are the two pipeline operations.
type TranscribeRunner interface {
	Transcribe(ctx context.Context, tenantID, userID, noteID, fileID uuid.UUID, language string) (*pipeline.TranscribeResult, error)
}

type AnalyzeRunner interface {
	Analyze(ctx context.Context, tenantID, userID, noteID uuid.UUID, fileID *uuid.UUID) (*pipeline.AnalyzeResult, error)
}

// NoteHandler serves /v1/notes endpoints.
type NoteHandler struct {
	Notes       NoteRepoForHandler
	Files       FileRepoForHandler
	Schedules   ScheduleReader
	Resolver    ClientResolverForHandler
	Transcriber TranscribeRunner
	Analyzer    AnalyzeRunner
	Language    string
	Logger      *slog.Logger
}

// --- POST /v1/notes ---

type createNoteRequest struct {
	Body     string  `json:"body"`
	ClientID *string `json:"client_id"`
	File     *struct {
		StoragePath     string   `json:"storage_path"`
		ContentType     string   `json:"content_type"`
		DurationSeconds *float64 `json:"duration_seconds"`
	} `json:"file"`
}

type createNoteResponse struct {
	NoteID string  `json:"note_id"`
	FileID *string `json:"file_id,omitempty"`
}

// CreateNote records a raw note, optionally with one audio attachment.
func (h *NoteHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Body == "" && req.File == nil {
		writeErr(w, http.StatusBadRequest, "note needs a body or a file")
		return
	}

	note := &models.SalesNote{
		TenantID: ident.TenantID,
		OwnerID:  ident.UserID,
		Body:     req.Body,
	}
	if req.ClientID != nil {
		clientID, err := uuid.Parse(*req.ClientID)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid client_id")
			return
		}
		note.ClientID = &clientID
	}
	if err := h.Notes.Create(r.Context(), note); err != nil {
		h.Logger.Error("create note", "error", err)
		writeErr(w, http.StatusInternalServerError, "failed to create note")
		return
	}

	resp := createNoteResponse{NoteID: note.ID.String()}
	if req.File != nil {
		if req.File.StoragePath == "" {
			writeErr(w, http.StatusBadRequest, "file.storage_path is required")
			return
		}
		f := &models.NoteFile{
			TenantID:        ident.TenantID,
			NoteID:          note.ID,
			StoragePath:     req.File.StoragePath,
			ContentType:     req.File.ContentType,
			DurationSeconds: req.File.DurationSeconds,
		}
		if err := h.Files.Create(r.Context(), f); err != nil {
			h.Logger.Error("create note file", "note_id", note.ID, "error", err)
			writeErr(w, http.StatusInternalServerError, "failed to attach file")
			return
		}
		s := f.ID.String()
		resp.FileID = &s
	}

	writeJSON(w, http.StatusCreated, resp)
}

// --- GET /v1/notes/{id} ---

type noteResponse struct {
	Note      *models.SalesNote       `json:"note"`
	Schedules []*models.ScheduleEntry `json:"schedules"`
}

func (h *NoteHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	noteID, ok := pathID(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid note id")
		return
	}

	note, err := h.Notes.GetByID(r.Context(), ident.TenantID, noteID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeErr(w, http.StatusNotFound, "note not found")
			return
		}
		h.Logger.Error("get note", "note_id", noteID, "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}

	schedules, err := h.Schedules.ListByNote(r.Context(), ident.TenantID, noteID)
	if err != nil {
		h.Logger.Error("list schedules", "note_id", noteID, "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, noteResponse{Note: note, Schedules: schedules})
}

// --- POST /v1/notes/{id}/transcribe ---

type transcribeRequest struct {
	FileID   *string `json:"file_id"`
	Language string  `json:"language"`
}

// Transcribe runs speech-to-text for one of the note's attachments. With no
// file_id in the body the first attachment is used.
func (h *NoteHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	noteID, ok := pathID(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid note id")
		return
	}

	var req transcribeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	var fileID uuid.UUID
	if req.FileID != nil {
		id, err := uuid.Parse(*req.FileID)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid file_id")
			return
		}
		fileID = id
	} else {
		f, err := h.Files.FirstByNoteID(r.Context(), ident.TenantID, noteID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				writeErr(w, http.StatusNotFound, "note has no audio attachment")
				return
			}
			h.Logger.Error("resolve attachment", "note_id", noteID, "error", err)
			writeErr(w, http.StatusInternalServerError, "internal error")
			return
		}
		fileID = f.ID
	}

	language := req.Language
	if language == "" {
		language = h.Language
	}

	result, err := h.Transcriber.Transcribe(r.Context(), ident.TenantID, ident.UserID, noteID, fileID, language)
	if err != nil {
		writePipelineError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- POST /v1/notes/{id}/analyze ---

type analyzeRequest struct {
	FileID *string `json:"file_id"`
}

func (h *NoteHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	noteID, ok := pathID(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid note id")
		return
	}

	var req analyzeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	var fileID *uuid.UUID
	if req.FileID != nil {
		id, err := uuid.Parse(*req.FileID)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid file_id")
			return
		}
		fileID = &id
	}

	result, err := h.Analyzer.Analyze(r.Context(), ident.TenantID, ident.UserID, noteID, fileID)
	if err != nil {
		writePipelineError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- POST /v1/notes/{id}/link-client ---

type linkClientRequest struct {
	ClientID   *string `json:"client_id"`
	ClientName *string `json:"client_name"`
}

// LinkClient attaches a note to a client, either by id or by name (the name
// path resolves against the roster, creating the client if nothing matches).
func (h *NoteHandler) LinkClient(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	noteID, ok := pathID(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid note id")
		return
	}

	var req linkClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var clientID uuid.UUID
	switch {
	case req.ClientID != nil:
		id, err := uuid.Parse(*req.ClientID)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid client_id")
			return
		}
		clientID = id
	case req.ClientName != nil && *req.ClientName != "":
		client, err := h.Resolver.FindOrCreate(r.Context(), ident.TenantID, *req.ClientName)
		if err != nil {
			h.Logger.Error("resolve client", "name", *req.ClientName, "error", err)
			writeErr(w, http.StatusInternalServerError, "failed to resolve client")
			return
		}
		clientID = client.ID
	default:
		writeErr(w, http.StatusBadRequest, "client_id or client_name is required")
		return
	}

	if err := h.Notes.LinkClient(r.Context(), ident.TenantID, noteID, clientID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeErr(w, http.StatusNotFound, "note not found")
			return
		}
		h.Logger.Error("link client", "note_id", noteID, "error", err)
		writeErr(w, http.StatusInternalServerError, "failed to link client")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"note_id":   noteID.String(),
		"client_id": clientID.String(),
	})
}
