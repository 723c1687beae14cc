package main

import (
	"log/slog"
	"net/http"

	"github.com/saleslog/backend/internal/clients"
	"github.com/saleslog/backend/internal/handlers"
	"github.com/saleslog/backend/internal/middleware"
	"github.com/saleslog/backend/internal/pipeline"
	"github.com/saleslog/backend/internal/repository"
	"github.com/saleslog/backend/internal/tokens"
)

// RegisterV1Routes adds the /v1/ note API endpoints to the given mux.
// Middleware chain: APIKeyAuth -> (QuotaCheck on metered endpoints) -> handler.
func RegisterV1Routes(
	mux *http.ServeMux,
	apiKeyRepo *repository.APIKeyRepo,
	noteRepo *repository.NoteRepo,
	fileRepo *repository.NoteFileRepo,
	scheduleRepo *repository.ScheduleRepo,
	tokenRepo *repository.TokenRepo,
	resolver *clients.Resolver,
	meter *tokens.Service,
	transcriber *pipeline.Transcriber,
	analyzer *pipeline.Analyzer,
	sttLanguage string,
	logger *slog.Logger,
) {
	nh := &handlers.NoteHandler{
		Notes:       noteRepo,
		Files:       fileRepo,
		Schedules:   scheduleRepo,
		Resolver:    resolver,
		Transcriber: transcriber,
		Analyzer:    analyzer,
		Language:    sttLanguage,
		Logger:      logger,
	}
	ch := &handlers.ClientHandler{Resolver: resolver, Logger: logger}
	th := &handlers.TokenHandler{Meter: meter, Ledger: tokenRepo, Logger: logger}

	auth := middleware.APIKeyAuth(apiKeyRepo)
	quota := middleware.QuotaCheck(meter)

	mux.Handle("POST /v1/notes", auth(http.HandlerFunc(nh.CreateNote)))
	mux.Handle("GET /v1/notes/{id}", auth(http.HandlerFunc(nh.GetNote)))
	mux.Handle("POST /v1/notes/{id}/link-client", auth(http.HandlerFunc(nh.LinkClient)))

	// Metered endpoints get the up-front quota gate; the pipeline itself
	// checks again before each provider call.
	mux.Handle("POST /v1/notes/{id}/transcribe", auth(quota(http.HandlerFunc(nh.Transcribe))))
	mux.Handle("POST /v1/notes/{id}/analyze", auth(quota(http.HandlerFunc(nh.Analyze))))

	mux.Handle("GET /v1/clients/match", auth(http.HandlerFunc(ch.Match)))
	mux.Handle("POST /v1/clients/resolve", auth(http.HandlerFunc(ch.Resolve)))

	mux.Handle("GET /v1/usage", auth(http.HandlerFunc(th.Usage)))
	mux.Handle("GET /v1/token-ledger", auth(http.HandlerFunc(th.LedgerList)))
	mux.Handle("POST /v1/tokens/grant", auth(http.HandlerFunc(th.Grant)))
}
