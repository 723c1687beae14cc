package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/saleslog/backend/internal/auth"
	"github.com/saleslog/backend/internal/clients"
	"github.com/saleslog/backend/internal/config"
	"github.com/saleslog/backend/internal/execution"
	"github.com/saleslog/backend/internal/extraction"
	"github.com/saleslog/backend/internal/pipeline"
	"github.com/saleslog/backend/internal/provider"
	"github.com/saleslog/backend/internal/repository"
	"github.com/saleslog/backend/internal/router"
	"github.com/saleslog/backend/internal/tokens"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("cannot reach PostgreSQL", "error", err)
		os.Exit(1)
	}

	// Schema migrations, then River's own tables.
	m, err := migrate.New("file://"+cfg.MigrationsDir, cfg.DatabaseURL)
	if err != nil {
		slog.Error("migrate init failed", "error", err)
		os.Exit(1)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		slog.Error("migrate up failed", "error", err)
		os.Exit(1)
	}
	riverMigrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := riverMigrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("migrations applied")

	// Repositories.
	tenantRepo := repository.NewTenantRepo(pool)
	userRepo := repository.NewUserRepo(pool)
	apiKeyRepo := repository.NewAPIKeyRepo(pool)
	noteRepo := repository.NewNoteRepo(pool)
	fileRepo := repository.NewNoteFileRepo(pool)
	jobRepo := repository.NewJobRepo(pool)
	tokenRepo := repository.NewTokenRepo(pool)
	usageRepo := repository.NewUsageRepo(pool)
	clientRepo := repository.NewClientRepo(pool)
	contactRepo := repository.NewContactRepo(pool)
	scheduleRepo := repository.NewScheduleRepo(pool)

	// Services.
	meter := tokens.NewService(tokenRepo, usageRepo, tenantRepo, cfg.DefaultMonthlyTokens, logger)
	resolver := clients.NewResolver(clientRepo)

	authSvc := auth.NewService(tenantRepo, userRepo, apiKeyRepo, meter, cfg.JWTSecret, cfg.SignupGrantTokens)
	authHandler := auth.NewHandler(authSvc, logger)

	parser, err := extraction.NewParser(cfg.ExtractionSchemaPath)
	if err != nil {
		slog.Error("extraction schema load failed", "error", err, "path", cfg.ExtractionSchemaPath)
		os.Exit(1)
	}

	timeout := cfg.ProviderCallTimeout()
	storage := provider.NewStorageClient(cfg.StorageBaseURL, cfg.StorageAPIKey, timeout)
	stt := provider.NewSTTClient(cfg.STTBaseURL, cfg.STTAPIKey, timeout)
	llm := provider.NewLLMClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, timeout)

	transcriber := &pipeline.Transcriber{
		Notes:   noteRepo,
		Files:   fileRepo,
		Jobs:    jobRepo,
		Meter:   meter,
		Storage: storage,
		STT:     stt,
		Logger:  logger,
	}
	synth := &pipeline.Synthesizer{
		Schedules: scheduleRepo,
		Contacts:  contactRepo,
		Clients:   clientRepo,
		Logger:    logger,
	}
	analyzer := &pipeline.Analyzer{
		Notes:    noteRepo,
		Files:    fileRepo,
		Jobs:     jobRepo,
		Meter:    meter,
		LLM:      llm,
		Parser:   parser,
		Resolver: resolver,
		Synth:    synth,
		Logger:   logger,
	}

	// Background maintenance: jobs stuck in running past the provider
	// timeout get failed by the periodic sweep.
	workers := river.NewWorkers()
	river.AddWorker(workers, execution.NewStuckJobSweeper(jobRepo, timeout+10*time.Minute, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(cfg.SweepEvery()),
				func() (river.JobArgs, *river.InsertOpts) {
					return execution.SweepStuckJobsArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		slog.Error("failed to create River client", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", router.New(authHandler))
	RegisterV1Routes(mux, apiKeyRepo, noteRepo, fileRepo, scheduleRepo, tokenRepo,
		resolver, meter, transcriber, analyzer, cfg.STTLanguage, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)

	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	slog.Info("starting HTTP server", "addr", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
