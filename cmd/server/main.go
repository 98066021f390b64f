package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"loom/internal/auth"
	"loom/internal/blob"
	"loom/internal/config"
	"loom/internal/domain/repositories"
	"loom/internal/handler"
	"loom/internal/httputil"
	"loom/internal/middleware"
	"loom/internal/repository/memory"
	"loom/internal/repository/postgres"
	"loom/internal/scheduler"
	"loom/internal/service/chatstore"
	"loom/internal/service/cleanup"
	"loom/internal/service/share"
)

func main() {
	// .env is optional; production injects real env vars.
	_ = godotenv.Load()

	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}
	var logOut io.Writer = os.Stdout
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, cfg.LogMaxFiles)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer logFile.Close()
		logOut = io.MultiWriter(os.Stdout, logFile)
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
		"blob_backend", cfg.BlobBackend,
	)

	budgets, err := config.LoadBudgets()
	if err != nil {
		log.Fatalf("Failed to load budgets: %v", err)
	}

	// Token verification: JWKS in real deployments, static bearer-as-id
	// for local development.
	var verifier auth.TokenVerifier
	if cfg.JWKSURL != "" {
		verifier, err = auth.NewJWKSVerifier(cfg.JWKSURL, logger)
		if err != nil {
			log.Fatalf("Failed to create token verifier: %v", err)
		}
	} else {
		if cfg.Environment == "prod" {
			log.Fatal("JWKS_URL is required in prod")
		}
		verifier = auth.NewStaticVerifier(logger)
	}
	defer verifier.Close()

	ctx := context.Background()

	// Repositories: Postgres when a database is configured, in-memory
	// otherwise (local development without infrastructure).
	var (
		chatRepo  repositories.ChatRepository
		cpRepo    repositories.CheckpointRepository
		shareRepo repositories.ShareRepository
		debugRepo repositories.DebugLogRepository
		sweepRepo repositories.SweepRepository
		txManager repositories.TransactionManager
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to create connection pool: %v", err)
		}
		defer pool.Close()
		logger.Info("database connected")

		repoConfig := &postgres.RepositoryConfig{
			Pool:   pool,
			Tables: postgres.NewTableNames(cfg.TablePrefix),
			Logger: logger,
		}
		chatRepo = postgres.NewChatRepository(repoConfig)
		cpRepo = postgres.NewCheckpointRepository(repoConfig)
		shareRepo = postgres.NewShareRepository(repoConfig)
		debugRepo = postgres.NewDebugLogRepository(repoConfig)
		sweepRepo = postgres.NewSweepRepository(repoConfig)
		txManager = postgres.NewTransactionManager(pool)
	} else {
		if cfg.Environment == "prod" {
			log.Fatal("DATABASE_URL is required in prod")
		}
		logger.Warn("no DATABASE_URL set, using in-memory repositories")
		chatRepo = memory.NewChatRepository()
		cpRepo = memory.NewCheckpointRepository()
		shareRepo = memory.NewShareRepository()
		debugRepo = memory.NewDebugLogRepository()
		sweepRepo = memory.NewSweepRepository()
		txManager = memory.NewTransactionManager()
	}

	blobs, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create blob store: %v", err)
	}

	taskScheduler := scheduler.NewInProcess(logger)
	defer taskScheduler.Close()

	refs := chatstore.NewReferenceTracker(chatRepo, cpRepo, shareRepo, debugRepo, blobs, logger)
	chatService := chatstore.NewService(chatRepo, cpRepo, debugRepo, blobs, refs, txManager, taskScheduler, cfg, logger)
	shareService := share.NewService(chatRepo, cpRepo, shareRepo, txManager, cfg, logger)
	cleanupService := cleanup.NewService(chatRepo, cpRepo, shareRepo, debugRepo, sweepRepo, blobs, refs, taskScheduler, cfg, logger)

	chatHandler := handler.NewChatHandler(chatService, logger)
	shareHandler := handler.NewShareHandler(shareService, logger)
	cleanupHandler := handler.NewCleanupHandler(cleanupService, logger)

	logger.Info("services initialized")

	// Authenticated API surface.
	api := http.NewServeMux()
	api.HandleFunc("POST /api/chats", chatHandler.InitializeChat)
	api.HandleFunc("GET /api/chats", chatHandler.ListChats)
	api.HandleFunc("GET /api/chats/{id}", chatHandler.GetChat)
	api.HandleFunc("PATCH /api/chats/{id}", chatHandler.UpdateChat)
	api.HandleFunc("DELETE /api/chats/{id}", chatHandler.DeleteChat)

	api.HandleFunc("GET /api/chats/{id}/storage-state", chatHandler.GetStorageState)
	api.HandleFunc("PUT /api/chats/{id}/storage-state", chatHandler.UpdateStorageState)
	api.HandleFunc("POST /api/chats/{id}/rewind", chatHandler.Rewind)
	api.HandleFunc("GET /api/chats/{id}/earliest-rewindable-rank", chatHandler.GetEarliestRewindableRank)

	api.HandleFunc("GET /api/chats/{id}/subchats", chatHandler.ListSubchats)
	api.HandleFunc("POST /api/chats/{id}/subchats", chatHandler.CreateSubchat)

	api.HandleFunc("PUT /api/chats/{id}/snapshot", chatHandler.SaveSnapshot)
	api.HandleFunc("GET /api/chats/{id}/snapshot-url", chatHandler.GetSnapshotURL)

	api.HandleFunc("POST /api/chats/{id}/debug-prompt", chatHandler.LogDebugPrompt)
	api.HandleFunc("GET /api/chats/{id}/debug-prompt", chatHandler.GetDebugPrompt)

	api.HandleFunc("POST /api/shares", shareHandler.CreateShare)
	api.HandleFunc("POST /api/shares/{code}/clone", shareHandler.CloneShare)
	api.HandleFunc("POST /api/social-shares", shareHandler.CreateSocialShare)

	// Admin surface, gated on the shared admin token.
	admin := http.NewServeMux()
	admin.HandleFunc("POST /api/admin/cleanup/debug-files", cleanupHandler.StartDebugFilesSweep)
	admin.HandleFunc("POST /api/admin/cleanup/chat-states", cleanupHandler.StartChatStatesSweep)
	admin.HandleFunc("POST /api/admin/cleanup/orphaned-blobs", cleanupHandler.StartOrphanSweep)
	admin.HandleFunc("POST /api/admin/cleanup/verify", cleanupHandler.VerifyBlobs)
	admin.HandleFunc("POST /api/admin/social-shares/{code}/erase", shareHandler.EraseShareHistory)

	root := http.NewServeMux()
	root.HandleFunc("GET /health", handler.HealthCheck)
	root.Handle("GET /metrics", promhttp.Handler())

	// Share descriptions are readable by code alone: the code is the
	// capability, no session required.
	root.HandleFunc("GET /api/shares/{code}", shareHandler.DescribeShare)

	// Clients pull the compactor budgets from the server so both sides
	// agree on truncation behavior.
	root.HandleFunc("GET /api/budgets", func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondJSON(w, http.StatusOK, budgets)
	})

	root.Handle("/api/admin/", handler.RequireAdminToken(cfg.AdminToken)(admin))
	root.Handle("/api/", middleware.Auth(verifier, logger)(api))

	var httpHandler http.Handler = root
	httpHandler = middleware.Recovery(logger)(httpHandler)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	httpHandler = corsHandler.Handler(httpHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-shutdownCtx.Done()
	logger.Info("shutting down")

	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

// newBlobStore builds the configured blob backend.
func newBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repositories.BlobStore, error) {
	switch cfg.BlobBackend {
	case "gcs":
		return blob.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile, logger)
	case "memory":
		return blob.NewMemoryStore(), nil
	default:
		return blob.NewBadgerStore(cfg.BadgerPath, logger)
	}
}
