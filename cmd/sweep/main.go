// Command sweep runs one garbage-collection job to completion and exits.
// It is meant to be invoked from cron; the server's admin endpoints kick
// the same jobs on the in-process scheduler instead.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"loom/internal/blob"
	"loom/internal/config"
	"loom/internal/domain/repositories"
	"loom/internal/repository/postgres"
	"loom/internal/scheduler"
	"loom/internal/service/chatstore"
	"loom/internal/service/cleanup"
)

func main() {
	job := flag.String("job", "", "Job to run: debug-files, chat-states, orphaned-blobs or verify")
	forReal := flag.Bool("for-real", false, "Actually delete; default is a logged dry run")
	daysInactive := flag.Int("days-inactive", 30, "Inactivity window for the debug-files job")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}
	chatRepo := postgres.NewChatRepository(repoConfig)
	cpRepo := postgres.NewCheckpointRepository(repoConfig)
	shareRepo := postgres.NewShareRepository(repoConfig)
	debugRepo := postgres.NewDebugLogRepository(repoConfig)
	sweepRepo := postgres.NewSweepRepository(repoConfig)

	blobs, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create blob store: %v", err)
	}

	// The manual scheduler turns the self-re-enqueueing sweeps into a
	// synchronous run: Drain executes pages until none is scheduled.
	queue := scheduler.NewManual()
	refs := chatstore.NewReferenceTracker(chatRepo, cpRepo, shareRepo, debugRepo, blobs, logger)
	svc := cleanup.NewService(chatRepo, cpRepo, shareRepo, debugRepo, sweepRepo, blobs, refs, queue, cfg, logger)

	switch *job {
	case "debug-files":
		err = svc.DeleteDebugFilesForInactiveChats(ctx, cleanup.DebugFilesOptions{
			ForReal:            *forReal,
			ShouldScheduleNext: true,
			DaysInactive:       *daysInactive,
		})
	case "chat-states":
		err = svc.DeleteAllOldChatStates(ctx, cleanup.ChatStatesOptions{
			ForReal:            *forReal,
			ShouldScheduleNext: true,
		})
	case "orphaned-blobs":
		err = svc.DeleteOrphanedBlobs(ctx, cleanup.OrphanSweepOptions{
			ForReal:            *forReal,
			ShouldScheduleNext: true,
		})
	case "verify":
		err = svc.VerifyReferencedBlobs(ctx)
	default:
		log.Fatalf("Unknown job %q", *job)
	}
	if err != nil {
		log.Fatalf("Job %s failed: %v", *job, err)
	}

	if err := queue.Drain(ctx); err != nil {
		log.Fatalf("Job %s failed mid-run: %v", *job, err)
	}
	logger.Info("sweep complete", "job", *job, "for_real", *forReal)
}

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
