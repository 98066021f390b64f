// Package cleanup implements the background garbage collection jobs: the
// inactive-chat debug file sweep, branch-tip compaction, and the orphaned
// blob sweep. All jobs are cursor-paginated, idempotent, and re-enqueue
// themselves through the scheduler with an explicit inter-page delay so
// they stay friendly to live traffic.
package cleanup

import (
	"log/slog"

	"loom/internal/config"
	"loom/internal/domain/repositories"
	"loom/internal/service/chatstore"
)

// Service owns the sweep jobs
type Service struct {
	chats       repositories.ChatRepository
	checkpoints repositories.CheckpointRepository
	shares      repositories.ShareRepository
	debugLog    repositories.DebugLogRepository
	sweeps      repositories.SweepRepository
	blobs       repositories.BlobStore
	refs        *chatstore.ReferenceTracker
	scheduler   repositories.Scheduler
	cfg         *config.Config
	logger      *slog.Logger
}

// NewService creates a new cleanup service
func NewService(
	chats repositories.ChatRepository,
	checkpoints repositories.CheckpointRepository,
	shares repositories.ShareRepository,
	debugLog repositories.DebugLogRepository,
	sweeps repositories.SweepRepository,
	blobs repositories.BlobStore,
	refs *chatstore.ReferenceTracker,
	scheduler repositories.Scheduler,
	cfg *config.Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		chats:       chats,
		checkpoints: checkpoints,
		shares:      shares,
		debugLog:    debugLog,
		sweeps:      sweeps,
		blobs:       blobs,
		refs:        refs,
		scheduler:   scheduler,
		cfg:         cfg,
		logger:      logger,
	}
}
