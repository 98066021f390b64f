package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// PostgresSweepRepository implements the SweepRepository interface using PostgreSQL
type PostgresSweepRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewSweepRepository creates a new PostgresSweepRepository
func NewSweepRepository(config *RepositoryConfig) repositories.SweepRepository {
	return &PostgresSweepRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Insert creates a new progress record
func (r *PostgresSweepRepository) Insert(ctx context.Context, progress *models.SweepProgress) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, for_real, cursor, processed, num_deleted, is_done, latest_end, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.tables.SweepProgress)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		progress.ID,
		progress.Name,
		progress.ForReal,
		progress.Cursor,
		progress.Processed,
		progress.NumDeleted,
		progress.IsDone,
		progress.LatestEnd,
		progress.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sweep progress: %w", err)
	}

	return nil
}

// Get retrieves a progress record by id
func (r *PostgresSweepRepository) Get(ctx context.Context, id string) (*models.SweepProgress, error) {
	query := fmt.Sprintf(`
		SELECT id, name, for_real, cursor, processed, num_deleted, is_done, latest_end, created_at
		FROM %s WHERE id = $1
	`, r.tables.SweepProgress)

	var progress models.SweepProgress
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id).Scan(
		&progress.ID,
		&progress.Name,
		&progress.ForReal,
		&progress.Cursor,
		&progress.Processed,
		&progress.NumDeleted,
		&progress.IsDone,
		&progress.LatestEnd,
		&progress.CreatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("sweep progress %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get sweep progress: %w", err)
	}

	return &progress, nil
}

// Update writes the record's mutable fields
func (r *PostgresSweepRepository) Update(ctx context.Context, progress *models.SweepProgress) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET cursor = $2, processed = $3, num_deleted = $4, is_done = $5, latest_end = $6
		WHERE id = $1
	`, r.tables.SweepProgress)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query,
		progress.ID,
		progress.Cursor,
		progress.Processed,
		progress.NumDeleted,
		progress.IsDone,
		progress.LatestEnd,
	)
	if err != nil {
		return fmt.Errorf("update sweep progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sweep progress %s: %w", progress.ID, domain.ErrNotFound)
	}

	return nil
}
