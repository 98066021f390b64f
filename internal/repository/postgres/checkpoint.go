package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// PostgresCheckpointRepository implements the CheckpointRepository interface using PostgreSQL
type PostgresCheckpointRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewCheckpointRepository creates a new PostgresCheckpointRepository
func NewCheckpointRepository(config *RepositoryConfig) repositories.CheckpointRepository {
	return &PostgresCheckpointRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const checkpointColumns = `id, chat_id, subchat_index, last_message_rank, part_index,
		storage_id, snapshot_id, description, created_at`

// tipOrder is the canonical within-branch ordering; the latest row under
// it is the branch tip.
const tipOrder = `last_message_rank, part_index, created_at`

func scanCheckpoint(row pgx.Row) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	err := row.Scan(
		&cp.ID,
		&cp.ChatID,
		&cp.SubchatIndex,
		&cp.LastMessageRank,
		&cp.PartIndex,
		&cp.StorageID,
		&cp.SnapshotID,
		&cp.Description,
		&cp.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (r *PostgresCheckpointRepository) scanCheckpoints(rows pgx.Rows) ([]models.Checkpoint, error) {
	defer rows.Close()

	var cps []models.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cps = append(cps, *cp)
	}

	return cps, rows.Err()
}

// Insert creates a new checkpoint row
func (r *PostgresCheckpointRepository) Insert(ctx context.Context, cp *models.Checkpoint) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, chat_id, subchat_index, last_message_rank, part_index,
			storage_id, snapshot_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.tables.Checkpoints)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		cp.ID,
		cp.ChatID,
		cp.SubchatIndex,
		cp.LastMessageRank,
		cp.PartIndex,
		cp.StorageID,
		cp.SnapshotID,
		cp.Description,
		cp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}

	return nil
}

// Patch updates the non-nil fields of one row in place
func (r *PostgresCheckpointRepository) Patch(ctx context.Context, id string, patch repositories.CheckpointPatch) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET storage_id = COALESCE($2, storage_id),
			snapshot_id = COALESCE($3, snapshot_id),
			part_index = COALESCE($4, part_index),
			description = COALESCE($5, description)
		WHERE id = $1
	`, r.tables.Checkpoints)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, id, patch.StorageID, patch.SnapshotID, patch.PartIndex, patch.Description)
	if err != nil {
		return fmt.Errorf("patch checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("checkpoint %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

// Delete removes one row
func (r *PostgresCheckpointRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Checkpoints)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}

	return nil
}

// LatestForSubchat resolves the branch tip, bounded above by maxRank when set
func (r *PostgresCheckpointRepository) LatestForSubchat(ctx context.Context, chatID string, subchatIndex int, maxRank *int) (*models.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE chat_id = $1 AND subchat_index = $2 AND ($3::int IS NULL OR last_message_rank <= $3)
		ORDER BY %s DESC
		LIMIT 1
	`, checkpointColumns, r.tables.Checkpoints, tipOrder)

	executor := GetExecutor(ctx, r.pool)
	cp, err := scanCheckpoint(executor.QueryRow(ctx, query, chatID, subchatIndex, maxRank))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get branch tip: %w", err)
	}

	return cp, nil
}

// EarliestForSubchat returns up to limit rows of the branch ascending, bounded above by maxRank
func (r *PostgresCheckpointRepository) EarliestForSubchat(ctx context.Context, chatID string, subchatIndex, maxRank, limit int) ([]models.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE chat_id = $1 AND subchat_index = $2 AND last_message_rank <= $3
		ORDER BY %s
		LIMIT $4
	`, checkpointColumns, r.tables.Checkpoints, tipOrder)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, chatID, subchatIndex, maxRank, limit)
	if err != nil {
		return nil, fmt.Errorf("list earliest checkpoints: %w", err)
	}

	return r.scanCheckpoints(rows)
}

// ListAfterRank returns the branch rows with rank strictly greater than the given one
func (r *PostgresCheckpointRepository) ListAfterRank(ctx context.Context, chatID string, subchatIndex, rank int) ([]models.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE chat_id = $1 AND subchat_index = $2 AND last_message_rank > $3
		ORDER BY %s
	`, checkpointColumns, r.tables.Checkpoints, tipOrder)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, chatID, subchatIndex, rank)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints after rank: %w", err)
	}

	return r.scanCheckpoints(rows)
}

// ListSubchatsAbove returns every row belonging to a subchat above the given index
func (r *PostgresCheckpointRepository) ListSubchatsAbove(ctx context.Context, chatID string, subchatIndex int) ([]models.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE chat_id = $1 AND subchat_index > $2
		ORDER BY subchat_index, %s
	`, checkpointColumns, r.tables.Checkpoints, tipOrder)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, chatID, subchatIndex)
	if err != nil {
		return nil, fmt.Errorf("list subchats above: %w", err)
	}

	return r.scanCheckpoints(rows)
}

// ListForRank returns all rows of a branch at exactly the given rank
func (r *PostgresCheckpointRepository) ListForRank(ctx context.Context, chatID string, subchatIndex, rank int) ([]models.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE chat_id = $1 AND subchat_index = $2 AND last_message_rank = $3
		ORDER BY part_index, created_at
	`, checkpointColumns, r.tables.Checkpoints)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, chatID, subchatIndex, rank)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints for rank: %w", err)
	}

	return r.scanCheckpoints(rows)
}

// EarliestByChat returns up to limit rows across all subchats of a chat in creation order
func (r *PostgresCheckpointRepository) EarliestByChat(ctx context.Context, chatID string, limit int) ([]models.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE chat_id = $1
		ORDER BY created_at, id
		LIMIT $2
	`, checkpointColumns, r.tables.Checkpoints)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list earliest checkpoints for chat: %w", err)
	}

	return r.scanCheckpoints(rows)
}

// LatestByChat returns the newest row across all subchats of a chat
func (r *PostgresCheckpointRepository) LatestByChat(ctx context.Context, chatID string) (*models.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE chat_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, checkpointColumns, r.tables.Checkpoints)

	executor := GetExecutor(ctx, r.pool)
	cp, err := scanCheckpoint(executor.QueryRow(ctx, query, chatID))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest checkpoint for chat: %w", err)
	}

	return cp, nil
}

// FirstByStorageID returns any row whose storage id is the given blob
func (r *PostgresCheckpointRepository) FirstByStorageID(ctx context.Context, storageID string) (*models.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE storage_id = $1 LIMIT 1
	`, checkpointColumns, r.tables.Checkpoints)

	executor := GetExecutor(ctx, r.pool)
	cp, err := scanCheckpoint(executor.QueryRow(ctx, query, storageID))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get checkpoint by storage id: %w", err)
	}

	return cp, nil
}

// FirstBySnapshotID returns any row whose snapshot id is the given blob
func (r *PostgresCheckpointRepository) FirstBySnapshotID(ctx context.Context, snapshotID string) (*models.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE snapshot_id = $1 LIMIT 1
	`, checkpointColumns, r.tables.Checkpoints)

	executor := GetExecutor(ctx, r.pool)
	cp, err := scanCheckpoint(executor.QueryRow(ctx, query, snapshotID))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get checkpoint by snapshot id: %w", err)
	}

	return cp, nil
}

// PageByChat iterates a chat's rows in id order
func (r *PostgresCheckpointRepository) PageByChat(ctx context.Context, chatID, cursor string, limit int) ([]models.Checkpoint, string, bool, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE chat_id = $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`, checkpointColumns, r.tables.Checkpoints)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, chatID, cursor, limit)
	if err != nil {
		return nil, "", false, fmt.Errorf("page checkpoints: %w", err)
	}

	cps, err := r.scanCheckpoints(rows)
	if err != nil {
		return nil, "", false, err
	}

	if len(cps) < limit {
		return cps, "", true, nil
	}
	return cps, cps[len(cps)-1].ID, false, nil
}
