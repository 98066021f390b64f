package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// PostgresDebugLogRepository implements the DebugLogRepository interface using PostgreSQL
type PostgresDebugLogRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewDebugLogRepository creates a new PostgresDebugLogRepository
func NewDebugLogRepository(config *RepositoryConfig) repositories.DebugLogRepository {
	return &PostgresDebugLogRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Insert appends a log entry
func (r *PostgresDebugLogRepository) Insert(ctx context.Context, entry *models.DebugRequestLog) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, chat_id, prompt_storage_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, r.tables.DebugLog)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query, entry.ID, entry.ChatID, entry.PromptStorageID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert debug log entry: %w", err)
	}

	return nil
}

// Delete removes one entry
func (r *PostgresDebugLogRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.DebugLog)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete debug log entry: %w", err)
	}

	return nil
}

// LatestForChat returns the newest entry for a chat
func (r *PostgresDebugLogRepository) LatestForChat(ctx context.Context, chatID string) (*models.DebugRequestLog, error) {
	query := fmt.Sprintf(`
		SELECT id, chat_id, prompt_storage_id, created_at
		FROM %s
		WHERE chat_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, r.tables.DebugLog)

	var entry models.DebugRequestLog
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, chatID).Scan(&entry.ID, &entry.ChatID, &entry.PromptStorageID, &entry.CreatedAt)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest debug log entry: %w", err)
	}

	return &entry, nil
}

// FirstByStorageID returns any entry holding the given prompt blob
func (r *PostgresDebugLogRepository) FirstByStorageID(ctx context.Context, storageID string) (*models.DebugRequestLog, error) {
	query := fmt.Sprintf(`
		SELECT id, chat_id, prompt_storage_id, created_at
		FROM %s WHERE prompt_storage_id = $1 LIMIT 1
	`, r.tables.DebugLog)

	var entry models.DebugRequestLog
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, storageID).Scan(&entry.ID, &entry.ChatID, &entry.PromptStorageID, &entry.CreatedAt)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get debug log entry by storage id: %w", err)
	}

	return &entry, nil
}

// PageByCreatedAt iterates entries older than before, oldest first
func (r *PostgresDebugLogRepository) PageByCreatedAt(ctx context.Context, before time.Time, cursor string, limit int) ([]models.DebugRequestLog, string, bool, error) {
	query := fmt.Sprintf(`
		SELECT id, chat_id, prompt_storage_id, created_at
		FROM %s
		WHERE created_at < $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`, r.tables.DebugLog)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, before, cursor, limit)
	if err != nil {
		return nil, "", false, fmt.Errorf("page debug log entries: %w", err)
	}
	defer rows.Close()

	var entries []models.DebugRequestLog
	for rows.Next() {
		var entry models.DebugRequestLog
		if err := rows.Scan(&entry.ID, &entry.ChatID, &entry.PromptStorageID, &entry.CreatedAt); err != nil {
			return nil, "", false, fmt.Errorf("scan debug log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, "", false, err
	}

	if len(entries) < limit {
		return entries, "", true, nil
	}
	return entries, entries[len(entries)-1].ID, false, nil
}
