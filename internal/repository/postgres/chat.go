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

// PostgresChatRepository implements the ChatRepository interface using PostgreSQL
type PostgresChatRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewChatRepository creates a new PostgresChatRepository
func NewChatRepository(config *RepositoryConfig) repositories.ChatRepository {
	return &PostgresChatRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const chatColumns = `id, creator_id, initial_id, url_id, description, snapshot_id,
		last_subchat_index, last_message_rank, is_deleted, created_at`

func scanChat(row pgx.Row) (*models.Chat, error) {
	var chat models.Chat
	err := row.Scan(
		&chat.ID,
		&chat.CreatorID,
		&chat.InitialID,
		&chat.URLID,
		&chat.Description,
		&chat.SnapshotID,
		&chat.LastSubchatIndex,
		&chat.LastMessageRank,
		&chat.IsDeleted,
		&chat.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// Insert creates a new chat row
func (r *PostgresChatRepository) Insert(ctx context.Context, chat *models.Chat) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, creator_id, initial_id, url_id, description, snapshot_id,
			last_subchat_index, last_message_rank, is_deleted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		chat.ID,
		chat.CreatorID,
		chat.InitialID,
		chat.URLID,
		chat.Description,
		chat.SnapshotID,
		chat.LastSubchatIndex,
		chat.LastMessageRank,
		chat.IsDeleted,
		chat.CreatedAt,
	)
	if err != nil {
		if IsPgDuplicateError(err) {
			return fmt.Errorf("chat %s already exists: %w", chat.ID, domain.ErrInvalidState)
		}
		return fmt.Errorf("insert chat: %w", err)
	}

	return nil
}

// GetByID retrieves a chat by internal id, including soft-deleted ones
func (r *PostgresChatRepository) GetByID(ctx context.Context, id string) (*models.Chat, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE id = $1
	`, chatColumns, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)
	chat, err := scanChat(executor.QueryRow(ctx, query, id))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("chat %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}

	return chat, nil
}

// GetByInitialID retrieves a non-deleted chat by (creator, initial id)
func (r *PostgresChatRepository) GetByInitialID(ctx context.Context, creatorID, initialID string) (*models.Chat, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE creator_id = $1 AND initial_id = $2 AND is_deleted = FALSE
	`, chatColumns, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)
	chat, err := scanChat(executor.QueryRow(ctx, query, creatorID, initialID))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat by initial id: %w", err)
	}

	return chat, nil
}

// GetByURLID retrieves a non-deleted chat by (creator, url alias)
func (r *PostgresChatRepository) GetByURLID(ctx context.Context, creatorID, urlID string) (*models.Chat, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE creator_id = $1 AND url_id = $2 AND is_deleted = FALSE
	`, chatColumns, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)
	chat, err := scanChat(executor.QueryRow(ctx, query, creatorID, urlID))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat by url id: %w", err)
	}

	return chat, nil
}

// ListByCreator retrieves all non-deleted chats for a creator
func (r *PostgresChatRepository) ListByCreator(ctx context.Context, creatorID string) ([]models.Chat, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE creator_id = $1 AND is_deleted = FALSE
		ORDER BY created_at DESC
	`, chatColumns, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, creatorID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, *chat)
	}

	return chats, rows.Err()
}

// Update writes all mutable fields of a chat
func (r *PostgresChatRepository) Update(ctx context.Context, chat *models.Chat) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET url_id = $2, description = $3, snapshot_id = $4,
			last_subchat_index = $5, last_message_rank = $6, is_deleted = $7
		WHERE id = $1
	`, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query,
		chat.ID,
		chat.URLID,
		chat.Description,
		chat.SnapshotID,
		chat.LastSubchatIndex,
		chat.LastMessageRank,
		chat.IsDeleted,
	)
	if err != nil {
		return fmt.Errorf("update chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chat %s: %w", chat.ID, domain.ErrNotFound)
	}

	return nil
}

// FirstBySnapshotID returns any chat whose fallback snapshot is the given blob
func (r *PostgresChatRepository) FirstBySnapshotID(ctx context.Context, snapshotID string) (*models.Chat, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE snapshot_id = $1 LIMIT 1
	`, chatColumns, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)
	chat, err := scanChat(executor.QueryRow(ctx, query, snapshotID))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat by snapshot id: %w", err)
	}

	return chat, nil
}

// Page iterates every chat, deleted included, in id order
func (r *PostgresChatRepository) Page(ctx context.Context, cursor string, limit int) ([]models.Chat, string, bool, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`, chatColumns, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, cursor, limit)
	if err != nil {
		return nil, "", false, fmt.Errorf("page chats: %w", err)
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, "", false, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, *chat)
	}
	if err := rows.Err(); err != nil {
		return nil, "", false, err
	}

	if len(chats) < limit {
		return chats, "", true, nil
	}
	return chats, chats[len(chats)-1].ID, false, nil
}
