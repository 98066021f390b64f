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

// PostgresShareRepository implements the ShareRepository interface using PostgreSQL
type PostgresShareRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewShareRepository creates a new PostgresShareRepository
func NewShareRepository(config *RepositoryConfig) repositories.ShareRepository {
	return &PostgresShareRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const shareColumns = `id, chat_id, code, description, chat_history_id, snapshot_id,
		last_message_rank, part_index, last_subchat_index, created_at`

func scanShare(row pgx.Row) (*models.Share, error) {
	var share models.Share
	err := row.Scan(
		&share.ID,
		&share.ChatID,
		&share.Code,
		&share.Description,
		&share.ChatHistoryID,
		&share.SnapshotID,
		&share.LastMessageRank,
		&share.PartIndex,
		&share.LastSubchatIndex,
		&share.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &share, nil
}

// Insert creates a new share
func (r *PostgresShareRepository) Insert(ctx context.Context, share *models.Share) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, chat_id, code, description, chat_history_id, snapshot_id,
			last_message_rank, part_index, last_subchat_index, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, r.tables.Shares)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		share.ID,
		share.ChatID,
		share.Code,
		share.Description,
		share.ChatHistoryID,
		share.SnapshotID,
		share.LastMessageRank,
		share.PartIndex,
		share.LastSubchatIndex,
		share.CreatedAt,
	)
	if err != nil {
		if IsPgDuplicateError(err) {
			return fmt.Errorf("share code %s already taken: %w", share.Code, domain.ErrInvalidState)
		}
		return fmt.Errorf("insert share: %w", err)
	}

	return nil
}

// GetByCode retrieves a share by its code
func (r *PostgresShareRepository) GetByCode(ctx context.Context, code string) (*models.Share, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE code = $1
	`, shareColumns, r.tables.Shares)

	executor := GetExecutor(ctx, r.pool)
	share, err := scanShare(executor.QueryRow(ctx, query, code))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("share %s: %w", code, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get share: %w", err)
	}

	return share, nil
}

// Delete removes a share row
func (r *PostgresShareRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Shares)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete share: %w", err)
	}

	return nil
}

// FirstByHistoryID returns any share capturing the given history blob
func (r *PostgresShareRepository) FirstByHistoryID(ctx context.Context, storageID string) (*models.Share, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE chat_history_id = $1 LIMIT 1
	`, shareColumns, r.tables.Shares)

	executor := GetExecutor(ctx, r.pool)
	share, err := scanShare(executor.QueryRow(ctx, query, storageID))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get share by history id: %w", err)
	}

	return share, nil
}

// FirstBySnapshotID returns any share capturing the given snapshot blob
func (r *PostgresShareRepository) FirstBySnapshotID(ctx context.Context, snapshotID string) (*models.Share, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE snapshot_id = $1 LIMIT 1
	`, shareColumns, r.tables.Shares)

	executor := GetExecutor(ctx, r.pool)
	share, err := scanShare(executor.QueryRow(ctx, query, snapshotID))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get share by snapshot id: %w", err)
	}

	return share, nil
}

// InsertSocial creates a new social share
func (r *PostgresShareRepository) InsertSocial(ctx context.Context, share *models.SocialShare) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, chat_id, code, thumbnail_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, r.tables.SocialShares)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		share.ID,
		share.ChatID,
		share.Code,
		share.ThumbnailID,
		share.CreatedAt,
	)
	if err != nil {
		if IsPgDuplicateError(err) {
			return fmt.Errorf("social share code %s already taken: %w", share.Code, domain.ErrInvalidState)
		}
		return fmt.Errorf("insert social share: %w", err)
	}

	return nil
}

// GetSocialByCode retrieves a social share by its public code
func (r *PostgresShareRepository) GetSocialByCode(ctx context.Context, code string) (*models.SocialShare, error) {
	query := fmt.Sprintf(`
		SELECT id, chat_id, code, thumbnail_id, created_at
		FROM %s WHERE code = $1
	`, r.tables.SocialShares)

	var share models.SocialShare
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, code).Scan(
		&share.ID,
		&share.ChatID,
		&share.Code,
		&share.ThumbnailID,
		&share.CreatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("social share %s: %w", code, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get social share: %w", err)
	}

	return &share, nil
}

// FirstSocialByThumbnailID returns any social share holding the given thumbnail blob
func (r *PostgresShareRepository) FirstSocialByThumbnailID(ctx context.Context, thumbnailID string) (*models.SocialShare, error) {
	query := fmt.Sprintf(`
		SELECT id, chat_id, code, thumbnail_id, created_at
		FROM %s WHERE thumbnail_id = $1 LIMIT 1
	`, r.tables.SocialShares)

	var share models.SocialShare
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, thumbnailID).Scan(
		&share.ID,
		&share.ChatID,
		&share.Code,
		&share.ThumbnailID,
		&share.CreatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get social share by thumbnail id: %w", err)
	}

	return &share, nil
}

// Page iterates every share in id order
func (r *PostgresShareRepository) Page(ctx context.Context, cursor string, limit int) ([]models.Share, string, bool, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`, shareColumns, r.tables.Shares)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, cursor, limit)
	if err != nil {
		return nil, "", false, fmt.Errorf("page shares: %w", err)
	}
	defer rows.Close()

	var shares []models.Share
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, "", false, fmt.Errorf("scan share: %w", err)
		}
		shares = append(shares, *share)
	}
	if err := rows.Err(); err != nil {
		return nil, "", false, err
	}

	if len(shares) < limit {
		return shares, "", true, nil
	}
	return shares, shares[len(shares)-1].ID, false, nil
}

// PageSocial iterates every social share in id order
func (r *PostgresShareRepository) PageSocial(ctx context.Context, cursor string, limit int) ([]models.SocialShare, string, bool, error) {
	query := fmt.Sprintf(`
		SELECT id, chat_id, code, thumbnail_id, created_at
		FROM %s
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`, r.tables.SocialShares)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, cursor, limit)
	if err != nil {
		return nil, "", false, fmt.Errorf("page social shares: %w", err)
	}
	defer rows.Close()

	var shares []models.SocialShare
	for rows.Next() {
		var share models.SocialShare
		if err := rows.Scan(&share.ID, &share.ChatID, &share.Code, &share.ThumbnailID, &share.CreatedAt); err != nil {
			return nil, "", false, fmt.Errorf("scan social share: %w", err)
		}
		shares = append(shares, share)
	}
	if err := rows.Err(); err != nil {
		return nil, "", false, err
	}

	if len(shares) < limit {
		return shares, "", true, nil
	}
	return shares, shares[len(shares)-1].ID, false, nil
}
