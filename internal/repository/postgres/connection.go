package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"loom/internal/domain/repositories"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Chats         string
	Checkpoints   string
	Shares        string
	SocialShares  string
	DebugLog      string
	SweepProgress string
}

// NewTableNames creates table names with the given prefix (dev_, test_,
// prod_). The SQL strings interpolate these before the statement is sent,
// so each environment gets its own prepared statements.
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Chats:         fmt.Sprintf("%schats", prefix),
		Checkpoints:   fmt.Sprintf("%scheckpoints", prefix),
		Shares:        fmt.Sprintf("%sshares", prefix),
		SocialShares:  fmt.Sprintf("%ssocial_shares", prefix),
		DebugLog:      fmt.Sprintf("%sdebug_request_log", prefix),
		SweepProgress: fmt.Sprintf("%ssweep_progress", prefix),
	}
}

// CreateConnectionPool creates a pgx connection pool.
//
// When the connection goes through a transaction-pooling PgBouncer (port
// 6543 on hosted Postgres), prepared statements break with "prepared
// statement already exists"; cache_describe keeps the extended protocol
// (needed for JSONB parameter encoding) without creating server-side
// prepared statements. An explicit default_query_exec_mode in the
// connection string takes precedence.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the transaction from the context when one is
// present, otherwise the pool. Repositories automatically participate in
// transactions this way.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
