package main

import (
	"context"
	"flag"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"loom/internal/config"
	"loom/internal/repository/postgres"
)

func main() {
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before migrating (fresh start)")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	if cfg.Environment == "prod" && *dropTables {
		log.Fatal("BLOCKED: cannot run --drop-tables in the production environment")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)

	if *dropTables {
		log.Printf("Dropping tables (prefix: %s)", cfg.TablePrefix)
		if err := dropSchema(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
	}

	log.Printf("Migrating schema (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	if err := runSchema(ctx, pool, tables); err != nil {
		log.Fatalf("Failed to run schema: %v", err)
	}
	log.Println("Schema ready")
}

func dropSchema(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	for _, table := range []string{
		tables.SweepProgress, tables.DebugLog, tables.SocialShares,
		tables.Shares, tables.Checkpoints, tables.Chats,
	} {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			return err
		}
	}
	return nil
}

func runSchema(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	createChats := `
		CREATE TABLE IF NOT EXISTS ` + tables.Chats + ` (
			id TEXT PRIMARY KEY,
			creator_id TEXT NOT NULL,
			initial_id TEXT NOT NULL,
			url_id TEXT,
			description VARCHAR(255),
			snapshot_id TEXT,
			last_subchat_index INT NOT NULL DEFAULT 0,
			last_message_rank INT,
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(creator_id, initial_id)
		)
	`
	if _, err := pool.Exec(ctx, createChats); err != nil {
		return err
	}

	createCheckpoints := `
		CREATE TABLE IF NOT EXISTS ` + tables.Checkpoints + ` (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL REFERENCES ` + tables.Chats + `(id) ON DELETE CASCADE,
			subchat_index INT NOT NULL,
			last_message_rank INT NOT NULL,
			part_index INT NOT NULL,
			storage_id TEXT,
			snapshot_id TEXT,
			description VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := pool.Exec(ctx, createCheckpoints); err != nil {
		return err
	}

	createShares := `
		CREATE TABLE IF NOT EXISTS ` + tables.Shares + ` (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			code TEXT NOT NULL UNIQUE,
			description VARCHAR(255),
			chat_history_id TEXT,
			snapshot_id TEXT,
			last_message_rank INT NOT NULL,
			part_index INT NOT NULL,
			last_subchat_index INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := pool.Exec(ctx, createShares); err != nil {
		return err
	}

	createSocialShares := `
		CREATE TABLE IF NOT EXISTS ` + tables.SocialShares + ` (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			code TEXT NOT NULL UNIQUE,
			thumbnail_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := pool.Exec(ctx, createSocialShares); err != nil {
		return err
	}

	createDebugLog := `
		CREATE TABLE IF NOT EXISTS ` + tables.DebugLog + ` (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			prompt_storage_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := pool.Exec(ctx, createDebugLog); err != nil {
		return err
	}

	createSweepProgress := `
		CREATE TABLE IF NOT EXISTS ` + tables.SweepProgress + ` (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			for_real BOOLEAN NOT NULL,
			cursor TEXT,
			processed INT NOT NULL DEFAULT 0,
			num_deleted INT NOT NULL DEFAULT 0,
			is_done BOOLEAN NOT NULL DEFAULT FALSE,
			latest_end TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := pool.Exec(ctx, createSweepProgress); err != nil {
		return err
	}

	// Tip resolution, reference checks and the sweeps all run against
	// these indexes; keep them in step with the repository queries.
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_` + tables.Chats + `_creator_url ON ` + tables.Chats + ` (creator_id, url_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tables.Chats + `_creator_created ON ` + tables.Chats + ` (creator_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tables.Chats + `_snapshot ON ` + tables.Chats + ` (snapshot_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tables.Checkpoints + `_branch ON ` + tables.Checkpoints + ` (chat_id, subchat_index, last_message_rank, part_index)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tables.Checkpoints + `_storage ON ` + tables.Checkpoints + ` (storage_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tables.Checkpoints + `_snapshot ON ` + tables.Checkpoints + ` (snapshot_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tables.Shares + `_history ON ` + tables.Shares + ` (chat_history_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tables.Shares + `_snapshot ON ` + tables.Shares + ` (snapshot_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tables.SocialShares + `_thumbnail ON ` + tables.SocialShares + ` (thumbnail_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tables.DebugLog + `_chat ON ` + tables.DebugLog + ` (chat_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tables.DebugLog + `_storage ON ` + tables.DebugLog + ` (prompt_storage_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tables.DebugLog + `_created ON ` + tables.DebugLog + ` (created_at, id)`,
	}
	for _, stmt := range indexes {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
