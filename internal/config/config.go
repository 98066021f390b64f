package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	JWKSURL     string
	CORSOrigins string
	TablePrefix string
	AdminToken  string

	// Optional log file mirroring, useful in dev
	LogDir      string
	LogMaxFiles int

	// Blob store backend: "memory", "badger" or "gcs"
	BlobBackend        string
	BadgerPath         string
	GCSBucket          string
	GCSCredentialsFile string

	// Background cleanup knobs
	CleanupPageDelay        time.Duration
	DebugFileBatchSize      int
	ChatCleanupBatchSize    int
	StorageStateBatchSize   int
	SubchatCleanupBatchSize int
	MaxSubchats             int
	DebugLogDaysInactive    int

	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		DatabaseURL: getEnv("DATABASE_URL", ""),
		JWKSURL:     getEnv("JWKS_URL", ""),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix: getTablePrefix(env),
		AdminToken:  getEnv("ADMIN_TOKEN", ""),

		LogDir:      getEnv("LOG_DIR", ""),
		LogMaxFiles: getEnvInt("LOG_MAX_FILES", 10),

		BlobBackend:        getEnv("BLOB_BACKEND", "badger"),
		BadgerPath:         getEnv("BADGER_PATH", "./data/blobs"),
		GCSBucket:          getEnv("GCS_BUCKET", ""),
		GCSCredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),

		CleanupPageDelay:        time.Duration(getEnvInt("CLEANUP_PAGE_DELAY_MS", 500)) * time.Millisecond,
		DebugFileBatchSize:      getEnvInt("DEBUG_FILE_CLEANUP_BATCH_SIZE", 100),
		ChatCleanupBatchSize:    getEnvInt("CHAT_CLEANUP_BATCH_SIZE", 10),
		StorageStateBatchSize:   getEnvInt("STORAGE_STATE_CLEANUP_BATCH_SIZE", 50),
		SubchatCleanupBatchSize: getEnvInt("SUBCHAT_CLEANUP_BATCH_SIZE", 128),
		MaxSubchats:             getEnvInt("MAX_SUBCHATS", DefaultMaxSubchats),
		DebugLogDaysInactive:    getEnvInt("DEBUG_LOG_DAYS_INACTIVE", 30),

		// Debug defaults to true outside production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
