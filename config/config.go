package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID.
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Environment string

	// Database
	DatabaseURL     string
	DBMaxOpenConns  int
	DBMaxIdleConns  int
	DBConnMaxIdle   time.Duration

	// Redis (token_version cache, see core/auth)
	RedisURL     string
	RedisTTL     time.Duration
	RedisEnabled bool

	// JWT
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	JWTKeyID        string
	AccessTokenTTL  time.Duration

	// Embedder
	EmbedderBaseURL     string
	EmbedderModel       string
	EmbedderDimension   int
	EmbedderBatchSize   int
	EmbedderTimeout     time.Duration
	EmbedderDocPrefix   string
	EmbedderQueryPrefix string
	EmbedderMaxRetries  int

	// Embedder backpressure
	EmbedderMaxConcurrent     int
	EmbedderRequestsPerSecond int
	EmbedderBurstSize         int

	// Search / Indexer
	SearchSemanticEnabled bool
	SearchDefaultMode     string
	SearchLexicalWeight   float64
	SearchRebuildChunks   int

	// Worker / job queue
	WorkerID             string
	WorkerPollInterval   time.Duration
	WorkerHeartbeat      time.Duration
	WorkerClaimTimeout   time.Duration
	WorkerMaxNoWorkSleep time.Duration

	// Sync orchestrator
	SyncChunkSize int

	// Logging
	LogLevel string
}

func Load() (*Config, error) {
	return &Config{
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxIdle:  time.Duration(getEnvInt("DB_CONN_MAX_IDLE_SEC", 300)) * time.Second,

		// Redis
		RedisURL:     getEnv("REDIS_URL", ""),
		RedisTTL:     time.Duration(getEnvInt("REDIS_TOKEN_VERSION_TTL_SEC", 300)) * time.Second,
		RedisEnabled: getEnvBool("REDIS_ENABLED", true),

		// JWT
		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTIssuer:      getEnv("JWT_ISSUER", "mailarchive"),
		JWTAudience:    getEnv("JWT_AUDIENCE", "mailarchive-api"),
		JWTKeyID:       getEnv("JWT_KEY_ID", "default"),
		AccessTokenTTL: time.Duration(getEnvInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,

		// Embedder
		EmbedderBaseURL:     getEnv("EMBEDDER_BASE_URL", "http://localhost:8088"),
		EmbedderModel:       getEnv("EMBEDDER_MODEL", "default"),
		EmbedderDimension:   getEnvInt("EMBEDDER_DIMENSION", 384),
		EmbedderBatchSize:   getEnvInt("EMBEDDER_BATCH_SIZE", 32),
		EmbedderTimeout:     time.Duration(getEnvInt("EMBEDDER_TIMEOUT_SEC", 30)) * time.Second,
		EmbedderDocPrefix:   getEnv("EMBEDDER_DOC_PREFIX", "passage: "),
		EmbedderQueryPrefix: getEnv("EMBEDDER_QUERY_PREFIX", "query: "),
		EmbedderMaxRetries:  getEnvInt("EMBEDDER_MAX_RETRIES", 3),

		// Embedder backpressure
		EmbedderMaxConcurrent:     getEnvInt("EMBEDDER_MAX_CONCURRENT", 8),
		EmbedderRequestsPerSecond: getEnvInt("EMBEDDER_REQUESTS_PER_SECOND", 4),
		EmbedderBurstSize:         getEnvInt("EMBEDDER_BURST_SIZE", 4),

		// Search
		SearchSemanticEnabled: getEnvBool("SEARCH_SEMANTIC_ENABLED", true),
		SearchDefaultMode:     getEnv("SEARCH_DEFAULT_MODE", "hybrid"),
		SearchLexicalWeight:   getEnvFloat("SEARCH_LEXICAL_WEIGHT", 0.5),
		SearchRebuildChunks:   getEnvInt("SEARCH_REBUILD_CHUNKS", 10),

		// Worker
		WorkerID:             getEnv("WORKER_ID", generateWorkerID()),
		WorkerPollInterval:   time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SEC", 5)) * time.Second,
		WorkerHeartbeat:      time.Duration(getEnvInt("WORKER_HEARTBEAT_SEC", 10)) * time.Second,
		WorkerClaimTimeout:   time.Duration(getEnvInt("WORKER_CLAIM_TIMEOUT_SEC", 120)) * time.Second,
		WorkerMaxNoWorkSleep: time.Duration(getEnvInt("WORKER_MAX_NO_WORK_SLEEP_SEC", 30)) * time.Second,

		// Sync
		SyncChunkSize: getEnvInt("SYNC_CHUNK_SIZE", 500),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate checks required fields are present, failing fast per the
// fatal-error class (missing configuration aborts startup).
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.SearchLexicalWeight < 0 || c.SearchLexicalWeight > 1 {
		return fmt.Errorf("SEARCH_LEXICAL_WEIGHT must be within [0,1], got %f", c.SearchLexicalWeight)
	}
	return nil
}
