package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the response engine.
type Config struct {
	HTTPPort  string
	JWTSecret []byte
	VaultKey  string // base64-encoded AES key for the credential vault

	// AdminSecretHash is the bcrypt hash of the shared admin login secret.
	// When empty the login endpoint is disabled and tokens must be issued
	// out-of-band.
	AdminSecretHash string

	Database DatabaseConfig
	Cache    CacheConfig
	Redis    RedisConfig
	Engine   EngineConfig
	ExecLog  ExecLogConfig
	Archive  ArchiveConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// CacheConfig holds workspace configuration cache settings
type CacheConfig struct {
	RuleCacheSize   int
	RuleCacheTTL    time.Duration
	PolicyCacheSize int
	PolicyCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// EngineConfig holds fallback orchestration tunables.
type EngineConfig struct {
	MaxHops          int           // total providers consulted per interaction
	BackoffBase      time.Duration // first retry wait, doubled per attempt
	BackoffCap       time.Duration // upper bound on a single retry wait
	WallClockCeiling time.Duration // total budget per interaction across all hops
}

// ExecLogConfig holds the async execution-log pipeline settings.
type ExecLogConfig struct {
	UseRedisQueue bool
	BatchSize     int
	BatchTimeout  time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
}

// ArchiveConfig holds configuration for the S3 execution-log archive.
type ArchiveConfig struct {
	Enabled  bool
	S3Bucket string
	S3Region string
	S3Prefix string
	PodName  string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	jwtSecret := getEnvString("ENGINE_JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("ENGINE_JWT_SECRET is required")
	}

	vaultKey := getEnvString("ENGINE_VAULT_KEY", "")
	if vaultKey == "" {
		return nil, fmt.Errorf("ENGINE_VAULT_KEY is required")
	}

	cfg := &Config{
		HTTPPort:        getEnvString("ENGINE_HTTP_PORT", "8080"),
		JWTSecret:       []byte(jwtSecret),
		VaultKey:        vaultKey,
		AdminSecretHash: getEnvString("ENGINE_ADMIN_SECRET_HASH", ""),
		Database: DatabaseConfig{
			URL:             getEnvString("DATABASE_URL", "postgres://localhost:5432/reply_engine?sslmode=disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", time.Minute),
		},
		Cache: CacheConfig{
			RuleCacheSize:   getEnvInt("RULE_CACHE_SIZE", 500),
			RuleCacheTTL:    getEnvDuration("RULE_CACHE_TTL", 30*time.Second),
			PolicyCacheSize: getEnvInt("POLICY_CACHE_SIZE", 500),
			PolicyCacheTTL:  getEnvDuration("POLICY_CACHE_TTL", 30*time.Second),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDR", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Engine: EngineConfig{
			MaxHops:          getEnvInt("ENGINE_MAX_HOPS", 3),
			BackoffBase:      getEnvDuration("ENGINE_BACKOFF_BASE", 200*time.Millisecond),
			BackoffCap:       getEnvDuration("ENGINE_BACKOFF_CAP", 2*time.Second),
			WallClockCeiling: getEnvDuration("ENGINE_WALL_CLOCK_CEILING", 10*time.Second),
		},
		ExecLog: ExecLogConfig{
			UseRedisQueue: getEnvBool("EXECLOG_USE_REDIS", false),
			BatchSize:     getEnvInt("EXECLOG_BATCH_SIZE", 100),
			BatchTimeout:  getEnvDuration("EXECLOG_BATCH_TIMEOUT", 5*time.Second),
			MaxRetries:    getEnvInt("EXECLOG_MAX_RETRIES", 3),
			RetryBackoff:  getEnvDuration("EXECLOG_RETRY_BACKOFF", time.Second),
		},
		Archive: ArchiveConfig{
			Enabled:  getEnvBool("ARCHIVE_ENABLED", false),
			S3Bucket: getEnvString("ARCHIVE_S3_BUCKET", ""),
			S3Region: getEnvString("ARCHIVE_S3_REGION", "us-east-1"),
			S3Prefix: getEnvString("ARCHIVE_S3_PREFIX", "execution-logs/"),
			PodName:  getEnvString("POD_NAME", "engine-0"),
		},
	}

	if cfg.Archive.Enabled && cfg.Archive.S3Bucket == "" {
		return nil, fmt.Errorf("ARCHIVE_S3_BUCKET is required when archiving is enabled")
	}

	return cfg, nil
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}
