package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// DB wraps the database connection and the workspace configuration caches.
type DB struct {
	conn *sqlx.DB

	// Hot-path caches for per-workspace routing configuration.
	ruleCache   *LRUCache
	policyCache *LRUCache
}

// DBConfig holds database configuration
type DBConfig struct {
	URL string

	// Pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Cache settings
	RuleCacheSize   int
	RuleCacheTTL    time.Duration
	PolicyCacheSize int
	PolicyCacheTTL  time.Duration
}

// DefaultDBConfig returns default database configuration
func DefaultDBConfig() DBConfig {
	return DBConfig{
		URL: "postgres://localhost:5432/reply_engine?sslmode=disable",

		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		RuleCacheSize:   500,
		RuleCacheTTL:    30 * time.Second,
		PolicyCacheSize: 500,
		PolicyCacheTTL:  30 * time.Second,
	}
}

// NewDB creates a new database connection with caching
func NewDB(cfg DBConfig) (*DB, error) {
	conn, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &DB{
		conn:        conn,
		ruleCache:   NewLRUCache(cfg.RuleCacheSize, cfg.RuleCacheTTL),
		policyCache: NewLRUCache(cfg.PolicyCacheSize, cfg.PolicyCacheTTL),
	}, nil
}

// Close closes the database connection and clears caches
func (db *DB) Close() error {
	db.ruleCache.Clear()
	db.policyCache.Clear()
	return db.conn.Close()
}

// Ping checks if the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Health returns the health status of the database
func (db *DB) Health(ctx context.Context) error {
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := db.conn.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}

	return nil
}

// InvalidateWorkspace drops the cached configuration for a workspace. Called
// after any admin mutation so rule and policy changes take effect within the
// cache TTL at the latest, and immediately on the mutating instance.
func (db *DB) InvalidateWorkspace(workspaceID string) {
	db.ruleCache.Delete(ruleCacheKey(workspaceID))
	db.policyCache.Delete(safetyPolicyCacheKey(workspaceID))
	db.policyCache.Delete(fallbackPolicyCacheKey(workspaceID))
}

// CleanupExpiredCacheEntries removes expired entries from all caches
// Should be called periodically (e.g., every minute)
func (db *DB) CleanupExpiredCacheEntries() (rulesRemoved, policiesRemoved int) {
	rulesRemoved = db.ruleCache.CleanupExpired()
	policiesRemoved = db.policyCache.CleanupExpired()
	return
}

// Stats returns database statistics
type DBStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration

	RuleCacheStats   CacheStats
	PolicyCacheStats CacheStats
}

// GetStats returns current database and cache statistics
func (db *DB) GetStats() DBStats {
	stats := db.conn.Stats()

	return DBStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,

		RuleCacheStats:   db.ruleCache.GetStats(),
		PolicyCacheStats: db.policyCache.GetStats(),
	}
}

// BeginTx starts a new transaction
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return db.conn.BeginTxx(ctx, opts)
}

// Conn returns the underlying sqlx connection
// Use this for custom queries not covered by repositories
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

func ruleCacheKey(workspaceID string) string {
	return "rules:" + workspaceID
}

func safetyPolicyCacheKey(workspaceID string) string {
	return "safety_policy:" + workspaceID
}

func fallbackPolicyCacheKey(workspaceID string) string {
	return "fallback_policy:" + workspaceID
}

// Repository factory methods

// NewProviderRepository creates a new provider repository
func (db *DB) NewProviderRepository() *ProviderRepository {
	return NewProviderRepository(db)
}

// NewRuleRepository creates a new routing rule repository
func (db *DB) NewRuleRepository() *RuleRepository {
	return NewRuleRepository(db)
}

// NewPolicyRepository creates a new policy repository
func (db *DB) NewPolicyRepository() *PolicyRepository {
	return NewPolicyRepository(db)
}

// NewModelRepository creates a new model repository
func (db *DB) NewModelRepository() *ModelRepository {
	return NewModelRepository(db)
}

// NewExecutionRepository creates a new execution log repository
func (db *DB) NewExecutionRepository() *ExecutionRepository {
	return NewExecutionRepository(db)
}

// NewAuditRepository creates a new audit log repository
func (db *DB) NewAuditRepository() *AuditRepository {
	return NewAuditRepository(db)
}
