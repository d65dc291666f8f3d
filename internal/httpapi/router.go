package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"reply_engine/internal/archive"
	"reply_engine/internal/auth"
	"reply_engine/internal/config"
	"reply_engine/internal/engine"
	"reply_engine/internal/middleware"
	"reply_engine/internal/queue"
	"reply_engine/internal/ratelimit"
	"reply_engine/internal/storage"
	"reply_engine/internal/vault"
)

// Dependencies aggregates the long-lived services the HTTP layer owns, so
// main can shut them down in order.
type Dependencies struct {
	DB           *storage.DB
	Redis        *redis.Client
	Orchestrator *engine.Orchestrator
	ExecWorker   *storage.ExecutionQueueWorker
}

// Close releases all resources. The worker is stopped first so it can drain
// the queue into the database before the connections go away.
func (d *Dependencies) Close() error {
	var firstErr error

	if d.ExecWorker != nil {
		if err := d.ExecWorker.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// NewRouter creates an HTTP router with all dependencies wired up
func NewRouter(cfg *config.Config) (*http.ServeMux, *Dependencies, error) {
	db, err := storage.NewDB(storage.DBConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		RuleCacheSize:   cfg.Cache.RuleCacheSize,
		RuleCacheTTL:    cfg.Cache.RuleCacheTTL,
		PolicyCacheSize: cfg.Cache.PolicyCacheSize,
		PolicyCacheTTL:  cfg.Cache.PolicyCacheTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Redis backs the per-provider rate limiter and, optionally, the
	// execution log queue. Without it the engine still runs: admission
	// control is disabled and logs buffer in memory.
	var redisClient *redis.Client
	var limiter ratelimit.Limiter = ratelimit.NewNoopLimiter()
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		limiter = ratelimit.NewSlidingWindowLimiter(redisClient)
	}

	v, err := vault.NewFromBase64(cfg.VaultKey)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to initialize credential vault: %w", err)
	}

	invoker := engine.NewHTTPInvoker(v)

	execQueue, execDLQ, queueCfg, err := buildExecQueue(cfg)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var sink archive.Sink = archive.NewNoopSink()
	if cfg.Archive.Enabled {
		sink, err = archive.NewS3Sink(context.Background(),
			cfg.Archive.S3Bucket, cfg.Archive.S3Region,
			cfg.Archive.S3Prefix, cfg.Archive.PodName)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to initialize archive sink: %w", err)
		}
	}

	execWorker := storage.NewExecutionQueueWorker(
		execQueue, execDLQ, storage.NewExecutionRepository(db), sink, queueCfg)
	execWorker.Start(context.Background())

	orchestrator := engine.NewOrchestrator(
		storage.NewConfigReader(db), limiter, invoker, execWorker,
		engine.Config{
			MaxHops:          cfg.Engine.MaxHops,
			BackoffBase:      cfg.Engine.BackoffBase,
			BackoffCap:       cfg.Engine.BackoffCap,
			WallClockCeiling: cfg.Engine.WallClockCeiling,
		})

	deps := &Dependencies{
		DB:           db,
		Redis:        redisClient,
		Orchestrator: orchestrator,
		ExecWorker:   execWorker,
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps, cfg, v, invoker)

	return mux, deps, nil
}

func buildExecQueue(cfg *config.Config) (queue.Queue, queue.DeadLetterQueue, *queue.Config, error) {
	queueCfg := queue.DefaultConfig("execlog")
	queueCfg.BatchSize = cfg.ExecLog.BatchSize
	queueCfg.BatchTimeout = cfg.ExecLog.BatchTimeout
	queueCfg.MaxRetries = cfg.ExecLog.MaxRetries
	queueCfg.RetryBackoff = cfg.ExecLog.RetryBackoff

	if cfg.ExecLog.UseRedisQueue && cfg.Redis.Address != "" {
		queueCfg.UseRedis = true
		queueCfg.RedisAddr = cfg.Redis.Address
		queueCfg.RedisPassword = cfg.Redis.Password
		queueCfg.RedisDB = cfg.Redis.DB

		q, err := queue.NewRedisQueue(queueCfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create execution log queue: %w", err)
		}
		dlq, err := queue.NewRedisDeadLetterQueue(queueCfg)
		if err != nil {
			q.Close()
			return nil, nil, nil, fmt.Errorf("failed to create execution log DLQ: %w", err)
		}
		return q, dlq, queueCfg, nil
	}

	return queue.NewMemoryQueue(queueCfg), queue.NewMemoryDeadLetterQueue(), queueCfg, nil
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies, cfg *config.Config, v *vault.Vault, invoker engine.Invoker) {
	// Runtime endpoint. Callers are trusted upstream services; admin JWT
	// auth covers the configuration surface only.
	respondHandler := NewRespondHandler(deps.Orchestrator)
	mux.HandleFunc("POST /v1/respond", respondHandler.Respond)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.DB.Health(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	authHandler := NewAuthHandler(cfg)
	mux.HandleFunc("POST /admin/auth/login", authHandler.Login)

	viewer := middleware.AdminJWTMiddleware(cfg.JWTSecret, auth.RoleViewer, auth.RoleAdmin)
	admin := middleware.AdminJWTMiddleware(cfg.JWTSecret, auth.RoleAdmin)

	providersHandler := NewAdminProvidersHandler(deps.DB, v, invoker)
	mux.Handle("GET /admin/providers", viewer(http.HandlerFunc(providersHandler.List)))
	mux.Handle("POST /admin/providers", admin(http.HandlerFunc(providersHandler.Create)))
	mux.Handle("GET /admin/providers/{id}", viewer(http.HandlerFunc(providersHandler.GetByID)))
	mux.Handle("PUT /admin/providers/{id}", admin(http.HandlerFunc(providersHandler.Update)))
	mux.Handle("DELETE /admin/providers/{id}", admin(http.HandlerFunc(providersHandler.Delete)))
	mux.Handle("POST /admin/providers/{id}/rotate", admin(http.HandlerFunc(providersHandler.RotateSecret)))
	mux.Handle("POST /admin/providers/{id}/test", admin(http.HandlerFunc(providersHandler.TestConnection)))

	modelsHandler := NewAdminModelsHandler(deps.DB)
	mux.Handle("GET /admin/providers/{id}/models", viewer(http.HandlerFunc(modelsHandler.List)))
	mux.Handle("PUT /admin/providers/{id}/models", admin(http.HandlerFunc(modelsHandler.Upsert)))
	mux.Handle("DELETE /admin/providers/{id}/models/{modelID}", admin(http.HandlerFunc(modelsHandler.Delete)))

	rulesHandler := NewAdminRulesHandler(deps.DB)
	mux.Handle("GET /admin/rules", viewer(http.HandlerFunc(rulesHandler.List)))
	mux.Handle("POST /admin/rules", admin(http.HandlerFunc(rulesHandler.Create)))
	mux.Handle("PUT /admin/rules/{id}", admin(http.HandlerFunc(rulesHandler.Update)))
	mux.Handle("DELETE /admin/rules/{id}", admin(http.HandlerFunc(rulesHandler.Delete)))

	policiesHandler := NewAdminPoliciesHandler(deps.DB)
	mux.Handle("GET /admin/safety-policy", viewer(http.HandlerFunc(policiesHandler.GetSafetyPolicy)))
	mux.Handle("PUT /admin/safety-policy", admin(http.HandlerFunc(policiesHandler.PutSafetyPolicy)))
	mux.Handle("GET /admin/fallback-policy", viewer(http.HandlerFunc(policiesHandler.GetFallbackPolicy)))
	mux.Handle("PUT /admin/fallback-policy", admin(http.HandlerFunc(policiesHandler.PutFallbackPolicy)))

	logsHandler := NewAdminLogsHandler(deps.DB)
	mux.Handle("GET /admin/executions", viewer(http.HandlerFunc(logsHandler.ListExecutions)))
	mux.Handle("GET /admin/audit", viewer(http.HandlerFunc(logsHandler.ListAudit)))

	opsHandler := NewAdminOpsHandler(deps.DB, deps.ExecWorker)
	mux.Handle("GET /admin/stats", viewer(http.HandlerFunc(opsHandler.Stats)))
	mux.Handle("GET /admin/execlog/dlq", viewer(http.HandlerFunc(opsHandler.ListDeadLetters)))
	mux.Handle("POST /admin/execlog/dlq/{id}/retry", admin(http.HandlerFunc(opsHandler.RetryDeadLetter)))
}
