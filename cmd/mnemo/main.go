package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/mnemo/internal/api"
	"github.com/nidhogg/mnemo/internal/classifier"
	"github.com/nidhogg/mnemo/internal/config"
	"github.com/nidhogg/mnemo/internal/durable"
	"github.com/nidhogg/mnemo/internal/manager"
	"github.com/nidhogg/mnemo/internal/session"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Mnemo...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/mnemo.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Session cache: Redis when configured and reachable, otherwise the
	// process-local cache. The manager degrades per-call on later outages.
	var cache session.Cache
	var redisCache *session.RedisCache
	if cfg.Cache.RedisURL != "" {
		rc, rErr := session.NewRedisCache(cfg.Cache.RedisURL, logger)
		if rErr != nil {
			logger.Warn("Redis unavailable, sessions held in process memory", zap.Error(rErr))
			cache = session.NewMemoryCache()
		} else {
			redisCache = rc
			cache = rc
		}
	} else {
		logger.Info("No Redis configured, sessions held in process memory")
		cache = session.NewMemoryCache()
	}

	// Durable store: Postgres when a DSN is set, JSON files otherwise.
	policy := durable.RetentionPolicy{
		MaxAge:    cfg.Memory.RetentionAge(),
		MaxEvents: cfg.Memory.MaxEvents,
	}
	var store durable.Store
	var pgStore *durable.PostgresStore
	if cfg.Durable.PostgresDSN != "" {
		ps, pgErr := durable.NewPostgresStore(cfg.Durable.PostgresDSN, policy, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, falling back to file store", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(context.Background(), "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			pgStore = ps
			store = ps
		}
	}
	if store == nil {
		fs, fsErr := durable.NewFileStore(cfg.Durable.DataDir, policy, logger)
		if fsErr != nil {
			logger.Fatal("file store init failed", zap.String("dir", cfg.Durable.DataDir), zap.Error(fsErr))
		}
		store = fs
		logger.Info("Using file-backed durable store", zap.String("dir", cfg.Durable.DataDir))
	}

	// Classifier: LLM-backed when an API key is present; without one the
	// manager runs on the rule fallback alone.
	var primary classifier.Classifier
	if cfg.Classifier.APIKey != "" {
		primary = classifier.NewLLMClassifier(cfg.Classifier, logger)
		logger.Info("LLM classifier enabled", zap.String("model", cfg.Classifier.Model))
	} else {
		logger.Info("No classifier API key, using rule fallback only")
	}

	mgr := manager.New(cache, store, primary, cfg.Memory, logger)
	handler := api.NewHandler(mgr, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Mnemo listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Mnemo...")
	srv.Shutdown(context.Background())
	if redisCache != nil {
		redisCache.Close()
	}
	if pgStore != nil {
		pgStore.Close()
	}
}
