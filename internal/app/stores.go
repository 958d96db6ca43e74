package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/R3E-Network/sustainability_layer/internal/app/storage/memory"
	"github.com/R3E-Network/sustainability_layer/internal/app/storage/postgres"
	redisstore "github.com/R3E-Network/sustainability_layer/internal/app/storage/redis"
	"github.com/R3E-Network/sustainability_layer/internal/config"
	"github.com/R3E-Network/sustainability_layer/internal/platform/migrations"
	"github.com/R3E-Network/sustainability_layer/pkg/logger"
)

// OpenStores connects the backend selected by cfg. The returned close function
// releases the connection and is never nil.
func OpenStores(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (Stores, func() error, error) {
	if log == nil {
		log = logger.NewDefault("storage")
	}
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", config.DriverMemory:
		log.Warn("using in-memory storage; registry state is lost on restart")
		mem := memory.New()
		return Stores{Assessments: mem, Certificates: mem}, noop, nil

	case config.DriverPostgres:
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return Stores{}, noop, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return Stores{}, noop, fmt.Errorf("ping postgres: %w", err)
		}
		if cfg.RunMigrations {
			if err := migrations.Apply(ctx, db); err != nil {
				_ = db.Close()
				return Stores{}, noop, fmt.Errorf("apply migrations: %w", err)
			}
			log.Info("database migrations applied")
		}
		store := postgres.New(db)
		return Stores{Assessments: store, Certificates: store}, db.Close, nil

	case config.DriverRedis:
		store, err := redisstore.Open(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return Stores{}, noop, err
		}
		return Stores{Assessments: store, Certificates: store}, store.Close, nil

	default:
		return Stores{}, noop, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
