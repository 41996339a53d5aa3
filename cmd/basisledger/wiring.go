package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"

	"github.com/sproutfi/basisledger/internal/backup"
	"github.com/sproutfi/basisledger/internal/basiscache"
	"github.com/sproutfi/basisledger/internal/config"
	"github.com/sproutfi/basisledger/internal/engine"
	"github.com/sproutfi/basisledger/internal/explorer"
	"github.com/sproutfi/basisledger/internal/models"
	"github.com/sproutfi/basisledger/internal/outbox"
	"github.com/sproutfi/basisledger/internal/reconstruct"
	"github.com/sproutfi/basisledger/internal/store"
	"github.com/sproutfi/basisledger/internal/store/postgres"
	"github.com/sproutfi/basisledger/internal/telemetry"
)

// app bundles the wired components behind the CLI commands.
type app struct {
	config  *config.Config
	engine  *engine.Engine
	queue   *outbox.Queue
	metrics *telemetry.Metrics

	db *sqlx.DB
}

// buildApp assembles the engine from configuration. Storage falls back
// to process memory when no database is configured, which is only
// suitable for local experiments.
func buildApp(path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	metrics := telemetry.New()

	var (
		deposits store.DepositStore
		pending  store.OutboxStore
		db       *sqlx.DB
	)
	if cfg.Database.Enabled {
		db, err = sqlx.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if cfg.Database.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		}
		if cfg.Database.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		deposits = postgres.NewDepositStore(db, cfg.QueryTimeout())
		pending = postgres.NewOutboxStore(db, cfg.QueryTimeout())
	} else {
		log.Warn().Msg("no database configured, using in-memory storage")
		mem := store.NewMemoryStore()
		deposits = mem
		pending = mem
	}

	var cache basiscache.Cache
	switch cfg.Cache.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.Redis.Addr,
			DB:   cfg.Cache.Redis.DB,
		})
		cache = basiscache.NewRedisCache(client, cfg.CacheTTL())
	default:
		cache = basiscache.NewMemoryCache(cfg.CacheTTL())
	}

	history := explorer.New(explorer.Config{
		BaseURL:        cfg.Explorer.BaseURL,
		TokenContract:  cfg.Token.Contract,
		APIKey:         cfg.Explorer.APIKey,
		RequestTimeout: cfg.ExplorerTimeout(),
		RateLimitRPS:   cfg.Explorer.RateLimitRPS,
		MaxRetries:     cfg.Explorer.MaxRetries,
	})

	remote := backup.New(backup.Config{
		BaseURL:        cfg.Backup.BaseURL,
		RequestTimeout: cfg.BackupTimeout(),
		MaxRetries:     cfg.Backup.MaxRetries,
	})

	vaults := models.NewVaultAddressSet(cfg.Vaults...)
	recon := reconstruct.New(history, vaults, cache, metrics)
	queue := outbox.New(pending, remote, metrics)

	eng := engine.New(engine.Config{FeePercent: cfg.FeePercent},
		deposits, cache, remote, queue, recon, metrics)

	return &app{config: cfg, engine: eng, queue: queue, metrics: metrics, db: db}, nil
}

// close releases held resources.
func (a *app) close() {
	a.engine.WaitForPushes()
	if a.db != nil {
		a.db.Close()
	}
}
