package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/relgate/relgate/internal/api"
	"github.com/relgate/relgate/internal/catalog"
	"github.com/relgate/relgate/internal/engine"
	"github.com/relgate/relgate/internal/services/dataops"
	"github.com/relgate/relgate/internal/services/metadata"
	"github.com/relgate/relgate/pkg/config"
	"github.com/relgate/relgate/pkg/database"
	"github.com/relgate/relgate/pkg/logger"
)

var (
	addr              = flag.String("addr", ":8080", "HTTP listen address")
	isolation         = flag.String("tx-isolation", "read-committed", "Transaction isolation level (read-committed, repeatable-read, serializable)")
	stringifyNumerics = flag.Bool("stringify-numerics", false, "Render numeric columns as JSON strings")
	enableRedis       = flag.Bool("redis", false, "Publish schema-update pings over Redis")
	serviceVersion    = "1.0.0"
)

func main() {
	flag.Parse()

	log := logger.New("relgate", serviceVersion)
	cfg := config.New()

	ctx := context.Background()

	// Database
	if err := database.Initialize(ctx, database.FromGlobalConfig(cfg)); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	db := database.GetInstance()
	defer db.Close()

	pool := db.Pool()

	if err := catalog.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("Failed to ensure catalog schema: %v", err)
	}

	// Optional Redis notifier for cache-invalidation pings.
	var notifier engine.Notifier
	if *enableRedis {
		rcfg := database.DefaultRedisConfig()
		rcfg.Host = cfg.GetOrDefault("redis.host", rcfg.Host)
		if p := cfg.Get("redis.port"); p != "" {
			port, err := strconv.Atoi(p)
			if err != nil {
				log.Fatalf("Invalid redis.port value %q: %v", p, err)
			}
			rcfg.Port = port
		}
		rcfg.Password = cfg.Get("redis.password")

		rdb, err := database.NewRedis(ctx, rcfg)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		notifier = rdb
	}

	eng, err := engine.New(engine.Options{
		DB:                pool,
		Logger:            log,
		InstanceID:        uuid.New(),
		Isolation:         parseIsolation(*isolation, log),
		StringifyNumerics: *stringifyNumerics,
		Notifier:          notifier,
		DataExecutor:      dataops.NewExecutor(log),
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	log.Infof("Engine instance %s starting", eng.InstanceID())

	// Build the initial schema cache from the catalog.
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		log.Fatalf("Failed to begin catalog load transaction: %v", err)
	}
	cache, err := metadata.NewService(log).Load(ctx, tx)
	if err != nil {
		_ = tx.Rollback(ctx)
		log.Fatalf("Failed to load schema cache from catalog: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit catalog load transaction: %v", err)
	}

	server := api.NewServer(eng, cache, *addr, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-sigCh:
		log.Infof("Received signal %v, shutting down", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			log.Errorf("Graceful shutdown failed: %v", err)
		}
	}
}

func parseIsolation(s string, log *logger.Logger) pgx.TxIsoLevel {
	switch s {
	case "read-committed":
		return pgx.ReadCommitted
	case "repeatable-read":
		return pgx.RepeatableRead
	case "serializable":
		return pgx.Serializable
	default:
		log.Warnf("Unknown isolation level %q, falling back to read-committed", s)
		return pgx.ReadCommitted
	}
}
