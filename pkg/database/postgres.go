package database

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relgate/relgate/pkg/config"
)

var (
	instance *Postgres
	once     sync.Once
)

// Postgres represents a PostgreSQL database connection
type Postgres struct {
	pool *pgxpool.Pool
}

type PostgresConfig struct {
	User              string
	Password          string
	Host              string
	Port              int
	Database          string
	SSLMode           string
	MaxConnections    int32
	ConnectionTimeout time.Duration
}

// New creates a new Postgres instance
func New(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.Database == "" {
		return nil, fmt.Errorf("database name is required - must be provided in config or RELGATE_DATABASE_NAME environment variable")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("database host is required")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("database user is required")
	}

	// Use pgxpool.ParseConfig to handle special characters in passwords
	poolConfig, err := pgxpool.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("failed to create connection config: %w", err)
	}

	// Set connection parameters individually to avoid URL parsing issues
	poolConfig.ConnConfig.Host = cfg.Host
	poolConfig.ConnConfig.Port = uint16(cfg.Port)
	poolConfig.ConnConfig.Database = cfg.Database
	poolConfig.ConnConfig.User = cfg.User
	poolConfig.ConnConfig.Password = cfg.Password
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectionTimeout

	if cfg.SSLMode == "disable" {
		poolConfig.ConnConfig.TLSConfig = nil
	}

	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MaxConnIdleTime = cfg.ConnectionTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// FromGlobalConfig creates a Postgres config from the global configuration,
// falling back to environment variables and local-development defaults.
func FromGlobalConfig(cfg *config.Config) PostgresConfig {
	get := func(key, env, def string) string {
		if cfg != nil {
			if v := cfg.Get(key); v != "" {
				return v
			}
		}
		if v := os.Getenv(env); v != "" {
			return v
		}
		return def
	}

	port := 5432
	if p, err := strconv.Atoi(get("database.port", "RELGATE_DATABASE_PORT", "5432")); err == nil {
		port = p
	}

	return PostgresConfig{
		User:              get("database.user", "RELGATE_DATABASE_USER", "relgate"),
		Password:          get("database.password", "RELGATE_DATABASE_PASSWORD", "relgate"),
		Host:              get("database.host", "RELGATE_DATABASE_HOST", "localhost"),
		Port:              port,
		Database:          get("database.name", "RELGATE_DATABASE_NAME", ""),
		SSLMode:           get("database.sslmode", "RELGATE_DATABASE_SSLMODE", "disable"),
		MaxConnections:    40,
		ConnectionTimeout: 5 * time.Second,
	}
}

// Pool returns the underlying connection pool
func (db *Postgres) Pool() *pgxpool.Pool {
	return db.pool
}

// Close closes the database connection
func (db *Postgres) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Initialize creates and sets up the database instance
func Initialize(ctx context.Context, cfg PostgresConfig) error {
	var err error
	once.Do(func() {
		instance, err = New(ctx, cfg)
	})
	return err
}

// GetInstance returns the singleton database instance
func GetInstance() *Postgres {
	if instance == nil {
		panic("database not initialized")
	}
	return instance
}
