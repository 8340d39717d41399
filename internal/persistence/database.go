package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/condo-service/internal/config"
)

// Database is the ticket store: organizations, memberships, tickets and their history and comments.
type Database struct {
	Pool *pgxpool.Pool
}

// OpenDatabase migrates the schema when configured to, then opens the pool and pings it.
func OpenDatabase(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Database, error) {
	if cfg.DSN == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	if cfg.RunMigrations {
		if err := RunMigrations(cfg.DSN, MigrateUp, logger); err != nil {
			return nil, err
		}
	}

	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open ticket store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ticket store unreachable: %w", err)
	}

	logger.Info("ticket store ready",
		zap.String("database", poolCfg.ConnConfig.Database),
		zap.Int32("max_conns", poolCfg.MaxConns),
		zap.Int32("min_conns", poolCfg.MinConns),
		zap.Bool("migrated", cfg.RunMigrations))
	return &Database{Pool: pool}, nil
}

// poolConfig applies the POSTGRES_* tuning knobs on top of the DSN; zero keeps the pgx default.
func poolConfig(cfg config.PostgresConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = min(cfg.MinConns, poolCfg.MaxConns)
	}
	if cfg.ConnMaxIdleSec > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(cfg.ConnMaxIdleSec) * time.Second
	}
	if cfg.ConnMaxLifeSec > 0 {
		poolCfg.MaxConnLifetime = time.Duration(cfg.ConnMaxLifeSec) * time.Second
	}
	return poolCfg, nil
}

// Ping backs the "postgres" readiness check.
func (d *Database) Ping(ctx context.Context) error {
	if d == nil || d.Pool == nil {
		return errors.New("ticket store not open")
	}
	if err := d.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("ticket store: %w", err)
	}
	return nil
}

func (d *Database) Close() {
	if d == nil || d.Pool == nil {
		return
	}
	d.Pool.Close()
}
