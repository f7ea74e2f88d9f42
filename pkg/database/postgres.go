package database

import (
	"context"
	"time"

	"shramsaathi-backend/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrator creates the schema on a fresh pool.
type Migrator func(ctx context.Context, pool *pgxpool.Pool) error

// NewPostgresConnection opens a pool, pings it and runs migrate when set.
func NewPostgresConnection(ctx context.Context, connString string, migrate Migrator) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	// Supabase transaction mode (PgBouncer) rejects named prepared statements
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if migrate != nil {
		if err := migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	logger.Log.Info("Database connection established", "max_conns", config.MaxConns)
	return pool, nil
}

// Pinger adapts a pool to the health check.
type Pinger struct{ Pool *pgxpool.Pool }

func (p Pinger) Ping(ctx context.Context) error { return p.Pool.Ping(ctx) }
