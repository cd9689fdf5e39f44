// Package db provides the PostgreSQL persistence of map sessions. The
// repository accepts a DBTX interface that is satisfied by both
// *pgxpool.Pool and pgx.Tx.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"chargemap/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	URL      types.SecretString
	MaxConns int32
	MinConns int32
}

// NewPool opens a pgx pool and verifies connectivity.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// schema is applied at startup. Filters are nullable booleans: NULL means
// the axis is unconstrained.
const schema = `CREATE TABLE IF NOT EXISTS map_sessions (
	id               TEXT PRIMARY KEY,
	latitude         DOUBLE PRECISION NOT NULL,
	longitude        DOUBLE PRECISION NOT NULL,
	latitude_delta   DOUBLE PRECISION NOT NULL CHECK (latitude_delta >= 0),
	longitude_delta  DOUBLE PRECISION NOT NULL CHECK (longitude_delta >= 0),
	obfuscated_filter BOOLEAN,
	reserved_filter  BOOLEAN,
	private_filter   BOOLEAN,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// EnsureSchema creates the map_sessions table if it does not exist.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to apply schema", err)
	}
	return nil
}

// Pinger is implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe reports database health.
type Probe struct {
	db Pinger
}

// NewProbe returns a health probe over p.
func NewProbe(p Pinger) *Probe {
	return &Probe{db: p}
}

// Name implements core.HealthProbe.
func (p *Probe) Name() string { return "database" }

// Check pings the database.
func (p *Probe) Check(ctx context.Context) error {
	if err := p.db.Ping(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "database ping failed", err)
	}
	return nil
}
