package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository on a pgx connection pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects a pool for the given DSN and verifies
// connectivity before returning.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks the database connection.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	return r.pool.Exec(ctx, query, args...)
}

func (r *PostgresRepository) queryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return r.pool.QueryRow(ctx, query, args...)
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return r.pool.Query(ctx, query, args...)
}
