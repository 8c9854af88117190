package storage

import (
	"context"
	"fmt"

	"github.com/KevinKickass/OpenLogoBridge/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const samplesSchema = `
CREATE TABLE IF NOT EXISTS block_samples (
	id          BIGSERIAL PRIMARY KEY,
	block_id    UUID        NOT NULL,
	block_name  TEXT        NOT NULL,
	block       TEXT        NOT NULL,
	kind        TEXT        NOT NULL,
	value       BIGINT      NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS block_samples_name_time ON block_samples (block_name, recorded_at DESC);
`

type PostgresClient struct {
	pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, cfg config.DatabaseConfig) (*PostgresClient, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	// Connection testen
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{pool: pool}, nil
}

func (p *PostgresClient) Close() {
	p.pool.Close()
}

// EnsureSchema creates the sample table if it does not exist.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, samplesSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// InsertSamples bulk-inserts samples with COPY.
func (p *PostgresClient) InsertSamples(ctx context.Context, samples []Sample) error {
	rows := make([][]any, 0, len(samples))
	for _, s := range samples {
		rows = append(rows, []any{s.BlockID, s.BlockName, s.Block, s.Kind, s.Value, s.RecordedAt})
	}

	_, err := p.pool.CopyFrom(ctx,
		pgx.Identifier{"block_samples"},
		[]string{"block_id", "block_name", "block", "kind", "value", "recorded_at"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to insert samples: %w", err)
	}
	return nil
}

// LatestSamples returns the newest samples of a block, newest first.
func (p *PostgresClient) LatestSamples(ctx context.Context, blockName string, limit int) ([]Sample, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT block_id, block_name, block, kind, value, recorded_at
		FROM block_samples
		WHERE block_name = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, blockName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}

	samples, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Sample])
	if err != nil {
		return nil, fmt.Errorf("failed to scan samples: %w", err)
	}
	return samples, nil
}
