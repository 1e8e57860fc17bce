package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"video-pipeline/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// NewPool opens a pgx pool for databaseURL.
func NewPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return pool, nil
}

// Postgres stores each job as one JSONB document. Block updates are single
// UPDATE statements so a half-written block is never visible.
type Postgres struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

var _ Store = (*Postgres)(nil)

func NewPostgres(pool *pgxpool.Pool, log zerolog.Logger) *Postgres {
	return &Postgres{pool: pool, log: log.With().Str("component", "store").Logger()}
}

// Migrate creates the tables when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

func (p *Postgres) Save(ctx context.Context, job *types.Job) error {
	job.Status = types.DeriveStatus(job)
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO generation_jobs (id, user_id, status, data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at;
`
	_, err = p.pool.Exec(ctx, q, job.ID, job.UserID, string(job.Status), data, job.CreatedAt, job.UpdatedAt)
	return err
}

func (p *Postgres) Get(ctx context.Context, id string) (*types.Job, error) {
	const q = `SELECT data FROM generation_jobs WHERE id = $1;`
	var data []byte
	if err := p.pool.QueryRow(ctx, q, id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return decode(data)
}

func (p *Postgres) UpdateBlock(ctx context.Context, id string, block types.Block, value any) (*types.Job, error) {
	return p.ReplaceBlock(ctx, id, block, value)
}

func (p *Postgres) ReplaceBlock(ctx context.Context, id string, block types.Block, value any, clear ...types.Block) (*types.Job, error) {
	if value == nil {
		return p.ClearBlocks(ctx, id, append(clear, block)...)
	}
	// Round-trip through a Job so the value is type-checked against the block.
	var probe types.Job
	if err := probe.SetBlock(block, value); err != nil {
		return nil, err
	}
	blockJSON, err := json.Marshal(probe.Block(block))
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(clear))
	for i, b := range clear {
		keys[i] = string(b)
	}
	now := time.Now().UTC()
	nowJSON, _ := json.Marshal(now)

	const q = `
UPDATE generation_jobs
SET data = jsonb_set(jsonb_set(data - $2::text[], $3::text[], $4::jsonb, true), '{updatedAt}', $5::jsonb, true),
    updated_at = $6
WHERE id = $1
RETURNING data;
`
	var data []byte
	err = p.pool.QueryRow(ctx, q, id, keys, []string{string(block)}, blockJSON, nowJSON, now).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return p.refreshStatus(ctx, data)
}

func (p *Postgres) ClearBlocks(ctx context.Context, id string, blocks ...types.Block) (*types.Job, error) {
	keys := make([]string, len(blocks))
	for i, b := range blocks {
		keys[i] = string(b)
	}
	now := time.Now().UTC()
	nowJSON, _ := json.Marshal(now)

	const q = `
UPDATE generation_jobs
SET data = jsonb_set(data - $2::text[], '{updatedAt}', $3::jsonb, true),
    updated_at = $4
WHERE id = $1
RETURNING data;
`
	var data []byte
	if err := p.pool.QueryRow(ctx, q, id, keys, nowJSON, now).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return p.refreshStatus(ctx, data)
}

// refreshStatus recomputes the display status from the returned document and
// writes it back. The status column is a cache, so a failed write is only logged.
func (p *Postgres) refreshStatus(ctx context.Context, data []byte) (*types.Job, error) {
	job, err := decode(data)
	if err != nil {
		return nil, err
	}
	job.Status = types.DeriveStatus(job)

	const q = `
UPDATE generation_jobs
SET status = $2, data = jsonb_set(data, '{status}', to_jsonb($2::text), true)
WHERE id = $1;
`
	if _, err := p.pool.Exec(ctx, q, job.ID, string(job.Status)); err != nil {
		p.log.Warn().Err(err).Str("job_id", job.ID).Msg("status refresh failed")
	}
	return job, nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM generation_jobs WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (p *Postgres) ListByUser(ctx context.Context, userID string, page Page) ([]*types.Job, error) {
	page = page.normalize()
	const q = `
SELECT data FROM generation_jobs
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;
`
	return p.list(ctx, q, userID, page.Limit, page.Offset)
}

func (p *Postgres) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*types.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT data FROM generation_jobs
WHERE updated_at < $1
ORDER BY updated_at ASC
LIMIT $2;
`
	return p.list(ctx, q, cutoff, limit)
}

func (p *Postgres) list(ctx context.Context, q string, args ...any) ([]*types.Job, error) {
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*types.Job{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		j, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
