package acquire

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"video-pipeline/internal/metrics"
)

// Failure is one unsuccessful search attempt.
type Failure struct {
	JobID       string
	Segment     int
	Query       string
	Provider    string
	Attempt     int
	Reason      string
	AspectRatio float64
}

// Reasons recorded for failed attempts.
const (
	ReasonEmpty         = "empty_results"
	ReasonProviderError = "provider_error"
	ReasonNoAspectMatch = "no_aspect_match"
	ReasonInvalidMedia  = "invalid_media"
	ReasonEncoding      = "encoding_failed"
)

// FailureLog records failed attempts for later analysis. Recording is advisory:
// implementations must not block the pipeline on their own errors.
type FailureLog interface {
	Record(ctx context.Context, f Failure)
}

// LogFailures writes failures to the structured log.
type LogFailures struct {
	log zerolog.Logger
}

func NewLogFailures(log zerolog.Logger) *LogFailures {
	return &LogFailures{log: log.With().Str("component", "acquire").Logger()}
}

func (l *LogFailures) Record(_ context.Context, f Failure) {
	l.log.Info().
		Str("job_id", f.JobID).
		Int("segment", f.Segment).
		Str("query", f.Query).
		Str("provider", f.Provider).
		Int("attempt", f.Attempt).
		Str("reason", f.Reason).
		Float64("aspect_ratio", f.AspectRatio).
		Msg("clip search failed")
}

// PostgresFailures inserts failures into clip_search_failures.
type PostgresFailures struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewPostgresFailures(pool *pgxpool.Pool, log zerolog.Logger) *PostgresFailures {
	return &PostgresFailures{pool: pool, log: log.With().Str("component", "acquire").Logger()}
}

func (p *PostgresFailures) Record(ctx context.Context, f Failure) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO clip_search_failures (job_id, segment, query, provider, attempt, reason, aspect_ratio)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.JobID, f.Segment, f.Query, f.Provider, f.Attempt, f.Reason, f.AspectRatio)
	if err != nil {
		p.log.Warn().Err(err).Str("job_id", f.JobID).Msg("record search failure")
	}
}

// recorder counts every failure and forwards it to the configured log.
type recorder struct {
	sink FailureLog
}

func (r recorder) record(ctx context.Context, f Failure) {
	metrics.SearchFailures.WithLabelValues(f.Provider, f.Reason).Inc()
	if r.sink != nil {
		r.sink.Record(ctx, f)
	}
}
