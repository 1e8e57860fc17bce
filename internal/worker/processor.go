// Package worker consumes stage requests and drives jobs through the pipeline.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"video-pipeline/internal/queue"
	"video-pipeline/internal/types"
)

// Engine is the slice of the pipeline the processor drives.
type Engine interface {
	Advance(ctx context.Context, id string) (*types.Job, error)
	RunStage(ctx context.Context, id string, stage types.Stage) (*types.Job, error)
	Rerun(ctx context.Context, id string, stage types.Stage) (*types.Job, error)
}

type Processor struct {
	engine Engine
	log    zerolog.Logger
}

func NewProcessor(engine Engine, log zerolog.Logger) *Processor {
	return &Processor{engine: engine, log: log.With().Str("component", "processor").Logger()}
}

// Process handles one message. Stage failures leave the job resumable, so the
// message is done either way; the error is only reported.
func (p *Processor) Process(ctx context.Context, m queue.Message) error {
	start := time.Now()
	log := p.log.With().Str("job_id", m.JobID).Str("stage", string(m.Stage)).Bool("rerun", m.Rerun).Logger()
	if err := m.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid message")
		return err
	}

	var job *types.Job
	var err error
	switch {
	case m.Stage == "":
		job, err = p.engine.Advance(ctx, m.JobID)
	case m.Rerun:
		job, err = p.engine.Rerun(ctx, m.JobID, m.Stage)
	default:
		job, err = p.engine.RunStage(ctx, m.JobID, m.Stage)
	}

	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
		if errors.Is(err, types.ErrNotFound) {
			ev = log.Warn().Err(err)
		}
	}
	if job != nil {
		ev = ev.Str("status", string(job.Status))
	}
	ev.Dur("took", time.Since(start)).Msg("message processed")
	return err
}
