// Package retention deletes expired jobs and their media on a cron schedule.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"video-pipeline/internal/types"
)

// Lister finds jobs whose last update is older than cutoff.
type Lister interface {
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*types.Job, error)
}

// Deleter removes a job with its stored media.
type Deleter interface {
	Delete(ctx context.Context, id string) error
}

type Scheduler struct {
	cron    *cron.Cron
	lister  Lister
	deleter Deleter
	maxAge  time.Duration
	batch   int
	now     func() time.Time
	log     zerolog.Logger
}

func New(lister Lister, deleter Deleter, maxAge time.Duration, batch int, log zerolog.Logger) *Scheduler {
	if batch <= 0 {
		batch = 100
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		lister:  lister,
		deleter: deleter,
		maxAge:  maxAge,
		batch:   batch,
		now:     time.Now,
		log:     log.With().Str("component", "retention").Logger(),
	}
}

// Start schedules Sweep with the cron expression and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context, expr string) error {
	if _, err := s.cron.AddFunc(expr, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.log.Error().Err(err).Msg("retention sweep failed")
		}
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("cron", expr).Dur("max_age", s.maxAge).Msg("retention scheduled")
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep deletes expired jobs batch by batch and returns how many were removed.
// A job that fails to delete stops the sweep so it is not listed again forever.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for {
		jobs, err := s.lister.ListExpired(ctx, cutoff, s.batch)
		if err != nil {
			return removed, err
		}
		for _, j := range jobs {
			if err := s.deleter.Delete(ctx, j.ID); err != nil {
				return removed, err
			}
			removed++
			s.log.Debug().Str("job_id", j.ID).Time("updated_at", j.UpdatedAt).Msg("expired job deleted")
		}
		if len(jobs) < s.batch || ctx.Err() != nil {
			break
		}
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("retention sweep done")
	}
	return removed, ctx.Err()
}
