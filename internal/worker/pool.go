package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"video-pipeline/internal/metrics"
	"video-pipeline/internal/queue"
)

// Handler processes one claimed message.
type Handler interface {
	Process(ctx context.Context, m queue.Message) error
}

// Pool runs a fixed number of workers fed by a single claiming loop. Each
// worker handles one job at a time.
type Pool struct {
	queue     queue.Queue
	handler   Handler
	workers   int
	claimWait time.Duration
	log       zerolog.Logger
}

func NewPool(q queue.Queue, h Handler, workers int, claimWait time.Duration, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if claimWait <= 0 {
		claimWait = 5 * time.Second
	}
	return &Pool{
		queue:     q,
		handler:   h,
		workers:   workers,
		claimWait: claimWait,
		log:       log.With().Str("component", "worker").Logger(),
	}
}

// Run claims messages until ctx is cancelled, then waits for in-flight work.
func (p *Pool) Run(ctx context.Context) {
	p.log.Info().Int("workers", p.workers).Msg("worker pool started")

	deliveries := make(chan queue.Delivery)
	var wg sync.WaitGroup
	for i := 1; i <= p.workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for d := range deliveries {
				p.handle(ctx, n, d)
			}
		}(i)
	}

	defer func() {
		close(deliveries)
		wg.Wait()
		p.log.Info().Msg("worker pool stopped")
	}()
	for {
		if ctx.Err() != nil {
			return
		}
		d, err := p.queue.Claim(ctx, p.claimWait)
		if err != nil {
			if !errors.Is(err, queue.ErrEmpty) && ctx.Err() == nil {
				p.log.Warn().Err(err).Msg("claim failed")
				sleep(ctx, time.Second)
			}
			continue
		}
		select {
		case deliveries <- d:
		case <-ctx.Done():
			// left in the processing list for the reaper
			return
		}
	}
}

func (p *Pool) handle(ctx context.Context, n int, d queue.Delivery) {
	log := p.log.With().Int("worker", n).Str("job_id", d.Message.JobID).Logger()
	if err := p.handler.Process(ctx, d.Message); err != nil {
		log.Debug().Err(err).Msg("process returned error")
	}
	if ctx.Err() != nil {
		// interrupted work is redelivered by the reaper
		return
	}
	if err := p.queue.Ack(context.WithoutCancel(ctx), d); err != nil {
		log.Error().Err(err).Msg("ack failed")
	}
}

// Depther reports queue length.
type Depther interface {
	Depth(ctx context.Context) (int64, error)
}

// Reap periodically returns processing entries older than staleAfter to the
// queue and updates the queue depth gauge.
func Reap(ctx context.Context, q queue.Queue, every, staleAfter time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.RequeueStale(ctx, staleAfter, 100)
			if err != nil {
				log.Warn().Err(err).Msg("requeue stale failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("requeued", n).Msg("requeued stale messages")
			}
			if dq, ok := q.(Depther); ok {
				if depth, err := dq.Depth(ctx); err == nil {
					metrics.QueueDepth.Set(float64(depth))
				}
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
