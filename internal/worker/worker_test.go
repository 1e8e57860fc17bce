package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-pipeline/internal/queue"
	"video-pipeline/internal/types"
)

type memQueue struct {
	mu     sync.Mutex
	items  chan queue.Delivery
	acked  []string
	stale  int
	depths int
}

func newMemQueue(msgs ...queue.Message) *memQueue {
	q := &memQueue{items: make(chan queue.Delivery, len(msgs)+1)}
	for _, m := range msgs {
		q.items <- queue.Delivery{Message: m, Raw: m.JobID}
	}
	return q
}

func (q *memQueue) Enqueue(ctx context.Context, m queue.Message) error {
	q.items <- queue.Delivery{Message: m, Raw: m.JobID}
	return nil
}

func (q *memQueue) Claim(ctx context.Context, wait time.Duration) (queue.Delivery, error) {
	select {
	case d := <-q.items:
		return d, nil
	case <-ctx.Done():
		return queue.Delivery{}, ctx.Err()
	case <-time.After(wait):
		return queue.Delivery{}, queue.ErrEmpty
	}
}

func (q *memQueue) Ack(ctx context.Context, d queue.Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, d.Raw)
	return nil
}

func (q *memQueue) RequeueStale(ctx context.Context, staleAfter time.Duration, max int64) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stale++
	return 0, nil
}

func (q *memQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.depths++
	return int64(len(q.items)), nil
}

func (q *memQueue) ackedIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.acked...)
}

type call struct {
	kind  string
	id    string
	stage types.Stage
}

type fakeEngine struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeEngine) record(c call) (*types.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return &types.Job{ID: c.id, Status: types.StatusSubtitlesBurned}, f.err
}

func (f *fakeEngine) Advance(ctx context.Context, id string) (*types.Job, error) {
	return f.record(call{kind: "advance", id: id})
}

func (f *fakeEngine) RunStage(ctx context.Context, id string, stage types.Stage) (*types.Job, error) {
	return f.record(call{kind: "run", id: id, stage: stage})
}

func (f *fakeEngine) Rerun(ctx context.Context, id string, stage types.Stage) (*types.Job, error) {
	return f.record(call{kind: "rerun", id: id, stage: stage})
}

func TestProcessorDispatch(t *testing.T) {
	eng := &fakeEngine{}
	p := NewProcessor(eng, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, queue.Message{JobID: "a"}))
	require.NoError(t, p.Process(ctx, queue.Message{JobID: "b", Stage: types.StageClips}))
	require.NoError(t, p.Process(ctx, queue.Message{JobID: "c", Stage: types.StageScript, Rerun: true}))
	assert.Equal(t, []call{
		{kind: "advance", id: "a"},
		{kind: "run", id: "b", stage: types.StageClips},
		{kind: "rerun", id: "c", stage: types.StageScript},
	}, eng.calls)

	err := p.Process(ctx, queue.Message{JobID: "d", Stage: "render"})
	var verr *types.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Len(t, eng.calls, 3)
}

func TestPoolProcessesAndAcks(t *testing.T) {
	eng := &fakeEngine{err: errors.New("stage clips failed")}
	q := newMemQueue(queue.Message{JobID: "j1"}, queue.Message{JobID: "j2"}, queue.Message{JobID: "j3"})
	pool := NewPool(q, NewProcessor(eng, zerolog.Nop()), 2, 20*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	// failed messages are acked too: the job stays resumable in the store
	require.Eventually(t, func() bool { return len(q.ackedIDs()) == 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop")
	}
	assert.ElementsMatch(t, []string{"j1", "j2", "j3"}, q.ackedIDs())
}

func TestReapRequeuesAndReportsDepth(t *testing.T) {
	q := newMemQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Reap(ctx, q, 10*time.Millisecond, time.Minute, zerolog.Nop())

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.stale >= 2 && q.depths >= 2
	}, 2*time.Second, 10*time.Millisecond)
}
