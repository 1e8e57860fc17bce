package retention

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-pipeline/internal/store"
	"video-pipeline/internal/types"
)

type storeDeleter struct {
	s       *store.Memory
	deleted []string
	fail    string
}

func (d *storeDeleter) Delete(ctx context.Context, id string) error {
	if id == d.fail {
		return errors.New("minio unavailable")
	}
	d.deleted = append(d.deleted, id)
	return d.s.Delete(ctx, id)
}

func seed(t *testing.T, m *store.Memory, now time.Time) {
	for i := 0; i < 5; i++ {
		at := now.Add(-time.Duration(40-i) * 24 * time.Hour)
		require.NoError(t, m.Save(context.Background(), &types.Job{ID: fmt.Sprintf("old%d", i), UserID: "u", CreatedAt: at, UpdatedAt: at}))
	}
	require.NoError(t, m.Save(context.Background(), &types.Job{ID: "fresh", UserID: "u", CreatedAt: now, UpdatedAt: now}))
}

func TestSweepDeletesExpiredInBatches(t *testing.T) {
	now := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)
	m := store.NewMemory()
	seed(t, m, now)
	d := &storeDeleter{s: m}

	s := New(m, d, 30*24*time.Hour, 2, zerolog.Nop())
	s.now = func() time.Time { return now }

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []string{"old0", "old1", "old2", "old3", "old4"}, d.deleted)

	_, err = m.Get(context.Background(), "fresh")
	assert.NoError(t, err)
}

func TestSweepStopsOnDeleteFailure(t *testing.T) {
	now := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)
	m := store.NewMemory()
	seed(t, m, now)
	d := &storeDeleter{s: m, fail: "old1"}

	s := New(m, d, 30*24*time.Hour, 10, zerolog.Nop())
	s.now = func() time.Time { return now }

	n, err := s.Sweep(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestStartRejectsBadExpression(t *testing.T) {
	s := New(store.NewMemory(), &storeDeleter{}, time.Hour, 10, zerolog.Nop())
	assert.Error(t, s.Start(context.Background(), "every day"))
}
