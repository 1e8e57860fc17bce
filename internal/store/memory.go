package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"video-pipeline/internal/types"
)

// Memory is an in-process Store. Jobs are deep-copied on every read and write so
// callers never share state with the store.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string][]byte
	now  func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{jobs: map[string][]byte{}, now: time.Now}
}

func (m *Memory) Save(ctx context.Context, job *types.Job) error {
	job.Status = types.DeriveStatus(job)
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.jobs[job.ID] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*types.Job, error) {
	m.mu.RLock()
	data, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, types.ErrNotFound
	}
	return decode(data)
}

func (m *Memory) UpdateBlock(ctx context.Context, id string, block types.Block, value any) (*types.Job, error) {
	return m.mutate(id, func(j *types.Job) error {
		return j.SetBlock(block, value)
	})
}

func (m *Memory) ClearBlocks(ctx context.Context, id string, blocks ...types.Block) (*types.Job, error) {
	return m.mutate(id, func(j *types.Job) error {
		for _, b := range blocks {
			if err := j.SetBlock(b, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Memory) ReplaceBlock(ctx context.Context, id string, block types.Block, value any, clear ...types.Block) (*types.Job, error) {
	return m.mutate(id, func(j *types.Job) error {
		for _, b := range clear {
			if err := j.SetBlock(b, nil); err != nil {
				return err
			}
		}
		return j.SetBlock(block, value)
	})
}

func (m *Memory) mutate(id string, fn func(j *types.Job) error) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.jobs[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	job, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = m.now().UTC()
	job.Status = types.DeriveStatus(job)

	out, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	m.jobs[id] = out
	return decode(out)
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return types.ErrNotFound
	}
	delete(m.jobs, id)
	return nil
}

func (m *Memory) ListByUser(ctx context.Context, userID string, page Page) ([]*types.Job, error) {
	page = page.normalize()
	all, err := m.filter(func(j *types.Job) bool { return j.UserID == userID })
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(a, b int) bool { return all[a].CreatedAt.After(all[b].CreatedAt) })
	if page.Offset >= len(all) {
		return []*types.Job{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[page.Offset:end], nil
}

func (m *Memory) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*types.Job, error) {
	all, err := m.filter(func(j *types.Job) bool { return j.UpdatedAt.Before(cutoff) })
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(a, b int) bool { return all[a].UpdatedAt.Before(all[b].UpdatedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *Memory) filter(keep func(j *types.Job) bool) ([]*types.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Job
	for _, data := range m.jobs {
		j, err := decode(data)
		if err != nil {
			return nil, err
		}
		if keep(j) {
			out = append(out, j)
		}
	}
	return out, nil
}

func decode(data []byte) (*types.Job, error) {
	var j types.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	return &j, nil
}
