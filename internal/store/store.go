package store

import (
	"context"
	"time"

	"video-pipeline/internal/types"
)

// Store is the durable job store. Each call touches one job; there are no
// multi-key transactions.
type Store interface {
	Save(ctx context.Context, job *types.Job) error
	Get(ctx context.Context, id string) (*types.Job, error)
	// UpdateBlock atomically replaces one block and bumps UpdatedAt. A nil value
	// removes the block. The updated job is returned.
	UpdateBlock(ctx context.Context, id string, block types.Block, value any) (*types.Job, error)
	// ClearBlocks atomically removes the given blocks.
	ClearBlocks(ctx context.Context, id string, blocks ...types.Block) (*types.Job, error)
	// ReplaceBlock removes the clear blocks and sets block to value in one
	// atomic update.
	ReplaceBlock(ctx context.Context, id string, block types.Block, value any, clear ...types.Block) (*types.Job, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string, page Page) ([]*types.Job, error)
	// ListExpired returns jobs last updated before cutoff, oldest first.
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*types.Job, error)
}

// Page selects a window of a listing.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() Page {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
