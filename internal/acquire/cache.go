package acquire

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"video-pipeline/internal/types"
)

// Searcher is a stock or image provider.
type Searcher interface {
	Name() string
	Search(ctx context.Context, q types.SearchQuery) ([]types.Candidate, error)
}

// cachedSearcher memoizes successful searches for a short TTL. Empty results
// are cached too; errors are not.
type cachedSearcher struct {
	Searcher
	cache *gocache.Cache
}

func newCached(s Searcher, ttl time.Duration) Searcher {
	if ttl <= 0 {
		return s
	}
	return &cachedSearcher{Searcher: s, cache: gocache.New(ttl, 2*ttl)}
}

func (c *cachedSearcher) Search(ctx context.Context, q types.SearchQuery) ([]types.Candidate, error) {
	key := fmt.Sprintf("%s|%s|%.3f|%d", q.Query, q.Orientation, q.Aspect, q.Limit)
	if v, ok := c.cache.Get(key); ok {
		return v.([]types.Candidate), nil
	}
	res, err := c.Searcher.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, res)
	return res, nil
}
