// Package acquire resolves one playable clip per timeline segment.
package acquire

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"video-pipeline/internal/effects"
	"video-pipeline/internal/media"
	"video-pipeline/internal/providers"
	"video-pipeline/internal/types"
)

// Ranker picks the best candidate for a segment.
type Ranker interface {
	Rank(ctx context.Context, req types.RankRequest) (int, error)
}

// Synthesizer animates a still image.
type Synthesizer interface {
	Synthesize(ctx context.Context, req effects.Request) (effects.Result, error)
}

type Options struct {
	BatchSize       int
	AspectTolerance float64
	MinImageBytes   int64
	MaxImageBytes   int64
	MaxCandidates   int
	// MinClipSec is the shortest stock video accepted.
	MinClipSec        float64
	EffectDurationSec float64
	SearchCacheTTL    time.Duration
	DownloadTimeout   time.Duration
}

// Deps are the collaborators of an Acquirer. Stock searchers serve "stock"
// segments, image searchers serve "search" segments, both in the given order.
type Deps struct {
	Stock    []Searcher
	Images   []Searcher
	Ranker   Ranker
	Effects  Synthesizer
	Runner   media.Runner
	Failures FailureLog
}

type Acquirer struct {
	opts     Options
	stock    []Searcher
	images   []Searcher
	ranker   Ranker
	effects  Synthesizer
	runner   media.Runner
	failures recorder
	videoDL  *providers.Downloader
	imageDL  *providers.Downloader
	log      zerolog.Logger
}

func New(opts Options, deps Deps, log zerolog.Logger) *Acquirer {
	if opts.BatchSize < 1 {
		opts.BatchSize = 3
	}
	if opts.AspectTolerance <= 0 {
		opts.AspectTolerance = 0.2
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 8
	}
	if opts.EffectDurationSec <= 0 {
		opts.EffectDurationSec = 3
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 60 * time.Second
	}
	a := &Acquirer{
		opts:     opts,
		ranker:   deps.Ranker,
		effects:  deps.Effects,
		runner:   deps.Runner,
		failures: recorder{sink: deps.Failures},
		videoDL: &providers.Downloader{
			Client:   &http.Client{Timeout: opts.DownloadTimeout},
			MinBytes: 32 * 1024,
			MaxBytes: 200 * 1024 * 1024,
		},
		imageDL: &providers.Downloader{
			Client:   &http.Client{Timeout: opts.DownloadTimeout},
			MinBytes: opts.MinImageBytes,
			MaxBytes: opts.MaxImageBytes,
		},
		log: log.With().Str("component", "acquire").Logger(),
	}
	for _, s := range deps.Stock {
		a.stock = append(a.stock, newCached(s, opts.SearchCacheTTL))
	}
	for _, s := range deps.Images {
		a.images = append(a.images, newCached(s, opts.SearchCacheTTL))
	}
	return a
}

// Request scopes one acquisition run to a job.
type Request struct {
	JobID string
	// Aspect is the target width / height.
	Aspect float64
	// Script is the narration, given to the ranker as context.
	Script string
	// WorkDir receives the resolved clip files; the caller owns and removes it.
	WorkDir string
}

// Clip is a resolved segment. StartTime and RequestedDuration may cover
// neighbouring segments that could not be resolved.
type Clip struct {
	Segment           int
	Label             string
	Kind              types.LabelKind
	Source            string
	Provider          string
	Effect            string
	CandidateKey      string
	OriginURL         string
	Path              string
	SourceDuration    float64
	StartTime         float64
	RequestedDuration float64
}

// Source values.
const (
	SourceVideo = "video"
	SourcePhoto = "photo"
)

type outcome struct {
	segment int
	timing  types.ClipTiming
	clip    *Clip
}

// Resolve acquires clips for every timing in batches of BatchSize, segment
// order between batches. The result is sorted by segment start time.
func (a *Acquirer) Resolve(ctx context.Context, req Request, timings []types.ClipTiming) ([]Clip, error) {
	ex := newExclusion()
	var (
		mu       sync.Mutex
		outcomes []outcome
	)
	for start := 0; start < len(timings); start += a.opts.BatchSize {
		end := min(start+a.opts.BatchSize, len(timings))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.opts.BatchSize)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				clip := a.resolveSegment(gctx, req, i, timings[i], ex)
				if err := gctx.Err(); err != nil {
					return err
				}
				mu.Lock()
				outcomes = append(outcomes, outcome{segment: i, timing: timings[i], clip: clip})
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		a.log.Debug().Str("job_id", req.JobID).Int("from", start).Int("to", end).Msg("batch resolved")
	}

	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].timing.StartTime < outcomes[j].timing.StartTime
	})
	return a.absorb(req, outcomes)
}

// absorb folds abandoned segments into the previous resolved clip, or into the
// next one for a leading run, so the timeline keeps its full length.
func (a *Acquirer) absorb(req Request, outcomes []outcome) ([]Clip, error) {
	var (
		out          []Clip
		pending      float64
		pendingStart = -1.0
	)
	for _, o := range outcomes {
		if o.clip == nil {
			a.log.Warn().Str("job_id", req.JobID).Int("segment", o.segment).
				Strs("labels", o.timing.Labels).Msg("segment abandoned, absorbed by neighbour")
			if len(out) > 0 {
				out[len(out)-1].RequestedDuration += o.timing.Duration
				continue
			}
			if pendingStart < 0 {
				pendingStart = o.timing.StartTime
			}
			pending += o.timing.Duration
			continue
		}
		c := *o.clip
		if pending > 0 {
			c.StartTime = pendingStart
			c.RequestedDuration += pending
			pending, pendingStart = 0, -1
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, &types.ProviderError{
			Provider: "acquire",
			Op:       "resolve",
			Err:      fmt.Errorf("none of %d segments produced a playable clip", len(outcomes)),
		}
	}
	return out, nil
}

// resolveSegment tries each label alternative in order. Search labels try images
// first, then stock video. It returns nil when every alternative fails.
func (a *Acquirer) resolveSegment(ctx context.Context, req Request, i int, t types.ClipTiming, ex *exclusion) *Clip {
	log := a.log.With().Str("job_id", req.JobID).Int("segment", i).Logger()
	for attempt, label := range t.Labels {
		if ctx.Err() != nil {
			return nil
		}
		at := attemptCtx{req: req, segment: i, timing: t, label: label, attempt: attempt + 1, ex: ex}
		var clip *Clip
		if t.Kind == types.KindSearch {
			clip = a.fromImages(ctx, at)
			if clip == nil && ctx.Err() == nil {
				log.Debug().Str("label", label).Msg("no usable image, trying stock video")
				clip = a.fromStock(ctx, at)
			}
		} else {
			clip = a.fromStock(ctx, at)
		}
		if clip != nil {
			log.Info().Str("label", label).Str("provider", clip.Provider).Str("source", clip.Source).Msg("clip resolved")
			return clip
		}
		log.Debug().Str("label", label).Msg("label alternative yielded nothing")
	}
	return nil
}

type attemptCtx struct {
	req     Request
	segment int
	timing  types.ClipTiming
	label   string
	attempt int
	ex      *exclusion
}

func (at attemptCtx) failure(provider, reason string) Failure {
	return Failure{
		JobID:       at.req.JobID,
		Segment:     at.segment,
		Query:       at.label,
		Provider:    provider,
		Attempt:     at.attempt,
		Reason:      reason,
		AspectRatio: at.req.Aspect,
	}
}

func (at attemptCtx) clip(c types.Candidate, source, path string, dur float64) *Clip {
	return &Clip{
		Segment:           at.segment,
		Label:             at.label,
		Kind:              at.timing.Kind,
		Source:            source,
		Provider:          c.Provider,
		CandidateKey:      c.Key(),
		OriginURL:         originURL(c),
		Path:              path,
		SourceDuration:    dur,
		StartTime:         at.timing.StartTime,
		RequestedDuration: at.timing.Duration,
	}
}

func originURL(c types.Candidate) string {
	if c.PageURL != "" {
		return c.PageURL
	}
	if strings.HasPrefix(c.URL, "file://") {
		return ""
	}
	return c.URL
}

func (a *Acquirer) query(at attemptCtx) types.SearchQuery {
	return types.SearchQuery{
		Query:       at.label,
		Orientation: types.AspectRatio(at.req.Aspect).Orientation(),
		Aspect:      at.req.Aspect,
		Limit:       a.opts.MaxCandidates,
	}
}

// search runs one provider and records empty or failed results.
func (a *Acquirer) search(ctx context.Context, s Searcher, at attemptCtx) []types.Candidate {
	var res []types.Candidate
	err := providers.Retry(ctx, 2, func(int) error {
		var err error
		res, err = s.Search(ctx, a.query(at))
		return err
	})
	if err != nil {
		a.failures.record(ctx, at.failure(s.Name(), ReasonProviderError))
		a.log.Debug().Err(err).Str("provider", s.Name()).Str("query", at.label).Msg("search failed")
		return nil
	}
	if len(res) == 0 {
		a.failures.record(ctx, at.failure(s.Name(), ReasonEmpty))
	}
	return res
}

// aspectDistance is how far a candidate's aspect ratio is from target;
// unknown aspects sort last.
func aspectDistance(c types.Candidate, target float64) float64 {
	if c.Aspect() == 0 {
		return math.Inf(1)
	}
	return math.Abs(c.Aspect() - target)
}

// exclusion is the per-job set of candidate keys already selected.
type exclusion struct {
	mu   sync.Mutex
	keys map[string]bool
	list []string
}

func newExclusion() *exclusion {
	return &exclusion{keys: map[string]bool{}}
}

// claim marks key as used and reports whether it was free.
func (e *exclusion) claim(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.keys[key] {
		return false
	}
	e.keys[key] = true
	e.list = append(e.list, key)
	return true
}

func (e *exclusion) release(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.keys[key] {
		return
	}
	delete(e.keys, key)
	for i, k := range e.list {
		if k == key {
			e.list = append(e.list[:i], e.list[i+1:]...)
			break
		}
	}
}

func (e *exclusion) has(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keys[key]
}

func (e *exclusion) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.list...)
}
