package acquire

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"video-pipeline/internal/types"
)

// fromStock searches every stock provider for the label, filters and ranks the
// pooled candidates, then fetches the first one that plays.
func (a *Acquirer) fromStock(ctx context.Context, at attemptCtx) *Clip {
	var pool []types.Candidate
	for _, s := range a.stock {
		pool = append(pool, a.search(ctx, s, at)...)
	}
	if len(pool) == 0 {
		return nil
	}
	valid := a.filterVideos(pool, at.req.Aspect)
	if len(valid) == 0 {
		a.failures.record(ctx, at.failure("stock", ReasonNoAspectMatch))
		return nil
	}

	// Two passes: unused candidates first, then reuse rather than abandon.
	order := a.rank(ctx, at, valid)
	failed := map[string]bool{}
	for _, reuse := range []bool{false, true} {
		for _, c := range order {
			if failed[c.Key()] {
				continue
			}
			claimed := at.ex.claim(c.Key())
			if !claimed && !reuse {
				continue
			}
			path, dur, err := a.fetchVideo(ctx, at, c)
			if err != nil {
				if claimed {
					at.ex.release(c.Key())
				}
				if ctx.Err() != nil {
					return nil
				}
				failed[c.Key()] = true
				a.failures.record(ctx, at.failure(c.Provider, ReasonInvalidMedia))
				a.log.Debug().Err(err).Str("candidate", c.Key()).Msg("stock candidate rejected")
				continue
			}
			return at.clip(c, SourceVideo, path, dur)
		}
	}
	return nil
}

// filterVideos keeps videos within the aspect tolerance and minimum duration,
// dropping duplicates.
func (a *Acquirer) filterVideos(pool []types.Candidate, target float64) []types.Candidate {
	seen := map[string]bool{}
	var out []types.Candidate
	for _, c := range pool {
		if c.Kind != types.MediaVideo || seen[c.Key()] {
			continue
		}
		if c.Aspect() == 0 || math.Abs(c.Aspect()-target) > a.opts.AspectTolerance {
			continue
		}
		if c.Duration < a.opts.MinClipSec {
			continue
		}
		seen[c.Key()] = true
		out = append(out, c)
	}
	return out
}

// rank asks the ranker for the best candidate and returns the candidates with
// that one first. On ranker failure the first candidate not yet used leads.
func (a *Acquirer) rank(ctx context.Context, at attemptCtx, valid []types.Candidate) []types.Candidate {
	pick := -1
	if a.ranker != nil && len(valid) > 1 {
		idx, err := a.ranker.Rank(ctx, types.RankRequest{
			Context:    at.req.Script,
			Segment:    at.timing.Text,
			Label:      at.label,
			Candidates: valid,
			Exclude:    at.ex.snapshot(),
		})
		if err == nil && idx >= 0 && idx < len(valid) {
			pick = idx
		} else {
			a.log.Debug().Err(err).Int("index", idx).Msg("ranker unavailable, using first candidate")
		}
	}
	if pick < 0 {
		pick = 0
		for i, c := range valid {
			if !at.ex.has(c.Key()) {
				pick = i
				break
			}
		}
	}
	out := make([]types.Candidate, 0, len(valid))
	out = append(out, valid[pick])
	for i, c := range valid {
		if i != pick {
			out = append(out, c)
		}
	}
	return out
}

// fetchVideo makes the candidate available locally and probes it.
func (a *Acquirer) fetchVideo(ctx context.Context, at attemptCtx, c types.Candidate) (string, float64, error) {
	path := c.LocalPath
	downloaded := false
	if path == "" {
		path = filepath.Join(at.req.WorkDir, fmt.Sprintf("seg_%03d_%d.mp4", at.segment, at.attempt))
		if _, err := a.videoDL.Download(ctx, c.URL, path); err != nil {
			return "", 0, err
		}
		downloaded = true
	}
	info, err := a.runner.Probe(ctx, path)
	if err == nil && (!info.HasVideo || info.Duration <= 0) {
		err = &types.ValidationError{Subject: "video", Reason: "no video stream"}
	}
	if err != nil {
		if downloaded {
			_ = os.Remove(path)
		}
		return "", 0, err
	}
	return path, info.Duration, nil
}
