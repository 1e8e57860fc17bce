package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"video-pipeline/internal/types"
)

// OverrideScript stores a user-written script. Every block from audio onwards is
// cleared so the next Advance narrates the new text.
func (e *Engine) OverrideScript(ctx context.Context, id, text string) (*types.Job, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &types.ValidationError{Subject: "script", Reason: "empty"}
	}
	if _, err := e.deps.Store.Get(ctx, id); err != nil {
		return nil, err
	}
	block := &types.ScriptBlock{
		Text:       text,
		Mood:       e.mood(ctx, id, text),
		Provenance: types.ProvenanceUser,
	}
	return e.override(ctx, id, types.StageScript, block)
}

// OverrideKeywords stores user-supplied clip timings. They must tile the narration
// the same way generated timings do.
func (e *Engine) OverrideKeywords(ctx context.Context, id string, timings []types.ClipTiming) (*types.Job, error) {
	job, err := e.deps.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Audio == nil {
		return job, &types.StageError{Stage: types.StageKeywords, Err: &types.PreconditionError{Stage: types.StageKeywords, Missing: "audio"}}
	}
	timings, err = normalizeTimings(timings)
	if err != nil {
		return nil, err
	}
	start, end := e.narrationSpan(job.Audio)
	if err := types.CheckCoverage(timings, start, end, e.opts.Tolerance); err != nil {
		return nil, err
	}
	return e.override(ctx, id, types.StageKeywords, &types.KeywordsBlock{
		Timings:    timings,
		Provenance: types.ProvenanceUser,
	})
}

// OverrideClips stores a user-chosen clip list. Clips are reordered by start time
// and reindexed.
func (e *Engine) OverrideClips(ctx context.Context, id string, clips []types.ClipRef) (*types.Job, error) {
	job, err := e.deps.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(clips) == 0 {
		return nil, &types.ValidationError{Subject: "clips", Reason: "empty"}
	}
	clips = append([]types.ClipRef(nil), clips...)
	sort.SliceStable(clips, func(i, j int) bool { return clips[i].StartTime < clips[j].StartTime })
	for i := range clips {
		c := &clips[i]
		if c.Ref == "" {
			return nil, &types.ValidationError{Subject: fmt.Sprintf("clip %d", i), Reason: "missing ref"}
		}
		if c.RequestedDuration <= 0 {
			return nil, &types.ValidationError{Subject: fmt.Sprintf("clip %d", i), Reason: "non-positive duration"}
		}
		c.Index = i
	}
	timing := types.ProvenanceUser
	if job.Keywords != nil {
		timing = job.Keywords.Provenance
	}
	return e.override(ctx, id, types.StageClips, &types.ClipsBlock{
		Clips:            clips,
		TimingProvenance: timing,
		Provenance:       types.ProvenanceUser,
	})
}

// override writes the stage block and clears every later block in one update.
func (e *Engine) override(ctx context.Context, id string, stage types.Stage, value any) (*types.Job, error) {
	var later []types.Block
	for _, st := range types.Downstream(stage)[1:] {
		later = append(later, types.BlockOf(st))
	}
	job, err := e.deps.Store.ReplaceBlock(ctx, id, types.BlockOf(stage), value, later...)
	if err != nil {
		return nil, fmt.Errorf("store %s override: %w", stage, err)
	}
	e.log.Info().Str("job_id", id).Str("stage", string(stage)).Msg("user override stored")
	return job, nil
}

// narrationSpan is the interval a timeline must cover: first word start to last
// word end plus the trailing pad, or the whole narration without word marks.
func (e *Engine) narrationSpan(a *types.AudioBlock) (float64, float64) {
	words := a.WordMarks()
	if len(words) == 0 {
		return 0, a.DurationSec
	}
	return words[0].Start(), words[len(words)-1].End() + e.opts.TrailingPadSec
}

func normalizeTimings(in []types.ClipTiming) ([]types.ClipTiming, error) {
	out := make([]types.ClipTiming, 0, len(in))
	for i, t := range in {
		var labels []string
		for _, l := range t.Labels {
			labels = append(labels, types.SplitLabels(l)...)
		}
		if len(labels) == 0 {
			return nil, &types.ValidationError{Subject: fmt.Sprintf("timing %d", i), Reason: "no labels"}
		}
		t.Labels = labels
		switch t.Kind {
		case "":
			t.Kind = types.KindStock
		case types.KindSearch, types.KindStock:
		default:
			return nil, &types.ValidationError{Subject: fmt.Sprintf("timing %d", i), Reason: fmt.Sprintf("unknown kind %q", t.Kind)}
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}
