package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"video-pipeline/internal/acquire"
	"video-pipeline/internal/assemble"
	"video-pipeline/internal/objects"
	"video-pipeline/internal/providers/tts"
	"video-pipeline/internal/subtitles"
	"video-pipeline/internal/types"
)

func (e *Engine) script(ctx context.Context, job *types.Job) (*types.ScriptBlock, error) {
	p := job.InitialParams
	text, err := e.deps.Writer.WriteScript(ctx, p.Prompt, p.Language, "")
	if err != nil {
		return nil, fmt.Errorf("write script: %w", err)
	}
	return &types.ScriptBlock{
		Text:       text,
		Mood:       e.mood(ctx, job.ID, text),
		Provenance: types.ProvenanceGenerated,
	}, nil
}

// mood classifies text, falling back to the default mood on failure.
func (e *Engine) mood(ctx context.Context, jobID, text string) string {
	mood, err := e.deps.Writer.ClassifyMood(ctx, text)
	if err != nil || mood == "" {
		e.log.Warn().Err(err).Str("job_id", jobID).Str("mood", e.opts.DefaultMood).Msg("mood classification failed, using default")
		return e.opts.DefaultMood
	}
	return mood
}

func (e *Engine) audio(ctx context.Context, job *types.Job) (*types.AudioBlock, error) {
	dir, cleanup, err := e.workspace(job, types.StageAudio)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	p := job.InitialParams
	narrationPath := filepath.Join(dir, "narration.mp3")
	narration, err := e.deps.Narrator.Narrate(ctx, tts.Request{
		Text:     job.Script.Text,
		Language: p.Language,
		Voice:    p.Voice,
	}, narrationPath)
	if err != nil {
		return nil, fmt.Errorf("narrate: %w", err)
	}
	info, err := e.deps.Runner.Probe(ctx, narrationPath)
	if err != nil {
		return nil, fmt.Errorf("probe narration: %w", err)
	}
	if !info.HasAudio || info.Duration <= 0 {
		return nil, &types.ValidationError{Subject: "narration", Reason: "no audio stream"}
	}

	block := &types.AudioBlock{
		DurationSec:    info.Duration,
		SpeechMarks:    narration.Marks,
		NarratedScript: job.Script.Text,
	}
	if len(block.WordMarks()) == 0 {
		e.log.Warn().Str("job_id", job.ID).Str("engine", narration.Engine).Msg("narration has no word timings")
	}

	key := objects.JobKey(job.ID, "audio", "narration.mp3")
	if block.NarrationRef, err = e.deps.Objects.Put(ctx, key, narrationPath); err != nil {
		return nil, fmt.Errorf("store narration: %w", err)
	}
	block.NarrationURL = e.deps.Objects.URL(block.NarrationRef)

	if e.deps.Music != nil {
		track, err := e.deps.Music.Find(ctx, job.Script.Mood, filepath.Join(dir, "music.mp3"))
		if err != nil {
			return nil, fmt.Errorf("find music: %w", err)
		}
		if track != nil {
			ext := strings.ToLower(filepath.Ext(track.Path))
			if ext == "" {
				ext = ".mp3"
			}
			ref, err := e.deps.Objects.Put(ctx, objects.JobKey(job.ID, "audio", "music"+ext), track.Path)
			if err != nil {
				return nil, fmt.Errorf("store music: %w", err)
			}
			block.MusicRef, block.MusicTitle = ref, track.Title
		}
	}
	return block, nil
}

func (e *Engine) keywords(ctx context.Context, job *types.Job) (*types.KeywordsBlock, error) {
	text := job.Audio.NarratedScript
	if text == "" {
		text = job.Script.Text
	}
	timings, err := e.deps.Segmenter.Segment(ctx, job.Audio.SpeechMarks, text, job.InitialParams.Language)
	if err != nil {
		return nil, err
	}
	return &types.KeywordsBlock{Timings: timings, Provenance: types.ProvenanceGenerated}, nil
}

func (e *Engine) clips(ctx context.Context, job *types.Job) (*types.ClipsBlock, error) {
	aspect, err := types.ParseAspectRatio(job.InitialParams.AspectRatio)
	if err != nil {
		return nil, err
	}
	dir, cleanup, err := e.workspace(job, types.StageClips)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	script := ""
	if job.Script != nil {
		script = job.Script.Text
	}
	resolved, err := e.deps.Clips.Resolve(ctx, acquire.Request{
		JobID:   job.ID,
		Aspect:  float64(aspect),
		Script:  script,
		WorkDir: dir,
	}, job.Keywords.Timings)
	if err != nil {
		return nil, err
	}

	block := &types.ClipsBlock{
		TimingProvenance: job.Keywords.Provenance,
		Provenance:       types.ProvenanceGenerated,
	}
	for i, c := range resolved {
		ext := filepath.Ext(c.Path)
		if ext == "" {
			ext = ".mp4"
		}
		ref, err := e.deps.Objects.Put(ctx, objects.JobKey(job.ID, "clips", fmt.Sprintf("%03d%s", i, ext)), c.Path)
		if err != nil {
			return nil, fmt.Errorf("store clip %d: %w", i, err)
		}
		provider := c.Provider
		if c.Effect != "" {
			provider += "+" + c.Effect
		}
		block.Clips = append(block.Clips, types.ClipRef{
			Index:             i,
			Label:             c.Label,
			Kind:              string(c.Kind),
			Source:            c.Source,
			Provider:          provider,
			Ref:               ref,
			OriginURL:         c.OriginURL,
			StartTime:         c.StartTime,
			RequestedDuration: c.RequestedDuration,
			ActualDuration:    c.SourceDuration,
		})
	}
	return block, nil
}

func (e *Engine) concatenate(ctx context.Context, job *types.Job) (*types.VideoBlock, error) {
	aspect, err := types.ParseAspectRatio(job.InitialParams.AspectRatio)
	if err != nil {
		return nil, err
	}
	dir, cleanup, err := e.workspace(job, types.StageConcatenate)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	inputs := make([]assemble.Input, 0, len(job.Clips.Clips))
	for i, c := range job.Clips.Clips {
		local := filepath.Join(dir, fmt.Sprintf("src_%03d%s", i, extOr(c.Ref, ".mp4")))
		if err := e.deps.Objects.Fetch(ctx, c.Ref, local); err != nil {
			return nil, fmt.Errorf("fetch clip %d: %w", i, err)
		}
		inputs = append(inputs, assemble.Input{
			Path:           local,
			SourceRef:      c.Ref,
			Label:          c.Label,
			StartTime:      c.StartTime,
			Duration:       c.RequestedDuration,
			SourceDuration: c.ActualDuration,
		})
	}

	narration := filepath.Join(dir, "narration"+extOr(job.Audio.NarrationRef, ".mp3"))
	if err := e.deps.Objects.Fetch(ctx, job.Audio.NarrationRef, narration); err != nil {
		return nil, fmt.Errorf("fetch narration: %w", err)
	}
	var musicPath string
	if job.Audio.MusicRef != "" {
		musicPath = filepath.Join(dir, "music"+extOr(job.Audio.MusicRef, ".mp3"))
		if err := e.deps.Objects.Fetch(ctx, job.Audio.MusicRef, musicPath); err != nil {
			return nil, fmt.Errorf("fetch music: %w", err)
		}
	}

	res, err := e.deps.Assembler.Assemble(ctx, assemble.Request{
		Clips:     inputs,
		Aspect:    float64(aspect),
		Narration: narration,
		Music:     musicPath,
		WorkDir:   dir,
		Output:    filepath.Join(dir, "base.mp4"),
	})
	if err != nil {
		return nil, err
	}
	return e.storeVideo(ctx, job.ID, "base.mp4", res.Path, res.Duration, res.Width, res.Height)
}

func (e *Engine) subtitles(ctx context.Context, job *types.Job) (*types.VideoBlock, error) {
	aspect, err := types.ParseAspectRatio(job.InitialParams.AspectRatio)
	if err != nil {
		return nil, err
	}
	dir, cleanup, err := e.workspace(job, types.StageSubtitles)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	base := filepath.Join(dir, "base.mp4")
	if err := e.deps.Objects.Fetch(ctx, job.BaseVideo.Ref, base); err != nil {
		return nil, fmt.Errorf("fetch base video: %w", err)
	}
	out := filepath.Join(dir, "final.mp4")
	if _, err := e.deps.Captions.Burn(ctx, subtitles.Request{
		Video:    base,
		Output:   out,
		Marks:    job.Audio.SpeechMarks,
		Aspect:   float64(aspect),
		Language: job.InitialParams.Language,
		WorkDir:  dir,
	}); err != nil {
		return nil, err
	}
	info, err := e.deps.Runner.Probe(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("probe final video: %w", err)
	}
	return e.storeVideo(ctx, job.ID, "final.mp4", out, info.Duration, job.BaseVideo.Width, job.BaseVideo.Height)
}

func (e *Engine) upload(ctx context.Context, job *types.Job) (*types.UploadBlock, error) {
	dir, cleanup, err := e.workspace(job, types.StageUpload)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	local := filepath.Join(dir, "final.mp4")
	if err := e.deps.Objects.Fetch(ctx, job.FinalVideo.Ref, local); err != nil {
		return nil, fmt.Errorf("fetch final video: %w", err)
	}
	return e.deps.Uploader.Upload(ctx, job, local)
}

func (e *Engine) storeVideo(ctx context.Context, jobID, name, path string, dur float64, w, h int) (*types.VideoBlock, error) {
	ref, err := e.deps.Objects.Put(ctx, objects.JobKey(jobID, "video", name), path)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", name, err)
	}
	return &types.VideoBlock{
		Ref:         ref,
		URL:         e.deps.Objects.URL(ref),
		DurationSec: dur,
		Width:       w,
		Height:      h,
		CreatedAt:   e.now().UTC(),
	}, nil
}

func extOr(ref, fallback string) string {
	if ext := filepath.Ext(ref); ext != "" {
		return ext
	}
	return fallback
}
