// Package pipeline is the stage-resumable generation state machine. Every stage
// runs only when its own block is missing from the job, so replaying a job after
// a crash redoes only the stages that never persisted.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"video-pipeline/internal/acquire"
	"video-pipeline/internal/assemble"
	"video-pipeline/internal/media"
	"video-pipeline/internal/metrics"
	"video-pipeline/internal/objects"
	"video-pipeline/internal/providers/music"
	"video-pipeline/internal/providers/tts"
	"video-pipeline/internal/store"
	"video-pipeline/internal/subtitles"
	"video-pipeline/internal/types"
)

// ScriptWriter writes narration and classifies its mood.
type ScriptWriter interface {
	WriteScript(ctx context.Context, prompt, language, prior string) (string, error)
	ClassifyMood(ctx context.Context, text string) (string, error)
}

type Narrator interface {
	Narrate(ctx context.Context, req tts.Request, dst string) (tts.Narration, error)
}

type MusicFinder interface {
	Find(ctx context.Context, mood, dst string) (*music.Track, error)
}

type Segmenter interface {
	Segment(ctx context.Context, marks []types.SpeechMark, script, language string) ([]types.ClipTiming, error)
}

type ClipResolver interface {
	Resolve(ctx context.Context, req acquire.Request, timings []types.ClipTiming) ([]acquire.Clip, error)
}

type VideoAssembler interface {
	Assemble(ctx context.Context, req assemble.Request) (assemble.Result, error)
}

type CaptionBurner interface {
	Burn(ctx context.Context, req subtitles.Request) (subtitles.Result, error)
}

// Uploader publishes a finished video.
type Uploader interface {
	Upload(ctx context.Context, job *types.Job, videoPath string) (*types.UploadBlock, error)
}

// Deps wires the engine. Uploader may be nil when uploads are disabled.
type Deps struct {
	Store     store.Store
	Objects   objects.Store
	Runner    media.Runner
	Writer    ScriptWriter
	Narrator  Narrator
	Music     MusicFinder
	Segmenter Segmenter
	Clips     ClipResolver
	Assembler VideoAssembler
	Captions  CaptionBurner
	Uploader  Uploader
}

type Options struct {
	// WorkDir holds per-stage scratch directories.
	WorkDir string
	// DefaultMood is used when mood classification fails.
	DefaultMood string
	// Tolerance and TrailingPadSec drive the coverage check of user timings.
	Tolerance      float64
	TrailingPadSec float64
}

type Engine struct {
	opts Options
	deps Deps
	now  func() time.Time
	log  zerolog.Logger
}

func New(opts Options, deps Deps, log zerolog.Logger) *Engine {
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if opts.DefaultMood == "" {
		opts.DefaultMood = "inspirational"
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 0.1
	}
	return &Engine{
		opts: opts,
		deps: deps,
		now:  time.Now,
		log:  log.With().Str("component", "pipeline").Logger(),
	}
}

// Create validates the parameters and stores a new job.
func (e *Engine) Create(ctx context.Context, userID string, params types.InitialParams) (*types.Job, error) {
	if err := validateParams(&params); err != nil {
		return nil, err
	}
	now := e.now().UTC()
	job := &types.Job{
		ID:            uuid.NewString(),
		UserID:        userID,
		InitialParams: params,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.deps.Store.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	e.log.Info().Str("job_id", job.ID).Str("user_id", userID).Str("aspect", params.AspectRatio).Msg("job created")
	return job, nil
}

func validateParams(p *types.InitialParams) error {
	p.Prompt = strings.TrimSpace(p.Prompt)
	if p.ScriptMode == "" {
		p.ScriptMode = types.ScriptModeGenerate
	}
	var errs []error
	switch p.ScriptMode {
	case types.ScriptModeGenerate:
		if p.Prompt == "" {
			errs = append(errs, &types.ValidationError{Subject: "prompt", Reason: "empty"})
		}
	case types.ScriptModeManual:
	default:
		errs = append(errs, &types.ValidationError{Subject: "script mode", Reason: fmt.Sprintf("unknown %q", p.ScriptMode)})
	}
	if _, err := types.ParseAspectRatio(p.AspectRatio); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(p.Language) == "" {
		errs = append(errs, &types.ValidationError{Subject: "language", Reason: "empty"})
	}
	if strings.TrimSpace(p.Voice) == "" {
		errs = append(errs, &types.ValidationError{Subject: "voice", Reason: "empty"})
	}
	return errors.Join(errs...)
}

func (e *Engine) Get(ctx context.Context, id string) (*types.Job, error) {
	return e.deps.Store.Get(ctx, id)
}

func (e *Engine) List(ctx context.Context, userID string, page store.Page) ([]*types.Job, error) {
	return e.deps.Store.ListByUser(ctx, userID, page)
}

// Delete removes the job and its stored media. Media removal is best effort.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.deps.Store.Delete(ctx, id); err != nil {
		return err
	}
	if err := e.deps.Objects.DeletePrefix(ctx, objects.JobPrefix(id)); err != nil {
		e.log.Warn().Err(err).Str("job_id", id).Msg("delete job media")
	}
	return nil
}

// Advance walks every stage in order, skipping those whose block exists. On a
// stage failure it returns the job as last persisted together with the error.
func (e *Engine) Advance(ctx context.Context, id string) (*types.Job, error) {
	job, err := e.deps.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, st := range types.Stages {
		if st == types.StageUpload && e.deps.Uploader == nil {
			continue
		}
		next, err := e.run(ctx, job, st)
		if err != nil {
			return job, err
		}
		job = next
	}
	return job, nil
}

// RunStage runs one stage standalone. It is a no-op when the block exists.
func (e *Engine) RunStage(ctx context.Context, id string, stage types.Stage) (*types.Job, error) {
	if _, ok := types.ParseStage(string(stage)); !ok {
		return nil, &types.ValidationError{Subject: "stage", Reason: fmt.Sprintf("unknown %q", stage)}
	}
	job, err := e.deps.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, job, stage)
}

// Rerun regenerates a stage on request: it checks the stage's preconditions,
// clears the stage block and every block after it, then runs the stage.
func (e *Engine) Rerun(ctx context.Context, id string, stage types.Stage) (*types.Job, error) {
	if _, ok := types.ParseStage(string(stage)); !ok {
		return nil, &types.ValidationError{Subject: "stage", Reason: fmt.Sprintf("unknown %q", stage)}
	}
	job, err := e.deps.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.precondition(job, stage); err != nil {
		return job, &types.StageError{Stage: stage, Err: err}
	}
	job, err = e.clearFrom(ctx, id, stage)
	if err != nil {
		return nil, err
	}
	e.log.Info().Str("job_id", id).Str("stage", string(stage)).Msg("stage rerun requested")
	return e.run(ctx, job, stage)
}

func (e *Engine) clearFrom(ctx context.Context, id string, stage types.Stage) (*types.Job, error) {
	var blocks []types.Block
	for _, st := range types.Downstream(stage) {
		blocks = append(blocks, types.BlockOf(st))
	}
	job, err := e.deps.Store.ClearBlocks(ctx, id, blocks...)
	if err != nil {
		return nil, fmt.Errorf("clear blocks from %s: %w", stage, err)
	}
	return job, nil
}

// run executes one stage against job unless its block is present. The block is
// persisted with a single atomic update; on failure nothing is written.
func (e *Engine) run(ctx context.Context, job *types.Job, stage types.Stage) (*types.Job, error) {
	block := types.BlockOf(stage)
	log := e.log.With().Str("job_id", job.ID).Str("stage", string(stage)).Logger()
	if job.Has(block) {
		metrics.ObserveStage(string(stage), "skipped", 0)
		log.Debug().Msg("block present, skipping")
		return job, nil
	}
	if err := e.precondition(job, stage); err != nil {
		metrics.ObserveStage(string(stage), "error", 0)
		return job, &types.StageError{Stage: stage, Err: err}
	}

	start := time.Now()
	log.Info().Msg("stage started")
	value, err := e.execute(ctx, job, stage)
	if err == nil {
		var updated *types.Job
		updated, err = e.deps.Store.UpdateBlock(ctx, job.ID, block, value)
		if err == nil {
			job = updated
		}
	}
	took := time.Since(start)
	metrics.ObserveStage(string(stage), metrics.Result(err), took)
	if err != nil {
		log.Error().Err(err).Dur("took", took).Msg("stage failed")
		return job, &types.StageError{Stage: stage, Err: err}
	}
	log.Info().Dur("took", took).Str("status", string(job.Status)).Msg("stage completed")
	return job, nil
}

func (e *Engine) execute(ctx context.Context, job *types.Job, stage types.Stage) (any, error) {
	switch stage {
	case types.StageScript:
		return e.script(ctx, job)
	case types.StageAudio:
		return e.audio(ctx, job)
	case types.StageKeywords:
		return e.keywords(ctx, job)
	case types.StageClips:
		return e.clips(ctx, job)
	case types.StageConcatenate:
		return e.concatenate(ctx, job)
	case types.StageSubtitles:
		return e.subtitles(ctx, job)
	case types.StageUpload:
		return e.upload(ctx, job)
	}
	return nil, &types.ValidationError{Subject: "stage", Reason: fmt.Sprintf("unknown %q", stage)}
}

// precondition reports the first input stage needs that job lacks.
func (e *Engine) precondition(job *types.Job, stage types.Stage) error {
	missing := func(what string) error {
		return &types.PreconditionError{Stage: stage, Missing: what}
	}
	p := job.InitialParams
	switch stage {
	case types.StageScript:
		if p.ScriptMode == types.ScriptModeManual {
			return missing("user-supplied script")
		}
		if p.Prompt == "" {
			return missing("prompt")
		}
	case types.StageAudio:
		if job.Script == nil {
			return missing("script")
		}
		if p.Language == "" || p.Voice == "" {
			return missing("language and voice")
		}
	case types.StageKeywords:
		if job.Audio == nil {
			return missing("audio")
		}
		if len(job.Audio.WordMarks()) == 0 {
			return missing("audio.speechMarks")
		}
		if job.Script == nil && job.Audio.NarratedScript == "" {
			return missing("script")
		}
	case types.StageClips:
		if job.Keywords == nil {
			return missing("keywords")
		}
	case types.StageConcatenate:
		if job.Clips == nil {
			return missing("clips")
		}
		if job.Audio == nil {
			return missing("audio")
		}
	case types.StageSubtitles:
		if job.BaseVideo == nil {
			return missing("baseVideo")
		}
		if job.Audio == nil || len(job.Audio.WordMarks()) == 0 {
			return missing("audio.speechMarks")
		}
	case types.StageUpload:
		if job.FinalVideo == nil {
			return missing("finalVideo")
		}
		if e.deps.Uploader == nil {
			return missing("uploader")
		}
	}
	return nil
}

// workspace creates a scratch directory private to one stage invocation. The
// returned cleanup removes it and must run on every path.
func (e *Engine) workspace(job *types.Job, stage types.Stage) (string, func(), error) {
	if err := os.MkdirAll(e.opts.WorkDir, 0o755); err != nil {
		return "", nil, err
	}
	dir, err := os.MkdirTemp(e.opts.WorkDir, fmt.Sprintf("%s-%s-", job.ID, stage))
	if err != nil {
		return "", nil, fmt.Errorf("create workspace: %w", err)
	}
	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			e.log.Warn().Err(err).Str("dir", dir).Msg("remove workspace")
		}
	}, nil
}
