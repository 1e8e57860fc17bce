package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-pipeline/internal/acquire"
	"video-pipeline/internal/assemble"
	"video-pipeline/internal/config"
	"video-pipeline/internal/media"
	"video-pipeline/internal/media/mediatest"
	"video-pipeline/internal/objects"
	"video-pipeline/internal/providers/music"
	"video-pipeline/internal/providers/tts"
	"video-pipeline/internal/store"
	"video-pipeline/internal/subtitles"
	"video-pipeline/internal/types"
)

type counter struct {
	mu sync.Mutex
	n  map[string]int
}

func (c *counter) inc(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == nil {
		c.n = map[string]int{}
	}
	c.n[name]++
}

func (c *counter) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[name]
}

func (c *counter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	sum := 0
	for _, v := range c.n {
		sum += v
	}
	return sum
}

type fakeWriter struct {
	calls   *counter
	script  string
	moodErr error
}

func (f *fakeWriter) WriteScript(ctx context.Context, prompt, language, prior string) (string, error) {
	f.calls.inc("script")
	return f.script, nil
}

func (f *fakeWriter) ClassifyMood(ctx context.Context, text string) (string, error) {
	f.calls.inc("mood")
	if f.moodErr != nil {
		return "", f.moodErr
	}
	return "dramatic", nil
}

// "Lava flows fast here" spoken over 2.2 seconds.
var lavaMarks = []types.SpeechMark{
	{Type: types.MarkSentence, Value: "Lava flows fast here.", TimeMs: 0, DurationMs: 2200},
	{Type: types.MarkWord, Value: "Lava", TimeMs: 0, DurationMs: 400},
	{Type: types.MarkWord, Value: "flows", TimeMs: 500, DurationMs: 400},
	{Type: types.MarkWord, Value: "fast", TimeMs: 1200, DurationMs: 400},
	{Type: types.MarkWord, Value: "here", TimeMs: 2100, DurationMs: 100},
}

type fakeNarrator struct{ calls *counter }

func (f *fakeNarrator) Narrate(ctx context.Context, req tts.Request, dst string) (tts.Narration, error) {
	f.calls.inc("narrate")
	if err := os.WriteFile(dst, []byte("narration"), 0o644); err != nil {
		return tts.Narration{}, err
	}
	return tts.Narration{Engine: "fake", Marks: lavaMarks}, nil
}

type fakeMusic struct{ calls *counter }

func (f *fakeMusic) Find(ctx context.Context, mood, dst string) (*music.Track, error) {
	f.calls.inc("music")
	if err := os.WriteFile(dst, []byte("music"), 0o644); err != nil {
		return nil, err
	}
	return &music.Track{Title: "Storm - Band", Provider: "library", Path: dst, DurationSec: 30}, nil
}

type fakeSegmenter struct{ calls *counter }

func (f *fakeSegmenter) Segment(ctx context.Context, marks []types.SpeechMark, script, language string) ([]types.ClipTiming, error) {
	f.calls.inc("segment")
	return []types.ClipTiming{
		{Labels: []string{"lava"}, Kind: types.KindStock, StartTime: 0, Duration: 1.2, Text: "Lava flows"},
		{Labels: []string{"volcano eruption"}, Kind: types.KindStock, StartTime: 1.2, Duration: 1.3, Text: "fast here"},
	}, nil
}

type fakeClips struct {
	calls *counter
	err   error
}

func (f *fakeClips) Resolve(ctx context.Context, req acquire.Request, timings []types.ClipTiming) ([]acquire.Clip, error) {
	f.calls.inc("clips")
	if f.err != nil {
		return nil, f.err
	}
	var out []acquire.Clip
	for i, t := range timings {
		path := filepath.Join(req.WorkDir, fmt.Sprintf("seg_%03d_0.mp4", i))
		if err := os.WriteFile(path, []byte("clip"), 0o644); err != nil {
			return nil, err
		}
		out = append(out, acquire.Clip{
			Segment:           i,
			Label:             t.Keyword(),
			Kind:              t.Kind,
			Source:            acquire.SourceVideo,
			Provider:          "library",
			Path:              path,
			SourceDuration:    5,
			StartTime:         t.StartTime,
			RequestedDuration: t.Duration,
		})
	}
	return out, nil
}

type fakeUploader struct{ calls *counter }

func (f *fakeUploader) Upload(ctx context.Context, job *types.Job, videoPath string) (*types.UploadBlock, error) {
	f.calls.inc("upload")
	if _, err := os.Stat(videoPath); err != nil {
		return nil, err
	}
	return &types.UploadBlock{VideoID: "yt1", URL: "https://youtu.be/yt1", Title: "Lava", UploadedAt: time.Now()}, nil
}

type harness struct {
	engine  *Engine
	store   *store.Memory
	objects *objects.FileStore
	runner  *mediatest.Runner
	calls   *counter
	writer  *fakeWriter
	clips   *fakeClips
}

func newHarness(t *testing.T, withUpload bool) *harness {
	t.Helper()
	root := t.TempDir()
	objs, err := objects.NewFileStore(filepath.Join(root, "objects"), "https://cdn.test")
	require.NoError(t, err)

	runner := mediatest.New()
	runner.DefaultProbe = media.ProbeInfo{Duration: 2.5, Width: 1080, Height: 1920, HasVideo: true, HasAudio: true}

	visuals := config.VisualsConfig{BaseHeight: 1080, FPS: 25, PixelFormat: "yuv420p", Preset: "veryfast", CRF: 23}
	audio := config.AudioConfig{NarrationVolume: 1, MusicVolume: 0.1}
	subs := config.SubtitlesConfig{WordGapMs: 50, LastWordHoldSec: 1.5, FontSizeRatio: 0.07, Colors: []string{"white"}}

	calls := &counter{}
	h := &harness{
		store:   store.NewMemory(),
		objects: objs,
		runner:  runner,
		calls:   calls,
		writer:  &fakeWriter{calls: calls, script: "Lava flows fast here."},
		clips:   &fakeClips{calls: calls},
	}
	deps := Deps{
		Store:     h.store,
		Objects:   objs,
		Runner:    runner,
		Writer:    h.writer,
		Narrator:  &fakeNarrator{calls: calls},
		Music:     &fakeMusic{calls: calls},
		Segmenter: &fakeSegmenter{calls: calls},
		Clips:     h.clips,
		Assembler: assemble.New(visuals, audio, runner, zerolog.Nop()),
		Captions:  subtitles.New(subs, visuals, runner, zerolog.Nop()),
	}
	if withUpload {
		deps.Uploader = &fakeUploader{calls: calls}
	}
	h.engine = New(Options{WorkDir: filepath.Join(root, "work"), DefaultMood: "inspirational", TrailingPadSec: 0.3}, deps, zerolog.Nop())
	return h
}

func params() types.InitialParams {
	return types.InitialParams{Prompt: "volcanoes", Language: "en", Voice: "rachel", AspectRatio: "9:16"}
}

func TestCreateValidates(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	_, err := h.engine.Create(ctx, "u1", types.InitialParams{AspectRatio: "wide"})
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)

	job, err := h.engine.Create(ctx, "u1", params())
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, types.ScriptModeGenerate, job.InitialParams.ScriptMode)
	assert.Equal(t, types.StatusCreated, job.Status)
}

func TestAdvanceRunsEveryStage(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	job, err := h.engine.Create(ctx, "u1", params())
	require.NoError(t, err)

	job, err = h.engine.Advance(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusUploaded, job.Status)

	assert.Equal(t, "dramatic", job.Script.Mood)
	assert.Equal(t, types.ProvenanceGenerated, job.Script.Provenance)
	assert.Equal(t, "jobs/"+job.ID+"/audio/narration.mp3", job.Audio.NarrationRef)
	assert.Equal(t, "Storm - Band", job.Audio.MusicTitle)
	assert.InDelta(t, 2.5, job.Audio.DurationSec, 1e-9)
	require.Len(t, job.Clips.Clips, 2)
	assert.Equal(t, "jobs/"+job.ID+"/clips/001.mp4", job.Clips.Clips[1].Ref)
	assert.InDelta(t, 1.2, job.Clips.Clips[1].StartTime, 1e-9)
	assert.Equal(t, "jobs/"+job.ID+"/video/base.mp4", job.BaseVideo.Ref)
	assert.Equal(t, "jobs/"+job.ID+"/video/final.mp4", job.FinalVideo.Ref)
	assert.Equal(t, 1080, job.FinalVideo.Width)
	assert.Equal(t, 1920, job.FinalVideo.Height)
	assert.Equal(t, "yt1", job.Upload.VideoID)

	assert.Len(t, h.runner.CallsFor("normalize clip 0"), 1)
	assert.Len(t, h.runner.CallsFor("mix music"), 1)
	assert.Len(t, h.runner.CallsFor("burn subtitles"), 1)

	for _, key := range []string{"audio/narration.mp3", "audio/music.mp3", "clips/000.mp4", "video/final.mp4"} {
		_, err := os.Stat(filepath.Join(h.objects.Root(), "jobs", job.ID, filepath.FromSlash(key)))
		assert.NoError(t, err, key)
	}

	// stage workspaces are removed
	entries, err := os.ReadDir(h.engine.opts.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAdvanceResumesWithoutRepeatingWork(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	job, err := h.engine.Create(ctx, "u1", params())
	require.NoError(t, err)

	done, err := h.engine.Advance(ctx, job.ID)
	require.NoError(t, err)
	calls, encodes := h.calls.total(), len(h.runner.Calls())

	again, err := h.engine.Advance(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, calls, h.calls.total())
	assert.Len(t, h.runner.Calls(), encodes)
	assert.True(t, done.UpdatedAt.Equal(again.UpdatedAt))
	assert.Equal(t, types.StatusSubtitlesBurned, again.Status)
	assert.Nil(t, again.Upload)
}

func TestAdvanceStopsAtFailedStage(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	job, err := h.engine.Create(ctx, "u1", params())
	require.NoError(t, err)

	h.clips.err = &types.ProviderError{Provider: "acquire", Op: "resolve", Err: errors.New("no segment resolved")}
	job, err = h.engine.Advance(ctx, job.ID)
	var serr *types.StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, types.StageClips, serr.Stage)
	assert.Contains(t, err.Error(), "stage clips failed")
	assert.NotNil(t, job.Keywords)
	assert.Nil(t, job.Clips)

	// a later run picks up at the failed stage
	h.clips.err = nil
	job, err = h.engine.Advance(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, h.calls.get("segment"))
	assert.Equal(t, 2, h.calls.get("clips"))
	assert.NotNil(t, job.FinalVideo)
}

func TestRunStageChecksPreconditions(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	job, err := h.engine.Create(ctx, "u1", params())
	require.NoError(t, err)

	_, err = h.engine.RunStage(ctx, job.ID, types.StageKeywords)
	var perr *types.PreconditionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "audio", perr.Missing)

	stored, err := h.store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, job.UpdatedAt.Equal(stored.UpdatedAt))
	assert.Nil(t, stored.Keywords)
	assert.Zero(t, h.calls.total())

	_, err = h.engine.RunStage(ctx, job.ID, "render")
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSubtitlesNeedWordMarks(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	job, err := h.engine.Create(ctx, "u1", params())
	require.NoError(t, err)
	job, err = h.engine.Advance(ctx, job.ID)
	require.NoError(t, err)

	audio := *job.Audio
	audio.SpeechMarks = lavaMarks[:1]
	_, err = h.store.ReplaceBlock(ctx, job.ID, types.BlockAudio, &audio, types.BlockOf(types.StageSubtitles))
	require.NoError(t, err)
	burns := len(h.runner.CallsFor("burn subtitles"))

	_, err = h.engine.RunStage(ctx, job.ID, types.StageSubtitles)
	var perr *types.PreconditionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "audio.speechMarks", perr.Missing)
	assert.Len(t, h.runner.CallsFor("burn subtitles"), burns)
}

func TestRerunClearsDownstream(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	job, err := h.engine.Create(ctx, "u1", params())
	require.NoError(t, err)
	_, err = h.engine.Advance(ctx, job.ID)
	require.NoError(t, err)

	job, err = h.engine.Rerun(ctx, job.ID, types.StageKeywords)
	require.NoError(t, err)
	assert.Equal(t, 2, h.calls.get("segment"))
	assert.NotNil(t, job.Keywords)
	assert.NotNil(t, job.Audio)
	assert.Nil(t, job.Clips)
	assert.Nil(t, job.BaseVideo)
	assert.Nil(t, job.FinalVideo)
	assert.Equal(t, types.StatusKeywordsGenerated, job.Status)
}

func TestMoodFallsBackToDefault(t *testing.T) {
	h := newHarness(t, false)
	h.writer.moodErr = errors.New("rate limited")
	ctx := context.Background()
	job, err := h.engine.Create(ctx, "u1", params())
	require.NoError(t, err)

	job, err = h.engine.RunStage(ctx, job.ID, types.StageScript)
	require.NoError(t, err)
	assert.Equal(t, "inspirational", job.Script.Mood)
}

func TestManualScriptMode(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	p := params()
	p.ScriptMode = types.ScriptModeManual
	p.Prompt = ""
	job, err := h.engine.Create(ctx, "u1", p)
	require.NoError(t, err)

	_, err = h.engine.Advance(ctx, job.ID)
	var perr *types.PreconditionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.StageScript, perr.Stage)

	job, err = h.engine.OverrideScript(ctx, job.ID, "  My own words.  ")
	require.NoError(t, err)
	assert.Equal(t, "My own words.", job.Script.Text)
	assert.Equal(t, types.ProvenanceUser, job.Script.Provenance)

	job, err = h.engine.Advance(ctx, job.ID)
	require.NoError(t, err)
	assert.NotNil(t, job.FinalVideo)
	assert.Zero(t, h.calls.get("script"))
}

type recordingStore struct {
	store.Store
	mu       sync.Mutex
	clears   int
	replaces int
}

func (r *recordingStore) ClearBlocks(ctx context.Context, id string, blocks ...types.Block) (*types.Job, error) {
	r.mu.Lock()
	r.clears++
	r.mu.Unlock()
	return r.Store.ClearBlocks(ctx, id, blocks...)
}

func (r *recordingStore) ReplaceBlock(ctx context.Context, id string, block types.Block, value any, clear ...types.Block) (*types.Job, error) {
	r.mu.Lock()
	r.replaces++
	r.mu.Unlock()
	return r.Store.ReplaceBlock(ctx, id, block, value, clear...)
}

func TestOverrideIsOneStoreWrite(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	job, err := h.engine.Create(ctx, "u1", params())
	require.NoError(t, err)
	_, err = h.engine.Advance(ctx, job.ID)
	require.NoError(t, err)

	rec := &recordingStore{Store: h.store}
	h.engine.deps.Store = rec
	job, err = h.engine.OverrideScript(ctx, job.ID, "Glaciers carve valleys.")
	require.NoError(t, err)

	assert.Equal(t, 0, rec.clears)
	assert.Equal(t, 1, rec.replaces)
	assert.Equal(t, "Glaciers carve valleys.", job.Script.Text)
	assert.Equal(t, types.ProvenanceUser, job.Script.Provenance)
	assert.Nil(t, job.Audio)
	assert.Nil(t, job.Keywords)
	assert.Nil(t, job.FinalVideo)
	assert.Equal(t, types.StatusScriptGenerated, job.Status)
}

func TestOverrideKeywords(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	job, err := h.engine.Create(ctx, "u1", params())
	require.NoError(t, err)

	_, err = h.engine.OverrideKeywords(ctx, job.ID, []types.ClipTiming{{Labels: []string{"lava"}, StartTime: 0, Duration: 2.5}})
	var perr *types.PreconditionError
	require.ErrorAs(t, err, &perr)

	_, err = h.engine.Advance(ctx, job.ID)
	require.NoError(t, err)

	// narration spans 0..2.2 plus 0.3 pad; a gap after the first segment is rejected
	_, err = h.engine.OverrideKeywords(ctx, job.ID, []types.ClipTiming{
		{Labels: []string{"lava"}, StartTime: 0, Duration: 1},
		{Labels: []string{"ash"}, StartTime: 1.5, Duration: 1},
	})
	var cerr *types.TimingCoverageError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 1, cerr.Index)

	job, err = h.engine.OverrideKeywords(ctx, job.ID, []types.ClipTiming{
		{Labels: []string{"ash cloud, smoke"}, Kind: types.KindSearch, StartTime: 1, Duration: 1.5},
		{Labels: []string{"lava"}, StartTime: 0, Duration: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, types.ProvenanceUser, job.Keywords.Provenance)
	assert.Equal(t, []string{"lava"}, job.Keywords.Timings[0].Labels)
	assert.Equal(t, types.KindStock, job.Keywords.Timings[0].Kind)
	assert.Equal(t, []string{"ash cloud", "smoke"}, job.Keywords.Timings[1].Labels)
	assert.Nil(t, job.Clips)
	assert.Nil(t, job.FinalVideo)

	job, err = h.engine.Advance(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ProvenanceUser, job.Clips.TimingProvenance)
	assert.Equal(t, 1, h.calls.get("segment"))
}

func TestOverrideClips(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	job, err := h.engine.Create(ctx, "u1", params())
	require.NoError(t, err)
	job, err = h.engine.Advance(ctx, job.ID)
	require.NoError(t, err)

	clips := []types.ClipRef{job.Clips.Clips[1], job.Clips.Clips[0]}
	_, err = h.engine.OverrideClips(ctx, job.ID, []types.ClipRef{{Label: "x", RequestedDuration: 1}})
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)

	job, err = h.engine.OverrideClips(ctx, job.ID, clips)
	require.NoError(t, err)
	assert.Equal(t, types.ProvenanceUser, job.Clips.Provenance)
	assert.Equal(t, "lava", job.Clips.Clips[0].Label)
	assert.Equal(t, 1, job.Clips.Clips[1].Index)
	assert.Nil(t, job.BaseVideo)
	assert.NotNil(t, job.Keywords)
}

func TestDeleteRemovesMedia(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	job, err := h.engine.Create(ctx, "u1", params())
	require.NoError(t, err)
	_, err = h.engine.Advance(ctx, job.ID)
	require.NoError(t, err)

	require.NoError(t, h.engine.Delete(ctx, job.ID))
	_, err = h.engine.Get(ctx, job.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = os.Stat(filepath.Join(h.objects.Root(), "jobs", job.ID))
	assert.True(t, os.IsNotExist(err))

	jobs, err := h.engine.List(ctx, "u1", store.Page{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
