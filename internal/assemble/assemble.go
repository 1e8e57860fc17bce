// Package assemble normalizes clips, concatenates them against the narration
// and mixes in background music.
package assemble

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"video-pipeline/internal/config"
	"video-pipeline/internal/media"
	"video-pipeline/internal/types"
)

// Input is one resolved clip in timeline position.
type Input struct {
	Path      string
	SourceRef string
	Label     string
	StartTime float64
	// Duration is how long the clip must play.
	Duration float64
	// SourceDuration is the length of the file at Path; probed when zero.
	SourceDuration float64
}

// Request is everything one assembly needs. Music may be empty.
type Request struct {
	Clips     []Input
	Aspect    float64
	Narration string
	Music     string
	WorkDir   string
	Output    string
}

// Result describes the assembled video.
type Result struct {
	Path     string
	Duration float64
	Width    int
	Height   int
	Clips    []types.NormalizedClip
}

type Assembler struct {
	visuals config.VisualsConfig
	audio   config.AudioConfig
	runner  media.Runner
	log     zerolog.Logger
}

func New(visuals config.VisualsConfig, audio config.AudioConfig, runner media.Runner, log zerolog.Logger) *Assembler {
	return &Assembler{
		visuals: visuals,
		audio:   audio,
		runner:  runner,
		log:     log.With().Str("component", "assemble").Logger(),
	}
}

// Resolution is the shared frame size for an aspect ratio.
func (a *Assembler) Resolution(aspect float64) (int, int) {
	return types.AspectRatio(aspect).Resolution(a.visuals.BaseHeight)
}

// Assemble runs normalize, concatenate and mix. Intermediate files stay in
// WorkDir; the caller removes it.
func (a *Assembler) Assemble(ctx context.Context, req Request) (Result, error) {
	if len(req.Clips) == 0 {
		return Result{}, &types.ValidationError{Subject: "assembly", Reason: "no clips"}
	}
	w, h := a.Resolution(req.Aspect)
	norm, err := a.Normalize(ctx, req.Clips, w, h, req.WorkDir)
	if err != nil {
		return Result{}, err
	}
	merged, err := a.Concat(ctx, norm, req.Narration, req.WorkDir)
	if err != nil {
		return Result{}, err
	}

	if req.Music == "" {
		a.log.Info().Msg("no background music, keeping narration only")
		if err := os.Rename(merged, req.Output); err != nil {
			return Result{}, fmt.Errorf("move assembled video: %w", err)
		}
	} else if err := a.Mix(ctx, merged, req.Narration, req.Music, req.Output); err != nil {
		return Result{}, err
	}

	info, err := a.runner.Probe(ctx, req.Output)
	if err != nil {
		return Result{}, fmt.Errorf("probe assembled video: %w", err)
	}
	return Result{Path: req.Output, Duration: info.Duration, Width: w, Height: h, Clips: norm}, nil
}

// Normalize re-encodes every clip to w x h at the shared frame rate and pixel
// format with square pixels and no audio, trimming or looping it to its
// requested duration. Output follows clip start time.
func (a *Assembler) Normalize(ctx context.Context, clips []Input, w, h int, workDir string) ([]types.NormalizedClip, error) {
	ordered := append([]Input(nil), clips...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].StartTime < ordered[j].StartTime })

	out := make([]types.NormalizedClip, 0, len(ordered))
	for i, c := range ordered {
		if c.Duration <= 0 {
			return nil, &types.ValidationError{Subject: "clip", Reason: fmt.Sprintf("clip %d has non-positive duration", i)}
		}
		src := c.SourceDuration
		if src <= 0 {
			info, err := a.runner.Probe(ctx, c.Path)
			if err != nil {
				return nil, fmt.Errorf("probe clip %d: %w", i, err)
			}
			src = info.Duration
		}

		dst := filepath.Join(workDir, fmt.Sprintf("norm_%03d.mp4", i))
		if err := a.runner.FFmpeg(ctx, fmt.Sprintf("normalize clip %d", i), a.normalizeArgs(c, src, w, h, dst)...); err != nil {
			return nil, err
		}
		actual := c.Duration
		if info, err := a.runner.Probe(ctx, dst); err == nil && info.Duration > 0 {
			actual = info.Duration
		}
		if math.Abs(actual-c.Duration) > 0.1 {
			a.log.Warn().Int("clip", i).Float64("requested", c.Duration).Float64("actual", actual).Msg("normalized clip length drift")
		}
		out = append(out, types.NormalizedClip{
			Index:             i,
			Path:              dst,
			SourceRef:         c.SourceRef,
			Label:             c.Label,
			StartTime:         c.StartTime,
			RequestedDuration: c.Duration,
			ActualDuration:    actual,
		})
	}
	return out, nil
}

func (a *Assembler) normalizeArgs(c Input, src float64, w, h int, dst string) []string {
	var args []string
	if src > 0 && src < c.Duration {
		loops := int(math.Ceil(c.Duration/src)) + 1
		args = append(args, "-stream_loop", strconv.Itoa(loops))
	}
	vf := fmt.Sprintf(
		"scale=%[1]d:%[2]d:force_original_aspect_ratio=decrease,pad=%[1]d:%[2]d:(ow-iw)/2:(oh-ih)/2:black,fps=%[3]d,setsar=1,format=%[4]s",
		w, h, a.visuals.FPS, a.visuals.PixelFormat)
	args = append(args,
		"-i", c.Path,
		"-t", media.Seconds(c.Duration),
		"-vf", vf,
		"-an",
		"-c:v", "libx264",
		"-preset", a.visuals.Preset,
		"-crf", strconv.Itoa(a.visuals.CRF),
		"-pix_fmt", a.visuals.PixelFormat,
		dst,
	)
	return args
}

// Concat joins normalized clips in timeline order into one silent track and
// attaches the narration. Video and audio lengths are left independent.
func (a *Assembler) Concat(ctx context.Context, clips []types.NormalizedClip, narration, workDir string) (string, error) {
	ordered := append([]types.NormalizedClip(nil), clips...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].StartTime < ordered[j].StartTime })

	var list strings.Builder
	for _, c := range ordered {
		list.WriteString(media.ConcatLine(c.Path))
		list.WriteByte('\n')
	}
	listPath := filepath.Join(workDir, "concat.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return "", fmt.Errorf("write concat list: %w", err)
	}

	silent := filepath.Join(workDir, "concat_silent.mp4")
	if err := a.runner.FFmpeg(ctx, "concatenate",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		silent,
	); err != nil {
		return "", err
	}

	merged := filepath.Join(workDir, "merged.mp4")
	if err := a.runner.FFmpeg(ctx, "attach narration",
		"-i", silent,
		"-i", narration,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		merged,
	); err != nil {
		return "", err
	}
	return merged, nil
}

// Mix combines the merged video's narration with music at the configured gains.
// Output stops at the shorter of narration and music.
func (a *Assembler) Mix(ctx context.Context, merged, narration, music, output string) error {
	nDur, err := a.duration(ctx, narration)
	if err != nil {
		return fmt.Errorf("probe narration: %w", err)
	}
	mDur, err := a.duration(ctx, music)
	if err != nil {
		return fmt.Errorf("probe music: %w", err)
	}
	limit := MixDuration(nDur, mDur)
	if mDur < nDur {
		a.log.Warn().Float64("narration_sec", nDur).Float64("music_sec", mDur).Msg("music shorter than narration, output truncated")
	}

	graph := fmt.Sprintf(
		"[0:a]volume=%.2f[narr];[1:a]volume=%.2f[bgm];[narr][bgm]amix=inputs=2:duration=shortest:dropout_transition=0:normalize=0[aout]",
		a.audio.NarrationVolume, a.audio.MusicVolume)
	return a.runner.FFmpeg(ctx, "mix music",
		"-i", merged,
		"-i", music,
		"-filter_complex", graph,
		"-map", "0:v:0",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-t", media.Seconds(limit),
		output,
	)
}

// MixDuration is the length of a mixed output.
func MixDuration(narration, music float64) float64 {
	return math.Min(narration, music)
}

func (a *Assembler) duration(ctx context.Context, path string) (float64, error) {
	info, err := a.runner.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	if info.Duration <= 0 {
		return 0, &types.ValidationError{Subject: filepath.Base(path), Reason: "zero duration"}
	}
	return info.Duration, nil
}
