// Package effects turns a still image into a short motion clip.
package effects

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"video-pipeline/internal/config"
	"video-pipeline/internal/media"
	"video-pipeline/internal/metrics"
	"video-pipeline/internal/types"
)

// Request describes one photo to animate.
type Request struct {
	Image  string
	Output string
	// Aspect is the target frame aspect ratio (width / height).
	Aspect float64
	// Duration overrides the configured effect duration when positive.
	Duration float64
	// Width and Height of the source image; probed when zero.
	Width, Height int
	// Force puts the named effect first.
	Force string
}

// Result is a synthesized clip.
type Result struct {
	Effect   string
	Path     string
	Duration float64
	Width    int
	Height   int
}

// Synthesizer renders effects through the media runner, falling back through
// the catalog until one passes.
type Synthesizer struct {
	cfg     config.VisualsConfig
	runner  media.Runner
	log     zerolog.Logger
	shuffle func([]Effect)
}

func New(cfg config.VisualsConfig, runner media.Runner, log zerolog.Logger) *Synthesizer {
	return &Synthesizer{
		cfg:    cfg,
		runner: runner,
		log:    log.With().Str("component", "effects").Logger(),
		shuffle: func(es []Effect) {
			rand.Shuffle(len(es), func(i, j int) { es[i], es[j] = es[j], es[i] })
		},
	}
}

// Order returns the attempt order: the catalog shuffled, with force first when
// it names a catalog effect.
func (s *Synthesizer) Order(force string) []Effect {
	order := append([]Effect(nil), Catalog...)
	s.shuffle(order)
	if force == "" {
		return order
	}
	for i, e := range order {
		if e.Name == force {
			copy(order[1:i+1], order[:i])
			order[0] = e
			break
		}
	}
	return order
}

// Synthesize tries each effect in order and returns the first output that
// encodes and passes the size check. Failed effects are never retried.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (Result, error) {
	dur := req.Duration
	if dur <= 0 {
		dur = s.cfg.EffectDurationSec
	}
	if req.Aspect <= 0 {
		return Result{}, &types.ValidationError{Subject: "effect request", Reason: "aspect ratio must be positive"}
	}
	iw, ih := req.Width, req.Height
	if iw <= 0 || ih <= 0 {
		info, err := s.runner.Probe(ctx, req.Image)
		if err != nil {
			return Result{}, &types.ValidationError{Subject: "image", Reason: err.Error()}
		}
		iw, ih = info.Width, info.Height
	}
	if iw <= 0 || ih <= 0 {
		return Result{}, &types.ValidationError{Subject: "image", Reason: "unknown dimensions"}
	}

	w, h := types.AspectRatio(req.Aspect).Resolution(s.cfg.BaseHeight)
	f := fit(w, h, iw, ih)
	f.FPS = s.cfg.FPS
	f.Dur = dur

	var errs []error
	for i, e := range s.Order(req.Force) {
		err := s.render(ctx, e, f, req)
		if err == nil {
			metrics.EffectAttempts.WithLabelValues(e.Name, "ok").Inc()
			s.log.Debug().Str("effect", e.Name).Int("attempt", i+1).Msg("effect rendered")
			return Result{Effect: e.Name, Path: req.Output, Duration: dur, Width: w, Height: h}, nil
		}
		metrics.EffectAttempts.WithLabelValues(e.Name, "error").Inc()
		_ = os.Remove(req.Output)
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		s.log.Warn().Err(err).Str("effect", e.Name).Int("attempt", i+1).Msg("effect failed, trying next")
		errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
	}
	return Result{}, &types.EncodingError{
		Op:  "effects",
		Err: fmt.Errorf("all %d effects failed: %w", len(errs), errors.Join(errs...)),
	}
}

func (s *Synthesizer) render(ctx context.Context, e Effect, f frame, req Request) error {
	args := []string{
		"-loop", "1",
		"-framerate", strconv.Itoa(f.FPS),
		"-t", media.Seconds(f.Dur),
		"-i", req.Image,
		"-filter_complex", s.graph(e, f),
		"-map", "[v]",
		"-t", media.Seconds(f.Dur),
		"-r", strconv.Itoa(f.FPS),
		"-c:v", "libx264",
		"-preset", s.cfg.Preset,
		"-crf", strconv.Itoa(s.cfg.CRF),
		"-pix_fmt", s.cfg.PixelFormat,
		"-an",
		req.Output,
	}
	if err := s.runner.FFmpeg(ctx, "effect "+e.Name, args...); err != nil {
		return err
	}
	st, err := os.Stat(req.Output)
	if err != nil {
		return &types.ValidationError{Subject: "effect output", Reason: err.Error()}
	}
	if st.Size() < s.cfg.MinOutputBytes {
		return &types.ValidationError{Subject: "effect output", Reason: fmt.Sprintf("only %d bytes", st.Size())}
	}
	return nil
}

// graph composes a blurred frame-filling background with the moving foreground
// centred on top, faded in and out at the clip edges.
func (s *Synthesizer) graph(e Effect, f frame) string {
	fade := s.cfg.FadeSec
	blur := s.cfg.BackgroundBlur
	if blur <= 0 {
		blur = 20
	}
	return fmt.Sprintf(
		"[0:v]split=2[bg_in][fg_in];"+
			"[bg_in]scale=%[1]d:%[2]d:force_original_aspect_ratio=increase,crop=%[1]d:%[2]d,boxblur=%[3]d:2,setsar=1[bg];"+
			"[fg_in]%[4]s,setsar=1[fg];"+
			"[bg][fg]overlay=(W-w)/2:(H-h)/2:shortest=1,"+
			"fade=t=in:st=0:d=%[5]s,fade=t=out:st=%[6]s:d=%[5]s,format=%[7]s[v]",
		f.W, f.H, blur, e.foreground(f),
		media.Seconds(fade), media.Seconds(f.Dur-fade), s.cfg.PixelFormat,
	)
}

// fit sizes the foreground to fit inside a w x h frame keeping the image aspect.
func fit(w, h, iw, ih int) frame {
	img := float64(iw) / float64(ih)
	target := float64(w) / float64(h)
	f := frame{W: w, H: h}
	if img > target {
		f.FW = w
		f.FH = min(even(float64(w)/img), h)
	} else {
		f.FH = h
		f.FW = min(even(float64(h)*img), w)
	}
	return f
}
