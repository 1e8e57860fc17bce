// Package subtitles burns word-synchronized captions into a video.
package subtitles

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"video-pipeline/internal/config"
	"video-pipeline/internal/media"
	"video-pipeline/internal/types"
)

// Request is one burn-in.
type Request struct {
	Video    string
	Output   string
	Marks    []types.SpeechMark
	Aspect   float64
	Language string
	WorkDir  string
}

// Result reports how the captions were applied.
type Result struct {
	Words int
	Font  string
	// Script is set when the filter was passed through a script file.
	Script string
}

type Burner struct {
	cfg     config.SubtitlesConfig
	visuals config.VisualsConfig
	runner  media.Runner
	fonts   *fontIndex
	offsets map[string]float64
	langs   map[string][]string
	stop    map[string]bool
	log     zerolog.Logger
}

func New(cfg config.SubtitlesConfig, visuals config.VisualsConfig, runner media.Runner, log zerolog.Logger) *Burner {
	if len(cfg.Colors) == 0 {
		cfg.Colors = []string{"white"}
	}
	if cfg.MaxFilterLength <= 0 {
		cfg.MaxFilterLength = 8000
	}
	b := &Burner{
		cfg:     cfg,
		visuals: visuals,
		runner:  runner,
		fonts:   &fontIndex{dirs: cfg.FontDirs},
		offsets: map[string]float64{},
		langs:   map[string][]string{},
		stop:    stopSet(cfg.StopWords),
		log:     log.With().Str("component", "subtitles").Logger(),
	}
	for k, v := range cfg.VerticalOffset {
		b.offsets[strings.ToLower(k)] = v
	}
	for k, v := range cfg.Fonts {
		b.langs[strings.ToLower(k)] = v
	}
	return b
}

// Font returns the first installed font for the language, the configured
// fallback, or "" to let the encoder pick its default.
func (b *Burner) Font(lang string) string {
	if names, ok := lookup(b.langs, defaultFonts, lang); ok {
		for _, n := range names {
			if p := b.fonts.find(n); p != "" {
				return p
			}
		}
	}
	if p := b.fonts.find(b.cfg.FallbackFont); p != "" {
		return p
	}
	for _, n := range defaultFonts["default"] {
		if p := b.fonts.find(n); p != "" {
			return p
		}
	}
	return ""
}

// Offset is the caption centre as a fraction of frame height.
func (b *Burner) Offset(lang string) float64 {
	if v, ok := lookup(b.offsets, defaultOffsets, lang); ok && v > 0 && v < 1 {
		return v
	}
	return defaultOffsets["default"]
}

// Filter renders one drawtext per word, each gated to its window by an alpha
// predicate. Colors cycle through the configured palette.
func (b *Burner) Filter(words []Word, font string, offset float64, w, h int) string {
	size := int(float64(min(w, h)) * b.cfg.FontSizeRatio)
	if size < 12 {
		size = 12
	}
	fontOpt := ""
	if font != "" {
		fontOpt = "fontfile='" + media.EscapePath(font) + "':"
	}
	parts := make([]string, 0, len(words))
	for i, word := range words {
		color := b.cfg.Colors[i%len(b.cfg.Colors)]
		parts = append(parts, fmt.Sprintf(
			"drawtext=%stext='%s':fontsize=%d:fontcolor=%s:borderw=%d:bordercolor=black:"+
				"x=(w-text_w)/2:y=h*%.3f-text_h/2:alpha='between(t,%s,%s)'",
			fontOpt, media.EscapeText(strings.ToUpper(word.Text)), size, color, b.cfg.BorderWidth,
			offset, media.Seconds(word.Start), media.Seconds(word.End),
		))
	}
	return strings.Join(parts, ",")
}

// Burn draws the captions onto the video. Filters longer than the configured
// limit go through a script file so no caption is lost to command-line limits.
func (b *Burner) Burn(ctx context.Context, req Request) (Result, error) {
	words := Windows(req.Marks,
		float64(b.cfg.WordGapMs)/1000, b.cfg.LastWordHoldSec, b.stop)
	if len(words) == 0 {
		return Result{}, types.ErrNoTimingData
	}
	w, h := types.AspectRatio(req.Aspect).Resolution(b.visuals.BaseHeight)
	font := b.Font(req.Language)
	if font == "" {
		b.log.Warn().Str("language", req.Language).Msg("no font file found, using encoder default")
	}
	filter := b.Filter(words, font, b.Offset(req.Language), w, h)

	res := Result{Words: len(words), Font: font}
	args := []string{"-i", req.Video}
	if len(filter) > b.cfg.MaxFilterLength {
		res.Script = filepath.Join(req.WorkDir, "captions.filter")
		if err := os.WriteFile(res.Script, []byte(filter), 0o644); err != nil {
			return Result{}, fmt.Errorf("write caption filter script: %w", err)
		}
		args = append(args, "-filter_script:v", res.Script)
	} else {
		args = append(args, "-vf", filter)
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", b.visuals.Preset,
		"-crf", strconv.Itoa(b.visuals.CRF),
		"-pix_fmt", b.visuals.PixelFormat,
		"-c:a", "copy",
		req.Output,
	)
	if err := b.runner.FFmpeg(ctx, "burn subtitles", args...); err != nil {
		return Result{}, err
	}
	b.log.Info().Int("words", len(words)).Int("filter_len", len(filter)).Bool("script", res.Script != "").Msg("captions burned")
	return res, nil
}
