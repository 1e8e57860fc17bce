package subtitles

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-pipeline/internal/config"
	"video-pipeline/internal/media/mediatest"
	"video-pipeline/internal/types"
)

func word(v string, ms, dur int64) types.SpeechMark {
	return types.SpeechMark{Type: types.MarkWord, Value: v, TimeMs: ms, DurationMs: dur}
}

func subsConfig(fontDir string) config.SubtitlesConfig {
	return config.SubtitlesConfig{
		WordGapMs:       50,
		LastWordHoldSec: 1.5,
		FontSizeRatio:   0.07,
		Colors:          []string{"white", "yellow"},
		BorderWidth:     4,
		FontDirs:        []string{fontDir},
		FallbackFont:    "DejaVuSans-Bold.ttf",
		MaxFilterLength: 8000,
	}
}

func visuals() config.VisualsConfig {
	return config.VisualsConfig{BaseHeight: 1080, Preset: "veryfast", CRF: 23, PixelFormat: "yuv420p"}
}

func TestWindows(t *testing.T) {
	marks := []types.SpeechMark{
		{Type: types.MarkSentence, Value: "The cat sat.", TimeMs: 0},
		word("The", 0, 200),
		word("cat", 300, 300),
		word("sat", 700, 400),
	}
	got := Windows(marks, 0.05, 1.5, stopSet(nil))
	require.Len(t, got, 2)
	assert.Equal(t, "cat", got[0].Text)
	assert.InDelta(t, 0.3, got[0].Start, 1e-9)
	assert.InDelta(t, 0.65, got[0].End, 1e-9)
	assert.Equal(t, "sat", got[1].Text)
	assert.InDelta(t, 2.2, got[1].End, 1e-9)
}

func TestWindowsKeepsLoneStopWords(t *testing.T) {
	got := Windows([]types.SpeechMark{word("The", 0, 200), word("of", 400, 100)}, 0.05, 1.5, stopSet(nil))
	require.Len(t, got, 2)
	assert.InDelta(t, 0.35, got[0].End, 1e-9)
}

func TestWindowsOverlappingMarks(t *testing.T) {
	got := Windows([]types.SpeechMark{word("fast", 1000, 100), word("talk", 1020, 100)}, 0.05, 1.5, nil)
	assert.InDelta(t, 1.05, got[0].End, 1e-9)
}

func TestFilterDrawtext(t *testing.T) {
	b := New(subsConfig(t.TempDir()), visuals(), mediatest.New(), zerolog.Nop())
	f := b.Filter([]Word{{Text: "it's", Start: 0, End: 0.5}, {Text: "50%", Start: 0.6, End: 2.1}, {Text: "go", Start: 2.2, End: 3}}, "/fonts/My Font.ttf", 0.7, 1080, 1920)

	parts := strings.Split(f, ",drawtext=")
	require.Len(t, parts, 3)
	assert.Contains(t, parts[0], "text='IT’S'")
	assert.Contains(t, parts[0], "fontcolor=white")
	assert.Contains(t, parts[0], "alpha='between(t,0.000,0.500)'")
	assert.Contains(t, parts[0], "fontfile='/fonts/My Font.ttf'")
	assert.Contains(t, parts[0], "fontsize=75")
	assert.Contains(t, parts[1], `text='50\\%'`)
	assert.Contains(t, parts[1], "fontcolor=yellow")
	assert.Contains(t, parts[2], "fontcolor=white")
	assert.Contains(t, parts[2], "y=h*0.700-text_h/2")
}

func TestFontSelection(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "noto"), 0o755))
	deva := filepath.Join(dir, "noto", "NotoSansDevanagari-Bold.ttf")
	fallback := filepath.Join(dir, "DejaVuSans-Bold.ttf")
	require.NoError(t, os.WriteFile(deva, []byte("f"), 0o644))
	require.NoError(t, os.WriteFile(fallback, []byte("f"), 0o644))

	cfg := subsConfig(dir)
	cfg.Fonts = map[string][]string{"pt-BR": {"missing.ttf"}}
	cfg.VerticalOffset = map[string]float64{"hi": 0.6}
	b := New(cfg, visuals(), mediatest.New(), zerolog.Nop())

	assert.Equal(t, deva, b.Font("hi-IN"))
	assert.Equal(t, fallback, b.Font("en"))
	assert.Equal(t, fallback, b.Font("pt-BR"), "configured fonts missing: fallback font")
	assert.Equal(t, fallback, b.Font("not a language"))
	assert.Equal(t, 0.6, b.Offset("hi"))
	assert.Equal(t, 0.68, b.Offset("ja-JP"))
	assert.Equal(t, 0.7, b.Offset(""))
}

func TestBurnUsesScriptForLongFilters(t *testing.T) {
	var marks []types.SpeechMark
	for i := 0; i < 120; i++ {
		marks = append(marks, word(fmt.Sprintf("word%d", i), int64(i*300), 250))
	}
	r := mediatest.New()
	dir := t.TempDir()
	b := New(subsConfig(dir), visuals(), r, zerolog.Nop())

	res, err := b.Burn(context.Background(), Request{
		Video: "base.mp4", Output: filepath.Join(dir, "final.mp4"),
		Marks: marks, Aspect: 0.5625, Language: "en", WorkDir: dir,
	})
	require.NoError(t, err)
	assert.Equal(t, 120, res.Words)
	require.NotEmpty(t, res.Script)

	c := r.CallsFor("burn subtitles")[0]
	assert.Equal(t, res.Script, c.Arg("-filter_script:v"))
	assert.Empty(t, c.Arg("-vf"))
	script, err := os.ReadFile(res.Script)
	require.NoError(t, err)
	assert.Equal(t, 120, strings.Count(string(script), "drawtext="), "no caption truncated")
	assert.Contains(t, string(script), "WORD119")
}

func TestBurnInlineFilter(t *testing.T) {
	r := mediatest.New()
	dir := t.TempDir()
	b := New(subsConfig(dir), visuals(), r, zerolog.Nop())
	res, err := b.Burn(context.Background(), Request{
		Video: "base.mp4", Output: filepath.Join(dir, "final.mp4"),
		Marks: []types.SpeechMark{word("Hi", 0, 500), word("there", 600, 700)}, Aspect: 0.5625, Language: "en", WorkDir: dir,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Script)
	c := r.CallsFor("burn subtitles")[0]
	assert.Contains(t, c.Arg("-vf"), "alpha='between(t,0.600,2.100)'")
	assert.Equal(t, "copy", c.Arg("-c:a"))

	_, err = b.Burn(context.Background(), Request{Video: "v", Output: filepath.Join(dir, "x.mp4"), Aspect: 1})
	assert.ErrorIs(t, err, types.ErrNoTimingData)
}
