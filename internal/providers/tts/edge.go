package tts

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"video-pipeline/internal/providers"
	"video-pipeline/internal/types"
)

// defaultEdgeVoices maps a base language to an edge-tts neural voice.
var defaultEdgeVoices = map[string]string{
	"en": "en-US-GuyNeural",
	"es": "es-ES-AlvaroNeural",
	"fr": "fr-FR-HenriNeural",
	"de": "de-DE-ConradNeural",
	"it": "it-IT-DiegoNeural",
	"pt": "pt-BR-AntonioNeural",
	"nl": "nl-NL-MaartenNeural",
	"pl": "pl-PL-MarekNeural",
	"tr": "tr-TR-AhmetNeural",
	"ru": "ru-RU-DmitryNeural",
	"ar": "ar-SA-HamedNeural",
	"hi": "hi-IN-MadhurNeural",
	"ja": "ja-JP-KeitaNeural",
	"ko": "ko-KR-InJoonNeural",
	"zh": "zh-CN-YunxiNeural",
}

// Edge runs the edge-tts command line (or a compatible TTS_COMMAND) and reads
// timing marks from the subtitle file it writes next to the audio.
type Edge struct {
	command  string
	workDir  string
	attempts int
	log      zerolog.Logger
}

var _ Engine = (*Edge)(nil)

func NewEdge(command, workDir string, attempts int, log zerolog.Logger) *Edge {
	if command == "" {
		command = "edge-tts"
	}
	return &Edge{
		command:  command,
		workDir:  workDir,
		attempts: attempts,
		log:      log.With().Str("component", "tts").Str("engine", "edge").Logger(),
	}
}

func (e *Edge) Name() string { return "edge-tts" }

func (e *Edge) Narrate(ctx context.Context, req Request, dst string) (Narration, error) {
	if _, err := exec.LookPath(e.command); err != nil {
		return Narration{}, &types.ProviderError{Provider: e.Name(), Op: "narrate", Err: fmt.Errorf("%s not found: %w", e.command, err)}
	}
	subs, err := os.CreateTemp(e.workDir, "edge-*.vtt")
	if err != nil {
		return Narration{}, err
	}
	subsPath := subs.Name()
	subs.Close()
	defer os.Remove(subsPath)

	voice := edgeVoice(req.Voice, req.Language)
	err = providers.Retry(ctx, e.attempts, func(attempt int) error {
		cmd := exec.CommandContext(ctx, e.command,
			"--voice", voice,
			"--text", req.Text,
			"--write-media", dst,
			"--write-subtitles", subsPath,
		)
		out, err := cmd.CombinedOutput()
		if err != nil {
			e.log.Warn().Err(err).Int("attempt", attempt).Str("output", string(out)).Msg("edge-tts failed")
			return &types.ProviderError{Provider: e.Name(), Op: "narrate", Err: err, Retryable: true}
		}
		return nil
	})
	if err != nil {
		return Narration{}, err
	}

	f, err := os.Open(subsPath)
	if err != nil {
		return Narration{}, err
	}
	defer f.Close()
	cues, err := ParseCues(f)
	if err != nil {
		return Narration{}, &types.ProviderError{Provider: e.Name(), Op: "marks", Err: err}
	}
	marks := MarksFromCues(cues)
	if len(marks) == 0 {
		return Narration{}, &types.ProviderError{Provider: e.Name(), Op: "marks", Err: fmt.Errorf("no cues in %s", filepath.Base(subsPath))}
	}
	return Narration{Engine: e.Name(), Marks: marks}, nil
}

func edgeVoice(voice, language string) string {
	if strings.HasSuffix(voice, "Neural") {
		return voice
	}
	base := strings.ToLower(strings.SplitN(language, "-", 2)[0])
	if v, ok := defaultEdgeVoices[base]; ok {
		return v
	}
	return defaultEdgeVoices["en"]
}

// Cue is one timed subtitle entry.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// ParseCues reads WebVTT or SRT cues.
func ParseCues(r io.Reader) ([]Cue, error) {
	var cues []Cue
	var cur *Cue
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if start, end, ok := parseTimingLine(line); ok {
			if cur != nil && cur.Text != "" {
				cues = append(cues, *cur)
			}
			cur = &Cue{Start: start, End: end}
			continue
		}
		if line == "" {
			if cur != nil && cur.Text != "" {
				cues = append(cues, *cur)
			}
			cur = nil
			continue
		}
		if cur != nil {
			if cur.Text != "" {
				cur.Text += " "
			}
			cur.Text += line
		}
	}
	if cur != nil && cur.Text != "" {
		cues = append(cues, *cur)
	}
	return cues, sc.Err()
}

func parseTimingLine(line string) (float64, float64, bool) {
	a, b, ok := strings.Cut(line, "-->")
	if !ok {
		return 0, 0, false
	}
	start, err1 := parseTimestamp(strings.TrimSpace(a))
	endField := strings.Fields(strings.TrimSpace(b))
	if len(endField) == 0 {
		return 0, 0, false
	}
	end, err2 := parseTimestamp(endField[0])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return start, end, true
}

// parseTimestamp accepts hh:mm:ss.mmm, mm:ss.mmm and the SRT comma form.
func parseTimestamp(s string) (float64, error) {
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ":")
	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, err
		}
		total = total*60 + v
	}
	return total, nil
}

// MarksFromCues turns cues into word marks, spreading multi-word cues evenly
// across their span, and adds a sentence mark per multi-word cue.
func MarksFromCues(cues []Cue) []types.SpeechMark {
	var marks []types.SpeechMark
	for _, c := range cues {
		words := strings.Fields(c.Text)
		if len(words) == 0 || c.End <= c.Start {
			continue
		}
		if len(words) > 1 {
			marks = append(marks, mark(types.MarkSentence, c.Text, c.Start, c.End))
		}
		step := (c.End - c.Start) / float64(len(words))
		for i, w := range words {
			s := c.Start + float64(i)*step
			marks = append(marks, mark(types.MarkWord, w, s, s+step))
		}
	}
	return marks
}
