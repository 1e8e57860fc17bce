package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"video-pipeline/internal/types"
)

// Request is one narration to synthesize.
type Request struct {
	Text     string
	Language string
	Voice    string
}

// Narration is the result of a synthesis: the audio is at the requested path and
// Marks time it.
type Narration struct {
	Engine string
	Marks  []types.SpeechMark
}

// Engine synthesizes speech and its timing marks in one exchange so audio and
// marks always come from the same voice rendering.
type Engine interface {
	Name() string
	Narrate(ctx context.Context, req Request, dst string) (Narration, error)
}

// Chain tries each engine in order until one succeeds.
type Chain struct {
	engines []Engine
	log     zerolog.Logger
}

func NewChain(log zerolog.Logger, engines ...Engine) *Chain {
	return &Chain{engines: engines, log: log.With().Str("component", "tts").Logger()}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Narrate(ctx context.Context, req Request, dst string) (Narration, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Narration{}, &types.ValidationError{Subject: "narration", Reason: "empty text"}
	}
	var errs []error
	for _, e := range c.engines {
		n, err := e.Narrate(ctx, req, dst)
		if err == nil {
			return n, nil
		}
		c.log.Warn().Err(err).Str("engine", e.Name()).Msg("tts engine failed, trying next")
		errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return Narration{}, errors.New("tts: no engines configured")
	}
	return Narration{}, errors.Join(errs...)
}

// WordsFromCharacters groups per-character timings into word and sentence marks.
// starts and ends are in seconds and parallel to chars.
func WordsFromCharacters(chars []string, starts, ends []float64) []types.SpeechMark {
	n := len(chars)
	if len(starts) < n {
		n = len(starts)
	}
	if len(ends) < n {
		n = len(ends)
	}

	var marks []types.SpeechMark
	var word strings.Builder
	var sentence strings.Builder
	wordStart, wordEnd := -1.0, 0.0
	sentStart := -1.0

	flushWord := func() {
		if word.Len() == 0 {
			return
		}
		marks = append(marks, mark(types.MarkWord, word.String(), wordStart, wordEnd))
		word.Reset()
		wordStart = -1
	}
	flushSentence := func(end float64) {
		text := strings.TrimSpace(sentence.String())
		if text != "" && sentStart >= 0 {
			marks = append(marks, mark(types.MarkSentence, text, sentStart, end))
		}
		sentence.Reset()
		sentStart = -1
	}

	for i := 0; i < n; i++ {
		ch := chars[i]
		r := []rune(ch)
		space := len(r) == 0 || unicode.IsSpace(r[0])
		if space {
			flushWord()
			sentence.WriteString(" ")
			continue
		}
		if wordStart < 0 {
			wordStart = starts[i]
		}
		if sentStart < 0 {
			sentStart = starts[i]
		}
		wordEnd = ends[i]
		word.WriteString(ch)
		sentence.WriteString(ch)
		if strings.ContainsAny(ch, ".!?") {
			flushWord()
			flushSentence(ends[i])
		}
	}
	flushWord()
	flushSentence(wordEnd)
	return sortMarks(marks)
}

// sortMarks orders marks by time, placing a sentence before the words it starts with.
func sortMarks(marks []types.SpeechMark) []types.SpeechMark {
	out := make([]types.SpeechMark, 0, len(marks))
	var words, sentences []types.SpeechMark
	for _, m := range marks {
		if m.Type == types.MarkSentence {
			sentences = append(sentences, m)
		} else {
			words = append(words, m)
		}
	}
	si := 0
	for _, w := range words {
		for si < len(sentences) && sentences[si].TimeMs <= w.TimeMs {
			out = append(out, sentences[si])
			si++
		}
		out = append(out, w)
	}
	return append(out, sentences[si:]...)
}

func mark(t types.MarkType, value string, start, end float64) types.SpeechMark {
	ms := int64(start*1000 + 0.5)
	dur := int64((end-start)*1000 + 0.5)
	if dur < 0 {
		dur = 0
	}
	return types.SpeechMark{Type: t, Value: value, TimeMs: ms, DurationMs: dur}
}
