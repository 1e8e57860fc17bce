// Package segment turns word-level speech marks into a contiguous visual timeline.
package segment

import (
	"context"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"video-pipeline/internal/types"
)

// Labeler assigns visual labels to a segment of narration.
type Labeler interface {
	Label(ctx context.Context, req types.LabelRequest) (types.Labeling, error)
}

type Options struct {
	// MaxSegmentSec is the longest a segment may run before a new one starts.
	MaxSegmentSec float64
	// TrailingPadSec extends the last segment past the final word.
	TrailingPadSec float64
	// Tolerance bounds gaps, overlaps and the span error of the output.
	Tolerance float64
}

// Segmenter groups words into segments and labels each one.
type Segmenter struct {
	opts    Options
	labeler Labeler
	log     zerolog.Logger
}

func New(opts Options, labeler Labeler, log zerolog.Logger) *Segmenter {
	if opts.MaxSegmentSec <= 0 {
		opts.MaxSegmentSec = 2.0
	}
	if opts.TrailingPadSec < 0 {
		opts.TrailingPadSec = 0
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 0.1
	}
	return &Segmenter{opts: opts, labeler: labeler, log: log.With().Str("component", "segment").Logger()}
}

// Span is one unlabeled segment.
type Span struct {
	Start    float64
	Duration float64
	Words    []string
}

func (s Span) Text() string { return strings.Join(s.Words, " ") }

// Split groups word marks greedily. A word joins the current segment while it
// starts less than MaxSegmentSec after the segment start; otherwise the segment
// closes at that word's start and a new one begins with it. The last segment
// ends at the last word's end plus the trailing pad.
func (s *Segmenter) Split(marks []types.SpeechMark) ([]Span, error) {
	words := wordMarks(marks)
	if len(words) == 0 {
		return nil, types.ErrNoTimingData
	}

	var spans []Span
	cur := Span{Start: words[0].Start(), Words: []string{words[0].Value}}
	for _, w := range words[1:] {
		if w.Start()-cur.Start < s.opts.MaxSegmentSec {
			cur.Words = append(cur.Words, w.Value)
			continue
		}
		cur.Duration = w.Start() - cur.Start
		spans = append(spans, cur)
		cur = Span{Start: w.Start(), Words: []string{w.Value}}
	}
	cur.Duration = words[len(words)-1].End() + s.opts.TrailingPadSec - cur.Start
	spans = append(spans, cur)
	return spans, nil
}

// Segment splits the marks, labels every segment and checks that the result
// covers the narration from the first word to the last word's end plus pad.
// script is passed to the labeler as context.
func (s *Segmenter) Segment(ctx context.Context, marks []types.SpeechMark, script, language string) ([]types.ClipTiming, error) {
	spans, err := s.Split(marks)
	if err != nil {
		return nil, err
	}

	timings := make([]types.ClipTiming, 0, len(spans))
	var used []string
	for i, sp := range spans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := sp.Text()
		labeling := s.label(ctx, i, text, script, language, used)
		used = append(used, labeling.Labels[0])
		timings = append(timings, types.ClipTiming{
			Labels:    labeling.Labels,
			Kind:      labeling.Kind,
			StartTime: sp.Start,
			Duration:  sp.Duration,
			Text:      text,
		})
	}

	words := wordMarks(marks)
	start := words[0].Start()
	end := words[len(words)-1].End() + s.opts.TrailingPadSec
	if err := types.CheckCoverage(timings, start, end, s.opts.Tolerance); err != nil {
		return nil, err
	}
	s.log.Info().Int("segments", len(timings)).Float64("span_sec", end-start).Msg("timeline built")
	return timings, nil
}

func (s *Segmenter) label(ctx context.Context, i int, text, script, language string, used []string) types.Labeling {
	if s.labeler != nil {
		req := types.LabelRequest{
			Text:     text,
			Context:  script,
			Language: language,
			Exclude:  append([]string(nil), used...),
		}
		got, err := s.labeler.Label(ctx, req)
		if err == nil && len(got.Labels) > 0 {
			if got.Kind != types.KindSearch {
				got.Kind = types.KindStock
			}
			return got
		}
		s.log.Warn().Err(err).Int("segment", i).Msg("labeler failed, using local keywords")
	}
	return Fallback(text)
}

// Fallback derives a stock label from up to three non-trivial words of text.
func Fallback(text string) types.Labeling {
	var picked []string
	seen := map[string]bool{}
	for _, f := range strings.Fields(text) {
		w := strings.ToLower(strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		}))
		if len([]rune(w)) < 3 || trivial[w] || seen[w] {
			continue
		}
		seen[w] = true
		picked = append(picked, w)
		if len(picked) == 3 {
			break
		}
	}
	label := strings.Join(picked, " ")
	if label == "" {
		label = strings.ToLower(strings.TrimSpace(text))
	}
	if label == "" {
		label = "abstract background"
	}
	return types.Labeling{Labels: []string{label}, Kind: types.KindStock}
}

func wordMarks(marks []types.SpeechMark) []types.SpeechMark {
	out := make([]types.SpeechMark, 0, len(marks))
	for _, m := range marks {
		if m.Type == types.MarkWord {
			out = append(out, m)
		}
	}
	return out
}

var trivial = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "nor": true, "yet": true,
	"with": true, "from": true, "into": true, "onto": true, "upon": true, "over": true,
	"under": true, "about": true, "after": true, "before": true, "this": true, "that": true,
	"these": true, "those": true, "there": true, "here": true, "they": true, "them": true,
	"their": true, "what": true, "when": true, "where": true, "which": true, "who": true,
	"why": true, "how": true, "you": true, "your": true, "our": true, "was": true,
	"were": true, "are": true, "is": true, "has": true, "have": true, "had": true,
	"been": true, "being": true, "will": true, "would": true, "could": true, "should": true,
	"can": true, "just": true, "than": true, "then": true, "also": true, "very": true,
	"some": true, "any": true, "all": true, "every": true, "each": true, "its": true,
	"his": true, "her": true, "she": true, "him": true, "not": true, "did": true,
	"does": true, "done": true, "one": true, "out": true, "only": true, "like": true,
}
