package subtitles

import (
	"strings"
	"unicode"

	"video-pipeline/internal/types"
)

// Word is one caption with its visible window in seconds.
type Word struct {
	Text  string
	Start float64
	End   float64
}

// minVisible keeps overlapping marks from producing empty windows.
const minVisible = 0.05

// Windows computes a visible window for every word mark: from its start until
// gap before the next word starts, the last word holding for hold seconds.
// Stop words are dropped unless nothing else would remain.
func Windows(marks []types.SpeechMark, gap, hold float64, stop map[string]bool) []Word {
	var words []types.SpeechMark
	for _, m := range marks {
		if m.Type == types.MarkWord && strings.TrimSpace(m.Value) != "" {
			words = append(words, m)
		}
	}

	all := make([]Word, 0, len(words))
	for i, m := range words {
		start := m.Start()
		end := start + hold
		if i < len(words)-1 {
			end = words[i+1].Start() - gap
		}
		if end < start+minVisible {
			end = start + minVisible
		}
		all = append(all, Word{Text: strings.TrimSpace(m.Value), Start: start, End: end})
	}

	kept := make([]Word, 0, len(all))
	for _, w := range all {
		if !stop[normalize(w.Text)] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return all
	}
	return kept
}

func normalize(word string) string {
	return strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}))
}

var defaultStopWords = []string{
	"a", "an", "the", "of", "in", "on", "at", "to", "for", "by", "with", "from",
	"into", "onto", "and", "or", "but", "as", "is", "are", "was", "were",
	"de", "la", "le", "el", "los", "las", "les", "des", "du", "un", "une", "y", "et",
	"der", "die", "das", "und",
}

func stopSet(words []string) map[string]bool {
	if len(words) == 0 {
		words = defaultStopWords
	}
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	return set
}
