package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MarkType distinguishes word and sentence timing marks.
type MarkType string

const (
	MarkWord     MarkType = "word"
	MarkSentence MarkType = "sentence"
)

// SpeechMark is one timing mark from the text-to-speech provider. Times are milliseconds
// from the start of the narration.
type SpeechMark struct {
	Type       MarkType `json:"type"`
	Value      string   `json:"value"`
	TimeMs     int64    `json:"time"`
	DurationMs int64    `json:"duration,omitempty"`
}

// Start returns the mark start in seconds.
func (m SpeechMark) Start() float64 {
	return float64(m.TimeMs) / 1000
}

// End returns the mark end in seconds. Marks without a duration get an estimate
// from the word length.
func (m SpeechMark) End() float64 {
	if m.DurationMs > 0 {
		return float64(m.TimeMs+m.DurationMs) / 1000
	}
	est := 0.06 * float64(len([]rune(m.Value)))
	if est < 0.25 {
		est = 0.25
	}
	return m.Start() + est
}

// LabelKind says whether a segment needs an exact-match image or any matching stock footage.
type LabelKind string

const (
	KindSearch LabelKind = "search"
	KindStock  LabelKind = "stock"
)

// ClipTiming is one segment of the visual timeline. Labels are ordered alternatives.
type ClipTiming struct {
	Labels    []string  `json:"labels"`
	Kind      LabelKind `json:"kind"`
	StartTime float64   `json:"startTime"`
	Duration  float64   `json:"duration"`
	Text      string    `json:"text"`
}

// End returns the segment end in seconds.
func (c ClipTiming) End() float64 {
	return c.StartTime + c.Duration
}

// Keyword returns the primary label.
func (c ClipTiming) Keyword() string {
	if len(c.Labels) == 0 {
		return ""
	}
	return c.Labels[0]
}

// SplitLabels turns a comma separated label string into trimmed, non-empty alternatives.
func SplitLabels(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CheckCoverage verifies that timings are contiguous within tol and span [start, end].
func CheckCoverage(timings []ClipTiming, start, end, tol float64) error {
	if len(timings) == 0 {
		return &TimingCoverageError{Reason: "empty timeline"}
	}
	if d := math.Abs(timings[0].StartTime - start); d > tol {
		return &TimingCoverageError{Reason: fmt.Sprintf("first segment starts at %.3fs, narration at %.3fs", timings[0].StartTime, start)}
	}
	for i, cur := range timings {
		if cur.Duration <= 0 {
			return &TimingCoverageError{Index: i, Reason: fmt.Sprintf("segment %d has non-positive duration %.3fs", i, cur.Duration)}
		}
		if i == 0 {
			continue
		}
		prev := timings[i-1]
		if d := math.Abs(cur.StartTime - prev.End()); d > tol {
			return &TimingCoverageError{Index: i, Reason: fmt.Sprintf("gap/overlap of %.3fs before segment %d", cur.StartTime-prev.End(), i)}
		}
	}
	last := timings[len(timings)-1]
	if d := math.Abs(last.End() - end); d > tol {
		return &TimingCoverageError{Index: len(timings) - 1, Reason: fmt.Sprintf("last segment ends at %.3fs, expected %.3fs", last.End(), end)}
	}
	return nil
}

// NormalizedClip is a clip re-encoded to the shared target format, ready for concatenation.
type NormalizedClip struct {
	Index             int     `json:"index"`
	Path              string  `json:"path"`
	SourceRef         string  `json:"sourceRef"`
	Label             string  `json:"label"`
	StartTime         float64 `json:"startTime"`
	RequestedDuration float64 `json:"requestedDuration"`
	ActualDuration    float64 `json:"actualDuration"`
}

// AspectRatio is width divided by height.
type AspectRatio float64

// ParseAspectRatio accepts "W:H" or a decimal ratio.
func ParseAspectRatio(s string) (AspectRatio, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &ValidationError{Subject: "aspect ratio", Reason: "empty"}
	}
	if w, h, ok := strings.Cut(s, ":"); ok {
		wf, err1 := strconv.ParseFloat(strings.TrimSpace(w), 64)
		hf, err2 := strconv.ParseFloat(strings.TrimSpace(h), 64)
		if err1 != nil || err2 != nil || wf <= 0 || hf <= 0 {
			return 0, &ValidationError{Subject: "aspect ratio", Reason: fmt.Sprintf("invalid %q", s)}
		}
		return AspectRatio(wf / hf), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, &ValidationError{Subject: "aspect ratio", Reason: fmt.Sprintf("invalid %q", s)}
	}
	return AspectRatio(f), nil
}

// Orientation returns portrait, square or landscape.
func (a AspectRatio) Orientation() string {
	switch {
	case a < 0.9:
		return "portrait"
	case a > 1.1:
		return "landscape"
	}
	return "square"
}

// Resolution returns the target frame size: the short side is fixed to base and the
// long side is scaled by the ratio and rounded to an even number.
func (a AspectRatio) Resolution(base int) (width, height int) {
	r := float64(a)
	if r >= 1 {
		return evenRound(float64(base) * r), base
	}
	return base, evenRound(float64(base) / r)
}

func evenRound(v float64) int {
	n := int(math.Round(v))
	if n%2 != 0 {
		n++
	}
	return n
}
