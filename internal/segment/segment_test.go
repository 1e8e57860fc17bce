package segment

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-pipeline/internal/types"
)

type recordingLabeler struct {
	requests []types.LabelRequest
	err      error
}

func (l *recordingLabeler) Label(_ context.Context, req types.LabelRequest) (types.Labeling, error) {
	l.requests = append(l.requests, req)
	if l.err != nil {
		return types.Labeling{}, l.err
	}
	return types.Labeling{Labels: []string{"label " + req.Text}, Kind: types.KindSearch}, nil
}

func word(v string, ms, dur int64) types.SpeechMark {
	return types.SpeechMark{Type: types.MarkWord, Value: v, TimeMs: ms, DurationMs: dur}
}

func newSegmenter(l Labeler) *Segmenter {
	return New(Options{MaxSegmentSec: 2.0, TrailingPadSec: 0.3, Tolerance: 0.1}, l, zerolog.Nop())
}

func TestSegmentTwoWords(t *testing.T) {
	marks := []types.SpeechMark{word("Hi", 0, 500), word("there", 600, 700)}
	got, err := newSegmenter(&recordingLabeler{}).Segment(context.Background(), marks, "Hi there", "en")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Hi there", got[0].Text)
	assert.InDelta(t, 0.0, got[0].StartTime, 1e-9)
	assert.InDelta(t, 1.6, got[0].Duration, 1e-9)
	assert.Equal(t, types.KindSearch, got[0].Kind)
}

func TestSegmentBoundariesAndExclusions(t *testing.T) {
	marks := []types.SpeechMark{
		{Type: types.MarkSentence, Value: "One two three four five.", TimeMs: 0},
		word("One", 0, 400),
		word("two", 900, 400),
		word("three", 2000, 400), // exactly D after start: closes the first segment
		word("four", 3100, 400),
		word("five", 4500, 500),
	}
	labeler := &recordingLabeler{}
	got, err := newSegmenter(labeler).Segment(context.Background(), marks, "script", "en")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "One two", got[0].Text)
	assert.InDelta(t, 2.0, got[0].Duration, 1e-9)
	assert.Equal(t, "three four", got[1].Text)
	assert.InDelta(t, 2.0, got[1].StartTime, 1e-9)
	assert.InDelta(t, 2.5, got[1].Duration, 1e-9)
	assert.Equal(t, "five", got[2].Text)
	assert.InDelta(t, 5.3, got[2].End(), 1e-9)

	require.Len(t, labeler.requests, 3)
	assert.Empty(t, labeler.requests[0].Exclude)
	assert.Equal(t, []string{"label One two"}, labeler.requests[1].Exclude)
	assert.Equal(t, []string{"label One two", "label three four"}, labeler.requests[2].Exclude)
	assert.Equal(t, "script", labeler.requests[0].Context)

	require.NoError(t, types.CheckCoverage(got, 0, 5.3, 0.1))
}

func TestSegmentCoverageProperty(t *testing.T) {
	// words at irregular spacing, including long pauses
	starts := []int64{120, 300, 800, 2500, 2600, 2700, 6000, 6100, 8050, 9999}
	var marks []types.SpeechMark
	for _, s := range starts {
		marks = append(marks, word("word", s, 250))
	}
	got, err := newSegmenter(nil).Segment(context.Background(), marks, "", "en")
	require.NoError(t, err)

	assert.InDelta(t, 0.12, got[0].StartTime, 0.1)
	assert.InDelta(t, 9.999+0.25+0.3, got[len(got)-1].End(), 0.1)
	for i := 1; i < len(got); i++ {
		assert.InDelta(t, got[i-1].End(), got[i].StartTime, 0.1)
	}
}

func TestSegmentNoTimingData(t *testing.T) {
	onlySentences := []types.SpeechMark{{Type: types.MarkSentence, Value: "Hello.", TimeMs: 0}}
	_, err := newSegmenter(nil).Segment(context.Background(), onlySentences, "Hello.", "en")
	assert.True(t, errors.Is(err, types.ErrNoTimingData))

	_, err = newSegmenter(nil).Segment(context.Background(), nil, "", "en")
	assert.True(t, errors.Is(err, types.ErrNoTimingData))
}

func TestSegmentLabelerFailureFallsBack(t *testing.T) {
	marks := []types.SpeechMark{word("The", 0, 200), word("ancient", 250, 400), word("pyramids", 700, 500), word("of", 1250, 100), word("Giza", 1400, 400)}
	got, err := newSegmenter(&recordingLabeler{err: errors.New("quota")}).Segment(context.Background(), marks, "", "en")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"ancient pyramids giza"}, got[0].Labels)
	assert.Equal(t, types.KindStock, got[0].Kind)
}

func TestFallback(t *testing.T) {
	assert.Equal(t, []string{"hi there"}, Fallback("Hi there").Labels)
	assert.Equal(t, []string{"abstract background"}, Fallback("  ").Labels)
	assert.Equal(t, []string{"storm clouds gather"}, Fallback("Storm, storm clouds gather over the sea!").Labels)
}
