package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAspectRatio(t *testing.T) {
	cases := map[string]float64{
		"9:16":   0.5625,
		"16:9":   16.0 / 9.0,
		"1:1":    1,
		"0.5625": 0.5625,
	}
	for in, want := range cases {
		got, err := ParseAspectRatio(in)
		require.NoError(t, err, in)
		assert.InDelta(t, want, float64(got), 1e-9, in)
	}

	for _, bad := range []string{"", "abc", "0:16", "-1", "9:"} {
		_, err := ParseAspectRatio(bad)
		var ve *ValidationError
		assert.True(t, errors.As(err, &ve), "expected validation error for %q", bad)
	}
}

func TestResolution(t *testing.T) {
	w, h := AspectRatio(0.5625).Resolution(1080)
	assert.Equal(t, 1080, w)
	assert.Equal(t, 1920, h)

	w, h = AspectRatio(16.0 / 9.0).Resolution(1080)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	w, h = AspectRatio(4.0 / 5.0).Resolution(1080)
	assert.Equal(t, 1080, w)
	assert.Equal(t, 1350, h)

	// 1080 / 0.7 = 1542.86 -> 1543 -> even 1544
	w, h = AspectRatio(0.7).Resolution(1080)
	assert.Equal(t, 1080, w)
	assert.Equal(t, 1544, h)
	assert.Zero(t, h%2)
}

func TestOrientation(t *testing.T) {
	assert.Equal(t, "portrait", AspectRatio(0.5625).Orientation())
	assert.Equal(t, "square", AspectRatio(1).Orientation())
	assert.Equal(t, "landscape", AspectRatio(1.77).Orientation())
}

func TestCheckCoverage(t *testing.T) {
	timings := []ClipTiming{
		{StartTime: 0, Duration: 2.1},
		{StartTime: 2.1, Duration: 1.9},
		{StartTime: 4.05, Duration: 1.0},
	}
	require.NoError(t, CheckCoverage(timings, 0, 5.05, 0.1))

	err := CheckCoverage(timings, 0, 6, 0.1)
	var tce *TimingCoverageError
	require.True(t, errors.As(err, &tce))
	assert.Equal(t, 2, tce.Index)

	gap := []ClipTiming{{StartTime: 0, Duration: 1}, {StartTime: 1.5, Duration: 1}}
	err = CheckCoverage(gap, 0, 2.5, 0.1)
	require.True(t, errors.As(err, &tce))
	assert.Equal(t, 1, tce.Index)

	require.Error(t, CheckCoverage(nil, 0, 1, 0.1))
}

func TestSpeechMarkEnd(t *testing.T) {
	m := SpeechMark{Type: MarkWord, Value: "there", TimeMs: 600, DurationMs: 700}
	assert.InDelta(t, 1.3, m.End(), 1e-9)

	noDur := SpeechMark{Type: MarkWord, Value: "a", TimeMs: 1000}
	assert.InDelta(t, 1.25, noDur.End(), 1e-9)
}

func TestSplitLabels(t *testing.T) {
	assert.Equal(t, []string{"eiffel tower", "paris skyline"}, SplitLabels(" eiffel tower, ,paris skyline "))
	assert.Nil(t, SplitLabels(" , "))
}

func TestDeriveStatusAndSetBlock(t *testing.T) {
	j := &Job{}
	assert.Equal(t, StatusCreated, DeriveStatus(j))

	require.NoError(t, j.SetBlock(BlockScript, &ScriptBlock{Text: "hi"}))
	require.NoError(t, j.SetBlock(BlockAudio, AudioBlock{DurationSec: 1}))
	assert.True(t, j.Has(BlockAudio))
	assert.Equal(t, StatusAudioGenerated, DeriveStatus(j))

	require.NoError(t, j.SetBlock(BlockAudio, nil))
	assert.False(t, j.Has(BlockAudio))
	assert.Equal(t, StatusScriptGenerated, DeriveStatus(j))

	err := j.SetBlock(BlockClips, &ScriptBlock{})
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestDownstream(t *testing.T) {
	assert.Equal(t, []Stage{StageSubtitles, StageUpload}, Downstream(StageSubtitles))
	assert.Len(t, Downstream(StageScript), len(Stages))
	assert.Nil(t, Downstream(Stage("bogus")))
}
