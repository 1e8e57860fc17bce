package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-pipeline/internal/config"
	"video-pipeline/internal/types"
)

func TestWordsFromCharacters(t *testing.T) {
	text := "Hi there. Go"
	var chars []string
	var starts, ends []float64
	for i, r := range text {
		chars = append(chars, string(r))
		starts = append(starts, float64(i)*0.1)
		ends = append(ends, float64(i)*0.1+0.1)
	}
	marks := WordsFromCharacters(chars, starts, ends)

	var words []string
	var sentences []string
	for _, m := range marks {
		if m.Type == types.MarkWord {
			words = append(words, m.Value)
		} else {
			sentences = append(sentences, m.Value)
		}
	}
	assert.Equal(t, []string{"Hi", "there.", "Go"}, words)
	assert.Equal(t, []string{"Hi there.", "Go"}, sentences)

	// sentence mark precedes its first word
	assert.Equal(t, types.MarkSentence, marks[0].Type)
	assert.Equal(t, types.MarkWord, marks[1].Type)
	assert.EqualValues(t, 0, marks[1].TimeMs)
	assert.EqualValues(t, 200, marks[1].DurationMs)

	there := marks[2]
	assert.Equal(t, "there.", there.Value)
	assert.EqualValues(t, 300, there.TimeMs)
	assert.EqualValues(t, 600, there.DurationMs)
}

func TestParseCuesAndMarks(t *testing.T) {
	vtt := `WEBVTT

00:00:00.100 --> 00:00:00.500
Hello

00:00:00.600 --> 00:00:01.400
big world
`
	cues, err := ParseCues(strings.NewReader(vtt))
	require.NoError(t, err)
	require.Len(t, cues, 2)
	assert.InDelta(t, 0.6, cues[1].Start, 1e-9)

	marks := MarksFromCues(cues)
	var words []types.SpeechMark
	for _, m := range marks {
		if m.Type == types.MarkWord {
			words = append(words, m)
		}
	}
	require.Len(t, words, 3)
	assert.EqualValues(t, 600, words[1].TimeMs)
	assert.EqualValues(t, 1000, words[2].TimeMs)

	srt := "1\n00:00:01,000 --> 00:00:02,000\nOne\n"
	cues, err = ParseCues(strings.NewReader(srt))
	require.NoError(t, err)
	require.Len(t, cues, 1)
	assert.InDelta(t, 1.0, cues[0].Start, 1e-9)
}

func TestElevenLabsNarrate(t *testing.T) {
	audio := []byte("ID3-fake-mp3-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/voice-1/with-timestamps", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"audio_base64": base64.StdEncoding.EncodeToString(audio),
			"alignment": map[string]any{
				"characters":                    []string{"H", "i"},
				"character_start_times_seconds": []float64{0, 0.2},
				"character_end_times_seconds":   []float64{0.2, 0.5},
			},
		})
	}))
	defer srv.Close()

	e := NewElevenLabs(config.TTSConfig{BaseURL: srv.URL, APIKey: "secret"}, 5*time.Second, 1, zerolog.Nop())
	dst := filepath.Join(t.TempDir(), "n.mp3")
	n, err := e.Narrate(context.Background(), Request{Text: "Hi", Voice: "voice-1"}, dst)
	require.NoError(t, err)
	require.Len(t, n.Marks, 2)
	assert.Equal(t, "Hi", n.Marks[1].Value)
	assert.EqualValues(t, 500, n.Marks[1].DurationMs)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, audio, data)
}

type stubEngine struct {
	name string
	err  error
}

func (s stubEngine) Name() string { return s.name }

func (s stubEngine) Narrate(ctx context.Context, req Request, dst string) (Narration, error) {
	if s.err != nil {
		return Narration{}, s.err
	}
	return Narration{Engine: s.name}, nil
}

func TestChainFallsBack(t *testing.T) {
	c := NewChain(zerolog.Nop(), stubEngine{name: "a", err: errors.New("down")}, stubEngine{name: "b"})
	n, err := c.Narrate(context.Background(), Request{Text: "x"}, "")
	require.NoError(t, err)
	assert.Equal(t, "b", n.Engine)

	c = NewChain(zerolog.Nop(), stubEngine{name: "a", err: errors.New("down")})
	_, err = c.Narrate(context.Background(), Request{Text: "x"}, "")
	assert.ErrorContains(t, err, "a: down")

	_, err = c.Narrate(context.Background(), Request{Text: "  "}, "")
	var ve *types.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestEdgeVoice(t *testing.T) {
	assert.Equal(t, "fr-FR-DeniseNeural", edgeVoice("fr-FR-DeniseNeural", "fr"))
	assert.Equal(t, "de-DE-ConradNeural", edgeVoice("rachel", "de-AT"))
	assert.Equal(t, "en-US-GuyNeural", edgeVoice("", "xx"))
}
