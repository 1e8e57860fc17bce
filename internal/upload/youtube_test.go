package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/youtube/v3"

	"video-pipeline/internal/config"
	"video-pipeline/internal/types"
)

type fakeMeta struct {
	md  types.Metadata
	err error
}

func (f fakeMeta) GenerateMetadata(ctx context.Context, prompt, script string, titleMax, tagCount int) (types.Metadata, error) {
	return f.md, f.err
}

func testJob() *types.Job {
	return &types.Job{
		ID:            "j1",
		InitialParams: types.InitialParams{Prompt: "Why volcanoes erupt", Language: "en"},
		Script:        &types.ScriptBlock{Text: "Lava flows fast. Ash follows."},
	}
}

func writeVideo(t *testing.T) string {
	p := filepath.Join(t.TempDir(), "final.mp4")
	require.NoError(t, os.WriteFile(p, []byte("video-bytes"), 0o644))
	return p
}

func TestUploadUsesGeneratedMetadata(t *testing.T) {
	var got *youtube.Video
	var body []byte
	insert := func(ctx context.Context, v *youtube.Video, media io.Reader) (string, error) {
		got = v
		var err error
		body, err = io.ReadAll(media)
		return "abc123", err
	}
	cfg := config.UploadConfig{Visibility: "private", CategoryID: "22", TitleMaxChars: 100, TagsCount: 5}
	y := newYouTube(cfg, fakeMeta{md: types.Metadata{Title: "Lava!", Description: "desc", Tags: []string{"lava"}}}, insert, zerolog.Nop())

	up, err := y.Upload(context.Background(), testJob(), writeVideo(t))
	require.NoError(t, err)
	assert.Equal(t, "abc123", up.VideoID)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", up.URL)
	assert.Equal(t, "Lava!", up.Title)
	assert.Equal(t, "video-bytes", string(body))
	require.NotNil(t, got)
	assert.Equal(t, "22", got.Snippet.CategoryId)
	assert.Equal(t, "en", got.Snippet.DefaultAudioLanguage)
	assert.Equal(t, "private", got.Status.PrivacyStatus)
}

func TestUploadFallsBackToPrompt(t *testing.T) {
	var title string
	insert := func(ctx context.Context, v *youtube.Video, media io.Reader) (string, error) {
		title = v.Snippet.Title
		return "id", nil
	}
	cfg := config.UploadConfig{TitleMaxChars: 10}
	y := newYouTube(cfg, fakeMeta{err: errors.New("llm down")}, insert, zerolog.Nop())

	_, err := y.Upload(context.Background(), testJob(), writeVideo(t))
	require.NoError(t, err)
	assert.Equal(t, "Why vol...", title)
}

func TestUploadInsertFailure(t *testing.T) {
	insert := func(ctx context.Context, v *youtube.Video, media io.Reader) (string, error) {
		return "", errors.New("quota exceeded")
	}
	y := newYouTube(config.UploadConfig{}, nil, insert, zerolog.Nop())

	_, err := y.Upload(context.Background(), testJob(), writeVideo(t))
	var perr *types.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "youtube", perr.Provider)
}

func TestFirstSentence(t *testing.T) {
	assert.Equal(t, "Lava flows fast.", firstSentence(" Lava flows fast. Ash follows."))
	assert.Equal(t, "no stop", firstSentence("no stop"))
}
