package stock

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-pipeline/internal/config"
	"video-pipeline/internal/media"
	"video-pipeline/internal/media/mediatest"
	"video-pipeline/internal/types"
)

func TestPexelsVideos(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/videos/search", r.URL.Path)
		assert.Equal(t, "ocean waves", r.URL.Query().Get("query"))
		assert.Equal(t, "portrait", r.URL.Query().Get("orientation"))
		assert.Equal(t, "key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"videos": []map[string]any{
				{
					"id": 42, "width": 2160, "height": 3840, "duration": 12, "url": "https://www.pexels.com/video/ocean-waves-at-dusk-42/",
					"video_files": []map[string]any{
						{"file_type": "video/mp4", "width": 2160, "height": 3840, "link": "https://cdn/4k.mp4"},
						{"file_type": "video/mp4", "width": 1080, "height": 1920, "link": "https://cdn/hd.mp4"},
						{"file_type": "video/webm", "width": 1080, "height": 1920, "link": "https://cdn/hd.webm"},
					},
				},
				{"id": 43, "width": 10, "height": 10, "video_files": []map[string]any{}},
			},
		})
	}))
	defer srv.Close()

	p := NewPexels(config.PexelsConfig{BaseURL: srv.URL, APIKey: "key", PerPage: 5}, 5*time.Second, zerolog.Nop())
	got, err := p.Videos().Search(context.Background(), types.SearchQuery{Query: "ocean waves", Orientation: "portrait"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://cdn/hd.mp4", got[0].URL)
	assert.Equal(t, 1080, got[0].Width)
	assert.Equal(t, "ocean waves at dusk", got[0].Description)
	assert.Equal(t, "pexels:42", got[0].Key())
}

func TestPexelsPhotosErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewPexels(config.PexelsConfig{BaseURL: srv.URL, APIKey: "key"}, 5*time.Second, zerolog.Nop())
	_, err := p.Photos().Search(context.Background(), types.SearchQuery{Query: "x"})
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))

	noKey := NewPexels(config.PexelsConfig{BaseURL: srv.URL}, time.Second, zerolog.Nop())
	_, err = noKey.Photos().Search(context.Background(), types.SearchQuery{Query: "x"})
	assert.False(t, types.IsRetryable(err))
}

func TestLibrarySearch(t *testing.T) {
	dir := t.TempDir()
	tagsPath := filepath.Join(dir, "tags.json")
	require.NoError(t, os.WriteFile(tagsPath, []byte(`{
  "_instructions": "ignored",
  "city_night.mp4": ["city", "night", "neon lights"],
  "forest.mp4": ["forest", "trees"],
  "busy_city.mp4": ["city"]
}`), 0o644))

	runner := mediatest.New()
	runner.SetProbe(filepath.Join(dir, "city_night.mp4"), media.ProbeInfo{Duration: 8, Width: 1080, Height: 1920, HasVideo: true})

	lib, err := NewLibrary(dir, tagsPath, runner, zerolog.Nop())
	require.NoError(t, err)

	got, err := lib.Search(context.Background(), types.SearchQuery{Query: "City at night with neon lights"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "city_night.mp4", got[0].ID)
	assert.Equal(t, filepath.Join(dir, "city_night.mp4"), got[0].LocalPath)
	assert.InDelta(t, 8, got[0].Duration, 1e-9)
	assert.Equal(t, "busy_city.mp4", got[1].ID)

	none, err := lib.Search(context.Background(), types.SearchQuery{Query: "desert"})
	require.NoError(t, err)
	assert.Empty(t, none)
}
