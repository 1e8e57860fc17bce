package images

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-pipeline/internal/types"
)

func TestWikipediaSummaryImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/rest_v1/page/summary/Eiffel_Tower":
			w.Write([]byte(`{"title":"Eiffel Tower",
				"originalimage":{"source":"https://upload.example/eiffel.jpg","width":2000,"height":3000},
				"thumbnail":{"source":"https://upload.example/eiffel_320.jpg","width":320,"height":480}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	wiki := NewWikipedia(srv.URL, 5*time.Second)
	got, err := wiki.Search(context.Background(), types.SearchQuery{Query: "Eiffel Tower"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://upload.example/eiffel.jpg", got[0].URL)
	assert.Equal(t, types.MediaPhoto, got[0].Kind)
	assert.InDelta(t, 2.0/3.0, got[0].Aspect(), 1e-9)
	assert.Equal(t, "Eiffel Tower", got[0].Description)

	none, err := wiki.Search(context.Background(), types.SearchQuery{Query: "No Such Page"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSerpAPI(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"images_results":[
			{"original":"https://a.example/1.jpg","original_width":1080,"original_height":1920,"title":"one"},
			{"original":"","title":"broken"},
			{"original":"https://a.example/2.jpg","original_width":800,"original_height":600,"title":"two"}]}`))
	}))
	defer srv.Close()

	s := NewSerpAPI(srv.URL, "k", 5*time.Second)
	got, err := s.Search(context.Background(), types.SearchQuery{Query: "mount fuji", Orientation: "portrait", Limit: 5})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "google_images", gotQuery.Get("engine"))
	assert.Equal(t, "mount fuji", gotQuery.Get("q"))
	assert.Equal(t, "t", gotQuery.Get("imgar"))
	assert.Equal(t, "serpapi:https://a.example/2.jpg", got[1].Key())

	_, err = NewSerpAPI(srv.URL, "", time.Second).Search(context.Background(), types.SearchQuery{Query: "x"})
	var pe *types.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.False(t, pe.Retryable)
}

func TestSerpAPIServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewSerpAPI(srv.URL, "k", time.Second).Search(context.Background(), types.SearchQuery{Query: "x"})
	assert.True(t, types.IsRetryable(err))
}

func TestPollinationsAlwaysReturnsOne(t *testing.T) {
	p := NewPollinations("https://img.example", "flux", zerolog.Nop())
	got, err := p.Search(context.Background(), types.SearchQuery{Query: "ancient library", Aspect: 0.5625})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1080, got[0].Width)
	assert.Equal(t, 1920, got[0].Height)
	assert.True(t, strings.HasPrefix(got[0].URL, "https://img.example/prompt/ancient%20library"))
	assert.Contains(t, got[0].URL, "model=flux")
}
