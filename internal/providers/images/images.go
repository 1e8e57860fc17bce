// Package images finds exact-match photos for "search" segments.
package images

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"video-pipeline/internal/providers"
	"video-pipeline/internal/types"
)

const userAgent = "VideoPipeline/1.0 (image lookup)"

func getJSON(ctx context.Context, client *http.Client, provider, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return &types.ProviderError{Provider: provider, Op: "search", Err: err, Retryable: providers.Retryable(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &types.ProviderError{
			Provider:  provider,
			Op:        "search",
			Err:       fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			Retryable: providers.RetryableStatus(resp.StatusCode),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &types.ProviderError{Provider: provider, Op: "search", Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

// Wikipedia looks up the page summary for the query and offers its lead image.
type Wikipedia struct {
	baseURL    string
	httpClient *http.Client
}

func NewWikipedia(baseURL string, timeout time.Duration) *Wikipedia {
	if baseURL == "" {
		baseURL = "https://en.wikipedia.org"
	}
	return &Wikipedia{baseURL: strings.TrimRight(baseURL, "/"), httpClient: &http.Client{Timeout: timeout}}
}

func (w *Wikipedia) Name() string { return "wikipedia" }

func (w *Wikipedia) Search(ctx context.Context, q types.SearchQuery) ([]types.Candidate, error) {
	title := strings.ReplaceAll(strings.TrimSpace(q.Query), " ", "_")
	if title == "" {
		return nil, nil
	}
	var result struct {
		Title         string `json:"title"`
		Extract       string `json:"extract"`
		OriginalImage struct {
			Source string `json:"source"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"originalimage"`
		Thumbnail struct {
			Source string `json:"source"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"thumbnail"`
	}
	endpoint := w.baseURL + "/api/rest_v1/page/summary/" + url.PathEscape(title)
	if err := getJSON(ctx, w.httpClient, w.Name(), endpoint, &result); err != nil {
		return nil, err
	}

	var out []types.Candidate
	add := func(src string, width, height int) {
		if src == "" {
			return
		}
		out = append(out, types.Candidate{
			ID:          src,
			Provider:    w.Name(),
			Kind:        types.MediaPhoto,
			URL:         src,
			Width:       width,
			Height:      height,
			Description: result.Title,
		})
	}
	add(result.OriginalImage.Source, result.OriginalImage.Width, result.OriginalImage.Height)
	if result.Thumbnail.Source != result.OriginalImage.Source {
		add(result.Thumbnail.Source, result.Thumbnail.Width, result.Thumbnail.Height)
	}
	return out, nil
}

// SerpAPI searches Google Images through serpapi.com.
type SerpAPI struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewSerpAPI(baseURL, apiKey string, timeout time.Duration) *SerpAPI {
	return &SerpAPI{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, httpClient: &http.Client{Timeout: timeout}}
}

func (s *SerpAPI) Name() string { return "serpapi" }

func (s *SerpAPI) Search(ctx context.Context, q types.SearchQuery) ([]types.Candidate, error) {
	if s.apiKey == "" {
		return nil, &types.ProviderError{Provider: s.Name(), Op: "search", Err: fmt.Errorf("SERPAPI_KEY not set")}
	}
	params := url.Values{}
	params.Set("engine", "google_images")
	params.Set("q", q.Query)
	params.Set("api_key", s.apiKey)
	if q.Orientation == "portrait" {
		params.Set("imgar", "t")
	} else if q.Orientation == "landscape" {
		params.Set("imgar", "w")
	}

	var result struct {
		Error         string `json:"error"`
		ImagesResults []struct {
			Original       string `json:"original"`
			OriginalWidth  int    `json:"original_width"`
			OriginalHeight int    `json:"original_height"`
			Title          string `json:"title"`
			Source         string `json:"source"`
			Link           string `json:"link"`
		} `json:"images_results"`
	}
	if err := getJSON(ctx, s.httpClient, s.Name(), s.baseURL+"/search.json?"+params.Encode(), &result); err != nil {
		return nil, err
	}
	if result.Error != "" && len(result.ImagesResults) == 0 {
		if strings.Contains(strings.ToLower(result.Error), "hasn't returned any results") {
			return nil, nil
		}
		return nil, &types.ProviderError{Provider: s.Name(), Op: "search", Err: fmt.Errorf("%s", result.Error)}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	out := make([]types.Candidate, 0, limit)
	for _, img := range result.ImagesResults {
		if img.Original == "" {
			continue
		}
		out = append(out, types.Candidate{
			ID:          img.Original,
			Provider:    s.Name(),
			Kind:        types.MediaPhoto,
			URL:         img.Original,
			PageURL:     img.Link,
			Width:       img.OriginalWidth,
			Height:      img.OriginalHeight,
			Description: img.Title,
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Pollinations generates an image for the query. It never returns zero
// candidates, which makes it the last resort of the exact-image chain.
type Pollinations struct {
	baseURL string
	model   string
	log     zerolog.Logger
}

func NewPollinations(baseURL, model string, log zerolog.Logger) *Pollinations {
	if baseURL == "" {
		baseURL = "https://image.pollinations.ai"
	}
	return &Pollinations{baseURL: strings.TrimRight(baseURL, "/"), model: model, log: log}
}

func (p *Pollinations) Name() string { return "pollinations" }

func (p *Pollinations) Search(ctx context.Context, q types.SearchQuery) ([]types.Candidate, error) {
	w, h := 1080, 1080
	if q.Aspect > 0 {
		w, h = types.AspectRatio(q.Aspect).Resolution(1080)
	}
	prompt := q.Query + ", photorealistic, natural lighting, no text, no watermark"
	params := url.Values{}
	params.Set("width", strconv.Itoa(w))
	params.Set("height", strconv.Itoa(h))
	params.Set("nologo", "true")
	if p.model != "" {
		params.Set("model", p.model)
	}
	src := p.baseURL + "/prompt/" + url.PathEscape(prompt) + "?" + params.Encode()
	return []types.Candidate{{
		ID:          q.Query,
		Provider:    p.Name(),
		Kind:        types.MediaPhoto,
		URL:         src,
		Width:       w,
		Height:      h,
		Description: q.Query,
	}}, nil
}
