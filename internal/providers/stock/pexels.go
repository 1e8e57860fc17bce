package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"video-pipeline/internal/config"
	"video-pipeline/internal/providers"
	"video-pipeline/internal/types"
)

// Pexels searches the Pexels video and photo APIs.
type Pexels struct {
	baseURL    string
	apiKey     string
	perPage    int
	httpClient *http.Client
	log        zerolog.Logger
}

func NewPexels(cfg config.PexelsConfig, timeout time.Duration, log zerolog.Logger) *Pexels {
	return &Pexels{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		perPage:    cfg.PerPage,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "stock").Str("provider", "pexels").Logger(),
	}
}

// Videos adapts Pexels video search to the stock-video provider shape.
func (p *Pexels) Videos() *PexelsVideos { return &PexelsVideos{p} }

// Photos adapts Pexels photo search to the image provider shape.
func (p *Pexels) Photos() *PexelsPhotos { return &PexelsPhotos{p} }

type PexelsVideos struct{ p *Pexels }

func (v *PexelsVideos) Name() string { return "pexels-video" }

type pexelsVideoResponse struct {
	Videos []struct {
		ID       int      `json:"id"`
		Width    int      `json:"width"`
		Height   int      `json:"height"`
		Duration float64  `json:"duration"`
		URL      string   `json:"url"`
		Tags     []string `json:"tags"`
		Files    []struct {
			Quality  string `json:"quality"`
			FileType string `json:"file_type"`
			Width    int    `json:"width"`
			Height   int    `json:"height"`
			Link     string `json:"link"`
		} `json:"video_files"`
	} `json:"videos"`
}

func (v *PexelsVideos) Search(ctx context.Context, q types.SearchQuery) ([]types.Candidate, error) {
	var resp pexelsVideoResponse
	if err := v.p.get(ctx, "/videos/search", q, &resp); err != nil {
		return nil, err
	}
	out := make([]types.Candidate, 0, len(resp.Videos))
	for _, vid := range resp.Videos {
		best, bw, bh := "", 0, 0
		bestScore := math.MaxFloat64
		for _, f := range vid.Files {
			if f.FileType != "video/mp4" || f.Link == "" || f.Width == 0 || f.Height == 0 {
				continue
			}
			short := math.Min(float64(f.Width), float64(f.Height))
			score := math.Abs(short - 1080)
			if score < bestScore {
				best, bw, bh, bestScore = f.Link, f.Width, f.Height, score
			}
		}
		if best == "" {
			continue
		}
		out = append(out, types.Candidate{
			ID:          strconv.Itoa(vid.ID),
			Provider:    "pexels",
			Kind:        types.MediaVideo,
			URL:         best,
			PageURL:     vid.URL,
			Width:       bw,
			Height:      bh,
			Duration:    vid.Duration,
			Tags:        vid.Tags,
			Description: slugDescription(vid.URL),
		})
	}
	return out, nil
}

type PexelsPhotos struct{ p *Pexels }

func (ph *PexelsPhotos) Name() string { return "pexels-photo" }

type pexelsPhotoResponse struct {
	Photos []struct {
		ID     int    `json:"id"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
		URL    string `json:"url"`
		Alt    string `json:"alt"`
		Src    struct {
			Original string `json:"original"`
			Large2x  string `json:"large2x"`
		} `json:"src"`
	} `json:"photos"`
}

func (ph *PexelsPhotos) Search(ctx context.Context, q types.SearchQuery) ([]types.Candidate, error) {
	var resp pexelsPhotoResponse
	if err := ph.p.get(ctx, "/v1/search", q, &resp); err != nil {
		return nil, err
	}
	out := make([]types.Candidate, 0, len(resp.Photos))
	for _, photo := range resp.Photos {
		src := photo.Src.Large2x
		if src == "" {
			src = photo.Src.Original
		}
		if src == "" {
			continue
		}
		out = append(out, types.Candidate{
			ID:          strconv.Itoa(photo.ID),
			Provider:    "pexels",
			Kind:        types.MediaPhoto,
			URL:         src,
			PageURL:     photo.URL,
			Width:       photo.Width,
			Height:      photo.Height,
			Description: photo.Alt,
		})
	}
	return out, nil
}

func (p *Pexels) get(ctx context.Context, path string, q types.SearchQuery, v any) error {
	if p.apiKey == "" {
		return &types.ProviderError{Provider: "pexels", Op: "search", Err: fmt.Errorf("PEXELS_API_KEY not set")}
	}
	params := url.Values{}
	params.Set("query", q.Query)
	params.Set("per_page", strconv.Itoa(p.limit(q)))
	if q.Orientation != "" {
		params.Set("orientation", q.Orientation)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &types.ProviderError{Provider: "pexels", Op: "search", Err: err, Retryable: providers.Retryable(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &types.ProviderError{
			Provider:  "pexels",
			Op:        "search",
			Err:       fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			Retryable: providers.RetryableStatus(resp.StatusCode),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &types.ProviderError{Provider: "pexels", Op: "search", Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func (p *Pexels) limit(q types.SearchQuery) int {
	if q.Limit > 0 && q.Limit < 80 {
		return q.Limit
	}
	if p.perPage > 0 {
		return p.perPage
	}
	return 15
}

// slugDescription turns https://www.pexels.com/video/waves-crashing-on-rocks-1234/ into
// "waves crashing on rocks".
func slugDescription(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	slug := parts[len(parts)-1]
	words := strings.Split(slug, "-")
	if len(words) > 1 {
		if _, err := strconv.Atoi(words[len(words)-1]); err == nil {
			words = words[:len(words)-1]
		}
	}
	return strings.Join(words, " ")
}
