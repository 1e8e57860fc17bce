package music

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"video-pipeline/internal/config"
	"video-pipeline/internal/media"
	"video-pipeline/internal/providers"
	"video-pipeline/internal/types"
)

// Jamendo searches Creative Commons tracks tagged with the mood.
type Jamendo struct {
	baseURL    string
	clientID   string
	attempts   int
	httpClient *http.Client
	download   *providers.Downloader
	runner     media.Runner
	log        zerolog.Logger
}

func NewJamendo(cfg config.JamendoConfig, timeouts config.TimeoutsConfig, attempts int, runner media.Runner, log zerolog.Logger) *Jamendo {
	return &Jamendo{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		clientID:   cfg.ClientID,
		attempts:   attempts,
		httpClient: &http.Client{Timeout: timeouts.Search.Std()},
		download: &providers.Downloader{
			Client:   &http.Client{Timeout: timeouts.Download.Std()},
			MinBytes: 16 * 1024,
			MaxBytes: 40 * 1024 * 1024,
		},
		runner: runner,
		log:    log.With().Str("component", "music").Str("provider", "jamendo").Logger(),
	}
}

func (j *Jamendo) Name() string { return "jamendo" }

type jamendoTrack struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	ArtistName           string `json:"artist_name"`
	Duration             int    `json:"duration"`
	Audio                string `json:"audio"`
	AudioDownload        string `json:"audiodownload"`
	AudioDownloadAllowed bool   `json:"audiodownload_allowed"`
}

func (j *Jamendo) Find(ctx context.Context, mood, dst string) (*Track, error) {
	if j.clientID == "" {
		return nil, nil
	}
	var tracks []jamendoTrack
	err := providers.Retry(ctx, j.attempts, func(int) error {
		var err error
		tracks, err = j.search(ctx, mood)
		return err
	})
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, t := range tracks {
		src := t.Audio
		if t.AudioDownloadAllowed && t.AudioDownload != "" {
			src = t.AudioDownload
		}
		if src == "" {
			continue
		}
		if _, err := j.download.Download(ctx, src, dst); err != nil {
			errs = append(errs, fmt.Errorf("track %s: %w", t.ID, err))
			continue
		}
		dur, err := validate(ctx, j.runner, dst)
		if err != nil {
			errs = append(errs, fmt.Errorf("track %s: %w", t.ID, err))
			continue
		}
		title := t.Name
		if t.ArtistName != "" {
			title = t.Name + " - " + t.ArtistName
		}
		return &Track{Title: title, Provider: j.Name(), Path: dst, DurationSec: dur}, nil
	}
	if len(errs) > 0 {
		j.log.Debug().Err(errors.Join(errs...)).Str("mood", mood).Msg("no usable jamendo track")
	}
	return nil, nil
}

func (j *Jamendo) search(ctx context.Context, mood string) ([]jamendoTrack, error) {
	params := url.Values{}
	params.Set("client_id", j.clientID)
	params.Set("format", "json")
	params.Set("limit", "10")
	params.Set("tags", mood)
	params.Set("audioformat", "mp32")
	params.Set("order", "popularity_total")
	params.Set("vocalinstrumental", "instrumental")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.baseURL+"/tracks/?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, &types.ProviderError{Provider: j.Name(), Op: "search", Err: err, Retryable: providers.Retryable(err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &types.ProviderError{
			Provider:  j.Name(),
			Op:        "search",
			Err:       fmt.Errorf("HTTP %d", resp.StatusCode),
			Retryable: providers.RetryableStatus(resp.StatusCode),
		}
	}

	var body struct {
		Headers struct {
			Status       string `json:"status"`
			Code         int    `json:"code"`
			ErrorMessage string `json:"error_message"`
		} `json:"headers"`
		Results []jamendoTrack `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &types.ProviderError{Provider: j.Name(), Op: "search", Err: fmt.Errorf("decode: %w", err)}
	}
	if body.Headers.Code != 0 {
		return nil, &types.ProviderError{Provider: j.Name(), Op: "search", Err: fmt.Errorf("api error %d: %s", body.Headers.Code, body.Headers.ErrorMessage)}
	}
	j.log.Debug().Str("mood", mood).Int("results", len(body.Results)).Dur("took", time.Since(start)).Msg("jamendo search")
	return body.Results, nil
}
