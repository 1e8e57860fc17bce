package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"video-pipeline/internal/config"
	"video-pipeline/internal/providers"
	"video-pipeline/internal/types"
)

// ElevenLabs calls the with-timestamps endpoint, which returns the audio and a
// per-character alignment in the same response.
type ElevenLabs struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	attempts   int
	log        zerolog.Logger
}

var _ Engine = (*ElevenLabs)(nil)

func NewElevenLabs(cfg config.TTSConfig, timeout time.Duration, attempts int, log zerolog.Logger) *ElevenLabs {
	return &ElevenLabs{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		attempts:   attempts,
		log:        log.With().Str("component", "tts").Str("engine", "elevenlabs").Logger(),
	}
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

type elevenRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

type elevenResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Alignment   *struct {
		Characters []string  `json:"characters"`
		Starts     []float64 `json:"character_start_times_seconds"`
		Ends       []float64 `json:"character_end_times_seconds"`
	} `json:"alignment"`
}

func (e *ElevenLabs) Narrate(ctx context.Context, req Request, dst string) (Narration, error) {
	if e.apiKey == "" {
		return Narration{}, &types.ProviderError{Provider: e.Name(), Op: "narrate", Err: fmt.Errorf("ELEVENLABS_API_KEY not set")}
	}
	if req.Voice == "" {
		return Narration{}, &types.ValidationError{Subject: "voice", Reason: "empty voice id"}
	}

	body, err := json.Marshal(elevenRequest{Text: req.Text, ModelID: e.model})
	if err != nil {
		return Narration{}, err
	}
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/with-timestamps?output_format=mp3_44100_128",
		e.baseURL, url.PathEscape(req.Voice))

	var out elevenResponse
	err = providers.Retry(ctx, e.attempts, func(attempt int) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("xi-api-key", e.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")

		resp, err := e.httpClient.Do(httpReq)
		if err != nil {
			e.log.Warn().Err(err).Int("attempt", attempt).Msg("request failed")
			return &types.ProviderError{Provider: e.Name(), Op: "narrate", Err: err, Retryable: providers.Retryable(err)}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			e.log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("non-200 response")
			return &types.ProviderError{
				Provider:  e.Name(),
				Op:        "narrate",
				Err:       fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
				Retryable: providers.RetryableStatus(resp.StatusCode),
			}
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return &types.ProviderError{Provider: e.Name(), Op: "narrate", Err: fmt.Errorf("decode response: %w", err), Retryable: true}
		}
		return nil
	})
	if err != nil {
		return Narration{}, err
	}

	audio, err := base64.StdEncoding.DecodeString(out.AudioBase64)
	if err != nil || len(audio) == 0 {
		return Narration{}, &types.ValidationError{Subject: "narration audio", Reason: "missing or undecodable audio"}
	}
	if out.Alignment == nil || len(out.Alignment.Characters) == 0 {
		return Narration{}, &types.ProviderError{Provider: e.Name(), Op: "narrate", Err: fmt.Errorf("response has no alignment")}
	}
	if err := os.WriteFile(dst, audio, 0o644); err != nil {
		return Narration{}, err
	}

	marks := WordsFromCharacters(out.Alignment.Characters, out.Alignment.Starts, out.Alignment.Ends)
	e.log.Info().Int("bytes", len(audio)).Int("marks", len(marks)).Msg("narration ready")
	return Narration{Engine: e.Name(), Marks: marks}, nil
}
