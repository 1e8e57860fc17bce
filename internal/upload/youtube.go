// Package upload publishes finished videos to YouTube.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"video-pipeline/internal/config"
	"video-pipeline/internal/types"
)

// MetadataWriter writes the title, description and tags of an upload.
type MetadataWriter interface {
	GenerateMetadata(ctx context.Context, prompt, script string, titleMax, tagCount int) (types.Metadata, error)
}

// inserter sends one video to the host and returns its id.
type inserter func(ctx context.Context, video *youtube.Video, media io.Reader) (string, error)

// YouTube uploads through the Data API v3 with an offline refresh token.
type YouTube struct {
	cfg    config.UploadConfig
	meta   MetadataWriter
	insert inserter
	now    func() time.Time
	log    zerolog.Logger
}

// NewYouTube authenticates with the configured refresh token.
func NewYouTube(ctx context.Context, cfg config.UploadConfig, meta MetadataWriter, log zerolog.Logger) (*YouTube, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("upload: YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET and YOUTUBE_REFRESH_TOKEN are required")
	}
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope},
	}
	// expired on purpose so the first call refreshes
	token := &oauth2.Token{RefreshToken: cfg.RefreshToken, Expiry: time.Now().Add(-time.Hour)}
	svc, err := youtube.NewService(ctx, option.WithHTTPClient(conf.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	insert := func(ctx context.Context, video *youtube.Video, media io.Reader) (string, error) {
		res, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
			NotifySubscribers(cfg.NotifySubscribers).
			Media(media).
			Context(ctx).
			Do()
		if err != nil {
			return "", err
		}
		return res.Id, nil
	}
	return newYouTube(cfg, meta, insert, log), nil
}

func newYouTube(cfg config.UploadConfig, meta MetadataWriter, insert inserter, log zerolog.Logger) *YouTube {
	return &YouTube{
		cfg:    cfg,
		meta:   meta,
		insert: insert,
		now:    time.Now,
		log:    log.With().Str("component", "upload").Logger(),
	}
}

// Upload publishes the video at videoPath and returns the upload record.
func (y *YouTube) Upload(ctx context.Context, job *types.Job, videoPath string) (*types.UploadBlock, error) {
	log := y.log.With().Str("job_id", job.ID).Logger()
	md := y.metadata(ctx, job)

	f, err := os.Open(videoPath)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	defer f.Close()
	if fi, err := f.Stat(); err == nil {
		log.Info().Str("title", md.Title).Float64("size_mb", float64(fi.Size())/1024/1024).Msg("uploading")
	}

	lang := job.InitialParams.Language
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                md.Title,
			Description:          md.Description,
			Tags:                 md.Tags,
			CategoryId:           y.cfg.CategoryID,
			DefaultLanguage:      lang,
			DefaultAudioLanguage: lang,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           y.cfg.Visibility,
			SelfDeclaredMadeForKids: y.cfg.MadeForKids,
		},
	}
	id, err := y.insert(ctx, video, f)
	if err != nil {
		return nil, &types.ProviderError{Provider: "youtube", Op: "upload", Err: err}
	}
	url := "https://www.youtube.com/watch?v=" + id
	log.Info().Str("video_id", id).Str("url", url).Msg("uploaded")
	return &types.UploadBlock{VideoID: id, URL: url, Title: md.Title, UploadedAt: y.now().UTC()}, nil
}

// metadata asks the writer for upload text and falls back to the prompt and
// script when it fails.
func (y *YouTube) metadata(ctx context.Context, job *types.Job) types.Metadata {
	script := ""
	if job.Script != nil {
		script = job.Script.Text
	}
	if y.meta != nil {
		md, err := y.meta.GenerateMetadata(ctx, job.InitialParams.Prompt, script, y.cfg.TitleMaxChars, y.cfg.TagsCount)
		if err == nil && strings.TrimSpace(md.Title) != "" {
			return md
		}
		y.log.Warn().Err(err).Str("job_id", job.ID).Msg("metadata generation failed, using prompt")
	}
	title := strings.TrimSpace(job.InitialParams.Prompt)
	if title == "" {
		title = firstSentence(script)
	}
	if r := []rune(title); y.cfg.TitleMaxChars > 3 && len(r) > y.cfg.TitleMaxChars {
		title = string(r[:y.cfg.TitleMaxChars-3]) + "..."
	}
	return types.Metadata{Title: title, Description: script}
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".!?"); i >= 0 {
		return s[:i+1]
	}
	return s
}
