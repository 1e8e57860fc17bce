// Package app wires configuration into a ready pipeline engine. Both binaries
// build through it so they share one provider set.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"video-pipeline/internal/acquire"
	"video-pipeline/internal/assemble"
	"video-pipeline/internal/config"
	"video-pipeline/internal/effects"
	"video-pipeline/internal/media"
	"video-pipeline/internal/objects"
	"video-pipeline/internal/pipeline"
	"video-pipeline/internal/providers/images"
	"video-pipeline/internal/providers/llm"
	"video-pipeline/internal/providers/music"
	"video-pipeline/internal/providers/stock"
	"video-pipeline/internal/providers/tts"
	"video-pipeline/internal/segment"
	"video-pipeline/internal/store"
	"video-pipeline/internal/subtitles"
	"video-pipeline/internal/upload"
)

// App holds the engine and the resources behind it.
type App struct {
	Engine  *pipeline.Engine
	Store   store.Store
	Objects objects.Store
	Pool    *pgxpool.Pool

	closers []func()
}

// Close releases database connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Build connects storage and constructs every collaborator from cfg.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := a.openStore(ctx, cfg, log); err != nil {
		return nil, err
	}
	if err := a.openObjects(ctx, cfg); err != nil {
		return nil, err
	}

	runner := media.NewExec(log)
	pc := cfg.Providers
	attempts := cfg.Pipeline.ProviderAttempts

	writer, err := llm.New(pc.LLM, pc.Timeouts.LLM.Std(), attempts, log)
	if err != nil {
		return nil, err
	}

	narrator := buildNarrator(cfg, log)
	musicFinder := buildMusic(cfg, runner, log)

	seg := segment.New(segment.Options{
		MaxSegmentSec:  cfg.Pipeline.MaxSegmentSec,
		TrailingPadSec: cfg.Pipeline.TrailingPadSec,
		Tolerance:      cfg.Pipeline.CoverageTolerance,
	}, writer, log)

	clips, err := a.buildAcquirer(cfg, writer, runner, log)
	if err != nil {
		return nil, err
	}

	var uploader pipeline.Uploader
	if cfg.Upload.Enabled {
		yt, err := upload.NewYouTube(ctx, cfg.Upload, writer, log)
		if err != nil {
			return nil, err
		}
		uploader = yt
	}

	a.Engine = pipeline.New(pipeline.Options{
		WorkDir:        filepath.Join(cfg.Paths.Work, "videogen"),
		DefaultMood:    llm.DefaultMood,
		Tolerance:      cfg.Pipeline.CoverageTolerance,
		TrailingPadSec: cfg.Pipeline.TrailingPadSec,
	}, pipeline.Deps{
		Store:     a.Store,
		Objects:   a.Objects,
		Runner:    runner,
		Writer:    writer,
		Narrator:  narrator,
		Music:     musicFinder,
		Segmenter: seg,
		Clips:     clips,
		Assembler: assemble.New(cfg.Visuals, cfg.Audio, runner, log),
		Captions:  subtitles.New(cfg.Subtitles, cfg.Visuals, runner, log),
		Uploader:  uploader,
	}, log)
	ok = true
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	switch cfg.Store.Driver {
	case "memory":
		log.Warn().Msg("using in-memory job store, jobs are lost on exit")
		a.Store = store.NewMemory()
		return nil
	case "postgres":
		pool, err := store.NewPool(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
		if err != nil {
			return err
		}
		a.Pool = pool
		a.closers = append(a.closers, pool.Close)
		pg := store.NewPostgres(pool, log)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		a.Store = pg
		return nil
	}
	return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func (a *App) openObjects(ctx context.Context, cfg *config.Config) error {
	switch cfg.Objects.Driver {
	case "filesystem":
		fs, err := objects.NewFileStore(cfg.Objects.LocalDir, cfg.Objects.PublicBase)
		if err != nil {
			return err
		}
		a.Objects = fs
		return nil
	case "minio":
		m, err := objects.NewMinioStore(ctx, cfg.Objects)
		if err != nil {
			return err
		}
		a.Objects = m
		return nil
	}
	return fmt.Errorf("unknown objects driver %q", cfg.Objects.Driver)
}

// buildNarrator puts ElevenLabs first when it is selected and keyed, with
// edge-tts as the fallback.
func buildNarrator(cfg *config.Config, log zerolog.Logger) *tts.Chain {
	pc := cfg.Providers
	attempts := cfg.Pipeline.ProviderAttempts
	edge := tts.NewEdge(pc.TTS.Command, cfg.Paths.Work, attempts, log)
	if pc.TTS.Engine == "elevenlabs" && pc.TTS.APIKey != "" {
		return tts.NewChain(log, tts.NewElevenLabs(pc.TTS, pc.Timeouts.TTS.Std(), attempts, log), edge)
	}
	if pc.TTS.Engine == "elevenlabs" {
		log.Warn().Msg("ELEVENLABS_API_KEY not set, narrating with edge-tts")
	}
	return tts.NewChain(log, edge)
}

func buildMusic(cfg *config.Config, runner media.Runner, log zerolog.Logger) *music.Finder {
	sources := []music.Source{
		music.NewJamendo(cfg.Providers.Jamendo, cfg.Providers.Timeouts, cfg.Pipeline.ProviderAttempts, runner, log),
	}
	if cfg.Audio.MusicLibraryDir != "" {
		sources = append(sources, music.NewLibrary(cfg.Audio.MusicLibraryDir, cfg.Audio.MoodToTrack, llm.DefaultMood, runner))
	}
	return music.NewFinder(log, sources...)
}

func (a *App) buildAcquirer(cfg *config.Config, ranker acquire.Ranker, runner media.Runner, log zerolog.Logger) (*acquire.Acquirer, error) {
	pc := cfg.Providers
	ac := cfg.Acquisition
	search := pc.Timeouts.Search.Std()

	var stockSearchers, imageSearchers []acquire.Searcher
	var px *stock.Pexels
	if pc.Pexels.APIKey != "" {
		px = stock.NewPexels(pc.Pexels, search, log)
		stockSearchers = append(stockSearchers, px.Videos())
	}
	if ac.LibraryDir != "" {
		tagsPath := ac.LibraryTags
		if tagsPath == "" {
			tagsPath = filepath.Join(ac.LibraryDir, "tags.json")
		}
		lib, err := stock.NewLibrary(ac.LibraryDir, tagsPath, runner, log)
		if err != nil {
			return nil, err
		}
		stockSearchers = append(stockSearchers, lib)
	}
	if len(stockSearchers) == 0 {
		return nil, errors.New("no stock footage source: set PEXELS_API_KEY or acquisition.library_dir")
	}

	imageSearchers = append(imageSearchers, images.NewWikipedia("", search))
	if pc.SerpAPI.APIKey != "" {
		imageSearchers = append(imageSearchers, images.NewSerpAPI(pc.SerpAPI.BaseURL, pc.SerpAPI.APIKey, search))
	}
	if px != nil {
		imageSearchers = append(imageSearchers, px.Photos())
	}
	imageSearchers = append(imageSearchers, images.NewPollinations("", ac.PollinationsModel, log))

	var failures acquire.FailureLog = acquire.NewLogFailures(log)
	if a.Pool != nil {
		failures = acquire.NewPostgresFailures(a.Pool, log)
	}

	return acquire.New(acquire.Options{
		BatchSize:         ac.BatchSize,
		AspectTolerance:   ac.AspectTolerance,
		MinImageBytes:     int64(ac.MinImageBytes),
		MaxImageBytes:     ac.MaxImageBytes,
		MaxCandidates:     ac.MaxCandidates,
		MinClipSec:        1,
		EffectDurationSec: cfg.Visuals.EffectDurationSec,
		SearchCacheTTL:    ac.SearchCacheTTL.Std(),
		DownloadTimeout:   pc.Timeouts.Download.Std(),
	}, acquire.Deps{
		Stock:    stockSearchers,
		Images:   imageSearchers,
		Ranker:   ranker,
		Effects:  effects.New(cfg.Visuals, runner, log),
		Runner:   runner,
		Failures: failures,
	}, log), nil
}
