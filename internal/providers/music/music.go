// Package music finds a background track for a mood.
package music

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"video-pipeline/internal/media"
	"video-pipeline/internal/types"
)

// Track is a decode-validated audio file on local disk.
type Track struct {
	Title       string
	Provider    string
	Path        string
	DurationSec float64
}

// Source finds a track for mood. dst is where a downloaded file should be written;
// sources that already hold files locally may ignore it. A nil track with a nil
// error means the source had nothing for the mood.
type Source interface {
	Name() string
	Find(ctx context.Context, mood, dst string) (*Track, error)
}

// Finder tries each source in order.
type Finder struct {
	sources []Source
	log     zerolog.Logger
}

func NewFinder(log zerolog.Logger, sources ...Source) *Finder {
	return &Finder{sources: sources, log: log.With().Str("component", "music").Logger()}
}

// Find returns the first track any source yields, or nil when none has one.
// Source errors are logged and skipped; music is never worth failing a job over.
func (f *Finder) Find(ctx context.Context, mood, dst string) (*Track, error) {
	for _, s := range f.sources {
		t, err := s.Find(ctx, mood, dst)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.log.Warn().Err(err).Str("source", s.Name()).Str("mood", mood).Msg("music source failed")
			continue
		}
		if t != nil {
			f.log.Info().Str("source", s.Name()).Str("mood", mood).Str("title", t.Title).Msg("music selected")
			return t, nil
		}
	}
	f.log.Warn().Str("mood", mood).Msg("no background music found")
	return nil, nil
}

// validate probes path and rejects files without a decodable audio stream.
func validate(ctx context.Context, runner media.Runner, path string) (float64, error) {
	info, err := runner.Probe(ctx, path)
	if err != nil {
		return 0, &types.ValidationError{Subject: "music track", Reason: err.Error()}
	}
	if !info.HasAudio || info.Duration <= 0 {
		return 0, &types.ValidationError{Subject: "music track", Reason: "no audio stream"}
	}
	return info.Duration, nil
}

// Library picks tracks from a local directory using a mood -> file map, then
// falls back to the default mood, then to any audio file in the directory.
type Library struct {
	dir         string
	moods       map[string]string
	defaultMood string
	runner      media.Runner
}

func NewLibrary(dir string, moods map[string]string, defaultMood string, runner media.Runner) *Library {
	return &Library{dir: dir, moods: moods, defaultMood: defaultMood, runner: runner}
}

func (l *Library) Name() string { return "library" }

func (l *Library) Find(ctx context.Context, mood, _ string) (*Track, error) {
	if l.dir == "" {
		return nil, nil
	}
	var errs []error
	for _, file := range l.candidates(mood) {
		path := filepath.Join(l.dir, file)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		dur, err := validate(ctx, l.runner, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", file, err))
			continue
		}
		return &Track{
			Title:       strings.TrimSuffix(file, filepath.Ext(file)),
			Provider:    l.Name(),
			Path:        path,
			DurationSec: dur,
		}, nil
	}
	return nil, errors.Join(errs...)
}

func (l *Library) candidates(mood string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(f string) {
		if f != "" && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	mood = strings.ToLower(mood)
	add(l.moods[mood])
	add(l.moods[l.defaultMood])

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return out
	}
	var rest []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".mp3", ".m4a", ".wav", ".ogg", ".aac":
			rest = append(rest, e.Name())
		}
	}
	// files named after the mood come before the rest
	sort.SliceStable(rest, func(i, j int) bool {
		mi := strings.Contains(strings.ToLower(rest[i]), mood)
		mj := strings.Contains(strings.ToLower(rest[j]), mood)
		if mi != mj {
			return mi
		}
		return rest[i] < rest[j]
	})
	for _, f := range rest {
		add(f)
	}
	return out
}
