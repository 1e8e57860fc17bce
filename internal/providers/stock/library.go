package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"video-pipeline/internal/media"
	"video-pipeline/internal/types"
)

// Library serves clips from a local directory described by a tags file
// (file name -> tags). Keys starting with "_" are ignored.
type Library struct {
	dir    string
	tags   map[string][]string
	runner media.Runner
	log    zerolog.Logger
}

func NewLibrary(dir, tagsPath string, runner media.Runner, log zerolog.Logger) (*Library, error) {
	l := &Library{
		dir:    dir,
		runner: runner,
		log:    log.With().Str("component", "stock").Str("provider", "library").Logger(),
	}
	tags, err := loadTags(tagsPath)
	if err != nil {
		return nil, fmt.Errorf("load clip tags: %w", err)
	}
	if len(tags) == 0 {
		l.log.Warn().Str("path", tagsPath).Msg("no tagged clips, library disabled")
	}
	l.tags = tags
	return l, nil
}

func (l *Library) Name() string { return "library" }

// Search scores every clip by tag overlap with the query words and returns those
// with at least one match, best first. Clips are probed for size and duration.
func (l *Library) Search(ctx context.Context, q types.SearchQuery) ([]types.Candidate, error) {
	words := strings.Fields(strings.ToLower(q.Query))
	type scored struct {
		file  string
		score int
	}
	var hits []scored
	for file, clipTags := range l.tags {
		if s := matchScore(words, clipTags); s > 0 {
			hits = append(hits, scored{file, s})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].file < hits[j].file
	})
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}

	out := make([]types.Candidate, 0, len(hits))
	for _, h := range hits {
		path := filepath.Join(l.dir, h.file)
		info, err := l.runner.Probe(ctx, path)
		if err != nil || !info.HasVideo {
			l.log.Debug().Err(err).Str("file", h.file).Msg("skip unreadable clip")
			continue
		}
		out = append(out, types.Candidate{
			ID:        h.file,
			Provider:  "library",
			Kind:      types.MediaVideo,
			URL:       "file://" + path,
			Width:     info.Width,
			Height:    info.Height,
			Duration:  info.Duration,
			Tags:      l.tags[h.file],
			LocalPath: path,
		})
	}
	return out, nil
}

// matchScore counts query words found among the clip tags; multi-word tags match
// when every word of the tag is in the query.
func matchScore(words []string, clipTags []string) int {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.Trim(w, ".,!?\"'")] = true
	}
	score := 0
	for _, t := range clipTags {
		parts := strings.Fields(strings.ToLower(t))
		if len(parts) == 0 {
			continue
		}
		all := true
		for _, p := range parts {
			if !set[p] {
				all = false
				break
			}
		}
		if all {
			score += 10 * len(parts)
		}
	}
	return score
}

func loadTags(path string) (map[string][]string, error) {
	result := make(map[string][]string)
	if path == "" {
		return result, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for k, v := range raw {
		if strings.HasPrefix(k, "_") {
			continue
		}
		var tags []string
		if err := json.Unmarshal(v, &tags); err != nil {
			continue
		}
		result[k] = tags
	}
	return result, nil
}
