package acquire

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"video-pipeline/internal/effects"
	"video-pipeline/internal/types"
)

// fromImages walks the image providers in order. Each provider's candidates are
// tried closest aspect ratio first until one downloads, validates and animates.
func (a *Acquirer) fromImages(ctx context.Context, at attemptCtx) *Clip {
	for _, s := range a.images {
		// copy: results may be shared through the search cache
		cands := append([]types.Candidate(nil), a.search(ctx, s, at)...)
		sort.SliceStable(cands, func(i, j int) bool {
			return aspectDistance(cands[i], at.req.Aspect) < aspectDistance(cands[j], at.req.Aspect)
		})
		for n, c := range cands {
			if !at.ex.claim(c.Key()) {
				continue
			}
			clip, reason, err := a.animate(ctx, at, c, n)
			if err == nil {
				return clip
			}
			at.ex.release(c.Key())
			if ctx.Err() != nil {
				return nil
			}
			a.failures.record(ctx, at.failure(s.Name(), reason))
			a.log.Debug().Err(err).Str("candidate", c.Key()).Msg("image candidate rejected")
		}
	}
	return nil
}

func (a *Acquirer) animate(ctx context.Context, at attemptCtx, c types.Candidate, n int) (*Clip, string, error) {
	img := filepath.Join(at.req.WorkDir, fmt.Sprintf("img_%03d_%d_%d", at.segment, at.attempt, n))
	defer os.Remove(img)

	w, h, err := a.fetchImage(ctx, c.URL, img)
	if err != nil {
		return nil, ReasonInvalidMedia, err
	}
	out := filepath.Join(at.req.WorkDir, fmt.Sprintf("seg_%03d_%d.mp4", at.segment, at.attempt))
	res, err := a.effects.Synthesize(ctx, effects.Request{
		Image:    img,
		Output:   out,
		Aspect:   at.req.Aspect,
		Duration: max(a.opts.EffectDurationSec, at.timing.Duration),
		Width:    w,
		Height:   h,
	})
	if err != nil {
		return nil, ReasonEncoding, err
	}
	clip := at.clip(c, SourcePhoto, res.Path, res.Duration)
	clip.Effect = res.Effect
	return clip, "", nil
}

// fetchImage downloads url to dst and checks it is a real image: the sniffed
// content type, the size bounds and a header decode. Formats the standard
// decoders do not know fall back to a probe.
func (a *Acquirer) fetchImage(ctx context.Context, url, dst string) (int, int, error) {
	if _, err := a.imageDL.Download(ctx, url, dst); err != nil {
		return 0, 0, err
	}
	mt, err := mimetype.DetectFile(dst)
	if err != nil {
		return 0, 0, err
	}
	if !strings.HasPrefix(mt.String(), "image/") {
		return 0, 0, &types.ValidationError{Subject: "image", Reason: "content type " + mt.String()}
	}
	w, h, err := decodeConfig(dst)
	if err == nil {
		return w, h, nil
	}
	info, perr := a.runner.Probe(ctx, dst)
	if perr != nil || info.Width <= 0 || info.Height <= 0 {
		return 0, 0, &types.ValidationError{Subject: "image", Reason: "cannot decode " + mt.String()}
	}
	return info.Width, info.Height, nil
}

func decodeConfig(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("empty image")
	}
	return cfg.Width, cfg.Height, nil
}
