package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"video-pipeline/internal/types"
)

// Runner executes the external encoding engine. Every call blocks until the
// subprocess exits.
type Runner interface {
	// FFmpeg runs ffmpeg with args. op names the operation for errors and logs.
	FFmpeg(ctx context.Context, op string, args ...string) error
	// Probe reads container duration and the first video stream size.
	Probe(ctx context.Context, path string) (ProbeInfo, error)
}

// ProbeInfo is what ffprobe reports about a media file.
type ProbeInfo struct {
	Duration float64
	Width    int
	Height   int
	HasVideo bool
	HasAudio bool
}

// Exec runs the real ffmpeg and ffprobe binaries.
type Exec struct {
	FFmpegBin  string
	FFprobeBin string
	log        zerolog.Logger
}

var _ Runner = (*Exec)(nil)

func NewExec(log zerolog.Logger) *Exec {
	return &Exec{
		FFmpegBin:  "ffmpeg",
		FFprobeBin: "ffprobe",
		log:        log.With().Str("component", "media").Logger(),
	}
}

const stderrTail = 2048

func (e *Exec) FFmpeg(ctx context.Context, op string, args ...string) error {
	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	cmd := exec.CommandContext(ctx, e.FFmpegBin, full...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.log.Debug().Str("op", op).Strs("args", full).Msg("ffmpeg")
	if err := cmd.Run(); err != nil {
		return &types.EncodingError{Op: op, Err: err, Stderr: tail(stderr.String(), stderrTail)}
	}
	return nil
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

func (e *Exec) Probe(ctx context.Context, path string) (ProbeInfo, error) {
	out, err := exec.CommandContext(ctx, e.FFprobeBin,
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type,width,height,duration",
		"-of", "json",
		path,
	).Output()
	if err != nil {
		var stderr string
		if ee, ok := err.(*exec.ExitError); ok {
			stderr = tail(string(ee.Stderr), stderrTail)
		}
		return ProbeInfo{}, &types.EncodingError{Op: "probe", Err: err, Stderr: stderr}
	}
	return ParseProbe(out)
}

// ParseProbe decodes ffprobe JSON output.
func ParseProbe(data []byte) (ProbeInfo, error) {
	var po probeOutput
	if err := json.Unmarshal(data, &po); err != nil {
		return ProbeInfo{}, fmt.Errorf("decode ffprobe output: %w", err)
	}
	var info ProbeInfo
	info.Duration = parseSeconds(po.Format.Duration)
	for _, s := range po.Streams {
		switch s.CodecType {
		case "video":
			if !info.HasVideo {
				info.Width, info.Height = s.Width, s.Height
			}
			info.HasVideo = true
		case "audio":
			info.HasAudio = true
		}
		if info.Duration == 0 {
			info.Duration = parseSeconds(s.Duration)
		}
	}
	return info, nil
}

func parseSeconds(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Seconds formats a duration argument the way every ffmpeg call here expects.
func Seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
