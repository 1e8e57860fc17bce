// Package mediatest provides a recording media.Runner for tests.
package mediatest

import (
	"context"
	"os"
	"strings"
	"sync"

	"video-pipeline/internal/media"
)

// Call is one recorded FFmpeg invocation.
type Call struct {
	Op   string
	Args []string
}

// Output returns the output path, which is always the last argument.
func (c Call) Output() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[len(c.Args)-1]
}

// Arg returns the value following flag, or "" when absent.
func (c Call) Arg(flag string) string {
	for i := 0; i < len(c.Args)-1; i++ {
		if c.Args[i] == flag {
			return c.Args[i+1]
		}
	}
	return ""
}

// Has reports whether any argument contains sub.
func (c Call) Has(sub string) bool {
	for _, a := range c.Args {
		if strings.Contains(a, sub) {
			return true
		}
	}
	return false
}

// Runner records calls and writes OutputBytes bytes to each output path.
type Runner struct {
	mu sync.Mutex

	OutputBytes int
	// Fail, when set, decides per call whether the encode fails.
	Fail func(c Call) error
	// Probes maps a path to its probe result. Unknown paths get DefaultProbe.
	Probes       map[string]media.ProbeInfo
	DefaultProbe media.ProbeInfo
	ProbeErr     error

	calls []Call
}

var _ media.Runner = (*Runner)(nil)

func New() *Runner {
	return &Runner{
		OutputBytes:  64 * 1024,
		Probes:       map[string]media.ProbeInfo{},
		DefaultProbe: media.ProbeInfo{Duration: 3, Width: 1080, Height: 1920, HasVideo: true},
	}
}

func (r *Runner) FFmpeg(ctx context.Context, op string, args ...string) error {
	c := Call{Op: op, Args: append([]string(nil), args...)}
	r.mu.Lock()
	r.calls = append(r.calls, c)
	fail := r.Fail
	n := r.OutputBytes
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if fail != nil {
		if err := fail(c); err != nil {
			return err
		}
	}
	return os.WriteFile(c.Output(), make([]byte, n), 0o644)
}

func (r *Runner) Probe(ctx context.Context, path string) (media.ProbeInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ProbeErr != nil {
		return media.ProbeInfo{}, r.ProbeErr
	}
	if p, ok := r.Probes[path]; ok {
		return p, nil
	}
	return r.DefaultProbe, nil
}

// SetProbe registers a probe result for path.
func (r *Runner) SetProbe(path string, info media.ProbeInfo) {
	r.mu.Lock()
	r.Probes[path] = info
	r.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsFor returns the recorded calls with the given op.
func (r *Runner) CallsFor(op string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}
