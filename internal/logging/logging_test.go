package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-pipeline/internal/config"
)

func TestNewLevels(t *testing.T) {
	l := New(config.LogConfig{Level: "warn", Env: "production"}, t.TempDir())
	assert.Equal(t, zerolog.WarnLevel, l.GetLevel())

	l = New(config.LogConfig{Level: "bogus"}, t.TempDir())
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
}

func TestNewWritesFile(t *testing.T) {
	dir := t.TempDir()
	l := New(config.LogConfig{Level: "info", Env: "production", ToFile: true, MaxSize: 1}, dir)
	cl := Component(l, "test")
	cl.Info().Str("job_id", "j1").Msg("hello")

	data, err := os.ReadFile(filepath.Join(dir, "videogen.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Contains(t, string(data), `"job_id":"j1"`)
}
