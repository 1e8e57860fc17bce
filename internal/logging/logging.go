package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"video-pipeline/internal/config"
)

// New builds the process logger. Development gets a console writer on stdout,
// everything else JSON. With ToFile set, output is also appended to a rotating file.
func New(cfg config.LogConfig, logsDir string) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if cfg.Env == "development" && cfg.Level == "" {
		level = zerolog.DebugLevel
	}

	var out io.Writer = os.Stdout
	if cfg.Env == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	if cfg.ToFile {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   filepath.Join(logsDir, "videogen.log"),
			MaxSize:    cfg.MaxSize,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
