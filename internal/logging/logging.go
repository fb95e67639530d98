package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hunter-volkman/image-emailer/internal/config"
)

// Setup builds the process logger: console output always, plus a rotated
// log file when file logging is enabled.
func Setup(cfg *config.Config) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr}
	if !cfg.Logging.Enabled {
		return zerolog.New(console).Level(level).With().Timestamp().Logger(), nil
	}

	if err := os.MkdirAll(cfg.Logging.Dir, 0700); err != nil {
		return zerolog.Logger{}, fmt.Errorf("create logs directory: %w", err)
	}

	fileWriter := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Logging.Dir, cfg.Logging.File),
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	}

	return zerolog.New(io.MultiWriter(console, fileWriter)).
		Level(level).
		With().
		Timestamp().
		Logger(), nil
}
