// Package logging configures the process logger.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/iliyamo/discord-age-gate/internal/config"
)

// New builds a logrus logger from the configuration. Development
// environments get human readable text, everything else JSON. When LOG_FILE
// is set, output is duplicated into a size-rotated file; the returned closer
// flushes it and must be called on shutdown.
func New(cfg config.Config) (*logrus.Logger, io.Closer) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.IsDevelopment() {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	var closer io.Closer = nopCloser{}
	if cfg.LogFile != "" {
		file := NewRotatingFile(cfg.LogFile)
		logger.SetOutput(io.MultiWriter(os.Stderr, file))
		closer = file
	}
	if err != nil {
		logger.WithField("level", cfg.LogLevel).Warn("unknown LOG_LEVEL, using info")
	}
	return logger, closer
}

// NewRotatingFile returns an append-only writer that rotates at 50MB and
// keeps a week of compressed backups.
func NewRotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50,
		MaxBackups: 7,
		MaxAge:     7,
		Compress:   true,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
