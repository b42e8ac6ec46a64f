package logging

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/discord-age-gate/internal/config"
)

func TestNewPicksFormatterAndLevel(t *testing.T) {
	log, closer := New(config.Config{Env: "development", LogLevel: "debug"})
	defer closer.Close()
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)

	log, closer = New(config.Config{Env: "production", LogLevel: "nonsense"})
	defer closer.Close()
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)
}

func TestNewWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.log")
	log, closer := New(config.Config{LogLevel: "info", LogFile: path})
	log.Info("hello")
	require.NoError(t, closer.Close())
	assert.FileExists(t, path)
}
