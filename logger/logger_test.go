package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/bunnhack/letsim/config"
	"github.com/bunnhack/letsim/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logger.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("chatty"))
}

func TestNewHandler(t *testing.T) {
	t.Parallel()

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := slog.New(logger.NewHandler(&buf, config.LoggerConfig{Level: "info", Format: "json"}))
		log.Debug("hidden")
		log.Info("relay request", "status", 200)

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "relay request", rec["msg"])
		assert.Equal(t, float64(200), rec["status"])
	})

	t.Run("text", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := slog.New(logger.NewHandler(&buf, config.LoggerConfig{Level: "debug"}))
		log.Debug("visible")
		assert.Contains(t, buf.String(), "msg=visible")
	})
}

func TestNew_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "letsim.log")
	log, closer, err := logger.New(config.LoggerConfig{Output: path})
	require.NoError(t, err)
	log.Info("hello")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=hello")
}

func TestNew_BadPath(t *testing.T) {
	t.Parallel()
	_, _, err := logger.New(config.LoggerConfig{Output: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}
