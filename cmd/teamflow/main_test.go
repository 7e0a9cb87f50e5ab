package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/teamflow/config"
)

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.LogConfig
		level zapcore.Level
	}{
		{"defaults", config.LogConfig{}, zapcore.InfoLevel},
		{"debug console", config.LogConfig{Level: "debug", Format: "console"}, zapcore.DebugLevel},
		{"warn json", config.LogConfig{Level: "warn", Format: "json", EnableCaller: true}, zapcore.WarnLevel},
		{"invalid level", config.LogConfig{Level: "loud"}, zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := initLogger(tt.cfg)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.level))
			assert.False(t, logger.Core().Enabled(tt.level-1))
		})
	}
}

func TestInitLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teamflow.log")
	logger, err := initLogger(config.LogConfig{Level: "info", OutputPaths: []string{path}})
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, logger.Sync())
	assert.FileExists(t, path)
}

func TestRun_Commands(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 0, run([]string{"version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "TeamFlow "+Version)

	stdout.Reset()
	assert.Equal(t, 0, run([]string{"help"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "serve")

	assert.Equal(t, 1, run(nil, &stdout, &stderr))
	assert.Equal(t, 1, run([]string{"explode"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Unknown command: explode")
}

func TestRunHealthCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	var out bytes.Buffer
	require.NoError(t, runHealthCheck([]string{"--addr", healthy.URL + "/"}, &out))
	assert.Equal(t, "OK\n", out.String())

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()

	err := runHealthCheck([]string{"--addr", unhealthy.URL}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
