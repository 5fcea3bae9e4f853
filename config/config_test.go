package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telcowatch/telcowatch/core"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "https://google.serper.dev", cfg.Search.BaseURL)
	assert.Equal(t, 7, cfg.Search.WindowDays)
	assert.Equal(t, 3, cfg.Pipeline.Retry.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.Retry.RateLimitDelay)
	assert.Equal(t, 280, cfg.Chat.DeepLengthThreshold)
	assert.NotEmpty(t, cfg.Chat.StrategicKeywords)

	// All three streams come configured out of the box.
	require.Len(t, cfg.Streams, 3)
	for _, s := range core.KnownStreams() {
		sc, err := cfg.StreamByName(s)
		require.NoError(t, err)
		assert.NotEmpty(t, sc.Queries)
		assert.NotEmpty(t, sc.Allowlist)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telcowatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
logging:
  level: debug
streams:
  - name: legal
    queries: ["custom query"]
    allowlist: ["example.pl"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)

	require.Len(t, cfg.Streams, 1)
	sc, err := cfg.StreamByName(core.StreamLegal)
	require.NoError(t, err)
	assert.Equal(t, []string{"custom query"}, sc.Queries)

	_, err = cfg.StreamByName(core.StreamPolitical)
	assert.Error(t, err)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telcowatch.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
	assert.Equal(t, Default().Pipeline.Retry, cfg.Pipeline.Retry)
	assert.Len(t, cfg.Streams, 3)

	// Refuses to clobber an existing file.
	assert.Error(t, WriteDefault(path))
}
