// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvironment(t *testing.T) {
	os.Setenv("HYPERFETCH_SAVE_PATH", "/tmp/downloads")
	os.Setenv("HYPERFETCH_CONCURRENCY", "8")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("DAEMON_ADDR", "localhost:9090")
	defer func() {
		os.Unsetenv("HYPERFETCH_SAVE_PATH")
		os.Unsetenv("HYPERFETCH_CONCURRENCY")
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("DAEMON_ADDR")
	}()

	cfg := FromEnvironment()

	assert.Equal(t, "/tmp/downloads", cfg.SavePath)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "localhost:9090", cfg.DaemonAddr)
}

func TestLoad_appliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hyperfetch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("save_path: /data/out\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/out", cfg.SavePath)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "auto", cfg.PathPolicy.Naming)
	assert.Equal(t, "rename", cfg.PathPolicy.Conflict)
}

func TestLoad_missingFile(t *testing.T) {
	_, err := Load("/nonexistent/hyperfetch.yaml")
	require.Error(t, err)
}

func TestToOptions_buildsRateLimiters(t *testing.T) {
	cfg := FromEnvironment()
	cfg.RateLimit = &RateLimitConfig{BytesPerSecond: 1024, PerConnectionBytesPerSec: 256}

	opts, err := cfg.ToOptions()
	require.NoError(t, err)

	require.NotNil(t, opts.RateLimiter)
	require.NotNil(t, opts.PerConnectionRateLimiter)
	assert.Equal(t, float64(1024), float64(opts.RateLimiter.Limit()))
}

func TestToOptions_rejectsUnknownPathPolicyMode(t *testing.T) {
	cfg := FromEnvironment()
	cfg.PathPolicy.Naming = "bogus"

	_, err := cfg.ToOptions()
	require.Error(t, err)
}

func TestVaultStore_nilWhenUnconfigured(t *testing.T) {
	cfg := FromEnvironment()
	store, err := cfg.VaultStore()
	require.NoError(t, err)
	assert.Nil(t, store)
}
