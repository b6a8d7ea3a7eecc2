package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	want := Default()
	assert.Equal(t, want, cfg)
	assert.Equal(t, "127.0.0.1:3300", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Second, cfg.Backend.CallTimeout)
	assert.Equal(t, []string{"/health", "/metrics"}, cfg.Governance.BypassPrefixes)
	assert.Equal(t, "audit.db", filepath.Base(cfg.Paths.DB))
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HEADY_HTTP_ADDR", ":9000")
	t.Setenv("HEADY_BACKEND_CALL_TIMEOUT", "2s")
	t.Setenv("HEADY_BACKEND_AUTOCONNECT", "git,memory")
	t.Setenv("HEADY_AUTH_API_KEYS", "a,b")
	t.Setenv("HEADY_PATH_DB", "/tmp/x.db")
	t.Setenv("HEADY_GOVERNANCE_ENABLED", "false")
	t.Setenv("HEADY_SUPERVISOR_MAX_FAILURES", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, 2*time.Second, cfg.Backend.CallTimeout)
	assert.Equal(t, []string{"git", "memory"}, cfg.Backend.Autoconnect)
	assert.Equal(t, []string{"a", "b"}, cfg.Auth.APIKeys)
	assert.Equal(t, "/tmp/x.db", cfg.Paths.DB)
	assert.Equal(t, "mcp_config.json", filepath.Base(cfg.Paths.MCP))
	assert.False(t, cfg.Governance.Enabled)
	assert.Equal(t, 5, cfg.Supervisor.MaxFailures)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HEADY_BACKEND_CALL_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)
}
