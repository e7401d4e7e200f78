package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "marketchat", cfg.Database.DatabaseName)
	assert.Equal(t, 5*time.Second, cfg.Realtime.TypingExpiry)
	assert.Equal(t, 3*time.Second, cfg.Realtime.PresenceDebounce)
	assert.True(t, cfg.Policy.EnforcementActive)
	assert.True(t, cfg.Migration.RunOnStartup)

	// every tier has a budget out of the box
	for _, tier := range []string{"free", "plus", "pro"} {
		limit, ok := cfg.Policy.Tiers[tier]
		require.True(t, ok, tier)
		assert.Greater(t, limit.RPS, 0.0)
		assert.Greater(t, limit.Burst, 0)
	}
	assert.Greater(t, cfg.Policy.Tiers["pro"].Burst, cfg.Policy.Tiers["free"].Burst)

	// oldest generations default to read-only, the newest still accepts writes
	assert.Equal(t, "read-only", cfg.Deprecation.V1.Mode)
	assert.Equal(t, "read-only", cfg.Deprecation.V2.Mode)
	assert.Equal(t, "full", cfg.Deprecation.V3.Mode)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
policy:
  enforcement_active: false
deprecation:
  v1:
    mode: shutdown
    sunset: "2025-11-30"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.False(t, cfg.Policy.EnforcementActive)
	assert.Equal(t, "shutdown", cfg.Deprecation.V1.Mode)
	assert.Equal(t, "2025-11-30", cfg.Deprecation.V1.Sunset)

	// untouched sections keep their defaults
	assert.Equal(t, "marketchat", cfg.Database.DatabaseName)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":7070")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("POLICY_ENFORCE", "false")
	t.Setenv("DEPRECATION_V3_MODE", "read-only")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.False(t, cfg.Policy.EnforcementActive)
	assert.Equal(t, "read-only", cfg.Deprecation.V3.Mode)
}

func TestDSN(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Username:     "chat",
		Password:     "pw",
		Host:         "db.internal",
		Port:         "3307",
		DatabaseName: "marketchat",
	}}
	assert.Equal(t,
		"chat:pw@tcp(db.internal:3307)/marketchat?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DSN())

	// host and port fall back when unset
	cfg = &Config{Database: DatabaseConfig{DatabaseName: "marketchat"}}
	assert.Contains(t, cfg.DSN(), "@tcp(localhost:3306)/marketchat")
}
