package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(oldWd)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "_t", cfg.Mapping.DiscriminatorKey)
	assert.False(t, cfg.Mapping.AlwaysDiscriminate)
	assert.True(t, cfg.Criteria.ValidateNames)
	assert.True(t, cfg.Criteria.StrictTypes)
	assert.False(t, cfg.Decode.LenientTypeMismatch)
	assert.Equal(t, 64, cfg.Decode.MaxDepth)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "docmap:", cfg.Store.Redis.Prefix)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "localhost:8080", cfg.Server.Address())
}

func TestLoadWithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(oldWd)

	content := `
mapping:
  discriminator_key: className
criteria:
  strict_types: false
store:
  backend: sqlite
  sql:
    dsn: file:test.db
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "docmap.yaml"), []byte(content), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "className", cfg.Mapping.DiscriminatorKey)
	assert.False(t, cfg.Criteria.StrictTypes)
	assert.True(t, cfg.Criteria.ValidateNames)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "file:test.db", cfg.Store.SQL.DSN)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("decode:\n  max_depth: 12\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Decode.MaxDepth)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")
}

func TestEnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(oldWd)

	t.Setenv("DOCMAP_STORE_BACKEND", "redis")
	t.Setenv("DOCMAP_STORE_REDIS_ADDR", "cache:6380")
	t.Setenv("DOCMAP_DECODE_LENIENT_TYPE_MISMATCH", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "cache:6380", cfg.Store.Redis.Addr)
	assert.True(t, cfg.Decode.LenientTypeMismatch)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Mapping: MappingConfig{DiscriminatorKey: "_t"},
			Decode:  DecodeConfig{MaxDepth: 8},
			Store:   StoreConfig{Backend: "memory"},
		}
	}
	require.NoError(t, Validate(valid()))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty discriminator key", func(c *Config) { c.Mapping.DiscriminatorKey = " " }},
		{"zero depth", func(c *Config) { c.Decode.MaxDepth = 0 }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "cassandra" }},
		{"sql without dsn", func(c *Config) { c.Store.Backend = "postgres" }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}
