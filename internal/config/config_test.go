package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "data/hookd.db", cfg.Database.Path)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, 256, cfg.Journal.BufferSize)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Empty(t, cfg.Filters)
}

func TestLoad_File(t *testing.T) {
	t.Chdir(t.TempDir())

	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 5s
journal:
  enabled: false
scripts:
  dir: scripts
  files:
    - extra.lua
filters:
  - tag: the_title
    name: text.trim
  - tag: the_title
    name: text.upper
    priority: 0
logger:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, "scripts", cfg.Scripts.Dir)
	assert.Equal(t, []string{"extra.lua"}, cfg.Scripts.Files)
	assert.Equal(t, "debug", cfg.Logger.Level)

	require.Len(t, cfg.Filters, 2)
	assert.Equal(t, "the_title", cfg.Filters[0].Tag)
	assert.Equal(t, 10, cfg.Filters[0].PriorityOr(10))
	assert.Equal(t, 0, cfg.Filters[1].PriorityOr(10))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOOKD_SERVER_PORT", "7070")
	t.Setenv("HOOKD_LOGGER_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logger.Level)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOOKD_DATABASE_PATH", "")
	require.NoError(t, os.Unsetenv("HOOKD_DATABASE_PATH"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HOOKD_DATABASE_PATH=/tmp/from-dotenv.db\n"), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-dotenv.db", cfg.Database.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Path: "x.db"},
			Journal:  JournalConfig{Enabled: true},
			Logger:   LoggerConfig{Format: "json"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "port zero", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "port too large", mutate: func(c *Config) { c.Server.Port = 70000 }},
		{name: "journal without database", mutate: func(c *Config) { c.Database.Path = "" }},
		{name: "negative buffer", mutate: func(c *Config) { c.Journal.BufferSize = -1 }},
		{name: "bad filter tag", mutate: func(c *Config) { c.Filters = []FilterBinding{{Tag: "a b", Name: "text.trim"}} }},
		{name: "missing filter name", mutate: func(c *Config) { c.Filters = []FilterBinding{{Tag: "a"}} }},
		{name: "bad log format", mutate: func(c *Config) { c.Logger.Format = "xml" }},
	}

	require.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	path, err := filepath.Abs(filepath.Join("..", "..", "configs", "hookd.yaml"))
	require.NoError(t, err)
	t.Chdir(t.TempDir())

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "scripts", cfg.Scripts.Dir)
	require.Len(t, cfg.Filters, 3)
	assert.Equal(t, 1, cfg.Filters[0].PriorityOr(10))
	assert.Equal(t, 10, cfg.Filters[1].PriorityOr(10))
	assert.Equal(t, "math.add", cfg.Filters[2].Name)
}
