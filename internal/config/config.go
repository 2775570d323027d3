package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/hookbus/pkg/utils"
)

// EnvPrefix prefixes environment overrides, e.g. HOOKD_SERVER_PORT
const EnvPrefix = "HOOKD"

// Config holds all application configuration
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Journal  JournalConfig   `mapstructure:"journal"`
	Scripts  ScriptsConfig   `mapstructure:"scripts"`
	Filters  []FilterBinding `mapstructure:"filters"`
	Logger   LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// JournalConfig controls the run journal
type JournalConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
}

// ScriptsConfig lists Lua scripts to load at startup
type ScriptsConfig struct {
	Dir   string   `mapstructure:"dir"`
	Files []string `mapstructure:"files"`
}

// FilterBinding attaches a built-in filter to a tag
type FilterBinding struct {
	Tag      string `mapstructure:"tag"`
	Name     string `mapstructure:"name"`
	Priority *int   `mapstructure:"priority"` // nil means the default priority
}

// PriorityOr returns the configured priority or def when none is set
func (f FilterBinding) PriorityOr(def int) int {
	if f.Priority == nil {
		return def
	}
	return *f.Priority
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads configuration from configPath (optional), an optional .env file
// next to the working directory, and HOOKD_* environment variables
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.path", "data/hookd.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.buffer_size", 256)

	v.SetDefault("scripts.dir", "")
	v.SetDefault("scripts.files", []string{})

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	if c.Journal.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database.path is required when the journal is enabled")
	}

	if c.Journal.BufferSize < 0 {
		return fmt.Errorf("journal.buffer_size must not be negative")
	}

	for i, f := range c.Filters {
		if err := utils.ValidateTag(f.Tag); err != nil {
			return fmt.Errorf("filters[%d]: %w", i, err)
		}
		if f.Name == "" {
			return fmt.Errorf("filters[%d]: name is required", i)
		}
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console: %s", c.Logger.Format)
	}

	return nil
}
