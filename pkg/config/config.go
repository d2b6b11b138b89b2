// Package config provides configuration management for the bindeps tool.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. BINDEPS_LOG_LEVEL.
const EnvPrefix = "BINDEPS"

// Config holds all configuration for the application.
type Config struct {
	Index   IndexConfig   `mapstructure:"index"`
	Build   BuildConfig   `mapstructure:"build"`
	Storage StorageConfig `mapstructure:"storage"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Neo4j   Neo4jConfig   `mapstructure:"neo4j"`
	Log     LogConfig     `mapstructure:"log"`
}

// IndexConfig controls how index files are written and opened.
type IndexConfig struct {
	BufferSize int    `mapstructure:"buffer_size"` // per-channel writer buffer in bytes
	UseMmap    bool   `mapstructure:"use_mmap"`
	OutputDir  string `mapstructure:"output_dir"`
}

// BuildConfig holds index build settings.
type BuildConfig struct {
	Workers int           `mapstructure:"workers"`
	Timeout time.Duration `mapstructure:"timeout"`
	Timing  bool          `mapstructure:"timing"` // log per-phase timings
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Type        string `mapstructure:"type"` // cos or local
	Bucket      string `mapstructure:"bucket"`
	Region      string `mapstructure:"region"`
	SecretID    string `mapstructure:"secret_id"`
	SecretKey   string `mapstructure:"secret_key"`
	Domain      string `mapstructure:"domain"`     // e.g., "myqcloud.com"
	Scheme      string `mapstructure:"scheme"`     // e.g., "https" or "http"
	LocalPath   string `mapstructure:"local_path"` // for local storage
	Prefix      string `mapstructure:"prefix"`
	Compression string `mapstructure:"compression"` // zstd, gzip or none
}

// CatalogConfig holds the build catalog database configuration.
type CatalogConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Type     string `mapstructure:"type"` // sqlite, mysql or postgres
	Path     string `mapstructure:"path"` // sqlite database file
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// Neo4jConfig holds the graph export target.
type Neo4jConfig struct {
	URI       string `mapstructure:"uri"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	Database  string `mapstructure:"database"` // empty selects the server default
	BatchSize int    `mapstructure:"batch_size"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"` // empty means stderr
	Format     string `mapstructure:"format"`      // json or text
}

// Load reads configuration from the specified file path.
// A missing file is not an error; defaults and environment overrides apply.
func Load(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("bindeps")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/bindeps")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromReader loads configuration from raw content (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := newViper()

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return unmarshal(v)
}

// Default returns the configuration built from defaults and environment only.
func Default() *Config {
	cfg, err := unmarshal(newViper())
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Index defaults
	v.SetDefault("index.buffer_size", 256*1024)
	v.SetDefault("index.use_mmap", true)
	v.SetDefault("index.output_dir", ".")

	// Build defaults
	v.SetDefault("build.workers", 8)
	v.SetDefault("build.timeout", "0s")
	v.SetDefault("build.timing", false)

	// Storage defaults
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage")
	v.SetDefault("storage.prefix", "bindeps")
	v.SetDefault("storage.compression", "zstd")

	// Catalog defaults
	v.SetDefault("catalog.enabled", false)
	v.SetDefault("catalog.type", "sqlite")
	v.SetDefault("catalog.path", "./bindeps-catalog.db")
	v.SetDefault("catalog.max_conns", 4)

	// Neo4j defaults
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.user", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "")
	v.SetDefault("neo4j.batch_size", 1000)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "")
	v.SetDefault("log.format", "text")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Index.BufferSize < 64 {
		return fmt.Errorf("index buffer size must be at least 64 bytes, got %d", c.Index.BufferSize)
	}
	if c.Build.Workers < 1 {
		return fmt.Errorf("build workers must be at least 1")
	}
	if c.Build.Timeout < 0 {
		return fmt.Errorf("build timeout must not be negative")
	}

	switch c.Storage.Compression {
	case "zstd", "gzip", "none":
	default:
		return fmt.Errorf("unsupported storage compression: %s", c.Storage.Compression)
	}

	// Storage backend validation is delegated to the storage package

	if c.Catalog.Enabled {
		switch c.Catalog.Type {
		case "sqlite":
			if c.Catalog.Path == "" {
				return fmt.Errorf("catalog path is required for sqlite")
			}
		case "mysql", "postgres":
			if c.Catalog.Host == "" {
				return fmt.Errorf("catalog host is required for %s", c.Catalog.Type)
			}
		default:
			return fmt.Errorf("unsupported catalog type: %s", c.Catalog.Type)
		}
	}

	if c.Neo4j.BatchSize < 1 {
		return fmt.Errorf("neo4j batch size must be at least 1")
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format: %s", c.Log.Format)
	}

	return nil
}
