// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the config reads
const EnvPrefix = "SCHEMADIFF"

// Config represents the application configuration
type Config struct {
	// Database connection
	Connection ConnectionParams `mapstructure:"connection"`

	// Pipeline settings
	Pipeline PipelineSettings `mapstructure:"pipeline"`
	Diff     DiffSettings     `mapstructure:"diff"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// PipelineSettings controls the import and apply stages
type PipelineSettings struct {
	// SQLSTATE codes the apply stage reports and skips instead of aborting
	IgnoredErrorCodes []string `mapstructure:"ignored_error_codes"`
	// Treat "object already exists" codes as ignorable
	IgnoreDuplicates bool `mapstructure:"ignore_duplicates"`

	ImportSystemObjects    bool `mapstructure:"import_system_objects"`
	ImportExtensionObjects bool `mapstructure:"import_extension_objects"`
	IgnoreImportErrors     bool `mapstructure:"ignore_import_errors"`

	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// DiffSettings holds default comparison options, overridable per run
type DiffSettings struct {
	KeepClusterObjects    bool   `mapstructure:"keep_cluster_objects"`
	Cascade               bool   `mapstructure:"cascade"`
	TruncateTables        bool   `mapstructure:"truncate_tables"`
	ForceRecreation       bool   `mapstructure:"force_recreation"`
	RecreateUnmodified    bool   `mapstructure:"recreate_unmodified"`
	KeepObjectPermissions bool   `mapstructure:"keep_object_permissions"`
	ReuseSequences        bool   `mapstructure:"reuse_sequences"`
	TargetVersion         string `mapstructure:"target_version"`
}

// LoadConfig loads configuration from an optional .env file, an optional
// config file and SCHEMADIFF_* environment variables, in increasing precedence.
func LoadConfig(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	v := NewViper()
	if err := ReadConfigFile(v, path); err != nil {
		return nil, err
	}

	return LoadWithViper(v)
}

// LoadDotEnv loads .env from the working directory if there is one
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}

// ReadConfigFile reads path into v. An empty path is a no-op.
func ReadConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// LoadWithViper unmarshals and validates configuration from a prepared viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// NewViper creates a viper instance with defaults and environment binding
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults registers every known key so AutomaticEnv can resolve it during Unmarshal
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	v.SetDefault("connection.driver", DriverPgx)
	setDatabaseDefaults(v)

	v.SetDefault("pipeline.ignored_error_codes", DefaultIgnoredErrorCodes)
	v.SetDefault("pipeline.ignore_duplicates", false)
	v.SetDefault("pipeline.import_system_objects", false)
	v.SetDefault("pipeline.import_extension_objects", false)
	v.SetDefault("pipeline.ignore_import_errors", false)
	v.SetDefault("pipeline.statement_timeout", 5*time.Minute)

	v.SetDefault("diff.keep_cluster_objects", true)
	v.SetDefault("diff.cascade", false)
	v.SetDefault("diff.truncate_tables", false)
	v.SetDefault("diff.force_recreation", false)
	v.SetDefault("diff.recreate_unmodified", false)
	v.SetDefault("diff.keep_object_permissions", true)
	v.SetDefault("diff.reuse_sequences", true)
	v.SetDefault("diff.target_version", "")
}

// DefaultIgnoredErrorCodes holds feature_not_supported, raised by statements
// some server builds reject but that do not affect the resulting structure.
var DefaultIgnoredErrorCodes = []string{"0A000"}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.Connection.Validate(); err != nil {
		return err
	}

	if c.Pipeline.StatementTimeout < 0 {
		return errors.New("statement timeout cannot be negative")
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log format %q (expected json or console)", c.LogFormat)
	}

	if c.Diff.RecreateUnmodified && !c.Diff.ForceRecreation {
		return errors.New("recreate_unmodified requires force_recreation")
	}

	return nil
}
