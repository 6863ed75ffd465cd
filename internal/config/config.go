// Package config loads qdsl settings from an optional YAML file and QDSL_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/roach88/qdsl/internal/querysql"
)

// EnvPrefix prefixes every environment variable, e.g.
// QDSL_DATABASE_DSN for database.dsn.
const EnvPrefix = "QDSL"

// Config is the complete qdsl configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Schema   SchemaConfig   `mapstructure:"schema"`
	Render   RenderConfig   `mapstructure:"render"`
}

// DatabaseConfig selects the database queries run against.
type DatabaseConfig struct {
	Dialect      string `mapstructure:"dialect"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	QueryLog     bool   `mapstructure:"query_log"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// SchemaConfig locates the entity metadata.
type SchemaConfig struct {
	Path string `mapstructure:"path"`
}

// RenderConfig controls how statements are printed.
type RenderConfig struct {
	Placeholders string `mapstructure:"placeholders"` // question, dollar or "" for the dialect default
}

var defaults = map[string]any{
	"database.dialect":        string(querysql.SQLite),
	"database.dsn":            ":memory:",
	"database.max_open_conns": 0,
	"database.query_log":      false,
	"log.level":               "info",
	"log.format":              "text",
	"schema.path":             "",
	"render.placeholders":     "",
}

// Load reads the configuration. path names an optional YAML file; an empty
// path skips it. Environment variables override the file and overrides
// (keyed like "log.level") override both.
func Load(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	for k, val := range overrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if _, err := querysql.ParseDialect(c.Database.Dialect); err != nil {
		errs = append(errs, fmt.Errorf("database.dialect: %w", err))
	}
	if c.Database.MaxOpenConns < 0 {
		errs = append(errs, fmt.Errorf("database.max_open_conns: must not be negative, got %d", c.Database.MaxOpenConns))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}
	if c.Render.Placeholders != "" {
		if _, err := querysql.ParsePlaceholders(c.Render.Placeholders); err != nil {
			errs = append(errs, fmt.Errorf("render.placeholders: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Dialect returns the configured SQL dialect. It is only valid after
// Validate succeeded.
func (c *Config) Dialect() querysql.Dialect {
	d, _ := querysql.ParseDialect(c.Database.Dialect)
	return d
}

// Compiler returns a statement compiler for rendering, honoring the
// configured placeholder format.
func (c *Config) Compiler() *querysql.Compiler {
	var opts []querysql.Option
	if c.Render.Placeholders != "" {
		f, _ := querysql.ParsePlaceholders(c.Render.Placeholders)
		opts = append(opts, querysql.WithPlaceholders(f))
	}
	return querysql.NewCompiler(c.Dialect(), opts...)
}
