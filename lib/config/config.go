// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultEnvFile is the dotenv file loaded when --env-file is not given.
const DefaultEnvFile = ".env"

// Config is the complete typbot configuration.
type Config struct {
	// Homeserver is the base URL of the Matrix homeserver. Required.
	Homeserver string `env:"HOMESERVER,required"`

	// DBDir holds the session record. Default: current directory.
	DBDir string `env:"DB_DIR" envDefault:"."`

	// Username and Password are only needed for the first login, when
	// no session record exists yet. PasswordFile names a file holding
	// the password and takes precedence over Password.
	Username     string `env:"USERNAME"`
	Password     string `env:"PASSWORD"`
	PasswordFile string `env:"PASSWORD_FILE"`

	// SessionFile is the session record path.
	// Default: $DB_DIR/session.json
	SessionFile string `env:"SESSION_FILE"`

	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// MetricsAddress enables the Prometheus endpoint when non-empty.
	MetricsAddress string `env:"METRICS_ADDR"`

	// RendererFile is the optional YAML renderer file.
	RendererFile string `env:"TYPBOT_CONFIG"`

	// Renderer comes from the YAML file only; its fields carry no
	// env tags.
	Renderer Renderer
}

// Renderer tunes the typeset command. Every field is optional in the
// YAML file; missing keys keep their [Default] values.
type Renderer struct {
	// Binary is the typst executable, resolved via PATH.
	Binary string `yaml:"binary"`

	// Args are passed to Binary. The source arrives on stdin and the
	// PNG is expected on stdout.
	Args []string `yaml:"args"`

	// Preamble is prepended to every source. Empty selects the
	// built-in theme preamble.
	Preamble string `yaml:"preamble"`

	// Prefix is the command token that starts a message.
	Prefix string `yaml:"prefix"`

	// Timeout bounds how long the compiler may take to produce output.
	Timeout time.Duration `yaml:"timeout"`

	// Freshness is the maximum age of a message that is still answered.
	Freshness time.Duration `yaml:"freshness"`
}

// Default returns the default configuration. Homeserver is left empty:
// there is no sensible default for it.
func Default() *Config {
	return &Config{
		DBDir:    ".",
		LogLevel: "info",
		Renderer: Renderer{
			Binary:    "typst",
			Args:      []string{"compile", "-", "-", "--format", "png"},
			Prefix:    ",typ",
			Timeout:   25 * time.Second,
			Freshness: 5 * time.Second,
		},
	}
}

// Options selects the files [Load] reads.
type Options struct {
	// EnvFile is the dotenv file. A missing file is not an error.
	// Default: DefaultEnvFile.
	EnvFile string

	// RendererFile overrides TYPBOT_CONFIG. A file named here or in
	// TYPBOT_CONFIG must exist.
	RendererFile string

	// Environment replaces the process environment when non-nil.
	// The dotenv file is then merged into this map instead of the
	// process environment.
	Environment map[string]string
}

// Load reads the dotenv file, parses the environment, merges the
// renderer file, and validates the result.
func Load(options Options) (*Config, error) {
	envFile := options.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := loadEnvFile(envFile, options.Environment); err != nil {
		return nil, err
	}

	cfg := Default()
	parseOptions := env.Options{}
	if options.Environment != nil {
		parseOptions.Environment = options.Environment
	}
	if err := env.ParseWithOptions(cfg, parseOptions); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.SessionFile == "" {
		cfg.SessionFile = filepath.Join(cfg.DBDir, "session.json")
	}

	if options.RendererFile != "" {
		cfg.RendererFile = options.RendererFile
	}
	if cfg.RendererFile != "" {
		if err := cfg.loadRendererFile(cfg.RendererFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile merges a dotenv file into environment, or into the
// process environment when environment is nil. Existing keys win.
func loadEnvFile(path string, environment map[string]string) error {
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading env file %s: %w", path, err)
	}
	for key, value := range values {
		if environment != nil {
			if _, exists := environment[key]; !exists {
				environment[key] = value
			}
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("setting %s from env file: %w", key, err)
		}
	}
	return nil
}

func (c *Config) loadRendererFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading renderer config: %w", err)
	}
	if err := yaml.Unmarshal(data, &c.Renderer); err != nil {
		return fmt.Errorf("parsing renderer config %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Homeserver == "" {
		errs = append(errs, fmt.Errorf("HOMESERVER is required"))
	} else if parsed, err := url.Parse(c.Homeserver); err != nil {
		errs = append(errs, fmt.Errorf("HOMESERVER is not a valid URL: %w", err))
	} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
		errs = append(errs, fmt.Errorf("HOMESERVER must use http or https, got %q", c.Homeserver))
	}

	if c.SessionFile == "" {
		errs = append(errs, fmt.Errorf("SESSION_FILE or DB_DIR is required"))
	}

	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if c.Renderer.Binary == "" {
		errs = append(errs, fmt.Errorf("renderer.binary is required"))
	}
	if strings.TrimSpace(c.Renderer.Prefix) == "" {
		errs = append(errs, fmt.Errorf("renderer.prefix is required"))
	}
	if c.Renderer.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("renderer.timeout must be positive, got %s", c.Renderer.Timeout))
	}
	if c.Renderer.Freshness <= 0 {
		errs = append(errs, fmt.Errorf("renderer.freshness must be positive, got %s", c.Renderer.Freshness))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// HasCredentials reports whether a username and a password source are
// both configured.
func (c *Config) HasCredentials() bool {
	return c.Username != "" && (c.Password != "" || c.PasswordFile != "")
}

// SlogLevel converts LogLevel to a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
}
