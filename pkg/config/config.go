// Package config assembles cvemap settings from an optional yaml file, a
// .env file and the environment. Command-line flags are applied by the
// caller on top of the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/exploopio/cvemap/pkg/core"
	cmerrors "github.com/exploopio/cvemap/pkg/errors"
	"github.com/exploopio/cvemap/pkg/nvd"
	"github.com/exploopio/cvemap/pkg/tables"
)

// Environment variables read by Load.
const (
	EnvNVDURL           = "CVEMAP_NVD_URL"
	EnvNVDAPIKey        = "NVD_API_KEY"
	EnvNVDTimeout       = "CVEMAP_NVD_TIMEOUT"
	EnvTechniquesFile   = "CVEMAP_TECHNIQUES_FILE"
	EnvThreatActorsFile = "CVEMAP_THREAT_ACTORS_FILE"
	EnvMitigationsFile  = "CVEMAP_MITIGATIONS_FILE"
	EnvMetricsFile      = "CVEMAP_METRICS_FILE"
	EnvNoColor          = "NO_COLOR"
	EnvLogLevel         = "CVEMAP_LOG_LEVEL"
)

const (
	// DefaultLogLevel keeps stderr quiet unless something goes wrong.
	DefaultLogLevel = "warn"

	// MaxNVDTimeout caps nvd.timeout.
	MaxNVDTimeout = 5 * time.Minute
)

var logLevels = []string{"debug", "info", "warn", "warning", "error", "silent", "off", "none"}

// Config is the full cvemap configuration.
type Config struct {
	NVD    nvd.Config   `yaml:"nvd"`
	Tables tables.Paths `yaml:"tables"`
	Output Output       `yaml:"output"`

	// LogLevel is one of debug, info, warn, error, silent.
	LogLevel string `yaml:"log_level"`

	// Verbose forces debug logging.
	Verbose bool `yaml:"verbose"`
}

// Output controls how results are presented and exported.
type Output struct {
	JSON        bool   `yaml:"json"`
	NoColor     bool   `yaml:"no_color"`
	MetricsFile string `yaml:"metrics_file"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		NVD:    nvd.Config{BaseURL: nvd.DefaultBaseURL},
		Tables:   tables.DefaultPaths(),
		LogLevel: DefaultLogLevel,
	}
}

// Load builds a Config. path names an optional yaml file; an empty path
// skips it. envFiles are tried in order with godotenv and the first one
// that exists is loaded; variables already set in the process win.
func Load(path string, envFiles ...string) (*Config, error) {
	const op = "config.Load"

	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, cmerrors.E(cmerrors.KindInvalidInput, op, "config file "+path, err)
		}
	}

	for _, f := range envFiles {
		err := godotenv.Load(f)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, cmerrors.E(cmerrors.KindInvalidInput, op, "env file "+f, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, cmerrors.E(cmerrors.KindInvalidInput, op, "environment", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables in config
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.NVD.BaseURL = getEnvOrDefault(EnvNVDURL, c.NVD.BaseURL)
	c.NVD.APIKey = getEnvOrDefault(EnvNVDAPIKey, c.NVD.APIKey)
	c.Tables.Techniques = getEnvOrDefault(EnvTechniquesFile, c.Tables.Techniques)
	c.Tables.ThreatActors = getEnvOrDefault(EnvThreatActorsFile, c.Tables.ThreatActors)
	c.Tables.Mitigations = getEnvOrDefault(EnvMitigationsFile, c.Tables.Mitigations)
	c.Output.MetricsFile = getEnvOrDefault(EnvMetricsFile, c.Output.MetricsFile)
	c.LogLevel = getEnvOrDefault(EnvLogLevel, c.LogLevel)

	// https://no-color.org: any non-empty value disables colour.
	if os.Getenv(EnvNoColor) != "" {
		c.Output.NoColor = true
	}

	if v := os.Getenv(EnvNVDTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvNVDTimeout, err)
		}
		c.NVD.Timeout = d
	}
	return nil
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	v := core.NewValidator()
	v.Required("nvd.base_url", c.NVD.BaseURL)
	v.HTTPURL("nvd.base_url", c.NVD.BaseURL)
	v.APIKey("nvd.api_key", c.NVD.APIKey)
	v.MinDuration("nvd.timeout", c.NVD.Timeout, 0)
	v.MaxDuration("nvd.timeout", c.NVD.Timeout, MaxNVDTimeout)
	v.OneOf("log_level", strings.ToLower(c.LogLevel), logLevels)
	v.Required("tables.techniques", c.Tables.Techniques)
	v.Required("tables.threat_actors", c.Tables.ThreatActors)
	v.Required("tables.mitigations", c.Tables.Mitigations)

	if err := v.Validate(); err != nil {
		return cmerrors.E(cmerrors.KindInvalidInput, "config.Validate", "invalid configuration", err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
