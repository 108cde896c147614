// Package config loads aisen client settings from YAML or JSONC files and
// the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/strongdm/aisen-go/pkg/aisen"
)

// Environment variable names for configuration.
const (
	// EnvDSN is the environment variable for the collection service DSN.
	EnvDSN = "AISEN_DSN"
	// EnvRelease is the environment variable for the release name.
	EnvRelease = "AISEN_RELEASE"
	// EnvEnvironment is the environment variable for the deployment environment.
	EnvEnvironment = "AISEN_ENVIRONMENT"
	// EnvLogger is the environment variable for the default logger name.
	EnvLogger = "AISEN_LOGGER"
	// EnvTimeout is the environment variable for the send timeout, as a Go
	// duration ("5s", "750ms").
	EnvTimeout = "AISEN_TIMEOUT"
	// EnvCompress is the environment variable to enable gzip compression.
	EnvCompress = "AISEN_COMPRESS"
)

// ErrMissingDSN is returned by Validate when no DSN is configured.
var ErrMissingDSN = errors.New("config: dsn is required")

// Config represents the complete client configuration.
type Config struct {
	DSN         string            `yaml:"dsn" json:"dsn"`
	Release     string            `yaml:"release" json:"release"`
	Environment string            `yaml:"environment" json:"environment"`
	Logger      string            `yaml:"logger" json:"logger"`
	Timeout     string            `yaml:"timeout" json:"timeout"`
	Compress    bool              `yaml:"compress" json:"compress"`
	Tags        map[string]string `yaml:"tags" json:"tags"`

	IgnoreBreadcrumbs bool `yaml:"ignore_breadcrumbs" json:"ignore_breadcrumbs"`
	StackFingerprints bool `yaml:"stack_fingerprints" json:"stack_fingerprints"`
	SystemState       bool `yaml:"system_state" json:"system_state"`

	Scrubbing ScrubbingConfig `yaml:"scrubbing" json:"scrubbing"`
}

// ScrubbingConfig configures the JSON scrubber applied to outgoing packets.
type ScrubbingConfig struct {
	Enabled       bool     `yaml:"enabled" json:"enabled"`
	SensitiveKeys []string `yaml:"sensitive_keys" json:"sensitive_keys"`
	ExtraPatterns []string `yaml:"extra_patterns" json:"extra_patterns"`
	MaxStringSize int      `yaml:"max_string_size" json:"max_string_size"`
	FailOpen      bool     `yaml:"fail_open" json:"fail_open"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Logger:  aisen.DefaultLoggerName,
		Timeout: aisen.DefaultTimeout.String(),
	}
}

// Load reads the configuration file at path on top of the defaults. Files
// ending in .yaml or .yml are YAML; .json and .jsonc files are JSON with
// comments and trailing commas allowed. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%s: parsing yaml: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("%s: parsing json: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported config format %q", path, ext)
	}

	return cfg, nil
}

// LoadWithEnv loads path and then applies the process environment.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. Unset or empty variables
// leave the field untouched.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvDSN); v != "" {
		c.DSN = v
	}
	if v := getenv(EnvRelease); v != "" {
		c.Release = v
	}
	if v := getenv(EnvEnvironment); v != "" {
		c.Environment = v
	}
	if v := getenv(EnvLogger); v != "" {
		c.Logger = v
	}
	if v := getenv(EnvTimeout); v != "" {
		c.Timeout = v
	}
	if v := getenv(EnvCompress); v != "" {
		compress, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCompress, err)
		}
		c.Compress = compress
	}
	return nil
}

// Validate checks that the configuration can build a client.
func (c *Config) Validate() error {
	if c.DSN == "" {
		return ErrMissingDSN
	}
	if _, err := aisen.ParseDSN(c.DSN); err != nil {
		return err
	}
	if _, err := c.timeout(); err != nil {
		return err
	}
	return nil
}

func (c *Config) timeout() (time.Duration, error) {
	if c.Timeout == "" {
		return aisen.DefaultTimeout, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("config: timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: timeout must be positive, got %s", c.Timeout)
	}
	return d, nil
}

// ClientOptions translates the configuration into client options.
func (c *Config) ClientOptions() ([]aisen.ClientOption, error) {
	timeout, err := c.timeout()
	if err != nil {
		return nil, err
	}

	opts := []aisen.ClientOption{
		aisen.WithTimeout(timeout),
		aisen.WithCompression(c.Compress),
		aisen.WithRelease(c.Release),
		aisen.WithEnvironment(c.Environment),
		aisen.WithTags(c.Tags),
	}
	if c.Logger != "" {
		opts = append(opts, aisen.WithLoggerName(c.Logger))
	}
	if c.IgnoreBreadcrumbs {
		opts = append(opts, aisen.WithIgnoreBreadcrumbs())
	}
	if c.StackFingerprints {
		opts = append(opts, aisen.WithStackFingerprinting())
	}
	if c.SystemState {
		opts = append(opts, aisen.WithSystemState())
	}

	scrubber, err := c.Scrubber()
	if err != nil {
		return nil, err
	}
	if scrubber != nil {
		opts = append(opts, aisen.WithScrubber(scrubber))
	}

	return opts, nil
}

// Scrubber builds the configured JSON scrubber, or returns nil when
// scrubbing is disabled.
func (c *Config) Scrubber() (aisen.Scrubber, error) {
	if !c.Scrubbing.Enabled {
		return nil, nil
	}

	scrubCfg := aisen.DefaultScrubberConfig()
	scrubCfg.SensitiveKeys = c.Scrubbing.SensitiveKeys
	scrubCfg.ExtraPatterns = c.Scrubbing.ExtraPatterns
	scrubCfg.FailClosed = !c.Scrubbing.FailOpen
	if c.Scrubbing.MaxStringSize > 0 {
		scrubCfg.MaxStringSize = c.Scrubbing.MaxStringSize
	}
	return aisen.NewJSONScrubber(scrubCfg)
}

// NewClient validates cfg and builds a client from it. Explicit options are
// applied last and take precedence.
func NewClient(cfg *Config, opts ...aisen.ClientOption) (*aisen.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfgOpts, err := cfg.ClientOptions()
	if err != nil {
		return nil, err
	}

	return aisen.NewClient(cfg.DSN, append(cfgOpts, opts...)...)
}
