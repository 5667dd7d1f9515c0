// Package config loads recall's runtime configuration.
//
// Precedence, lowest to highest: built-in defaults, the YAML file
// ($RECALL_CONFIG or ~/.recall/config.yaml), then RECALL_* environment
// variables. A missing file is not an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SkipAPIValidationEnv disables the startup credential check when truthy.
const SkipAPIValidationEnv = "RECALL_SKIP_API_VALIDATION"

// Config is the full runtime configuration.
type Config struct {
	DataDir    string           `yaml:"data_dir"`
	BasePath   string           `yaml:"base_path"`
	LogLevel   string           `yaml:"log_level"`
	LogToFile  bool             `yaml:"log_to_file"`
	StrictArgs bool             `yaml:"strict_args"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Cache      CacheConfig      `yaml:"cache"`
	Search     SearchConfig     `yaml:"search"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "openai" or "local".
	Provider          string `yaml:"provider"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"api_key"`
	BaseURL           string `yaml:"base_url"`
	Dimensions        int    `yaml:"dimensions"`
	SkipAPIValidation bool   `yaml:"skip_api_validation"`
}

// JobsConfig holds the cron schedules of the background jobs.
type JobsConfig struct {
	ArchiveSchedule string        `yaml:"archive_schedule"`
	ArchiveAfter    time.Duration `yaml:"archive_after"`
	RetrySchedule   string        `yaml:"retry_schedule"`
	RetryBatch      int           `yaml:"retry_batch"`
	RetryMaxAttempt int           `yaml:"retry_max_attempts"`
}

// SessionsConfig toggles session tracking.
type SessionsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// CacheConfig configures the in-process tool cache.
type CacheConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	MaxSize int           `yaml:"max_size"`
}

// SearchConfig bounds search results.
type SearchConfig struct {
	MaxResults        int `yaml:"max_results"`
	MaxContentLength  int `yaml:"max_content_length"`
	ConstitutionalCap int `yaml:"constitutional_cap"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	cwd, _ := os.Getwd()
	return Config{
		DataDir:  filepath.Join(home, ".recall"),
		BasePath: cwd,
		LogLevel: "info",
		Embeddings: EmbeddingsConfig{
			Provider:   "local",
			Model:      "text-embedding-3-small",
			Dimensions: 256,
		},
		Jobs: JobsConfig{
			ArchiveSchedule: "@every 6h",
			ArchiveAfter:    90 * 24 * time.Hour,
			RetrySchedule:   "@every 5m",
			RetryBatch:      20,
			RetryMaxAttempt: 3,
		},
		Sessions: SessionsConfig{Enabled: true},
		Cache: CacheConfig{
			TTL:     time.Minute,
			MaxSize: 500,
		},
		Search: SearchConfig{
			MaxResults:        20,
			MaxContentLength:  20000,
			ConstitutionalCap: 5,
		},
	}
}

// Load builds the configuration from defaults, file and environment.
func Load() (Config, error) {
	cfg := Default()

	path := os.Getenv("RECALL_CONFIG")
	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.DataDir, "config.yaml")
	}
	if err := loadFile(path, &cfg); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			err = nil
		}
		if err != nil {
			return cfg, err
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("RECALL_DATA_DIR", &cfg.DataDir)
	str("RECALL_BASE_PATH", &cfg.BasePath)
	str("RECALL_LOG_LEVEL", &cfg.LogLevel)
	str("RECALL_EMBEDDINGS_PROVIDER", &cfg.Embeddings.Provider)
	str("RECALL_EMBEDDINGS_MODEL", &cfg.Embeddings.Model)
	str("RECALL_EMBEDDINGS_BASE_URL", &cfg.Embeddings.BaseURL)
	str("OPENAI_API_KEY", &cfg.Embeddings.APIKey)
	str("RECALL_ARCHIVE_SCHEDULE", &cfg.Jobs.ArchiveSchedule)
	str("RECALL_RETRY_SCHEDULE", &cfg.Jobs.RetrySchedule)

	flags := []struct {
		key string
		dst *bool
	}{
		{SkipAPIValidationEnv, &cfg.Embeddings.SkipAPIValidation},
		{"RECALL_STRICT_ARGS", &cfg.StrictArgs},
		{"RECALL_SESSIONS", &cfg.Sessions.Enabled},
		{"RECALL_LOG_TO_FILE", &cfg.LogToFile},
	}
	for _, f := range flags {
		if v, ok := lookup(f.key); ok && v != "" {
			*f.dst = Truthy(v)
		}
	}

	if v, ok := lookup("RECALL_CACHE_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: RECALL_CACHE_TTL: %w", err)
		}
		cfg.Cache.TTL = d
	}
	if v, ok := lookup("RECALL_EMBEDDINGS_DIMENSIONS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: RECALL_EMBEDDINGS_DIMENSIONS: %w", err)
		}
		cfg.Embeddings.Dimensions = n
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: data_dir is empty")
	}
	switch c.Embeddings.Provider {
	case "local", "openai":
	default:
		return fmt.Errorf("config: unknown embeddings provider %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("config: embeddings dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	return nil
}

// Truthy interprets common spellings of a boolean flag.
func Truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// SkipAPIValidation reports whether the credential check is disabled, either
// through configuration or the environment flag at call time.
func (c Config) SkipAPIValidation() bool {
	return c.Embeddings.SkipAPIValidation || Truthy(os.Getenv(SkipAPIValidationEnv))
}
