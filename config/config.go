// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/poiesic/threadbase/ai"
	"github.com/poiesic/threadbase/chunker"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendBadger   = "badger"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Cache types. An empty type disables caching.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// FallbackNone disables the fallback provider; failures go straight to zero vectors.
const FallbackNone = "none"

// MemoryPath selects an in-memory badger store.
const MemoryPath = ":memory:"

// Config is the root configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking" toml:"chunking"`
	Search    SearchConfig    `yaml:"search" toml:"search"`
	Log       LogConfig       `yaml:"log" toml:"log"`
}

// StorageConfig selects and configures the vector store.
type StorageConfig struct {
	// Backend is badger, sqlite or postgres.
	Backend string `yaml:"backend" toml:"backend"`
	// Path is the database directory (badger) or file (sqlite).
	Path string `yaml:"path" toml:"path"`
	// DSN is the postgres connection string.
	DSN string `yaml:"dsn,omitempty" toml:"dsn,omitempty"`
}

// RetryConfig is the retry schedule for transient provider failures.
type RetryConfig struct {
	MaxRetries int      `yaml:"max_retries" toml:"max_retries"`
	BaseDelay  Duration `yaml:"base_delay" toml:"base_delay"`
	Factor     float64  `yaml:"factor" toml:"factor"`
	MaxDelay   Duration `yaml:"max_delay" toml:"max_delay"`
}

// CacheConfig configures the optional embedding cache.
type CacheConfig struct {
	Type string   `yaml:"type" toml:"type"`
	Addr string   `yaml:"addr,omitempty" toml:"addr,omitempty"`
	Size int64    `yaml:"size" toml:"size"`
	TTL  Duration `yaml:"ttl" toml:"ttl"`
}

// EmbeddingConfig selects and configures the embedding provider chain.
type EmbeddingConfig struct {
	Provider          string      `yaml:"provider" toml:"provider"`
	Dimension         int         `yaml:"dimension" toml:"dimension"`
	DimensionPolicy   string      `yaml:"dimension_policy" toml:"dimension_policy"`
	Renormalize       bool        `yaml:"renormalize" toml:"renormalize"`
	Host              string      `yaml:"host" toml:"host"`
	Model             string      `yaml:"model" toml:"model"`
	APIKey            string      `yaml:"api_key,omitempty" toml:"api_key,omitempty"`
	APIKeyEnv         string      `yaml:"api_key_env,omitempty" toml:"api_key_env,omitempty"`
	Timeout           Duration    `yaml:"timeout" toml:"timeout"`
	RequestsPerSecond float64     `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int         `yaml:"burst" toml:"burst"`
	BatchSize         int         `yaml:"batch_size" toml:"batch_size"`
	Concurrency       int         `yaml:"concurrency" toml:"concurrency"`
	Fallback          string      `yaml:"fallback" toml:"fallback"`
	Retry             RetryConfig `yaml:"retry" toml:"retry"`
	Cache             CacheConfig `yaml:"cache" toml:"cache"`
}

// ChunkingConfig configures how transcripts are split into chunks.
type ChunkingConfig struct {
	MaxChars int `yaml:"max_chars" toml:"max_chars"`
}

// SearchConfig bounds retrieval requests.
type SearchConfig struct {
	MaxTopK      int     `yaml:"max_top_k" toml:"max_top_k"`
	DefaultTopK  int     `yaml:"default_top_k" toml:"default_top_k"`
	MinRelevance float32 `yaml:"min_relevance" toml:"min_relevance"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	backoff := ai.DefaultBackoff()

	return &Config{
		Storage: StorageConfig{
			Backend: BackendBadger,
			Path:    "threadbase.db",
		},
		Embedding: EmbeddingConfig{
			Provider:        aiDefaults.Provider,
			Dimension:       aiDefaults.Dimension,
			DimensionPolicy: string(ai.PolicyPadTruncate),
			Renormalize:     true,
			Host:            aiDefaults.Host,
			Model:           aiDefaults.Model,
			Timeout:         Duration(aiDefaults.Timeout),
			Burst:           aiDefaults.Burst,
			BatchSize:       64,
			Concurrency:     4,
			Fallback:        ai.ProviderHashing,
			Retry: RetryConfig{
				MaxRetries: backoff.MaxRetries,
				BaseDelay:  Duration(backoff.BaseDelay),
				Factor:     backoff.Factor,
				MaxDelay:   Duration(backoff.MaxDelay),
			},
			Cache: CacheConfig{
				Type: CacheNone,
				Size: 10000,
				TTL:  Duration(24 * time.Hour),
			},
		},
		Chunking: ChunkingConfig{MaxChars: chunker.DefaultMaxChars},
		Search: SearchConfig{
			MaxTopK:     50,
			DefaultTopK: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a config from path, applies environment overrides and defaults for
// emptied values, then validates the result.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode unmarshals data on top of cfg, so keys absent from the file keep their values.
func decode(path string, data []byte, cfg *Config) error {
	switch format(path) {
	case "yaml":
		return yaml.Unmarshal(data, cfg)
	case "toml":
		return toml.Unmarshal(data, cfg)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

func format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	}
	return ""
}

// Marshal encodes cfg as "yaml" or "toml". Secrets are left out.
func (c *Config) Marshal(format string) ([]byte, error) {
	redacted := *c
	redacted.Embedding.APIKey = ""
	redacted.Storage.DSN = redactDSN(c.Storage.DSN)

	switch strings.ToLower(format) {
	case "yaml", "yml":
		return yaml.Marshal(&redacted)
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(&redacted); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Save writes the config to path in the format named by its extension, creating directories as needed.
func Save(path string, cfg *Config) error {
	data, err := cfg.Marshal(format(path))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// redactDSN hides the password of a postgres URL.
func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	if user, _, hasPassword := strings.Cut(userinfo, ":"); hasPassword {
		return scheme + "://" + user + ":xxxxx@" + host
	}
	return dsn
}

// applyDefaults fills values left empty by the file.
func applyDefaults(cfg *Config) {
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendBadger
	}
	if cfg.Embedding.DimensionPolicy == "" {
		cfg.Embedding.DimensionPolicy = string(ai.PolicyPadTruncate)
	}
	if cfg.Embedding.Cache.Type == "" {
		cfg.Embedding.Cache.Type = CacheNone
	}
	if cfg.Embedding.Fallback == "" {
		cfg.Embedding.Fallback = ai.ProviderHashing
	}
	if cfg.Embedding.Provider == ai.ProviderOpenAI && cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = min(5, cfg.Search.MaxTopK)
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendBadger, BackendSQLite:
		if c.Storage.Path == "" {
			return invalid("storage.path is required for %s", c.Storage.Backend)
		}
		if c.Storage.Backend == BackendSQLite && c.Storage.Path == MemoryPath {
			return invalid("storage.path %s is only supported by badger", MemoryPath)
		}
	case BackendPostgres:
		if c.Storage.DSN == "" {
			return invalid("storage.dsn is required for postgres")
		}
	default:
		return invalid("unknown storage.backend %q", c.Storage.Backend)
	}

	if err := c.validateEmbedding(); err != nil {
		return err
	}

	if c.Chunking.MaxChars < 1 {
		return invalid("chunking.max_chars must be at least 1")
	}

	if c.Search.MaxTopK < 1 {
		return invalid("search.max_top_k must be at least 1")
	}
	if c.Search.DefaultTopK < 1 || c.Search.DefaultTopK > c.Search.MaxTopK {
		return invalid("search.default_top_k must be within 1..%d", c.Search.MaxTopK)
	}
	if c.Search.MinRelevance < 0 || c.Search.MinRelevance > 1 {
		return invalid("search.min_relevance must be within [0, 1]")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return invalid("log.format must be text or json")
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	e := &c.Embedding
	if err := c.AIConfig().Validate(); err != nil {
		return fmt.Errorf("%w: embedding: %w", ErrInvalidConfig, err)
	}
	if _, err := ai.ParseDimensionPolicy(e.DimensionPolicy); err != nil {
		return fmt.Errorf("%w: embedding.dimension_policy: %w", ErrInvalidConfig, err)
	}
	if e.BatchSize < 1 || e.Concurrency < 1 {
		return invalid("embedding.batch_size and embedding.concurrency must be at least 1")
	}
	switch e.Fallback {
	case FallbackNone, ai.ProviderHashing, ai.ProviderMock:
	default:
		return invalid("unknown embedding.fallback %q", e.Fallback)
	}
	if err := c.Backoff().Validate(); err != nil {
		return fmt.Errorf("%w: embedding.retry: %w", ErrInvalidConfig, err)
	}

	switch e.Cache.Type {
	case CacheNone:
	case CacheMemory:
		if e.Cache.Size < 1 {
			return invalid("embedding.cache.size must be at least 1")
		}
	case CacheRedis:
		if e.Cache.Addr == "" {
			return invalid("embedding.cache.addr is required for redis")
		}
	default:
		return invalid("unknown embedding.cache.type %q", e.Cache.Type)
	}
	if e.Cache.TTL < 0 {
		return invalid("embedding.cache.ttl cannot be negative")
	}
	return nil
}

// AIConfig returns the provider configuration. The API key falls back to the
// environment variable named by api_key_env.
func (c *Config) AIConfig() *ai.Config {
	e := c.Embedding
	apiKey := e.APIKey
	if apiKey == "" && e.APIKeyEnv != "" {
		apiKey = os.Getenv(e.APIKeyEnv)
	}

	cfg := ai.NewConfig(
		ai.WithProvider(e.Provider),
		ai.WithHost(e.Host),
		ai.WithModel(e.Model),
		ai.WithAPIKey(apiKey),
		ai.WithDimension(e.Dimension),
		ai.WithTimeout(e.Timeout.Std()),
		ai.WithRateLimit(e.RequestsPerSecond, e.Burst),
	)
	cfg.Normalize()
	return cfg
}

// Backoff returns the provider retry schedule.
func (c *Config) Backoff() ai.Backoff {
	r := c.Embedding.Retry
	return ai.Backoff{
		MaxRetries: r.MaxRetries,
		BaseDelay:  r.BaseDelay.Std(),
		Factor:     r.Factor,
		MaxDelay:   r.MaxDelay.Std(),
	}
}
