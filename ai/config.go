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


package ai

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider names.
const (
	ProviderOpenAI  = "openai"
	ProviderOllama  = "ollama"
	ProviderHashing = "hashing"
	ProviderMock    = "mock"
)

// Config holds configuration for an embedding provider.
type Config struct {
	// Provider selects the implementation: openai, ollama, hashing or mock.
	Provider string

	// Host is the base URL of the provider API.
	// Example: "https://api.openai.com/v1", "http://localhost:11434"
	Host string

	// Model is the embedding model identifier.
	// Example: "text-embedding-3-small", "nomic-embed-text"
	Model string

	// APIKey authenticates against metered APIs. Local servers ignore it.
	APIKey string

	// Dimension is the vector length stored and searched.
	// Default: 768
	Dimension int

	// Timeout bounds a single provider call.
	// Default: 30s
	Timeout time.Duration

	// RequestsPerSecond paces calls to metered APIs. Zero disables pacing.
	RequestsPerSecond float64

	// Burst is the number of calls allowed at once when pacing is enabled.
	Burst int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithProvider sets the provider name.
func WithProvider(provider string) ConfigOption {
	return func(c *Config) {
		c.Provider = provider
	}
}

// WithHost sets the provider host URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithModel sets the embedding model identifier.
func WithModel(model string) ConfigOption {
	return func(c *Config) {
		c.Model = model
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithDimension sets the embedding dimension.
func WithDimension(dimension int) ConfigOption {
	return func(c *Config) {
		c.Dimension = dimension
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithRateLimit sets request pacing for metered APIs.
func WithRateLimit(requestsPerSecond float64, burst int) ConfigOption {
	return func(c *Config) {
		c.RequestsPerSecond = requestsPerSecond
		c.Burst = burst
	}
}

// DefaultConfig returns a Config for a local OpenAI-compatible server.
func DefaultConfig() *Config {
	return &Config{
		Provider:  ProviderOpenAI,
		Host:      "http://localhost:11434/v1",
		Model:     "embeddinggemma",
		Dimension: 768,
		Timeout:   30 * time.Second,
		Burst:     1,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("https://api.openai.com/v1"),
//	    WithModel("text-embedding-3-small"),
//	    WithDimension(1536),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// OpenAI-compatible hosts get a /v1 suffix; Ollama hosts lose it, since the native
// Ollama API lives at the server root.
func (c *Config) Normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.Host = strings.TrimSuffix(c.Host, "/")

	switch c.Provider {
	case ProviderOpenAI:
		if c.Host != "" && !strings.HasSuffix(c.Host, "/v1") {
			c.Host += "/v1"
		}
	case ProviderOllama:
		c.Host = strings.TrimSuffix(c.Host, "/v1")
	}

	if c.RequestsPerSecond > 0 && c.Burst < 1 {
		c.Burst = 1
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Provider {
	case ProviderOpenAI, ProviderOllama:
		if c.Host == "" {
			return errors.New("ai config: Host is required")
		}
		if c.Model == "" {
			return errors.New("ai config: Model is required")
		}
	case ProviderHashing, ProviderMock:
	default:
		return fmt.Errorf("ai config: %w: %q", ErrUnknownProvider, c.Provider)
	}

	if c.Dimension < 1 {
		return fmt.Errorf("ai config: %w", ErrInvalidDimension)
	}
	if c.Timeout <= 0 {
		return errors.New("ai config: Timeout must be positive")
	}
	if c.RequestsPerSecond < 0 {
		return errors.New("ai config: RequestsPerSecond cannot be negative")
	}
	return nil
}
