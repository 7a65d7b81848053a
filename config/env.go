package config

import "strconv"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "THREADBASE_"

// envBinding maps one environment variable onto a config field.
type envBinding struct {
	name string
	set  func(cfg *Config, value string) error
}

func stringVar(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		*field(cfg) = value
		return nil
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

func floatVar(field func(*Config) *float64) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		*field(cfg) = f
		return nil
	}
}

func durationVar(field func(*Config) *Duration) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		return field(cfg).UnmarshalText([]byte(value))
	}
}

var envBindings = []envBinding{
	{"STORAGE_BACKEND", stringVar(func(c *Config) *string { return &c.Storage.Backend })},
	{"STORAGE_PATH", stringVar(func(c *Config) *string { return &c.Storage.Path })},
	{"STORAGE_DSN", stringVar(func(c *Config) *string { return &c.Storage.DSN })},
	{"EMBEDDING_PROVIDER", stringVar(func(c *Config) *string { return &c.Embedding.Provider })},
	{"EMBEDDING_HOST", stringVar(func(c *Config) *string { return &c.Embedding.Host })},
	{"EMBEDDING_MODEL", stringVar(func(c *Config) *string { return &c.Embedding.Model })},
	{"EMBEDDING_API_KEY", stringVar(func(c *Config) *string { return &c.Embedding.APIKey })},
	{"EMBEDDING_DIMENSION", intVar(func(c *Config) *int { return &c.Embedding.Dimension })},
	{"EMBEDDING_DIMENSION_POLICY", stringVar(func(c *Config) *string { return &c.Embedding.DimensionPolicy })},
	{"EMBEDDING_RENORMALIZE", func(c *Config, value string) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		c.Embedding.Renormalize = b
		return nil
	}},
	{"EMBEDDING_TIMEOUT", durationVar(func(c *Config) *Duration { return &c.Embedding.Timeout })},
	{"EMBEDDING_REQUESTS_PER_SECOND", floatVar(func(c *Config) *float64 { return &c.Embedding.RequestsPerSecond })},
	{"EMBEDDING_BATCH_SIZE", intVar(func(c *Config) *int { return &c.Embedding.BatchSize })},
	{"EMBEDDING_CONCURRENCY", intVar(func(c *Config) *int { return &c.Embedding.Concurrency })},
	{"EMBEDDING_FALLBACK", stringVar(func(c *Config) *string { return &c.Embedding.Fallback })},
	{"EMBEDDING_MAX_RETRIES", intVar(func(c *Config) *int { return &c.Embedding.Retry.MaxRetries })},
	{"CACHE_TYPE", stringVar(func(c *Config) *string { return &c.Embedding.Cache.Type })},
	{"CACHE_ADDR", stringVar(func(c *Config) *string { return &c.Embedding.Cache.Addr })},
	{"CHUNKING_MAX_CHARS", intVar(func(c *Config) *int { return &c.Chunking.MaxChars })},
	{"SEARCH_MAX_TOP_K", intVar(func(c *Config) *int { return &c.Search.MaxTopK })},
	{"SEARCH_DEFAULT_TOP_K", intVar(func(c *Config) *int { return &c.Search.DefaultTopK })},
	{"LOG_LEVEL", stringVar(func(c *Config) *string { return &c.Log.Level })},
	{"LOG_FORMAT", stringVar(func(c *Config) *string { return &c.Log.Format })},
}

// applyEnv overrides cfg with every THREADBASE_* variable that lookup reports as set.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		name := EnvPrefix + b.name
		value, ok := lookup(name)
		if !ok {
			continue
		}
		if err := b.set(cfg, value); err != nil {
			return invalid("%s=%q: %v", name, value, err)
		}
	}
	return nil
}

// EnvNames lists the supported environment overrides.
func EnvNames() []string {
	names := make([]string, len(envBindings))
	for i, b := range envBindings {
		names[i] = EnvPrefix + b.name
	}
	return names
}
