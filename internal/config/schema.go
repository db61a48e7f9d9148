package config

import "time"

// Config holds cram configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Providers  map[string]ProviderCfg `mapstructure:"providers" yaml:"providers"`
	Defaults   DefaultsCfg            `mapstructure:"defaults" yaml:"defaults"`
	Generation GenerationCfg          `mapstructure:"generation" yaml:"generation"`
	Breaker    BreakerCfg             `mapstructure:"breaker" yaml:"breaker"`
	Server     ServerCfg              `mapstructure:"server" yaml:"server"`
}

// ProviderCfg configures one generative-service provider.
type ProviderCfg struct {
	Type      string `mapstructure:"type" yaml:"type"`             // "openai", "mock"
	Model     string `mapstructure:"model" yaml:"model"`           // Model name
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`     // Optional API base override
	RateLimit int    `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per minute
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default selections.
type DefaultsCfg struct {
	Provider   string `mapstructure:"provider" yaml:"provider"`       // Default provider name
	MaxWorkers int    `mapstructure:"max_workers" yaml:"max_workers"` // Concurrent section generations
}

// GenerationCfg tunes the pass pipeline.
type GenerationCfg struct {
	// CompletenessThreshold gates full success (0..100).
	CompletenessThreshold int `mapstructure:"completeness_threshold" yaml:"completeness_threshold"`
	// StalenessMinutes is how long a silent processing job stays owned.
	StalenessMinutes int `mapstructure:"staleness_minutes" yaml:"staleness_minutes"`
	// TransportAttempts is the retry budget for transient provider errors.
	TransportAttempts int `mapstructure:"transport_attempts" yaml:"transport_attempts"`
	// SchemaAttempts is the total tries a schema-violating response gets.
	SchemaAttempts int `mapstructure:"schema_attempts" yaml:"schema_attempts"`
}

// BreakerCfg configures the shared circuit breaker.
type BreakerCfg struct {
	FailureThreshold int `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	CooldownSeconds  int `mapstructure:"cooldown_seconds" yaml:"cooldown_seconds"`
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Port string `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderCfg{
			"openai": {
				Type:      "openai",
				Model:     "gpt-4o",
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 60,
				Enabled:   true,
			},
		},
		Defaults: DefaultsCfg{
			Provider:   "openai",
			MaxWorkers: 3,
		},
		Generation: GenerationCfg{
			CompletenessThreshold: 70,
			StalenessMinutes:      5,
			TransportAttempts:     3,
			SchemaAttempts:        2,
		},
		Breaker: BreakerCfg{
			FailureThreshold: 5,
			CooldownSeconds:  60,
		},
		Server: ServerCfg{
			Port: "8585",
		},
	}
}

// Staleness returns the staleness window as a duration.
func (c *Config) Staleness() time.Duration {
	m := c.Generation.StalenessMinutes
	if m <= 0 {
		m = 5
	}
	return time.Duration(m) * time.Minute
}

// BreakerCooldown returns the breaker cooldown as a duration.
func (c *Config) BreakerCooldown() time.Duration {
	s := c.Breaker.CooldownSeconds
	if s <= 0 {
		s = 60
	}
	return time.Duration(s) * time.Second
}

// GetProvider returns a provider config by name.
func (c *Config) GetProvider(name string) (ProviderCfg, bool) {
	cfg, ok := c.Providers[name]
	return cfg, ok
}

// EnabledProviders returns all enabled providers.
func (c *Config) EnabledProviders() map[string]ProviderCfg {
	result := make(map[string]ProviderCfg)
	for name, cfg := range c.Providers {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
