package providers

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ClientConfig configures one generative-service client.
type ClientConfig struct {
	Type      string // "openai", "mock"
	Model     string
	APIKey    string
	BaseURL   string
	RateLimit int // requests per minute
	Timeout   time.Duration
	Enabled   bool
}

// RegistryConfig is the full provider configuration.
type RegistryConfig struct {
	Clients map[string]ClientConfig
	Default string
}

// Registry holds configured LLM clients by name. Reload replaces the set
// atomically so config hot-reloads do not disturb in-flight calls.
type Registry struct {
	mu          sync.RWMutex
	clients     map[string]LLMClient
	defaultName string
	logger      *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]LLMClient),
		logger:  slog.Default(),
	}
}

// SetLogger sets the registry logger.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger != nil {
		r.logger = logger
	}
}

// Reload rebuilds all clients from config.
func (r *Registry) Reload(cfg RegistryConfig) {
	clients := make(map[string]LLMClient, len(cfg.Clients))
	for name, cc := range cfg.Clients {
		if !cc.Enabled {
			continue
		}
		client, err := buildClient(cc)
		if err != nil {
			r.logger.Warn("skipping provider", "name", name, "error", err)
			continue
		}
		clients[name] = client
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = clients
	r.defaultName = cfg.Default
	r.logger.Info("provider registry reloaded", "clients", len(clients), "default", cfg.Default)
}

func buildClient(cc ClientConfig) (LLMClient, error) {
	switch cc.Type {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:    cc.APIKey,
			Model:     cc.Model,
			BaseURL:   cc.BaseURL,
			RateLimit: cc.RateLimit,
			Timeout:   cc.Timeout,
		}), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cc.Type)
	}
}

// Get returns a client by name.
func (r *Registry) Get(name string) (LLMClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	return c, ok
}

// Default returns the configured default client.
func (r *Registry) Default() (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[r.defaultName]; ok {
		return c, nil
	}
	// Any single configured client is an acceptable fallback.
	if len(r.clients) == 1 {
		for _, c := range r.clients {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no default provider configured")
}

// Register adds a client directly. Tests only.
func (r *Registry) Register(name string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	if r.defaultName == "" {
		r.defaultName = name
	}
}

// List returns all configured client names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}
