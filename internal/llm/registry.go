package llm

import (
	"fmt"
	"sync"

	"github.com/tiendi/tiendi/internal/config"
	"github.com/tiendi/tiendi/internal/logging"
)

// Registry manages provider clients and resolves model references to clients.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // provider name → client
	aliases  map[string]string // model alias → provider name
	fallback string            // default provider name
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered completion provider")
}

// Alias maps a model name to a provider, e.g. Alias("gpt-4o", "openai").
func (r *Registry) Alias(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[model] = provider
}

// SetFallback sets the default provider used when no model match is found.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve returns the Client for the given model reference.
// Resolution order: exact provider name → alias → fallback.
func (r *Registry) Resolve(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[model]; ok {
		return c, nil
	}

	if provider, ok := r.aliases[model]; ok {
		if c, ok := r.clients[provider]; ok {
			return c, nil
		}
	}

	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}

	return nil, fmt.Errorf("no completion provider for model %q", model)
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	return names
}

// NewRegistryFromConfig builds a Registry from the configured providers.
func NewRegistryFromConfig(cfg config.LLMConfig, log *logging.Logger) *Registry {
	reg := NewRegistry(log)

	if cfg.OpenAI.APIKey != "" {
		client := NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL)
		reg.Register("openai", client)
		reg.SetFallback("openai")
		for _, alias := range []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1", "o1", "o3-mini", "gpt-5"} {
			reg.Alias(alias, "openai")
		}
	}

	if cfg.Anthropic.APIKey != "" {
		client := NewAnthropicClient(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
		reg.Register("anthropic", client)
		if reg.fallback == "" {
			reg.SetFallback("anthropic")
		}
		for _, alias := range []string{"sonnet", "opus", "haiku", "claude-sonnet", "claude-opus", "claude-haiku"} {
			reg.Alias(alias, "anthropic")
		}
	}

	return reg
}
