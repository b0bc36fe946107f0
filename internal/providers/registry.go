package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultOrder is the provider preference used when a request does not name
// a provider.
var DefaultOrder = []string{AnthropicName, OpenAIName, MistralName, GeminiName, OpenRouterName}

// ProviderConfig is one configured provider with its API key resolved.
type ProviderConfig struct {
	Type      string // "openai", "mistral", "claude", "gemini", "openrouter", "mock"
	Model     string
	APIKey    string
	BaseURL   string
	RateLimit float64 // Requests per second, 0 = unlimited
	Timeout   time.Duration
	MaxTokens int
	Enabled   bool
}

// RegistryConfig defines the callers to instantiate.
type RegistryConfig struct {
	Providers map[string]ProviderConfig
	// Order overrides DefaultOrder for default selection.
	Order []string
}

// Registry holds named AI callers. It supports config-driven
// instantiation and hot reload, and provides thread-safe access.
type Registry struct {
	mu      sync.RWMutex
	callers map[string]Caller
	configs map[string]ProviderConfig
	order   []string
	logger  *slog.Logger
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		callers: make(map[string]Caller),
		configs: make(map[string]ProviderConfig),
		order:   DefaultOrder,
		logger:  slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds a caller under name, replacing any previous one.
func (r *Registry) Register(name string, c Caller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callers[name] = c
	r.logger.Info("registered AI provider", "name", name)
}

// Get returns the caller registered under name.
func (r *Registry) Get(name string) (Caller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.callers[name]
	if !ok {
		return nil, fmt.Errorf("AI provider not found: %s", name)
	}
	return c, nil
}

// Resolve returns the named caller, or the default one when name is empty.
func (r *Registry) Resolve(name string) (Caller, error) {
	if name != "" {
		return r.Get(name)
	}
	return r.Default()
}

// Default returns the first registered caller in preference order. Callers
// outside the order are considered afterwards, alphabetically.
func (r *Registry) Default() (Caller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		if c, ok := r.callers[name]; ok {
			return c, nil
		}
	}
	names := r.namesLocked()
	if len(names) > 0 {
		return r.callers[names[0]], nil
	}
	return nil, fmt.Errorf("no AI providers configured")
}

// List returns the registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.callers))
	for name := range r.callers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reload updates the registry from configuration. Providers that are no
// longer configured are removed; changed providers are rebuilt.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(cfg.Order) > 0 {
		r.order = cfg.Order
	}

	want := make(map[string]bool)
	for name, pc := range cfg.Providers {
		if !pc.Enabled || (pc.APIKey == "" && pc.Type != "mock") {
			continue
		}
		want[name] = true

		prev, hasExisting := r.configs[name]
		if hasExisting && prev == pc {
			continue
		}
		c, err := createCaller(name, pc)
		if err != nil {
			r.logger.Warn("failed to create AI provider", "name", name, "type", pc.Type, "error", err)
			continue
		}
		r.callers[name] = c
		r.configs[name] = pc
		if hasExisting {
			r.logger.Info("updated AI provider", "name", name, "type", pc.Type)
		} else {
			r.logger.Info("registered AI provider", "name", name, "type", pc.Type)
		}
	}

	for name := range r.configs {
		if !want[name] {
			delete(r.callers, name)
			delete(r.configs, name)
			r.logger.Info("unregistered AI provider", "name", name)
		}
	}
}

// createCaller builds a caller for a provider type, wrapped in a rate
// limiter when one is configured.
func createCaller(name string, pc ProviderConfig) (Caller, error) {
	cfg := Config{
		APIKey:    pc.APIKey,
		Model:     pc.Model,
		BaseURL:   pc.BaseURL,
		Timeout:   pc.Timeout,
		MaxTokens: pc.MaxTokens,
	}

	var c Caller
	switch pc.Type {
	case OpenAIName:
		c = NewOpenAICaller(cfg)
	case MistralName:
		c = NewMistralCaller(cfg)
	case AnthropicName, "anthropic":
		c = NewAnthropicCaller(cfg)
	case GeminiName:
		gc, err := NewGeminiCaller(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		c = gc
	case OpenRouterName:
		c = NewOpenRouterCaller(cfg)
	case "mock":
		m := NewMockCaller()
		m.ProviderName = name
		c = m
	default:
		return nil, fmt.Errorf("unknown provider type: %s", pc.Type)
	}

	if pc.RateLimit > 0 {
		c = NewRateLimited(c, pc.RateLimit)
	}
	return c, nil
}

// Bind returns a Caller that looks up name on every call, so reloads are
// picked up by long-lived users. An empty name follows Default. Calls made
// while no matching provider is registered fail with a permanent error.
func (r *Registry) Bind(name string) Caller {
	return &boundCaller{registry: r, name: name}
}

type boundCaller struct {
	registry *Registry
	name     string
}

func (b *boundCaller) Name() string {
	if c, err := b.registry.Resolve(b.name); err == nil {
		return c.Name()
	}
	return b.name
}

func (b *boundCaller) Model() string {
	if c, err := b.registry.Resolve(b.name); err == nil {
		return ModelOf(c)
	}
	return ""
}

func (b *boundCaller) Call(ctx context.Context, req *Request) (string, error) {
	c, err := b.registry.Resolve(b.name)
	if err != nil {
		return "", &Error{Provider: b.name, Kind: KindAuth, Message: "provider not available", Err: err}
	}
	return c.Call(ctx, req)
}
