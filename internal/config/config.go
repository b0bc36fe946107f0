package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/problembook/internal/extract"
	"github.com/jackzampolin/problembook/internal/providers"
	"github.com/jackzampolin/problembook/internal/retry"
)

// EnvPrefix prefixes environment overrides, e.g. PROBLEMBOOK_JOBS_MAX_CONCURRENT.
const EnvPrefix = "PROBLEMBOOK"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
	logger    *slog.Logger
}

// NewManager creates a new config manager and loads initial config.
// homeDir is searched for config.yaml when cfgFile is empty.
func NewManager(cfgFile, homeDir string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
		logger:    slog.Default().With("component", "config"),
	}

	if err := cm.initViper(cfgFile, homeDir); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile, homeDir string) error {
	v := cm.v
	if err := setDefaults(v); err != nil {
		return err
	}

	// Environment variables with PROBLEMBOOK_ prefix
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if homeDir != "" {
			v.AddConfigPath(homeDir)
		}
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults registers every leaf of DefaultConfig as a viper default,
// so a config file or env var may override single keys of a section.
func setDefaults(v *viper.Viper) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal defaults: %w", err)
	}
	var tree map[interface{}]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to parse defaults: %w", err)
	}
	setDefaultTree(v, "", tree)
	return nil
}

func setDefaultTree(v *viper.Viper, prefix string, node interface{}) {
	m, ok := node.(map[interface{}]interface{})
	if !ok {
		v.SetDefault(prefix, node)
		return
	}
	for k, child := range m {
		key := fmt.Sprint(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		setDefaultTree(v, key, child)
	}
}

// load parses the current viper state into a validated Config.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFile returns the file the configuration was read from, if any.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. An edit that fails
// to parse or validate is logged and the previous config stays active.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			cm.logger.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		cm.logger.Info("config reloaded", "file", e.Name)
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		Providers: make(map[string]providers.ProviderConfig, len(c.Providers)),
		Order:     c.Defaults.ProviderOrder,
	}
	for name, p := range c.Providers {
		cfg.Providers[name] = providers.ProviderConfig{
			Type:      p.Type,
			Model:     p.Model,
			APIKey:    ResolveEnvVars(p.APIKey),
			BaseURL:   p.BaseURL,
			RateLimit: p.RateLimit,
			Timeout:   time.Duration(p.TimeoutSeconds) * time.Second,
			MaxTokens: p.MaxTokens,
			Enabled:   p.Enabled,
		}
	}
	return cfg
}

// RetryPolicy builds the retry policy for AI calls.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		Attempts:       c.Retry.Attempts,
		BaseDelay:      time.Duration(c.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:       time.Duration(c.Retry.MaxDelayMS) * time.Millisecond,
		MaxJitter:      time.Duration(c.Retry.MaxJitterMS) * time.Millisecond,
		AttemptTimeout: time.Duration(c.Retry.AttemptTimeoutSeconds) * time.Second,
	}
}

// FallbackPolicy selects which AI failures fall back to rules.
func (c *Config) FallbackPolicy() extract.FallbackPolicy {
	if c.Retry.FallbackOnPermanent {
		return extract.FallbackOnAnyFailure
	}
	return extract.FallbackOnExhaustion
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# problembook configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export ANTHROPIC_API_KEY=xxx OPENAI_API_KEY=xxx MISTRAL_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
