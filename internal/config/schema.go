package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// Config holds problembook configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Server    ServerCfg              `mapstructure:"server" yaml:"server"`
	Jobs      JobsCfg                `mapstructure:"jobs" yaml:"jobs"`
	Retry     RetryCfg               `mapstructure:"retry" yaml:"retry"`
	Cache     CacheCfg               `mapstructure:"cache" yaml:"cache"`
	Store     StoreCfg               `mapstructure:"store" yaml:"store"`
	Providers map[string]ProviderCfg `mapstructure:"providers" yaml:"providers" validate:"dive"`
	Defaults  DefaultsCfg            `mapstructure:"defaults" yaml:"defaults"`
}

// ServerCfg sets the listen address.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host" validate:"required"`
	Port int    `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
}

// JobsCfg configures the job manager.
type JobsCfg struct {
	MaxConcurrent  int `mapstructure:"max_concurrent" yaml:"max_concurrent" validate:"min=1,max=64"`
	RetentionHours int `mapstructure:"retention_hours" yaml:"retention_hours" validate:"min=1"`
	// SweepSchedule is a cron spec for removing expired jobs and batches.
	SweepSchedule string `mapstructure:"sweep_schedule" yaml:"sweep_schedule" validate:"required"`
}

// RetryCfg configures the retry policy of AI calls.
type RetryCfg struct {
	Attempts              uint `mapstructure:"attempts" yaml:"attempts" validate:"min=1,max=10"`
	BaseDelayMS           int  `mapstructure:"base_delay_ms" yaml:"base_delay_ms" validate:"min=1"`
	MaxDelayMS            int  `mapstructure:"max_delay_ms" yaml:"max_delay_ms" validate:"gtefield=BaseDelayMS"`
	MaxJitterMS           int  `mapstructure:"max_jitter_ms" yaml:"max_jitter_ms" validate:"min=0"`
	AttemptTimeoutSeconds int  `mapstructure:"attempt_timeout_seconds" yaml:"attempt_timeout_seconds" validate:"min=0"`
	// FallbackOnPermanent hands permanent AI failures to the rule-based
	// extractor too, not only exhausted retries.
	FallbackOnPermanent bool `mapstructure:"fallback_on_permanent" yaml:"fallback_on_permanent"`
}

// CacheCfg configures the extraction cache.
type CacheCfg struct {
	Backend  string `mapstructure:"backend" yaml:"backend" validate:"oneof=memory badger"`
	Path     string `mapstructure:"path" yaml:"path"` // empty: {home}/cache
	TTLHours int    `mapstructure:"ttl_hours" yaml:"ttl_hours" validate:"min=1"`
	// CacheFallback also caches rule-based results under their own key.
	CacheFallback bool `mapstructure:"cache_fallback" yaml:"cache_fallback"`
}

// StoreCfg configures result persistence.
type StoreCfg struct {
	Backend string `mapstructure:"backend" yaml:"backend" validate:"oneof=memory badger"`
	Path    string `mapstructure:"path" yaml:"path"` // empty: {home}/store
}

// ProviderCfg configures an AI provider.
type ProviderCfg struct {
	Type           string  `mapstructure:"type" yaml:"type" validate:"required,oneof=openai mistral claude anthropic gemini openrouter mock"`
	Model          string  `mapstructure:"model" yaml:"model"`
	APIKey         string  `mapstructure:"api_key" yaml:"api_key"` // API key (supports ${ENV_VAR} syntax)
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url,omitempty" validate:"omitempty,url"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit" validate:"min=0"` // Requests per second
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds" validate:"min=0"`
	MaxTokens      int     `mapstructure:"max_tokens" yaml:"max_tokens,omitempty" validate:"min=0"`
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections.
type DefaultsCfg struct {
	// ExtractProvider is used for AI extraction. Empty uses the provider
	// order; "rulebased" disables AI extraction.
	ExtractProvider string `mapstructure:"extract_provider" yaml:"extract_provider"`
	// SolveProvider is used when a solve batch names none.
	SolveProvider string   `mapstructure:"solve_provider" yaml:"solve_provider"`
	ProviderOrder []string `mapstructure:"provider_order" yaml:"provider_order"`
}

// DisableAI is the extract_provider value that turns AI extraction off.
const DisableAI = "rulebased"

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerCfg{Host: "127.0.0.1", Port: 8080},
		Jobs: JobsCfg{
			MaxConcurrent:  4,
			RetentionHours: 24,
			SweepSchedule:  "@every 10m",
		},
		Retry: RetryCfg{
			Attempts:              3,
			BaseDelayMS:           500,
			MaxDelayMS:            30000,
			MaxJitterMS:           125,
			AttemptTimeoutSeconds: 120,
			FallbackOnPermanent:   true,
		},
		Cache: CacheCfg{
			Backend:  "badger",
			TTLHours: 7 * 24,
		},
		Store: StoreCfg{Backend: "badger"},
		Providers: map[string]ProviderCfg{
			"claude": {
				Type:           "claude",
				Model:          "claude-sonnet-4-5",
				APIKey:         "${ANTHROPIC_API_KEY}",
				RateLimit:      2,
				TimeoutSeconds: 120,
				Enabled:        true,
			},
			"openai": {
				Type:           "openai",
				Model:          "gpt-4o",
				APIKey:         "${OPENAI_API_KEY}",
				RateLimit:      5,
				TimeoutSeconds: 120,
				Enabled:        true,
			},
			"mistral": {
				Type:           "mistral",
				Model:          "mistral-large-latest",
				APIKey:         "${MISTRAL_API_KEY}",
				RateLimit:      2,
				TimeoutSeconds: 120,
				Enabled:        true,
			},
			"gemini": {
				Type:           "gemini",
				Model:          "gemini-2.5-flash",
				APIKey:         "${GEMINI_API_KEY}",
				RateLimit:      2,
				TimeoutSeconds: 120,
				Enabled:        false,
			},
			"openrouter": {
				Type:           "openrouter",
				Model:          "anthropic/claude-sonnet-4",
				APIKey:         "${OPENROUTER_API_KEY}",
				RateLimit:      5,
				TimeoutSeconds: 120,
				Enabled:        false,
			},
		},
		Defaults: DefaultsCfg{
			ProviderOrder: []string{"claude", "openai", "mistral", "gemini", "openrouter"},
		},
	}
}

var validate = validator.New()

// Validate checks struct constraints and the sweep schedule.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q check", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := cron.ParseStandard(c.Jobs.SweepSchedule); err != nil {
		return fmt.Errorf("invalid config: jobs.sweep_schedule: %w", err)
	}
	for _, name := range []string{c.Defaults.ExtractProvider, c.Defaults.SolveProvider} {
		if name == "" || name == DisableAI {
			continue
		}
		if _, ok := c.Providers[name]; !ok {
			return fmt.Errorf("invalid config: default provider %q is not configured", name)
		}
	}
	return nil
}

// Retention is how long finished jobs and batches are kept.
func (c JobsCfg) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// TTL is the lifetime of cached extraction results.
func (c CacheCfg) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
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
