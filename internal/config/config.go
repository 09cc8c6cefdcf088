// Package config defines the application configuration and how it is
// assembled from defaults, config file, and environment variables.
package config

// Config represents the full application configuration.
type Config struct {
	Providers     map[string]ProviderConfig `yaml:"providers"`
	HTTP          HTTPConfig                `yaml:"http"`
	GitHub        ProviderAPIConfig         `yaml:"github"`
	GitLab        ProviderAPIConfig         `yaml:"gitlab"`
	Sandbox       SandboxConfig             `yaml:"sandbox"`
	RLM           RLMConfig                 `yaml:"rlm"`
	Cache         CacheConfig               `yaml:"cache"`
	Redaction     RedactionConfig           `yaml:"redaction"`
	Observability ObservabilityConfig       `yaml:"observability"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"apiKey"`

	// HTTP overrides (optional, use global HTTP config if not set)
	Timeout        *string `yaml:"timeout,omitempty"`
	MaxRetries     *int    `yaml:"maxRetries,omitempty"`
	InitialBackoff *string `yaml:"initialBackoff,omitempty"`
	MaxBackoff     *string `yaml:"maxBackoff,omitempty"`
}

// HTTPConfig holds global HTTP client settings.
type HTTPConfig struct {
	Timeout           string  `yaml:"timeout"`
	MaxRetries        int     `yaml:"maxRetries"`
	InitialBackoff    string  `yaml:"initialBackoff"`
	MaxBackoff        string  `yaml:"maxBackoff"`
	BackoffMultiplier float64 `yaml:"backoffMultiplier"`
}

// ProviderAPIConfig configures access to a code host's REST API (C1).
type ProviderAPIConfig struct {
	Token   string `yaml:"token"`
	APIBase string `yaml:"apiBase"`
}

// SandboxConfig configures the sandbox executor (C3).
type SandboxConfig struct {
	// TimeoutSec bounds a single code block's execution.
	TimeoutSec int `yaml:"timeoutSec"`
}

// RLMConfig configures the RLM controller loop (C4).
type RLMConfig struct {
	// MaxIterations bounds the number of reasoning/execute rounds before
	// the session is forced to a terminal BudgetExceeded state.
	MaxIterations int `yaml:"maxIterations"`

	// DeadlineSec is the overall wall-clock budget for a session.
	DeadlineSec int `yaml:"deadlineSec"`

	// TokenCeiling bounds cumulative LLM tokens spent within one session.
	TokenCeiling int `yaml:"tokenCeiling"`
}

// CacheConfig configures the Artifact Cache (C2).
type CacheConfig struct {
	// BytesBudget is the total size, in bytes, the in-memory LRU may hold.
	BytesBudget int `yaml:"bytesBudget"`

	// IndexPath, when set, durably persists eviction metadata (not blob
	// bytes) via a SQLite index so restart keeps prior occupancy
	// accounting. Empty disables durable indexing.
	IndexPath string `yaml:"indexPath"`
}

type RedactionConfig struct {
	Enabled    bool     `yaml:"enabled"`
	DenyGlobs  []string `yaml:"denyGlobs"`
	AllowGlobs []string `yaml:"allowGlobs"`
}

// ObservabilityConfig configures logging, metrics, and cost tracking.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures request/response logging.
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Level         string `yaml:"level"`  // debug, info, error
	Format        string `yaml:"format"` // json, console
	RedactAPIKeys bool   `yaml:"redactAPIKeys"`
}

// MetricsConfig configures performance and cost metrics tracking.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Merge combines multiple configuration instances, prioritising the latter ones.
func Merge(configs ...Config) Config {
	result := Config{}
	for _, cfg := range configs {
		result = merge(result, cfg)
	}
	return result
}

func merge(base, overlay Config) Config {
	result := base

	result.HTTP = chooseHTTP(base.HTTP, overlay.HTTP)
	result.GitHub = chooseProviderAPI(base.GitHub, overlay.GitHub)
	result.GitLab = chooseProviderAPI(base.GitLab, overlay.GitLab)
	result.Sandbox = chooseSandbox(base.Sandbox, overlay.Sandbox)
	result.RLM = chooseRLM(base.RLM, overlay.RLM)
	result.Cache = chooseCache(base.Cache, overlay.Cache)
	result.Redaction = chooseRedaction(base.Redaction, overlay.Redaction)
	result.Observability = chooseObservability(base.Observability, overlay.Observability)
	result.Providers = mergeProviders(base.Providers, overlay.Providers)

	return result
}

func mergeProviders(base, overlay map[string]ProviderConfig) map[string]ProviderConfig {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	result := make(map[string]ProviderConfig, len(base)+len(overlay))
	for key, value := range base {
		result[key] = value
	}
	for key, value := range overlay {
		result[key] = value
	}
	return result
}

func chooseHTTP(base, overlay HTTPConfig) HTTPConfig {
	if overlay.Timeout != "" || overlay.MaxRetries != 0 || overlay.InitialBackoff != "" || overlay.MaxBackoff != "" || overlay.BackoffMultiplier != 0 {
		return overlay
	}
	return base
}

func chooseProviderAPI(base, overlay ProviderAPIConfig) ProviderAPIConfig {
	if overlay.Token != "" || overlay.APIBase != "" {
		return overlay
	}
	return base
}

func chooseSandbox(base, overlay SandboxConfig) SandboxConfig {
	if overlay.TimeoutSec != 0 {
		return overlay
	}
	return base
}

func chooseRLM(base, overlay RLMConfig) RLMConfig {
	if overlay.MaxIterations != 0 || overlay.DeadlineSec != 0 || overlay.TokenCeiling != 0 {
		return overlay
	}
	return base
}

func chooseCache(base, overlay CacheConfig) CacheConfig {
	if overlay.BytesBudget != 0 || overlay.IndexPath != "" {
		return overlay
	}
	return base
}

func chooseRedaction(base, overlay RedactionConfig) RedactionConfig {
	if overlay.Enabled || len(overlay.DenyGlobs) > 0 || len(overlay.AllowGlobs) > 0 {
		return overlay
	}
	return base
}

func chooseObservability(base, overlay ObservabilityConfig) ObservabilityConfig {
	result := base

	if overlay.Logging.Enabled || overlay.Logging.Level != "" || overlay.Logging.Format != "" {
		result.Logging = overlay.Logging
	}
	if overlay.Metrics.Enabled {
		result.Metrics = overlay.Metrics
	}

	return result
}
