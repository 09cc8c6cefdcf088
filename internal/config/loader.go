package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// LoaderOptions describes how configuration should be discovered.
type LoaderOptions struct {
	ConfigPaths []string
	FileName    string
}

// Load returns the merged configuration from an optional config file and
// environment variables (no prefix: GEMINI_API_KEY, GITHUB_TOKEN,
// GITHUB_API_BASE, GITLAB_TOKEN, GITLAB_API_BASE, RLM_MAX_ITERATIONS,
// RLM_DEADLINE_SEC, SANDBOX_TIMEOUT_SEC, CACHE_BYTES).
func Load(opts LoaderOptions) (Config, error) {
	v := viper.New()

	name := opts.FileName
	if name == "" {
		name = "rlmreview"
	}

	configFile := locateConfigFile(name, opts.ConfigPaths)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(name)
	}

	setDefaults(v)
	bindEnv(v)

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

// bindEnv wires the unprefixed environment variable names directly to
// config keys. Deliberately not using AutomaticEnv + a prefix: several of
// these (GITHUB_TOKEN, GITHUB_API_BASE) are names a host CI environment
// may already export for unrelated tools, so each binding is explicit
// rather than a blanket env-to-key transform.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("providers.gemini.apiKey", "GEMINI_API_KEY")
	_ = v.BindEnv("github.token", "GITHUB_TOKEN")
	_ = v.BindEnv("github.apiBase", "GITHUB_API_BASE")
	_ = v.BindEnv("gitlab.token", "GITLAB_TOKEN")
	_ = v.BindEnv("gitlab.apiBase", "GITLAB_API_BASE")
	_ = v.BindEnv("rlm.maxIterations", "RLM_MAX_ITERATIONS")
	_ = v.BindEnv("rlm.deadlineSec", "RLM_DEADLINE_SEC")
	_ = v.BindEnv("sandbox.timeoutSec", "SANDBOX_TIMEOUT_SEC")
	_ = v.BindEnv("cache.bytesBudget", "CACHE_BYTES")
}

func locateConfigFile(name string, paths []string) string {
	searchPaths := append([]string{}, paths...)
	searchPaths = append(searchPaths, ".")
	for _, dir := range searchPaths {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name+".yaml")
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("providers.gemini.enabled", true)
	v.SetDefault("providers.gemini.model", "gemini-2.0-flash")

	v.SetDefault("github.apiBase", "https://api.github.com")
	v.SetDefault("gitlab.apiBase", "https://gitlab.com/api/v4")

	v.SetDefault("sandbox.timeoutSec", 10)

	v.SetDefault("rlm.maxIterations", 12)
	v.SetDefault("rlm.deadlineSec", 300)
	v.SetDefault("rlm.tokenCeiling", 200000)

	v.SetDefault("cache.bytesBudget", 256*1024*1024)

	v.SetDefault("redaction.enabled", true)

	v.SetDefault("observability.logging.enabled", true)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.redactAPIKeys", true)
	v.SetDefault("observability.metrics.enabled", true)
}
