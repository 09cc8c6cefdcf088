package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rlmlabs/rlmreview/internal/adapter/cli"
	"github.com/rlmlabs/rlmreview/internal/cache"
	"github.com/rlmlabs/rlmreview/internal/cache/sqlite"
	"github.com/rlmlabs/rlmreview/internal/config"
	"github.com/rlmlabs/rlmreview/internal/llm"
	"github.com/rlmlabs/rlmreview/internal/provider"
	"github.com/rlmlabs/rlmreview/internal/redaction"
	"github.com/rlmlabs/rlmreview/internal/review"
	"github.com/rlmlabs/rlmreview/internal/rlm"
	"github.com/rlmlabs/rlmreview/internal/transport"
	"github.com/rlmlabs/rlmreview/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(config.LoaderOptions{ConfigPaths: defaultConfigPaths(), FileName: "rlmreview"})
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	providerCfg := cfg.Providers["gemini"]
	if providerCfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}

	geminiClient := llm.NewGeminiClient(providerCfg.APIKey, providerCfg.Model, providerCfg, cfg.HTTP)
	if cfg.Observability.Logging.Enabled {
		level := transport.LogLevelInfo
		switch cfg.Observability.Logging.Level {
		case "debug":
			level = transport.LogLevelDebug
		case "error":
			level = transport.LogLevelError
		}
		format := transport.LogFormatHuman
		if cfg.Observability.Logging.Format == "json" {
			format = transport.LogFormatJSON
		}
		geminiClient.SetLogger(transport.NewDefaultLogger(level, format, cfg.Observability.Logging.RedactAPIKeys))
	}
	if cfg.Observability.Metrics.Enabled {
		geminiClient.SetMetrics(transport.NewDefaultMetrics())
	}
	geminiClient.SetPricing(transport.NewDefaultPricing())

	caller := llm.NewCaller(geminiClient, 0, 0.2)

	cacheIndex, closeIndex, err := openCacheIndex(cfg.Cache.IndexPath)
	if err != nil {
		return fmt.Errorf("open cache index: %w", err)
	}
	defer closeIndex()

	artifactCache := cache.New(cfg.Cache.BytesBudget, cacheIndex)
	gateway := provider.NewGateway(cfg.GitHub.Token, cfg.GitHub.APIBase, cfg.GitLab.Token, cfg.GitLab.APIBase, artifactCache)
	if cfg.Redaction.Enabled {
		gateway.SetRedaction(redaction.NewEngine(), cfg.Redaction.DenyGlobs, cfg.Redaction.AllowGlobs)
	}

	controller, err := rlm.NewController(caller, provider.AsSandboxGateway(gateway), sandboxTimeout(cfg))
	if err != nil {
		return fmt.Errorf("build rlm controller: %w", err)
	}

	pipeline := review.NewPipeline(gateway, controller, cfg.RLM.MaxIterations, rlmDeadline(cfg))

	root := cli.NewRootCommand(cli.Dependencies{
		Asker:   pipeline,
		Version: version.Value(),
	})

	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, cli.ErrVersionRequested) {
			return nil
		}
		return err
	}
	return nil
}

func sandboxTimeout(cfg config.Config) time.Duration {
	if cfg.Sandbox.TimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(cfg.Sandbox.TimeoutSec) * time.Second
}

func rlmDeadline(cfg config.Config) time.Duration {
	if cfg.RLM.DeadlineSec <= 0 {
		return 300 * time.Second
	}
	return time.Duration(cfg.RLM.DeadlineSec) * time.Second
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "rlmreview"))
	}
	return paths
}

// openCacheIndex opens the durable cache.Index at path, or returns a no-op
// closer if path is empty (durability is opt-in via cache.indexPath in the
// config file; there is no environment variable for it).
func openCacheIndex(path string) (cache.Index, func() error, error) {
	if path == "" {
		return nil, func() error { return nil }, nil
	}
	idx, err := sqlite.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return idx, idx.Close, nil
}
