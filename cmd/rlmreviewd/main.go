// Command rlmreviewd hosts the HTTP surface: load_pr, file, review,
// ask/stream, and suggestions, backed by the same Provider Gateway and RLM
// Controller the rlmreview CLI drives directly.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/rlmlabs/rlmreview/internal/cache"
	"github.com/rlmlabs/rlmreview/internal/cache/sqlite"
	"github.com/rlmlabs/rlmreview/internal/config"
	"github.com/rlmlabs/rlmreview/internal/httpapi"
	"github.com/rlmlabs/rlmreview/internal/llm"
	"github.com/rlmlabs/rlmreview/internal/provider"
	"github.com/rlmlabs/rlmreview/internal/redaction"
	"github.com/rlmlabs/rlmreview/internal/review"
	"github.com/rlmlabs/rlmreview/internal/rlm"
	"github.com/rlmlabs/rlmreview/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
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

	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	geminiClient := llm.NewGeminiClient(providerCfg.APIKey, providerCfg.Model, providerCfg, cfg.HTTP)
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
	suggester := review.NewSuggester(caller)

	server := httpapi.NewServer(gateway, controller, pipeline, suggester, log)
	server.RunSweeper(ctx)

	addr := os.Getenv("RLMREVIEWD_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("rlmreviewd listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
