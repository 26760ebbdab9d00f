package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/cache"
	"github.com/kagemask/kagemask/internal/config"
	"github.com/kagemask/kagemask/internal/events"
	"github.com/kagemask/kagemask/internal/logger"
	"github.com/kagemask/kagemask/internal/pii"
	"github.com/kagemask/kagemask/internal/pipeline"
	"github.com/kagemask/kagemask/internal/server"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
		demo        = flag.Bool("demo", false, "Mask a set of sample texts and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("kagemask %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck(*configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting kagemask",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port))

	var resultCache cache.ResultCache
	if cfg.Cache.Enabled {
		resultCache, err = cache.New(cfg.Cache, log.WithComponent("cache").Logger)
		if err != nil {
			log.Fatal("Failed to create result cache", zap.Error(err))
		}
		defer resultCache.Close()
	}

	var publisher *events.Publisher
	if cfg.Events.Enabled {
		publisher, err = events.NewPublisher(cfg.Events, log.WithComponent("events").Logger)
		if err != nil {
			log.Fatal("Failed to create risk queue publisher", zap.Error(err))
		}
		defer publisher.Close()
	}

	var hub *events.Hub
	if cfg.WebSocket.Enabled {
		hub = events.NewHub(cfg.WebSocket, log.WithComponent("events").Logger)
	}

	pipe, err := pipeline.New(cfg, log, pipeline.Sinks{
		Cache:     resultCache,
		Publisher: publisher,
		Hub:       hub,
	})
	if err != nil {
		log.Fatal("Failed to create masking pipeline", zap.Error(err))
	}
	defer pipe.Close()

	if *demo {
		runDemo(pipe)
		return
	}

	srv, err := server.New(cfg, log, pipe, resultCache, hub)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	// Configuration is immutable once loaded; a changed file only takes
	// effect after a restart.
	if err := config.Watch(cfg, func(newCfg *config.Config) {
		log.Warn("Configuration file changed on disk; restart to apply")
	}); err != nil {
		log.Warn("Failed to watch configuration file", zap.Error(err))
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", zap.Error(err))
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}
		log.Info("Server shutdown complete")
	}
}

// runDemo masks a fixed set of sample texts through the fully assembled
// pipeline and prints the results, then demonstrates the cache round trip.
func runDemo(pipe *pipeline.Pipeline) {
	samples := []string{
		"これは個人情報を含まないテキストです。",
		"田中さんの電話番号は03-1234-5678です。",
		"佐藤様のメールアドレスはsato@example.comです。",
		"東京都渋谷区の郵便番号は150-0002です。",
		"山田さんと鈴木さんが大阪で会議をしました。",
		"株式会社トヨタの田中様より、090-1234-5678にご連絡ください。",
		"マイナンバーは123456789012です。",
	}

	ctx := context.Background()

	fmt.Printf("=== kagemask Demo ===\n\n")
	for i, text := range samples {
		result, err := pipe.Mask(ctx, text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Masking failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Test %d:\n", i+1)
		fmt.Printf("  Original:   %s\n", text)
		fmt.Printf("  Masked:     %s\n", result.MaskedText)
		fmt.Printf("  Risk Score: %.2f\n", result.RiskScore)
		if len(result.Entities) > 0 {
			fmt.Printf("  Entities:\n")
			for _, e := range result.Entities {
				fmt.Printf("    - %s (%s)\n", e.Text, e.Label)
			}
		}
		fmt.Printf("  Cached:     %v\n\n", result.Cached)
	}

	fmt.Printf("=== Cache Test ===\n")
	const cacheText = "田中さんです。"

	first, err := pipe.Mask(ctx, cacheText)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Masking failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("First call:  cached=%v\n", first.Cached)

	// The cache store is asynchronous; give it a moment to land.
	var second *pii.MaskingResult
	for i := 0; i < 50; i++ {
		time.Sleep(20 * time.Millisecond)
		second, err = pipe.Mask(ctx, cacheText)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Masking failed: %v\n", err)
			os.Exit(1)
		}
		if second.Cached {
			break
		}
	}
	fmt.Printf("Second call: cached=%v\n", second.Cached)
	fmt.Printf("Same result: %v\n", first.MaskedText == second.MaskedText)
}

// performHealthCheck calls the running server's health endpoint.
func performHealthCheck(configPath string) {
	port := config.GetDefaults().Server.Port
	if cfg, err := config.Load(configPath); err == nil {
		port = cfg.Server.Port
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/health", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
