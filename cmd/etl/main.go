package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/analytics"
	"github.com/kagemask/kagemask/internal/config"
	"github.com/kagemask/kagemask/internal/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		mode       = flag.String("mode", "", "Operation mode: consume, export, or aggregate")
		outputPath = flag.String("output", "", "Parquet output path (export mode, overrides config)")
		days       = flag.Int("days", 7, "Aggregation window in days (aggregate mode)")
	)
	flag.Parse()

	if *mode != "consume" && *mode != "export" && *mode != "aggregate" {
		fmt.Fprintf(os.Stderr, "Usage: %s -mode <consume|export|aggregate> [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -mode consume\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -mode export -output events.parquet\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -mode aggregate -days 30\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if cfg.Analytics.DatabaseURL == "" {
		fmt.Fprintf(os.Stderr, "analytics.database_url must be set for ETL operations\n")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting kagemask ETL",
		zap.String("mode", *mode),
		zap.String("config", *configPath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	store, err := analytics.NewStore(cfg.Analytics, log.WithComponent("analytics").Logger)
	if err != nil {
		log.Fatal("Failed to initialize risk event store", zap.Error(err))
	}
	defer store.Close()

	switch *mode {
	case "consume":
		err = runConsumer(ctx, cfg, store, log)
	case "export":
		err = runExport(ctx, cfg, store, *outputPath, log)
	case "aggregate":
		err = showAggregates(ctx, store, *days)
	}
	if err != nil {
		log.Fatal("ETL operation failed", zap.Error(err))
	}

	log.Info("ETL completed successfully")
}

// runConsumer drains the risk event channel into Postgres until the
// context is cancelled.
func runConsumer(ctx context.Context, cfg *config.Config, store *analytics.Store, log *logger.Logger) error {
	consumer, err := analytics.NewConsumer(cfg, store, log.WithComponent("analytics").Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize consumer: %w", err)
	}
	defer consumer.Close()

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consumer stopped: %w", err)
	}
	return nil
}

// runExport writes all persisted risk events to a parquet file.
func runExport(ctx context.Context, cfg *config.Config, store *analytics.Store, outputPath string, log *logger.Logger) error {
	path := outputPath
	if path == "" {
		path = cfg.Analytics.ExportPath
	}
	if path == "" {
		return fmt.Errorf("no output path: set -output or analytics.export_path")
	}

	exporter := analytics.NewExporter(store, log.WithComponent("analytics").Logger)
	result, err := exporter.Export(ctx, path)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	log.Info("Export completed",
		zap.String("path", result.Path),
		zap.Int64("rows", result.Rows),
		zap.Duration("duration", result.Duration))
	return nil
}

// showAggregates prints summary statistics for the risk event table.
func showAggregates(ctx context.Context, store *analytics.Store, days int) error {
	summary, err := store.Summary(ctx)
	if err != nil {
		return fmt.Errorf("failed to load summary: %w", err)
	}

	fmt.Printf("\n=== kagemask Risk Event Statistics ===\n")
	fmt.Printf("Total Events:       %d\n", summary.TotalEvents)
	fmt.Printf("Unique Inputs:      %d\n", summary.UniqueInputs)
	fmt.Printf("Avg Risk Score:     %.3f\n", summary.AvgRiskScore)
	fmt.Printf("Max Risk Score:     %.3f\n", summary.MaxRiskScore)
	if summary.TotalEvents > 0 {
		fmt.Printf("High Risk Events:   %d (%.1f%%)\n", summary.HighRiskCount,
			float64(summary.HighRiskCount)/float64(summary.TotalEvents)*100)
	} else {
		fmt.Printf("High Risk Events:   0\n")
	}

	daily, err := store.DailyAggregates(ctx, days)
	if err != nil {
		return fmt.Errorf("failed to load daily aggregates: %w", err)
	}

	fmt.Printf("\n=== Daily Activity (last %d days) ===\n", days)
	if len(daily) == 0 {
		fmt.Printf("No events recorded.\n")
		return nil
	}
	for _, d := range daily {
		fmt.Printf("%s  events=%-6d avg_risk=%.3f high_risk=%d\n",
			d.Day.Format("2006-01-02"), d.EventCount, d.AvgRiskScore, d.HighRiskCount)
	}

	return nil
}
