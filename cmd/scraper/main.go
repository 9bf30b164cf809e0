package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rkotha/go-scrape-tenders/config"
	"github.com/rkotha/go-scrape-tenders/models"
	"github.com/rkotha/go-scrape-tenders/pipeline"
	"github.com/rkotha/go-scrape-tenders/scraper"
)

func main() {
	defaultCfg := config.DefaultConfig()
	modeDefault := defaultCfg.Mode
	if value, ok := config.EnvString("TENDER_MODE"); ok {
		modeDefault = value
	}
	baseURLDefault := defaultCfg.BaseURL
	if value, ok := config.EnvString("TENDER_BASE_URL"); ok {
		baseURLDefault = value
	}
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("TENDER_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("TENDER_METRICS_ADDR"); ok {
		metricsDefault = value
	}
	headlessDefault := defaultCfg.Headless
	if value, ok, err := config.EnvBool("TENDER_HEADLESS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid TENDER_HEADLESS: %v\n", err)
		os.Exit(1)
	} else if ok {
		headlessDefault = value
	}
	timeoutDefault := defaultCfg.Timeout
	if value, ok, err := config.EnvDuration("TENDER_TIMEOUT"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid TENDER_TIMEOUT: %v\n", err)
		os.Exit(1)
	} else if ok {
		timeoutDefault = value
	}
	attemptsDefault := defaultCfg.MaxAttempts
	if value, ok, err := config.EnvInt("TENDER_MAX_ATTEMPTS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid TENDER_MAX_ATTEMPTS: %v\n", err)
		os.Exit(1)
	} else if ok {
		attemptsDefault = value
	}

	limit := flag.Int("limit", 50, "Maximum tenders to scrape (0 = server default page)")
	mode := flag.String("mode", modeDefault, "Acquisition mode: api, browser, or hybrid")
	baseURL := flag.String("base-url", baseURLDefault, "Portal base URL")
	headless := flag.Bool("headless", headlessDefault, "Run the fallback browser headless")
	timeout := flag.Duration("timeout", timeoutDefault, "Per-request timeout")
	maxAttempts := flag.Int("max-attempts", attemptsDefault, "Retry attempts per operation")
	retryBackoffMs := flag.Int("retry-backoff", int(defaultCfg.RetryBackoff/time.Millisecond), "Initial retry backoff (milliseconds)")
	details := flag.Bool("details", false, "Also fetch each tender's detail page")
	documents := flag.Bool("documents", false, "Also collect document URLs per tender")
	outputFile := flag.String("output", outputDefault, "Output file path")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: csv, json, dual, or sqlite")
	databasePath := flag.String("db", defaultCfg.DatabasePath, "SQLite database path (sqlite format)")
	workers := flag.Int("workers", defaultCfg.PipelineWorkers, "Pipeline worker count")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := config.DefaultConfig()
	cfg.BaseURL = *baseURL
	cfg.Mode = strings.ToLower(*mode)
	cfg.Headless = *headless
	cfg.Timeout = *timeout
	cfg.MaxAttempts = *maxAttempts
	cfg.RetryBackoff = time.Duration(*retryBackoffMs) * time.Millisecond
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.DatabasePath = *databasePath
	cfg.PipelineWorkers = *workers
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting tender scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.String("mode", cfg.Mode),
		slog.Int("limit", *limit),
	)

	metrics := scraper.NewMetrics()

	coordinator, err := scraper.NewCoordinator(cfg, metrics)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := coordinator.Close(); err != nil {
			slog.Error("close scraper", slog.Any("error", err))
		}
	}()

	writer, err := createWriter(cfg)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok")
		})
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p, err := pipeline.NewPipeline(cfg, writer)
	if err != nil {
		slog.Error("initialising pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	p.Start(cfg.PipelineWorkers)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	records, err := coordinator.FetchListing(ctx, *limit)
	if err != nil {
		slog.Error("scraping failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := p.Process(records); err != nil {
		slog.Error("pipeline rejected records", slog.Any("error", err))
		os.Exit(1)
	}

	if *details || *documents {
		enrich(ctx, coordinator, writer, records, *details, *documents)
	}

	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		os.Exit(1)
	}

	if sw, ok := writer.(*pipeline.StoreWriter); ok {
		if err := sw.Store().LogRun(startTime, time.Now(), coordinator.Stats()); err != nil {
			slog.Warn("failed to log run", slog.Any("error", err))
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(coordinator.Stats(), time.Since(startTime), cfg.OutputFile, p.GetMetrics())
}

// enrich fetches detail pages and document links after the listing is in
// the pipeline. Failures are per-tender and never abort the run.
func enrich(ctx context.Context, c *scraper.Coordinator, writer pipeline.OutputWriter, records []*models.TenderRecord, details, documents bool) {
	sw, _ := writer.(*pipeline.StoreWriter)

	for _, rec := range records {
		if ctx.Err() != nil {
			return
		}

		if details {
			detail, err := c.FetchDetail(ctx, rec)
			if err != nil {
				slog.Warn("detail fetch failed", slog.String("tender_id", rec.TenderID), slog.Any("error", err))
			} else if sw != nil {
				if err := sw.Store().SaveDetail(detail); err != nil {
					slog.Warn("detail save failed", slog.String("tender_id", rec.TenderID), slog.Any("error", err))
				}
			} else {
				slog.Info("tender detail", slog.String("tender_id", detail.TenderID), slog.String("eligibility", detail.Eligibility))
			}
		}

		if documents {
			urls, err := c.DocumentURLs(ctx, rec)
			if err != nil {
				slog.Warn("document scan failed", slog.String("tender_id", rec.TenderID), slog.Any("error", err))
				continue
			}
			slog.Info("documents found", slog.String("tender_id", rec.TenderID), slog.Int("count", len(urls)))
		}
	}
}

func createWriter(cfg *config.Config) (pipeline.OutputWriter, error) {
	switch cfg.OutputFormat {
	case "json":
		return pipeline.NewJSONWriter(cfg.OutputFile)
	case "csv":
		return pipeline.NewCSVWriter(cfg.OutputFile)
	case "dual":
		jsonFilename := strings.TrimSuffix(cfg.OutputFile, ".csv") + ".json"
		return pipeline.NewDualWriter(cfg.OutputFile, jsonFilename)
	case "sqlite":
		return pipeline.NewStoreWriter(cfg.DatabasePath)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
}

func printSummary(stats models.RunStats, duration time.Duration, outputFile string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	totalItems := int64(0)
	if processed, ok := metrics["processed_tenders"].(int64); ok {
		totalItems = processed
	}

	fmt.Printf("  Tenders found:  %d\n", stats.Found)
	fmt.Printf("  Scraped:        %d\n", stats.Succeeded)
	fmt.Printf("  Failed:         %d\n", stats.Failed)
	fmt.Printf("  Written:        %d\n", totalItems)
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:     %v\n", valErrors)
	}
	fmt.Printf("  Duration:       %v\n", duration)
	fmt.Printf("  Output:         %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
