package config

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL        string
	ListingPath    string // landing page, visited for session cookies
	ListingAPIPath string // AJAX/JSON listing endpoint
	DetailPath     string // tender detail page

	TableID       string // DOM id of the listing table on the rendered page
	ServerPageCap int    // maximum rows the listing endpoint serves per request

	Mode     string // api, browser, or hybrid
	Headless bool

	UserAgent string
	Timeout   time.Duration

	MaxAttempts     int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration

	HumanDelayMin   time.Duration
	HumanDelayMax   time.Duration
	DataWaitTimeout time.Duration

	// ActionCallPattern matches the embedded function call in the actions
	// column. The first capture group is the quoted parameter list. The
	// portal has shipped several call names over time, so the pattern is
	// configurable rather than hardcoded.
	ActionCallPattern string

	DataDir      string // screenshots and other diagnostics
	OutputFile   string
	OutputFormat string // csv, json, dual, or sqlite
	DatabasePath string

	PipelineWorkers    int
	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int

	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns conservative defaults for the tender portal.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://tender.telangana.gov.in",
		ListingPath:        "/TenderDetailsHome.html",
		ListingAPIPath:     "/TenderDetailsHomeJson.html",
		DetailPath:         "/ViewDetailTenderDetail.html",
		TableID:            "pagetable13",
		ServerPageCap:      100,
		Mode:               "hybrid",
		Headless:           true,
		UserAgent:          "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Timeout:            30 * time.Second,
		MaxAttempts:        3,
		RetryBackoff:       2 * time.Second,
		RetryBackoffMax:    30 * time.Second,
		HumanDelayMin:      2 * time.Second,
		HumanDelayMax:      5 * time.Second,
		DataWaitTimeout:    30 * time.Second,
		ActionCallPattern:  `[A-Za-z_][A-Za-z0-9_]*\(\s*('[^']*'(?:\s*,\s*'[^']*')*)\s*\)`,
		DataDir:            "data",
		OutputFile:         "output/tenders.csv",
		OutputFormat:       "csv",
		DatabasePath:       "data/tenders.db",
		PipelineWorkers:    2,
		PipelineBufferSize: 256,
		BatchSize:          32,
		DedupeMaxSize:      100000,
		MetricsAddr:        "",
		Verbose:            false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.ListingPath == "" || c.ListingAPIPath == "" {
		return fmt.Errorf("listing paths cannot be empty")
	}
	if c.TableID == "" {
		return fmt.Errorf("table id cannot be empty")
	}
	if c.ServerPageCap <= 0 {
		return fmt.Errorf("server page cap must be positive")
	}
	switch c.Mode {
	case "api", "browser", "hybrid":
	default:
		return fmt.Errorf("mode must be api, browser, or hybrid")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.HumanDelayMin < 0 || c.HumanDelayMax < c.HumanDelayMin {
		return fmt.Errorf("human delay range is invalid")
	}
	if c.DataWaitTimeout <= 0 {
		return fmt.Errorf("data wait timeout must be positive")
	}
	if _, err := regexp.Compile(c.ActionCallPattern); err != nil {
		return fmt.Errorf("invalid action call pattern: %w", err)
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "sqlite":
	default:
		return fmt.Errorf("output format must be csv, json, dual, or sqlite")
	}
	if c.OutputFormat == "sqlite" && c.DatabasePath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite output")
	}
	if c.PipelineWorkers <= 0 {
		return fmt.Errorf("pipeline workers must be positive")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}

	return nil
}

// ListingURL returns the absolute URL of the listing landing page.
func (c *Config) ListingURL() string {
	return c.BaseURL + c.ListingPath
}

// ListingAPIURL returns the absolute URL of the JSON listing endpoint.
func (c *Config) ListingAPIURL() string {
	return c.BaseURL + c.ListingAPIPath
}

// DetailURL returns the absolute URL of the tender detail page.
func (c *Config) DetailURL() string {
	return c.BaseURL + c.DetailPath
}
