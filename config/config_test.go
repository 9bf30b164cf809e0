package config

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty base url", mutate: func(c *Config) { c.BaseURL = "" }},
		{name: "base url without host", mutate: func(c *Config) { c.BaseURL = "/relative" }},
		{name: "empty listing path", mutate: func(c *Config) { c.ListingPath = "" }},
		{name: "empty api path", mutate: func(c *Config) { c.ListingAPIPath = "" }},
		{name: "empty table id", mutate: func(c *Config) { c.TableID = "" }},
		{name: "zero page cap", mutate: func(c *Config) { c.ServerPageCap = 0 }},
		{name: "unknown mode", mutate: func(c *Config) { c.Mode = "carrier-pigeon" }},
		{name: "empty user agent", mutate: func(c *Config) { c.UserAgent = "" }},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }},
		{name: "zero attempts", mutate: func(c *Config) { c.MaxAttempts = 0 }},
		{name: "negative backoff", mutate: func(c *Config) { c.RetryBackoff = -time.Second }},
		{name: "backoff above max", mutate: func(c *Config) {
			c.RetryBackoff = time.Minute
			c.RetryBackoffMax = time.Second
		}},
		{name: "inverted human delay", mutate: func(c *Config) {
			c.HumanDelayMin = 5 * time.Second
			c.HumanDelayMax = time.Second
		}},
		{name: "zero data wait", mutate: func(c *Config) { c.DataWaitTimeout = 0 }},
		{name: "broken action pattern", mutate: func(c *Config) { c.ActionCallPattern = "([unclosed" }},
		{name: "empty output file", mutate: func(c *Config) { c.OutputFile = "" }},
		{name: "unknown format", mutate: func(c *Config) { c.OutputFormat = "parquet" }},
		{name: "sqlite without db path", mutate: func(c *Config) {
			c.OutputFormat = "sqlite"
			c.DatabasePath = ""
		}},
		{name: "zero workers", mutate: func(c *Config) { c.PipelineWorkers = 0 }},
		{name: "zero buffer", mutate: func(c *Config) { c.PipelineBufferSize = 0 }},
		{name: "zero batch", mutate: func(c *Config) { c.BatchSize = 0 }},
		{name: "zero dedupe", mutate: func(c *Config) { c.DedupeMaxSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestURLHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "http://tender.test"

	if got := cfg.ListingURL(); got != "http://tender.test/TenderDetailsHome.html" {
		t.Fatalf("listing url = %q", got)
	}
	if got := cfg.ListingAPIURL(); got != "http://tender.test/TenderDetailsHomeJson.html" {
		t.Fatalf("listing api url = %q", got)
	}
	if got := cfg.DetailURL(); got != "http://tender.test/ViewDetailTenderDetail.html" {
		t.Fatalf("detail url = %q", got)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TENDER_TEST_STR", "hello")
	if value, ok := EnvString("TENDER_TEST_STR"); !ok || value != "hello" {
		t.Fatalf("EnvString = %q, %v", value, ok)
	}
	if _, ok := EnvString("TENDER_TEST_MISSING"); ok {
		t.Fatalf("missing variable should report ok=false")
	}

	t.Setenv("TENDER_TEST_INT", "42")
	if value, ok, err := EnvInt("TENDER_TEST_INT"); err != nil || !ok || value != 42 {
		t.Fatalf("EnvInt = %d, %v, %v", value, ok, err)
	}
	t.Setenv("TENDER_TEST_INT", "nope")
	if _, _, err := EnvInt("TENDER_TEST_INT"); err == nil {
		t.Fatalf("expected parse error")
	}

	t.Setenv("TENDER_TEST_BOOL", "true")
	if value, ok, err := EnvBool("TENDER_TEST_BOOL"); err != nil || !ok || !value {
		t.Fatalf("EnvBool = %v, %v, %v", value, ok, err)
	}

	t.Setenv("TENDER_TEST_DUR", "30s")
	if value, ok, err := EnvDuration("TENDER_TEST_DUR"); err != nil || !ok || value != 30*time.Second {
		t.Fatalf("EnvDuration = %v, %v, %v", value, ok, err)
	}
	t.Setenv("TENDER_TEST_DUR", "soon")
	if _, _, err := EnvDuration("TENDER_TEST_DUR"); err == nil {
		t.Fatalf("expected parse error")
	}
}
