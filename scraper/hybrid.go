package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rkotha/go-scrape-tenders/config"
	"github.com/rkotha/go-scrape-tenders/models"
	"github.com/rkotha/go-scrape-tenders/parser"
)

// errEmptyListing marks an API fetch that succeeded but produced no rows
// when the portal was expected to have open tenders.
var errEmptyListing = errors.New("api strategy returned no rows")

// ListingFetcher is the contract both strategies satisfy.
type ListingFetcher interface {
	FetchListing(ctx context.Context, limit int) ([]*models.TenderRecord, error)
	Close() error
}

// Coordinator selects between the HTTP and browser strategies. The HTTP
// path goes first; the browser is constructed lazily on the first
// fallback because it is expensive to start. Not safe for concurrent
// use: one coordinator owns one access context and one browser.
type Coordinator struct {
	cfg     *config.Config
	metrics *Metrics

	api     *APIStrategy
	browser ListingFetcher

	// newBrowser is swapped out by tests to observe fallback behavior.
	newBrowser func() ListingFetcher

	stats models.RunStats
}

// NewCoordinator builds a coordinator for the configured mode. In "api"
// mode no fallback ever happens; in "browser" mode the HTTP strategy is
// never constructed.
func NewCoordinator(cfg *config.Config, metrics *Metrics) (*Coordinator, error) {
	c := &Coordinator{
		cfg:     cfg,
		metrics: metrics,
	}
	c.newBrowser = func() ListingFetcher {
		return NewBrowserStrategy(cfg, metrics)
	}

	if cfg.Mode != "browser" {
		api, err := NewAPIStrategy(cfg, metrics)
		if err != nil {
			return nil, err
		}
		c.api = api
	}
	return c, nil
}

func (c *Coordinator) ensureBrowser() ListingFetcher {
	if c.browser == nil {
		c.browser = c.newBrowser()
	}
	return c.browser
}

// FetchListing returns the validated, capped tender listing. On HTTP
// failure or an unexpectedly empty result the browser strategy serves
// the whole listing; results are never merged across strategies.
func (c *Coordinator) FetchListing(ctx context.Context, limit int) ([]*models.TenderRecord, error) {
	var (
		records []*models.TenderRecord
		apiErr  error
	)

	if c.api != nil {
		records, apiErr = c.api.FetchListing(ctx, limit)
		if apiErr == nil && len(records) == 0 && limit != 0 {
			// the portal always has open tenders, so an empty listing
			// from the JSON endpoint is a blocking symptom, not data
			apiErr = errEmptyListing
		}
	}

	switch {
	case c.cfg.Mode == "api":
		if apiErr != nil {
			return nil, apiErr
		}
	case c.cfg.Mode == "browser" || apiErr != nil:
		if apiErr != nil {
			slog.Warn("falling back to browser strategy", slog.Any("error", apiErr))
			c.metrics.IncFallback()
		}
		var browserErr error
		records, browserErr = c.ensureBrowser().FetchListing(ctx, limit)
		if browserErr != nil {
			if apiErr != nil {
				return nil, ErrBothStrategiesFailed{API: apiErr, Browser: browserErr}
			}
			return nil, browserErr
		}
	}

	return c.filter(records, limit), nil
}

// filter applies the required-field validity check, caps the result, and
// updates the run statistics. The stats do not record which strategy
// produced the rows.
func (c *Coordinator) filter(records []*models.TenderRecord, limit int) []*models.TenderRecord {
	c.stats.Found += len(records)

	valid := make([]*models.TenderRecord, 0, len(records))
	for _, rec := range records {
		if limit > 0 && len(valid) >= limit {
			break
		}
		if err := parser.ValidateTender(rec); err != nil {
			slog.Warn("dropping invalid record", slog.Any("error", err))
			c.stats.Failed++
			continue
		}
		valid = append(valid, rec)
		c.stats.Succeeded++
	}
	return valid
}

// FetchDetail retrieves extended fields for one tender via the HTTP
// strategy's access context.
func (c *Coordinator) FetchDetail(ctx context.Context, rec *models.TenderRecord) (*models.TenderDetail, error) {
	if c.api == nil {
		return nil, fmt.Errorf("detail fetch requires the http strategy (mode=%s)", c.cfg.Mode)
	}
	return c.api.FetchDetail(ctx, rec)
}

// DocumentURLs collects attachment links for one tender.
func (c *Coordinator) DocumentURLs(ctx context.Context, rec *models.TenderRecord) ([]string, error) {
	if c.api == nil {
		return nil, fmt.Errorf("document extraction requires the http strategy (mode=%s)", c.cfg.Mode)
	}
	return c.api.DocumentURLs(ctx, rec)
}

// Stats returns the counters accumulated so far.
func (c *Coordinator) Stats() models.RunStats {
	return c.stats
}

// Close releases whichever strategies were actually instantiated. It
// never starts the browser just to stop it.
func (c *Coordinator) Close() error {
	var errs []error
	if c.api != nil {
		if err := c.api.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.browser != nil {
		if err := c.browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
