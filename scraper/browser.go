package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/rkotha/go-scrape-tenders/config"
	"github.com/rkotha/go-scrape-tenders/models"
)

// dataRowPollInterval is how often the strategy re-checks the table for
// populated rows while waiting for the client-side script to fill it.
const dataRowPollInterval = 500 * time.Millisecond

// BrowserStrategy drives a real Chrome instance to load the listing page
// and read the rendered table. It is the fallback path: expensive to
// start, but immune to the endpoint-level blocking that hits the HTTP
// strategy. The browser is single-owner and not safe for concurrent use.
type BrowserStrategy struct {
	cfg     *config.Config
	metrics *Metrics

	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewBrowserStrategy builds the strategy without launching anything; the
// browser starts on first use.
func NewBrowserStrategy(cfg *config.Config, metrics *Metrics) *BrowserStrategy {
	return &BrowserStrategy{cfg: cfg, metrics: metrics}
}

func (b *BrowserStrategy) start() error {
	if b.browser != nil {
		return nil
	}

	slog.Info("launching browser", slog.Bool("headless", b.cfg.Headless))

	l := launcher.New().
		Headless(b.cfg.Headless).
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", "1920,1080").
		Set("user-agent", b.cfg.UserAgent)

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("connect to chrome: %w", err)
	}

	b.launcher = l
	b.browser = browser
	return nil
}

// humanPause sleeps a randomized interval to avoid the naive
// timing-based detection the portal applies to page loads.
func (b *BrowserStrategy) humanPause(ctx context.Context) error {
	min, max := b.cfg.HumanDelayMin, b.cfg.HumanDelayMax
	delay := min
	if max > min {
		delay = min + rand.N(max-min)
	}
	slog.Debug("human pause", slog.Duration("delay", delay))
	return sleep(ctx, delay)
}

func (b *BrowserStrategy) dataRowSelector() string {
	return fmt.Sprintf("#%s tbody tr:not(.dataTables_empty)", b.cfg.TableID)
}

// waitForDataRows polls until the table holds at least one non-empty
// data row. A table element with zero data rows does not count: the page
// being loaded is not the same as the data being loaded.
func (b *BrowserStrategy) waitForDataRows(ctx context.Context, page *rod.Page) (rod.Elements, error) {
	deadline := time.Now().Add(b.cfg.DataWaitTimeout)
	selector := b.dataRowSelector()

	for {
		rows, err := page.Elements(selector)
		if err == nil && len(rows) > 0 {
			text, terr := rows.First().Text()
			if terr == nil && strings.TrimSpace(text) != "" {
				slog.Info("table populated", slog.Int("rows", len(rows)))
				return rows, nil
			}
		}

		if time.Now().After(deadline) {
			b.saveScreenshot(page, "timeout_waiting_for_data")
			return nil, fmt.Errorf("table data timeout after %s", b.cfg.DataWaitTimeout)
		}
		if err := sleep(ctx, dataRowPollInterval); err != nil {
			return nil, err
		}
	}
}

// saveScreenshot captures the page for post-mortem diagnostics. Failures
// here are logged and swallowed; a missing screenshot must never mask
// the original error.
func (b *BrowserStrategy) saveScreenshot(page *rod.Page, name string) {
	data, err := page.Screenshot(false, nil)
	if err != nil {
		slog.Warn("failed to capture screenshot", slog.Any("error", err))
		return
	}

	dir := filepath.Join(b.cfg.DataDir, "screenshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("failed to create screenshot dir", slog.Any("error", err))
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", name, time.Now().Format("20060102_150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Warn("failed to write screenshot", slog.Any("error", err))
		return
	}
	slog.Info("screenshot saved", slog.String("path", path))
}

// FetchListing loads the listing page, waits for the asynchronous table
// population, and extracts up to limit rows from the rendered DOM.
func (b *BrowserStrategy) FetchListing(ctx context.Context, limit int) ([]*models.TenderRecord, error) {
	slog.Info("fetching tender listing", slog.String("strategy", "browser"), slog.Int("limit", limit))

	if err := b.start(); err != nil {
		return nil, err
	}

	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	page = page.Context(ctx)
	defer func() {
		if err := page.Close(); err != nil {
			slog.Debug("page close", slog.Any("error", err))
		}
	}()

	start := time.Now()
	b.metrics.IncRequest("browser")
	if err := page.Timeout(b.cfg.Timeout).Navigate(b.cfg.ListingURL()); err != nil {
		b.metrics.IncError("navigation")
		return nil, fmt.Errorf("navigate to listing page: %w", err)
	}
	if err := page.Timeout(b.cfg.Timeout).WaitLoad(); err != nil {
		b.metrics.IncError("navigation")
		return nil, fmt.Errorf("wait for page load: %w", err)
	}
	b.metrics.ObserveDuration(time.Since(start))

	if err := b.humanPause(ctx); err != nil {
		return nil, err
	}

	rows, err := b.waitForDataRows(ctx, page)
	if err != nil {
		b.metrics.IncError("table_timeout")
		return nil, err
	}

	records := make([]*models.TenderRecord, 0, len(rows))
	for i, row := range rows {
		if limit > 0 && len(records) >= limit {
			break
		}

		rec, ok := b.extractRow(row)
		if !ok {
			slog.Warn("skipping rendered row", slog.Int("index", i))
			continue
		}
		records = append(records, rec)

		// brief jitter every few rows keeps the read pattern irregular
		if (i+1)%5 == 0 {
			if err := sleep(ctx, rand.N(time.Second)); err != nil {
				return nil, err
			}
		}
	}

	slog.Info("extracted rendered rows", slog.Int("records", len(records)))
	b.metrics.AddTenders(len(records))
	return records, nil
}

// extractRow reads one table row's cell text and the detail link from
// the actions cell, then applies the shared 10-column normalization.
func (b *BrowserStrategy) extractRow(row *rod.Element) (*models.TenderRecord, bool) {
	cells, err := row.Elements("td")
	if err != nil || len(cells) < columnCount {
		return nil, false
	}

	texts := make([]string, 0, len(cells))
	for _, cell := range cells {
		text, err := cell.Text()
		if err != nil {
			text = ""
		}
		texts = append(texts, text)
	}

	detailURL := ""
	if anchor, err := cells[colActions].Element("a"); err == nil {
		if href, err := anchor.Attribute("href"); err == nil && href != nil && *href != "#" {
			detailURL = *href
		}
	}

	return normalizeCells(texts, detailURL)
}

// Close shuts the browser down if it was ever started.
func (b *BrowserStrategy) Close() error {
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.launcher != nil {
		b.launcher.Cleanup()
		b.launcher = nil
	}
	return err
}
