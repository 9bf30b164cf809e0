package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gocolly/colly/v2"

	"github.com/rkotha/go-scrape-tenders/models"
)

// documentExtensions are the attachment types the portal publishes.
var documentExtensions = []string{".pdf", ".doc", ".docx", ".xls", ".xlsx"}

func isDocumentLink(href string) bool {
	lower := strings.ToLower(href)
	if idx := strings.IndexAny(lower, "?#"); idx >= 0 {
		lower = lower[:idx]
	}
	for _, ext := range documentExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// DocumentURLs collects attachment links from a tender's detail page.
// The collector is seeded with the strategy's session cookies so the
// portal sees the same client that fetched the listing.
func (s *APIStrategy) DocumentURLs(ctx context.Context, rec *models.TenderRecord) ([]string, error) {
	if rec == nil || rec.TenderID == "" {
		return nil, fmt.Errorf("record has no tender id")
	}

	target, err := s.detailTarget(rec)
	if err != nil {
		return nil, err
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse detail url: %w", err)
	}

	if err := s.ensureSession(ctx); err != nil {
		return nil, err
	}

	var urls []string
	op := func() error {
		urls = urls[:0]

		c := colly.NewCollector(
			colly.AllowedDomains(parsed.Host),
			colly.UserAgent(s.cfg.UserAgent),
		)
		c.SetRequestTimeout(s.cfg.Timeout)
		if cookies := s.actx.Cookies(parsed); len(cookies) > 0 {
			if err := c.SetCookies(target, cookies); err != nil {
				slog.Warn("failed to seed collector cookies", slog.Any("error", err))
			}
		}

		c.OnRequest(func(r *colly.Request) {
			r.Headers.Set("Referer", s.cfg.BaseURL+"/")
			r.Headers.Set("X-Requested-With", "XMLHttpRequest")
			s.metrics.IncRequest("documents")
		})

		c.OnHTML("a[href]", func(e *colly.HTMLElement) {
			href := e.Attr("href")
			if !isDocumentLink(href) {
				return
			}
			urls = append(urls, e.Request.AbsoluteURL(href))
		})

		var fetchErr error
		c.OnError(func(r *colly.Response, err error) {
			statusCode := 0
			if r != nil {
				statusCode = r.StatusCode
			}
			fetchErr = classifyError(err, statusCode)
		})

		if err := c.Visit(target); err != nil {
			return classifyError(err, 0)
		}
		c.Wait()
		if fetchErr != nil {
			s.metrics.IncError(errorTypeLabel(fetchErr))
			s.noteFailure()
			return fetchErr
		}
		s.blockStreak = 0
		return nil
	}

	if err := s.detailPolicy.Execute(ctx, "document_urls", op); err != nil {
		return nil, err
	}

	slog.Info("collected document urls",
		slog.String("tender_id", rec.TenderID),
		slog.Int("count", len(urls)),
	)
	return urls, nil
}
