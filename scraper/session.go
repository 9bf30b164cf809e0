package scraper

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rkotha/go-scrape-tenders/config"
)

// sessionCookie is the cookie the portal usually issues. Its absence is
// only a warning: the portal has rotated cookie names before.
const sessionCookie = "JSESSIONID"

// AccessContext carries the cookie state required to be treated as a
// legitimate browser-originated client. It is owned by the strategy that
// created it and is not safe to share across concurrent fetches.
type AccessContext struct {
	client        *resty.Client
	EstablishedAt time.Time
}

// Cookies returns the cookies currently held for u.
func (a *AccessContext) Cookies(u *url.URL) []*http.Cookie {
	if a == nil || a.client == nil {
		return nil
	}
	jar := a.client.GetClient().Jar
	if jar == nil {
		return nil
	}
	return jar.Cookies(u)
}

func newSessionClient(cfg *config.Config) *resty.Client {
	return resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
}

// pageHeaders mimics a top-level browser navigation.
func pageHeaders(cfg *config.Config) map[string]string {
	return map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Connection":      "keep-alive",
		"User-Agent":      cfg.UserAgent,
	}
}

// ajaxHeaders mimics the listing page's own XHR. X-Requested-With is the
// load-bearing header: omitting it is a primary cause of 403s.
func ajaxHeaders(cfg *config.Config) map[string]string {
	return map[string]string{
		"Accept":           "application/json, text/javascript, */*; q=0.01",
		"Accept-Language":  "en-US,en;q=0.9",
		"Connection":       "keep-alive",
		"Content-Type":     "application/x-www-form-urlencoded; charset=UTF-8",
		"Origin":           cfg.BaseURL,
		"Referer":          cfg.ListingURL(),
		"User-Agent":       cfg.UserAgent,
		"X-Requested-With": "XMLHttpRequest",
	}
}

// establishSession visits the listing landing page to pick up session
// cookies. The returned context holds whatever cookies the server set.
func establishSession(ctx context.Context, cfg *config.Config, client *resty.Client, policy Policy, metrics *Metrics) (*AccessContext, error) {
	slog.Info("establishing session", slog.String("url", cfg.ListingURL()))

	op := func() error {
		resp, err := client.R().
			SetContext(ctx).
			SetHeaders(pageHeaders(cfg)).
			Get(cfg.ListingURL())
		if err != nil {
			return classifyError(err, 0)
		}
		if resp.StatusCode() >= http.StatusBadRequest {
			return classifyError(nil, resp.StatusCode())
		}
		return nil
	}

	if err := policy.Execute(ctx, "establish_session", op); err != nil {
		metrics.IncError(errorTypeLabel(err))
		return nil, err
	}

	actx := &AccessContext{client: client, EstablishedAt: time.Now()}
	metrics.IncSessions()

	landing, err := url.Parse(cfg.ListingURL())
	if err == nil {
		names := make([]string, 0, 4)
		haveSession := false
		for _, c := range actx.Cookies(landing) {
			names = append(names, c.Name)
			if c.Name == sessionCookie {
				haveSession = true
			}
		}
		if !haveSession {
			slog.Warn("expected session cookie not set, continuing anyway",
				slog.String("cookie", sessionCookie),
				slog.Any("cookies", names),
			)
		} else {
			slog.Info("session established", slog.Any("cookies", names))
		}
	}

	return actx, nil
}
