package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/rkotha/go-scrape-tenders/config"
	"github.com/rkotha/go-scrape-tenders/models"
)

// blockStreakLimit is how many consecutive blocked or transport failures
// invalidate the access context and force re-establishment.
const blockStreakLimit = 3

// listingEnvelope is the DataTables-style response wrapper. AaData is a
// pointer so a missing rows field is distinguishable from an empty one.
type listingEnvelope struct {
	AaData *[][]string `json:"aaData"`
}

// APIStrategy fetches listings through the portal's AJAX/JSON endpoint.
// It is the preferred acquisition path: one POST instead of a rendered
// page. Not safe for concurrent use; the access context is single-owner.
type APIStrategy struct {
	cfg     *config.Config
	client  *resty.Client
	actx    *AccessContext
	callRe  *regexp.Regexp
	metrics *Metrics

	sessionPolicy Policy
	listingPolicy Policy
	detailPolicy  Policy

	blockStreak int
}

// NewAPIStrategy builds the HTTP strategy. The session is established
// lazily on the first fetch.
func NewAPIStrategy(cfg *config.Config, metrics *Metrics) (*APIStrategy, error) {
	callRe, err := regexp.Compile(cfg.ActionCallPattern)
	if err != nil {
		return nil, fmt.Errorf("compile action call pattern: %w", err)
	}

	return &APIStrategy{
		cfg:           cfg,
		client:        newSessionClient(cfg),
		callRe:        callRe,
		metrics:       metrics,
		sessionPolicy: newPolicy(cfg.MaxAttempts, cfg.RetryBackoff, cfg.RetryBackoffMax, retryableTransport),
		listingPolicy: newPolicy(cfg.MaxAttempts, cfg.RetryBackoff, cfg.RetryBackoffMax, retryableListing),
		detailPolicy:  newPolicy(cfg.MaxAttempts, cfg.RetryBackoff, cfg.RetryBackoffMax, retryableTransport),
	}, nil
}

// AccessContext exposes the current session state for collaborators that
// need the same cookies, such as the document crawler.
func (s *APIStrategy) AccessContext() *AccessContext {
	return s.actx
}

func (s *APIStrategy) ensureSession(ctx context.Context) error {
	if s.actx != nil {
		return nil
	}
	actx, err := establishSession(ctx, s.cfg, s.client, s.sessionPolicy, s.metrics)
	if err != nil {
		return err
	}
	s.actx = actx
	s.blockStreak = 0
	return nil
}

// noteFailure tracks consecutive blocked/transport failures and drops
// the access context once the streak limit is hit, so the next attempt
// rebuilds it from scratch.
func (s *APIStrategy) noteFailure() {
	s.blockStreak++
	if s.blockStreak >= blockStreakLimit && s.actx != nil {
		slog.Warn("access context invalidated after repeated failures",
			slog.Int("streak", s.blockStreak),
		)
		s.actx = nil
	}
}

// listingPayload builds the fixed DataTables request body: ten column
// descriptors, one sort descriptor, and the pagination window.
func listingPayload(limit, pageCap int) map[string]string {
	displayLength := pageCap
	if limit > 0 && limit < pageCap {
		displayLength = limit
	}

	payload := map[string]string{
		"sEcho":          "1",
		"iColumns":       strconv.Itoa(columnCount),
		"sColumns":       ",,,,,,,,",
		"iDisplayStart":  "0",
		"iDisplayLength": strconv.Itoa(displayLength),
		"sSearch":        "",
		"bRegex":         "false",
		"iSortCol_0":     "0",
		"sSortDir_0":     "asc",
		"iSortingCols":   "1",
	}
	for i := 0; i < columnCount; i++ {
		n := strconv.Itoa(i)
		payload["mDataProp_"+n] = n
		payload["sSearch_"+n] = ""
		payload["bRegex_"+n] = "false"
		payload["bSearchable_"+n] = "true"
		// the identifier and actions columns are not sortable server-side
		if i >= colTenderID {
			payload["bSortable_"+n] = "false"
		} else {
			payload["bSortable_"+n] = "true"
		}
	}
	return payload
}

// FetchListing retrieves up to limit tender rows from the JSON endpoint.
// A limit of zero means "everything the server will give us". An empty
// rows field is a valid result; a missing one is a malformed response.
func (s *APIStrategy) FetchListing(ctx context.Context, limit int) ([]*models.TenderRecord, error) {
	slog.Info("fetching tender listing", slog.String("strategy", "api"), slog.Int("limit", limit))

	var rows [][]string
	op := func() error {
		if err := s.ensureSession(ctx); err != nil {
			return err
		}

		start := time.Now()
		resp, err := s.client.R().
			SetContext(ctx).
			SetHeaders(ajaxHeaders(s.cfg)).
			SetFormData(listingPayload(limit, s.cfg.ServerPageCap)).
			Post(s.cfg.ListingAPIURL())
		s.metrics.IncRequest("api")
		s.metrics.ObserveDuration(time.Since(start))

		if err != nil {
			classified := classifyError(err, 0)
			s.metrics.IncError(errorTypeLabel(classified))
			s.noteFailure()
			return classified
		}
		if resp.StatusCode() == http.StatusForbidden {
			slog.Warn("listing request blocked", slog.Int("status", resp.StatusCode()))
			s.metrics.IncError("forbidden")
			s.noteFailure()
			return classifyError(nil, resp.StatusCode())
		}
		if resp.StatusCode() >= http.StatusBadRequest {
			classified := classifyError(nil, resp.StatusCode())
			s.metrics.IncError(errorTypeLabel(classified))
			s.noteFailure()
			return classified
		}

		var envelope listingEnvelope
		if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
			return ErrMalformed{Err: fmt.Errorf("decode listing envelope: %w", err)}
		}
		if envelope.AaData == nil {
			return ErrMalformed{Err: fmt.Errorf("listing response missing aaData field")}
		}

		s.blockStreak = 0
		rows = *envelope.AaData
		return nil
	}

	if err := s.listingPolicy.Execute(ctx, "fetch_listing", op); err != nil {
		return nil, err
	}

	slog.Info("received listing rows", slog.Int("rows", len(rows)))

	records := make([]*models.TenderRecord, 0, len(rows))
	for i, row := range rows {
		if limit > 0 && len(records) >= limit {
			break
		}
		rec, ok := normalizeRow(row, s.callRe)
		if !ok {
			slog.Warn("skipping row with insufficient columns",
				slog.Int("index", i),
				slog.Int("columns", len(row)),
			)
			continue
		}
		records = append(records, rec)
	}

	s.metrics.AddTenders(len(records))
	return records, nil
}

// detailTarget returns the absolute detail-page URL for rec. Listing
// markup carries site-relative hrefs, so a captured DetailURL resolves
// against the portal base; records without one fall back to the
// canonical detail endpoint keyed by tender id.
func (s *APIStrategy) detailTarget(rec *models.TenderRecord) (string, error) {
	if rec.DetailURL == "" {
		return s.cfg.DetailURL() + "?tenderId=" + rec.TenderID, nil
	}
	base, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(rec.DetailURL)
	if err != nil {
		return "", fmt.Errorf("parse detail url %q: %w", rec.DetailURL, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// detailLabels maps detail-page section headings onto record fields.
var detailLabels = map[string]func(*models.TenderDetail, string){
	"eligibility":          func(d *models.TenderDetail, v string) { d.Eligibility = v },
	"general terms":        func(d *models.TenderDetail, v string) { d.GeneralTerms = v },
	"legal terms":          func(d *models.TenderDetail, v string) { d.LegalTerms = v },
	"technical terms":      func(d *models.TenderDetail, v string) { d.TechnicalTerms = v },
	"submission procedure": func(d *models.TenderDetail, v string) { d.SubmissionProcedure = v },
}

// FetchDetail retrieves the extended fields for one tender. Extraction
// is best-effort: the detail page's structure drifts, so unmatched
// sections simply stay empty.
func (s *APIStrategy) FetchDetail(ctx context.Context, rec *models.TenderRecord) (*models.TenderDetail, error) {
	if rec == nil || rec.TenderID == "" {
		return nil, fmt.Errorf("record has no tender id")
	}

	target, err := s.detailTarget(rec)
	if err != nil {
		return nil, err
	}
	slog.Info("fetching tender detail", slog.String("tender_id", rec.TenderID), slog.String("url", target))

	var body []byte
	op := func() error {
		if err := s.ensureSession(ctx); err != nil {
			return err
		}

		resp, err := s.client.R().
			SetContext(ctx).
			SetHeaders(pageHeaders(s.cfg)).
			Get(target)
		s.metrics.IncRequest("detail")
		if err != nil {
			classified := classifyError(err, 0)
			s.metrics.IncError(errorTypeLabel(classified))
			s.noteFailure()
			return classified
		}
		if resp.StatusCode() >= http.StatusBadRequest {
			classified := classifyError(nil, resp.StatusCode())
			s.metrics.IncError(errorTypeLabel(classified))
			s.noteFailure()
			return classified
		}

		s.blockStreak = 0
		body = resp.Body()
		return nil
	}

	if err := s.detailPolicy.Execute(ctx, "fetch_detail", op); err != nil {
		return nil, err
	}

	detail := &models.TenderDetail{
		TenderID:  rec.TenderID,
		ScrapedAt: time.Now(),
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, ErrMalformed{Err: fmt.Errorf("parse detail page: %w", err)}
	}

	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 2 {
			return
		}
		label := normalizeLabel(cells.First().Text())
		assign, ok := detailLabels[label]
		if !ok {
			return
		}
		assign(detail, cleanHTML(cells.Eq(1).Text()))
	})

	return detail, nil
}

func normalizeLabel(s string) string {
	s, _, _ = strings.Cut(s, ":")
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Close releases the strategy's session state.
func (s *APIStrategy) Close() error {
	s.actx = nil
	return nil
}
