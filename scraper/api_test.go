package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/rkotha/go-scrape-tenders/config"
	"github.com/rkotha/go-scrape-tenders/models"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://tender.test"
	cfg.MaxAttempts = 3
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 5 * time.Millisecond
	return cfg
}

func newTestAPIStrategy(t *testing.T, cfg *config.Config) (*APIStrategy, *httpmock.MockTransport) {
	t.Helper()
	s, err := NewAPIStrategy(cfg, NewMetrics())
	if err != nil {
		t.Fatalf("new api strategy: %v", err)
	}
	transport := httpmock.NewMockTransport()
	s.client.SetTransport(transport)
	return s, transport
}

func listingBody(t *testing.T, rows [][]string) string {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"aaData": rows})
	if err != nil {
		t.Fatalf("marshal listing body: %v", err)
	}
	return string(body)
}

func sampleRecord(id string) *models.TenderRecord {
	return &models.TenderRecord{
		TenderID:     id,
		NoticeNumber: "N-" + id,
		WorkName:     "Work " + id,
	}
}

func sampleRow(id string) []string {
	return []string{
		"Roads Department", "N-" + id, "Works", "Work " + id, "Rs. 1,00,000",
		"01-02-2024", "02-02-2024", "20-02-2024", id,
		`<a href="#" onclick="viewTender('` + id + `','ext')">View</a>`,
	}
}

func TestAPIFetchListing(t *testing.T) {
	cfg := testConfig()
	s, transport := newTestAPIStrategy(t, cfg)

	transport.RegisterResponder("GET", cfg.ListingURL(),
		httpmock.NewStringResponder(http.StatusOK, "<html></html>"))
	transport.RegisterResponder("POST", cfg.ListingAPIURL(),
		httpmock.NewStringResponder(http.StatusOK, listingBody(t, [][]string{
			sampleRow("T-1"),
			sampleRow("T-2"),
			sampleRow("T-3"),
		})))

	records, err := s.FetchListing(context.Background(), 2)
	if err != nil {
		t.Fatalf("fetch listing: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2 (limit applied)", len(records))
	}
	if records[0].TenderID != "T-1" {
		t.Fatalf("tender id = %q, want T-1", records[0].TenderID)
	}
	if len(records[0].AuxParams) != 1 || records[0].AuxParams[0] != "ext" {
		t.Fatalf("aux params = %v, want [ext]", records[0].AuxParams)
	}

	counts := transport.GetCallCountInfo()
	if got := counts["GET "+cfg.ListingURL()]; got != 1 {
		t.Fatalf("session establishments = %d, want 1", got)
	}
	if got := counts["POST "+cfg.ListingAPIURL()]; got != 1 {
		t.Fatalf("listing requests = %d, want 1", got)
	}
}

func TestAPIFetchListingSkipsShortRows(t *testing.T) {
	cfg := testConfig()
	s, transport := newTestAPIStrategy(t, cfg)

	transport.RegisterResponder("GET", cfg.ListingURL(),
		httpmock.NewStringResponder(http.StatusOK, ""))
	transport.RegisterResponder("POST", cfg.ListingAPIURL(),
		httpmock.NewStringResponder(http.StatusOK, listingBody(t, [][]string{
			{"only", "three", "fields"},
			sampleRow("T-9"),
		})))

	records, err := s.FetchListing(context.Background(), 0)
	if err != nil {
		t.Fatalf("fetch listing: %v", err)
	}
	if len(records) != 1 || records[0].TenderID != "T-9" {
		t.Fatalf("records = %+v, want only T-9", records)
	}
}

func TestAPIFetchListingEmptyRowsIsNotAnError(t *testing.T) {
	cfg := testConfig()
	s, transport := newTestAPIStrategy(t, cfg)

	transport.RegisterResponder("GET", cfg.ListingURL(),
		httpmock.NewStringResponder(http.StatusOK, ""))
	transport.RegisterResponder("POST", cfg.ListingAPIURL(),
		httpmock.NewStringResponder(http.StatusOK, `{"aaData":[]}`))

	records, err := s.FetchListing(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch listing: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %d, want 0", len(records))
	}
}

func TestAPIFetchListingMissingRowsFieldIsMalformed(t *testing.T) {
	cfg := testConfig()
	s, transport := newTestAPIStrategy(t, cfg)

	transport.RegisterResponder("GET", cfg.ListingURL(),
		httpmock.NewStringResponder(http.StatusOK, ""))
	transport.RegisterResponder("POST", cfg.ListingAPIURL(),
		httpmock.NewStringResponder(http.StatusOK, `{"sEcho":"1"}`))

	_, err := s.FetchListing(context.Background(), 10)
	var malformed ErrMalformed
	if !errors.As(err, &malformed) {
		t.Fatalf("error = %v, want ErrMalformed", err)
	}

	// malformed responses are terminal, never retried
	if got := transport.GetCallCountInfo()["POST "+cfg.ListingAPIURL()]; got != 1 {
		t.Fatalf("listing requests = %d, want 1", got)
	}
}

func TestAPIFetchListingBlockedExhaustsRetries(t *testing.T) {
	cfg := testConfig()
	s, transport := newTestAPIStrategy(t, cfg)

	transport.RegisterResponder("GET", cfg.ListingURL(),
		httpmock.NewStringResponder(http.StatusOK, ""))
	transport.RegisterResponder("POST", cfg.ListingAPIURL(),
		httpmock.NewStringResponder(http.StatusForbidden, "blocked"))

	_, err := s.FetchListing(context.Background(), 10)

	var exhausted ErrMaxRetries
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want ErrMaxRetries", err)
	}
	var forbidden ErrForbidden
	if !errors.As(err, &forbidden) {
		t.Fatalf("error = %v, should unwrap to ErrForbidden", err)
	}

	if got := transport.GetCallCountInfo()["POST "+cfg.ListingAPIURL()]; got != cfg.MaxAttempts {
		t.Fatalf("listing requests = %d, want %d", got, cfg.MaxAttempts)
	}
	if s.AccessContext() != nil {
		t.Fatalf("repeated blocks should invalidate the access context")
	}
}

func TestAPIFetchListingConnectionErrorsAreRetried(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 2
	s, transport := newTestAPIStrategy(t, cfg)

	transport.RegisterResponder("GET", cfg.ListingURL(),
		httpmock.NewStringResponder(http.StatusOK, ""))

	calls := 0
	transport.RegisterResponder("POST", cfg.ListingAPIURL(),
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
			}
			return httpmock.NewStringResponse(http.StatusOK, listingBody(t, [][]string{sampleRow("T-5")})), nil
		})

	records, err := s.FetchListing(context.Background(), 0)
	if err != nil {
		t.Fatalf("fetch listing: %v", err)
	}
	if len(records) != 1 || records[0].TenderID != "T-5" {
		t.Fatalf("records = %+v, want T-5", records)
	}
	if calls != 2 {
		t.Fatalf("listing requests = %d, want 2", calls)
	}
}

func TestAPIFetchDetail(t *testing.T) {
	cfg := testConfig()
	s, transport := newTestAPIStrategy(t, cfg)

	page := `
	<html><body><table>
	<tr><td>Eligibility :</td><td>Class A contractors</td></tr>
	<tr><td>General Terms</td><td>As per tender schedule</td></tr>
	<tr><td>Unrelated Section</td><td>ignored</td></tr>
	</table></body></html>`

	transport.RegisterResponder("GET", cfg.ListingURL(),
		httpmock.NewStringResponder(http.StatusOK, ""))
	transport.RegisterResponder("GET", `=~^http://tender\.test/ViewDetailTenderDetail\.html`,
		httpmock.NewStringResponder(http.StatusOK, page))

	detail, err := s.FetchDetail(context.Background(), sampleRecord("T-1"))
	if err != nil {
		t.Fatalf("fetch detail: %v", err)
	}
	if detail.TenderID != "T-1" {
		t.Fatalf("tender id = %q, want T-1", detail.TenderID)
	}
	if detail.Eligibility != "Class A contractors" {
		t.Fatalf("eligibility = %q", detail.Eligibility)
	}
	if detail.GeneralTerms != "As per tender schedule" {
		t.Fatalf("general terms = %q", detail.GeneralTerms)
	}
	if detail.LegalTerms != "" {
		t.Fatalf("legal terms = %q, want empty (section absent)", detail.LegalTerms)
	}
}

func TestAPIDetailTarget(t *testing.T) {
	cfg := testConfig()
	s, _ := newTestAPIStrategy(t, cfg)

	tests := []struct {
		name      string
		detailURL string
		expected  string
	}{
		{
			name:      "no detail url falls back to canonical endpoint",
			detailURL: "",
			expected:  "http://tender.test/ViewDetailTenderDetail.html?tenderId=T-1",
		},
		{
			name:      "site-relative href resolves against base",
			detailURL: "/ViewDetailTenderDetail.html?id=T-9",
			expected:  "http://tender.test/ViewDetailTenderDetail.html?id=T-9",
		},
		{
			name:      "absolute href passes through",
			detailURL: "http://other.test/detail?id=T-9",
			expected:  "http://other.test/detail?id=T-9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := sampleRecord("T-1")
			rec.DetailURL = tt.detailURL
			got, err := s.detailTarget(rec)
			if err != nil {
				t.Fatalf("detail target: %v", err)
			}
			if got != tt.expected {
				t.Fatalf("detail target = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIFetchDetailResolvesRelativeURL(t *testing.T) {
	cfg := testConfig()
	s, transport := newTestAPIStrategy(t, cfg)

	page := `
	<html><body><table>
	<tr><td>Eligibility :</td><td>Class A contractors</td></tr>
	</table></body></html>`

	transport.RegisterResponder("GET", cfg.ListingURL(),
		httpmock.NewStringResponder(http.StatusOK, ""))
	transport.RegisterResponder("GET", "http://tender.test/ViewDetailTenderDetail.html?id=T-9",
		httpmock.NewStringResponder(http.StatusOK, page))

	rec := sampleRecord("T-9")
	rec.DetailURL = "/ViewDetailTenderDetail.html?id=T-9"

	detail, err := s.FetchDetail(context.Background(), rec)
	if err != nil {
		t.Fatalf("fetch detail: %v", err)
	}
	if detail.Eligibility != "Class A contractors" {
		t.Fatalf("eligibility = %q", detail.Eligibility)
	}

	counts := transport.GetCallCountInfo()
	if got := counts["GET http://tender.test/ViewDetailTenderDetail.html?id=T-9"]; got != 1 {
		t.Fatalf("resolved detail requests = %d, want 1", got)
	}
}

func TestAPISessionFailureDoesNotMultiplyRetries(t *testing.T) {
	cfg := testConfig()
	s, transport := newTestAPIStrategy(t, cfg)

	transport.RegisterResponder("GET", cfg.ListingURL(),
		httpmock.NewErrorResponder(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))

	_, err := s.FetchListing(context.Background(), 10)

	var exhausted ErrMaxRetries
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want ErrMaxRetries", err)
	}

	counts := transport.GetCallCountInfo()
	if got := counts["GET "+cfg.ListingURL()]; got != cfg.MaxAttempts {
		t.Fatalf("landing page requests = %d, want %d (session attempts must not compound with listing attempts)", got, cfg.MaxAttempts)
	}
	if got := counts["POST "+cfg.ListingAPIURL()]; got != 0 {
		t.Fatalf("listing requests = %d, want 0", got)
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Eligibility :", "eligibility"},
		{"  General   Terms ", "general terms"},
		{"LEGAL TERMS:", "legal terms"},
	}
	for _, tt := range tests {
		if got := normalizeLabel(tt.input); got != tt.expected {
			t.Fatalf("normalizeLabel(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestListingPayload(t *testing.T) {
	payload := listingPayload(0, 100)
	if payload["iDisplayLength"] != "100" {
		t.Fatalf("iDisplayLength = %q, want server cap 100", payload["iDisplayLength"])
	}

	payload = listingPayload(25, 100)
	if payload["iDisplayLength"] != "25" {
		t.Fatalf("iDisplayLength = %q, want 25", payload["iDisplayLength"])
	}

	payload = listingPayload(500, 100)
	if payload["iDisplayLength"] != "100" {
		t.Fatalf("iDisplayLength = %q, limit above cap should clamp to 100", payload["iDisplayLength"])
	}

	if payload["iColumns"] != "10" {
		t.Fatalf("iColumns = %q, want 10", payload["iColumns"])
	}
	if payload["mDataProp_9"] != "9" {
		t.Fatalf("mDataProp_9 = %q, want 9", payload["mDataProp_9"])
	}
	if payload["bSortable_9"] != "false" {
		t.Fatalf("bSortable_9 = %q, actions column must not be sortable", payload["bSortable_9"])
	}
	if payload["bSortable_0"] != "true" {
		t.Fatalf("bSortable_0 = %q, want true", payload["bSortable_0"])
	}
}
