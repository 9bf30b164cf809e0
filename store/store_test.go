package store

import (
	"testing"
	"time"

	"github.com/rkotha/go-scrape-tenders/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertTenderIsIdempotentByID(t *testing.T) {
	s := openTestStore(t)

	rec := &models.TenderRecord{
		TenderID:     "T-1",
		Department:   "Roads",
		NoticeNumber: "N-1",
		WorkName:     "Bridge Work",
		TenderValue:  "Rs. 1,00,000",
		ScrapedAt:    time.Now(),
	}
	if err := s.UpsertTender(rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rec.WorkName = "Bridge Work (revised)"
	if err := s.UpsertTender(rec); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}

	got, err := s.GetTender("T-1")
	if err != nil {
		t.Fatalf("get tender: %v", err)
	}
	if got.WorkName != "Bridge Work (revised)" {
		t.Fatalf("work name = %q, want the refreshed value", got.WorkName)
	}
	if got.Department != "Roads" {
		t.Fatalf("department = %q", got.Department)
	}
}

func TestSaveDetailReplacesEarlierCapture(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertTender(&models.TenderRecord{
		TenderID: "T-1", NoticeNumber: "N-1", WorkName: "Work", ScrapedAt: time.Now(),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	detail := &models.TenderDetail{
		TenderID:    "T-1",
		Eligibility: "Class A",
		ScrapedAt:   time.Now(),
	}
	if err := s.SaveDetail(detail); err != nil {
		t.Fatalf("save detail: %v", err)
	}

	detail.Eligibility = "Class B"
	if err := s.SaveDetail(detail); err != nil {
		t.Fatalf("second save detail: %v", err)
	}

	var eligibility string
	if err := s.db.QueryRow(
		`SELECT eligibility FROM tender_details WHERE tender_id = ?`, "T-1",
	).Scan(&eligibility); err != nil {
		t.Fatalf("query detail: %v", err)
	}
	if eligibility != "Class B" {
		t.Fatalf("eligibility = %q, want Class B", eligibility)
	}
}

func TestLogRun(t *testing.T) {
	s := openTestStore(t)

	start := time.Now().Add(-time.Minute)
	if err := s.LogRun(start, time.Now(), models.RunStats{Found: 10, Succeeded: 8, Failed: 2}); err != nil {
		t.Fatalf("log run: %v", err)
	}

	var found, succeeded, failed int
	if err := s.db.QueryRow(
		`SELECT found, succeeded, failed FROM scrape_logs ORDER BY id DESC LIMIT 1`,
	).Scan(&found, &succeeded, &failed); err != nil {
		t.Fatalf("query log: %v", err)
	}
	if found != 10 || succeeded != 8 || failed != 2 {
		t.Fatalf("log = %d/%d/%d, want 10/8/2", found, succeeded, failed)
	}
}

func TestGetTenderMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetTender("nope"); err == nil {
		t.Fatalf("expected error for missing tender")
	}
}
