// Package store persists tender records and scrape runs in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rkotha/go-scrape-tenders/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS tenders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tender_id TEXT NOT NULL UNIQUE,
	department TEXT NOT NULL DEFAULT '',
	notice_number TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	work_name TEXT NOT NULL DEFAULT '',
	tender_value TEXT NOT NULL DEFAULT '',
	published_date TEXT NOT NULL DEFAULT '',
	bid_start_date TEXT NOT NULL DEFAULT '',
	bid_close_date TEXT NOT NULL DEFAULT '',
	detail_url TEXT NOT NULL DEFAULT '',
	scraped_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS tender_details (
	tender_id TEXT PRIMARY KEY REFERENCES tenders(tender_id),
	eligibility TEXT NOT NULL DEFAULT '',
	general_terms TEXT NOT NULL DEFAULT '',
	legal_terms TEXT NOT NULL DEFAULT '',
	technical_terms TEXT NOT NULL DEFAULT '',
	submission_procedure TEXT NOT NULL DEFAULT '',
	scraped_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS scrape_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	found INTEGER NOT NULL,
	succeeded INTEGER NOT NULL,
	failed INTEGER NOT NULL
);
`

// Store wraps a SQLite database holding scraped tenders.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path. Use
// ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// modernc sqlite serializes writes itself; one connection avoids
	// SQLITE_BUSY churn under the pipeline's worker pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// UpsertTender inserts a record or refreshes an existing one keyed by
// the portal's tender identifier.
func (s *Store) UpsertTender(rec *models.TenderRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO tenders (
			tender_id, department, notice_number, category, work_name,
			tender_value, published_date, bid_start_date, bid_close_date,
			detail_url, scraped_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tender_id) DO UPDATE SET
			department = excluded.department,
			notice_number = excluded.notice_number,
			category = excluded.category,
			work_name = excluded.work_name,
			tender_value = excluded.tender_value,
			published_date = excluded.published_date,
			bid_start_date = excluded.bid_start_date,
			bid_close_date = excluded.bid_close_date,
			detail_url = excluded.detail_url,
			scraped_at = excluded.scraped_at`,
		rec.TenderID, rec.Department, rec.NoticeNumber, rec.Category,
		rec.WorkName, rec.TenderValue, rec.PublishedDate, rec.BidStartDate,
		rec.BidCloseDate, rec.DetailURL, rec.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert tender %s: %w", rec.TenderID, err)
	}
	return nil
}

// SaveDetail stores the extended fields for one tender, replacing any
// earlier capture.
func (s *Store) SaveDetail(detail *models.TenderDetail) error {
	_, err := s.db.Exec(`
		INSERT INTO tender_details (
			tender_id, eligibility, general_terms, legal_terms,
			technical_terms, submission_procedure, scraped_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tender_id) DO UPDATE SET
			eligibility = excluded.eligibility,
			general_terms = excluded.general_terms,
			legal_terms = excluded.legal_terms,
			technical_terms = excluded.technical_terms,
			submission_procedure = excluded.submission_procedure,
			scraped_at = excluded.scraped_at`,
		detail.TenderID, detail.Eligibility, detail.GeneralTerms,
		detail.LegalTerms, detail.TechnicalTerms, detail.SubmissionProcedure,
		detail.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("save detail %s: %w", detail.TenderID, err)
	}
	return nil
}

// LogRun records the outcome counters of one scrape invocation.
func (s *Store) LogRun(startedAt, finishedAt time.Time, stats models.RunStats) error {
	_, err := s.db.Exec(`
		INSERT INTO scrape_logs (started_at, finished_at, found, succeeded, failed)
		VALUES (?, ?, ?, ?, ?)`,
		startedAt, finishedAt, stats.Found, stats.Succeeded, stats.Failed,
	)
	if err != nil {
		return fmt.Errorf("log run: %w", err)
	}
	return nil
}

// Count returns the number of stored tenders.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tenders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tenders: %w", err)
	}
	return n, nil
}

// GetTender loads one record by its tender identifier.
func (s *Store) GetTender(tenderID string) (*models.TenderRecord, error) {
	rec := &models.TenderRecord{}
	err := s.db.QueryRow(`
		SELECT tender_id, department, notice_number, category, work_name,
			tender_value, published_date, bid_start_date, bid_close_date,
			detail_url, scraped_at
		FROM tenders WHERE tender_id = ?`, tenderID,
	).Scan(
		&rec.TenderID, &rec.Department, &rec.NoticeNumber, &rec.Category,
		&rec.WorkName, &rec.TenderValue, &rec.PublishedDate, &rec.BidStartDate,
		&rec.BidCloseDate, &rec.DetailURL, &rec.ScrapedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get tender %s: %w", tenderID, err)
	}
	return rec, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
