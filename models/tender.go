// Package models defines data structures for the tender scraper.
package models

import "time"

// TenderRecord is the canonical row produced by the acquisition engine.
// Value and date fields keep the portal's free-text form; parsing them
// to numeric or time types happens downstream.
type TenderRecord struct {
	TenderID      string    `csv:"tender_id" json:"tender_id"`
	Department    string    `csv:"department" json:"department"`
	NoticeNumber  string    `csv:"notice_number" json:"notice_number"`
	Category      string    `csv:"category" json:"category"`
	WorkName      string    `csv:"work_name" json:"work_name"`
	TenderValue   string    `csv:"tender_value" json:"tender_value"`
	PublishedDate string    `csv:"published_date" json:"published_date"`
	BidStartDate  string    `csv:"bid_start_date" json:"bid_start_date"`
	BidCloseDate  string    `csv:"bid_close_date" json:"bid_close_date"`
	DetailURL     string    `csv:"detail_url" json:"detail_url"`
	AuxParams     []string  `csv:"-" json:"aux_params,omitempty"`
	ScrapedAt     time.Time `csv:"scraped_at" json:"scraped_at"`
}

// TenderDetail holds the extended fields scraped from a tender's detail
// page. Extraction is best-effort; empty fields are expected.
type TenderDetail struct {
	TenderID            string    `json:"tender_id"`
	Eligibility         string    `json:"eligibility"`
	GeneralTerms        string    `json:"general_terms"`
	LegalTerms          string    `json:"legal_terms"`
	TechnicalTerms      string    `json:"technical_terms"`
	SubmissionProcedure string    `json:"submission_procedure"`
	ScrapedAt           time.Time `json:"scraped_at"`
}

// RunStats counts outcomes across one coordinator invocation. The
// counters do not reveal which strategy served the result.
type RunStats struct {
	Found     int
	Succeeded int
	Failed    int
}

// FetchResult is the transient outcome of a single strategy attempt.
type FetchResult struct {
	Records []*TenderRecord
	Err     error
}

// Ok reports whether the attempt produced a usable result.
func (r FetchResult) Ok() bool {
	return r.Err == nil
}
