package scraper

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/rkotha/go-scrape-tenders/models"
)

// columnCount is the number of logical columns the listing exposes, on
// both the JSON and the rendered-table path.
const columnCount = 10

// Column positions within a raw row.
const (
	colDepartment = iota
	colNoticeNumber
	colCategory
	colWorkName
	colTenderValue
	colPublishedDate
	colBidStartDate
	colBidCloseDate
	colTenderID
	colActions
)

var quotedParamRe = regexp.MustCompile(`'([^']*)'`)

// cleanHTML strips markup, decodes entities, and collapses whitespace.
// Plain text passes through unchanged apart from whitespace collapsing.
func cleanHTML(raw string) string {
	if raw == "" {
		return ""
	}
	text := raw
	if strings.ContainsAny(raw, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
		if err == nil {
			text = doc.Text()
		}
	}
	return strings.Join(strings.Fields(text), " ")
}

// actionParams extracts the quoted parameters of the embedded function
// call in the actions cell. The first parameter is the tender's true
// opaque identifier; the rest are routing parameters the detail page
// needs.
func actionParams(actions string, callRe *regexp.Regexp) []string {
	if actions == "" || callRe == nil {
		return nil
	}
	m := callRe.FindStringSubmatch(actions)
	if len(m) < 2 {
		return nil
	}
	quoted := quotedParamRe.FindAllStringSubmatch(m[1], -1)
	params := make([]string, 0, len(quoted))
	for _, q := range quoted {
		params = append(params, q[1])
	}
	return params
}

// actionHref pulls the first anchor href out of the actions cell, if any.
func actionHref(actions string) string {
	if !strings.Contains(actions, "<") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(actions))
	if err != nil {
		return ""
	}
	href, _ := doc.Find("a[href]").First().Attr("href")
	if href == "#" {
		return ""
	}
	return href
}

// normalizeRow converts one raw listing row into a canonical record.
// Rows with fewer than columnCount fields are rejected outright; beyond
// that the record is best-effort and validity filtering happens one
// layer up.
func normalizeRow(row []string, callRe *regexp.Regexp) (*models.TenderRecord, bool) {
	if len(row) < columnCount {
		return nil, false
	}

	rec := &models.TenderRecord{
		Department:    cleanHTML(row[colDepartment]),
		NoticeNumber:  cleanHTML(row[colNoticeNumber]),
		Category:      cleanHTML(row[colCategory]),
		WorkName:      cleanHTML(row[colWorkName]),
		TenderValue:   cleanHTML(row[colTenderValue]),
		PublishedDate: cleanHTML(row[colPublishedDate]),
		BidStartDate:  cleanHTML(row[colBidStartDate]),
		BidCloseDate:  cleanHTML(row[colBidCloseDate]),
		TenderID:      cleanHTML(row[colTenderID]),
		DetailURL:     actionHref(row[colActions]),
		ScrapedAt:     time.Now(),
	}

	// The embedded-call identifier wins over the positional one: it is
	// what downstream detail requests require.
	if params := actionParams(row[colActions], callRe); len(params) > 0 {
		rec.TenderID = params[0]
		if len(params) > 1 {
			rec.AuxParams = params[1:]
		}
	}

	return rec, true
}

// normalizeCells is the rendered-DOM counterpart of normalizeRow: cell
// text is already plain, and the detail link arrives separately from the
// last cell's anchor.
func normalizeCells(cells []string, detailURL string) (*models.TenderRecord, bool) {
	if len(cells) < columnCount {
		return nil, false
	}

	rec := &models.TenderRecord{
		Department:    strings.Join(strings.Fields(cells[colDepartment]), " "),
		NoticeNumber:  strings.Join(strings.Fields(cells[colNoticeNumber]), " "),
		Category:      strings.Join(strings.Fields(cells[colCategory]), " "),
		WorkName:      strings.Join(strings.Fields(cells[colWorkName]), " "),
		TenderValue:   strings.Join(strings.Fields(cells[colTenderValue]), " "),
		PublishedDate: strings.Join(strings.Fields(cells[colPublishedDate]), " "),
		BidStartDate:  strings.Join(strings.Fields(cells[colBidStartDate]), " "),
		BidCloseDate:  strings.Join(strings.Fields(cells[colBidCloseDate]), " "),
		TenderID:      strings.Join(strings.Fields(cells[colTenderID]), " "),
		DetailURL:     detailURL,
		ScrapedAt:     time.Now(),
	}

	return rec, true
}
