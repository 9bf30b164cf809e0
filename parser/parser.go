package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rkotha/go-scrape-tenders/models"
)

// ValidateTender ensures the acquisition engine captured the fields a
// record is useless without.
func ValidateTender(t *models.TenderRecord) error {
	if t == nil {
		return fmt.Errorf("tender is nil")
	}
	if strings.TrimSpace(t.TenderID) == "" {
		return fmt.Errorf("tender missing id")
	}
	if strings.TrimSpace(t.WorkName) == "" {
		return fmt.Errorf("tender %s missing work name", t.TenderID)
	}
	if strings.TrimSpace(t.NoticeNumber) == "" {
		return fmt.Errorf("tender %s missing notice number", t.TenderID)
	}
	return nil
}

// ParseRupees converts the portal's currency strings ("Rs. 10,00,000.00",
// "INR 1,50,000") to a numeric value. Indian digit grouping is just
// comma removal, so no locale handling is needed.
func ParseRupees(value string) (float64, error) {
	cleaned := strings.TrimSpace(value)
	cleaned = strings.ReplaceAll(cleaned, "Rs.", "")
	cleaned = strings.ReplaceAll(cleaned, "Rs", "")
	cleaned = strings.ReplaceAll(cleaned, "INR", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, fmt.Errorf("empty amount")
	}
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return amount, nil
}

var dateFormats = []string{
	"02-01-2006",
	"02/01/2006",
	"2006-01-02",
	"02-01-06",
	"02/01/06",
}

// KnownDateFormat reports whether the portal date string matches one of
// the formats seen in the wild. Records keep the raw string either way.
func KnownDateFormat(value string) bool {
	value = strings.TrimSpace(value)
	for _, format := range dateFormats {
		if _, err := time.Parse(format, value); err == nil {
			return true
		}
	}
	return false
}
