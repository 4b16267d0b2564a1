package clean

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

var quarterLayouts = []string{
	"02/01/2006",
	"2006-01-02",
	"02-01-2006",
}

var sentLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2006-01-02 15:04:05",
}

var yearOnlyRe = regexp.MustCompile(`^\d{4}$`)

// Quarter parses a reference date. Filings write either a full
// dd/mm/yyyy date or a bare year, which means the annual closing date
// 31/12 of that year.
func Quarter(s string) (time.Time, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return time.Time{}, eris.New("clean: empty quarter")
	}
	if yearOnlyRe.MatchString(t) {
		year, _ := strconv.Atoi(t)
		return time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC), nil
	}
	for _, layout := range quarterLayouts {
		if d, err := time.Parse(layout, t); err == nil {
			return d.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("clean: unparseable quarter %q", s)
}

// SentDate parses a filing submission timestamp with a tolerant
// multi-pattern matcher.
func SentDate(s string) (time.Time, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return time.Time{}, eris.New("clean: empty sent date")
	}
	for _, layout := range sentLayouts {
		if d, err := time.Parse(layout, t); err == nil {
			return d.UTC(), nil
		}
	}
	// Fall back to a date-only value.
	if d, err := Quarter(t); err == nil {
		return d, nil
	}
	return time.Time{}, eris.Errorf("clean: unparseable sent date %q", s)
}
