package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// nseDateLayouts are tried before the generic parser. Day-first layouts must win over
// dateparse, which reads "02/01/2006" month-first.
var nseDateLayouts = []string{
	"02-Jan-2006",
	"2-Jan-2006",
	"02-Jan-06",
	"02 Jan 2006",
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
}

// ParseDate parses a feed date leniently. All dates are returned in UTC.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	for _, layout := range nseDateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}

	parsed, err := dateparse.ParseIn(value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised date %q: %w", value, err)
	}
	return parsed.UTC(), nil
}
