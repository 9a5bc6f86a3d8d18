package flow

import (
	"strings"
	"time"
)

var flexibleDateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"02.01.2006",
	"2.1.2006",
	"02/01/2006",
	"2/1/2006",
}

// parseFlexibleDate tries the date formats users actually type in chats.
func parseFlexibleDate(input string) (time.Time, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range flexibleDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseMonth accepts a YYYY-MM month reference.
func parseMonth(input string) (time.Time, bool) {
	t, err := time.ParseInLocation("2006-01", strings.TrimSpace(input), time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseDateRange accepts "<from> <to>" using any flexible date layout and
// requires from <= to.
func parseDateRange(input string) (time.Time, time.Time, bool) {
	parts := strings.Fields(strings.TrimSpace(input))
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, false
	}
	from, ok := parseFlexibleDate(parts[0])
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	to, ok := parseFlexibleDate(parts[1])
	if !ok || to.Before(from) {
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
