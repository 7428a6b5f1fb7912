package pipeline

import (
	"strings"
	"time"
)

// Date layouts, day-first. Go's non-padded day/month verbs also accept
// zero-padded input, so "2/1/2006" matches both "2/1/2024" and "02/01/2024".
// Year-first layouts are never swapped.
var dateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/06",
	"2-1-06",
	"2006-1-2",
	"2006/1/2",
	"2-Jan-2006",
	"2 Jan 2006",
	"2-Jan-06",
	"2 January 2006",
}

// monthFirstLayouts only match when the day-first reading is impossible,
// e.g. "03/25/2024". Ambiguous dates never reach them.
var monthFirstLayouts = []string{
	"1/2/2006",
	"1-2-2006",
	"1.2.2006",
	"1/2/06",
	"1-2-06",
}

var timeLayouts = []string{
	"15:04:05",
	"15:04",
	"15:04:05.999999999",
	"3:04:05 PM",
	"3:04 PM",
	"3:04:05PM",
	"3:04PM",
}

// timestampLayouts is every date layout crossed with every time layout,
// followed by the date layouts alone (midnight) and ISO 8601.
// Day-first layouts always come before their month-first fallbacks.
var timestampLayouts = buildTimestampLayouts()

func buildTimestampLayouts() []string {
	dates := append(append([]string(nil), dateLayouts...), monthFirstLayouts...)
	layouts := make([]string, 0, len(dates)*(len(timeLayouts)+1)+2)
	for _, d := range dates {
		for _, t := range timeLayouts {
			layouts = append(layouts, d+" "+t)
		}
	}
	layouts = append(layouts, dates...)
	layouts = append(layouts, time.RFC3339, "2006-01-02T15:04:05")
	return layouts
}

// ParseDayFirst parses a combined date and time using the day-first convention.
// A date that cannot be day-first (month above 12) is read month-first instead.
// It returns nil when no layout matches; callers treat nil as an undefined timestamp.
// Results are in UTC.
func ParseDayFirst(s string) *time.Time {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return nil
	}
	s = strings.ToUpper(s)

	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// combineTimestamp joins a date cell and a time cell with a single space and parses the result.
// A missing cell on either side yields an undefined timestamp.
func combineTimestamp(date, clock string) *time.Time {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if isMissing(date) || isMissing(clock) {
		return nil
	}
	return ParseDayFirst(date + " " + clock)
}
