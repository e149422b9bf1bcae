package normalizer

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDatePattern   = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})(?:[T ].*)?$`)
	slashDatePattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	dashDatePattern  = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`)
	dotDatePattern   = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})$`)
	looseDatePattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2}|\d{4})$`)
	wordDatePattern  = regexp.MustCompile(`^(\d{1,2})\s+(?:de\s+)?([a-záéíóú]+)\.?,?\s+(?:de\s+|del\s+)?(\d{4})$`)
)

// Month names and abbreviations accepted in "15 de marzo de 2025" style dates.
var monthWords = map[string]time.Month{
	"enero": time.January, "ene": time.January, "january": time.January, "jan": time.January,
	"febrero": time.February, "feb": time.February, "february": time.February,
	"marzo": time.March, "mar": time.March, "march": time.March,
	"abril": time.April, "abr": time.April, "april": time.April, "apr": time.April,
	"mayo": time.May, "may": time.May,
	"junio": time.June, "jun": time.June, "june": time.June,
	"julio": time.July, "jul": time.July, "july": time.July,
	"agosto": time.August, "ago": time.August, "august": time.August, "aug": time.August,
	"septiembre": time.September, "setiembre": time.September, "sep": time.September, "sept": time.September, "september": time.September,
	"octubre": time.October, "oct": time.October, "october": time.October,
	"noviembre": time.November, "nov": time.November, "november": time.November,
	"diciembre": time.December, "dic": time.December, "december": time.December, "dec": time.December,
}

// Layouts tried after the structural patterns fail.
var fallbackLayouts = []string{
	time.RFC3339,
	"2006/01/02",
	"2006/1/2",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
	"02-Jan-06",
}

// Spreadsheet serial day 0; cells exported without formatting carry these.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// CoerceDate parses a loosely formatted date and falls back to now.
//
// Slash dates are read month-first (MM/DD/YYYY) unless the first part cannot be
// a month, in which case they are day-first. Dash and dot dates with a trailing
// year are read day-first unless the second part cannot be a month. Two-digit
// years belong to the 2000s. Numbers in the spreadsheet serial range are read
// as serial days.
func CoerceDate(raw any, now time.Time) time.Time {
	if t, ok := ParseDate(raw); ok {
		return t
	}
	return now
}

// ParseDate is CoerceDate without the fallback.
func ParseDate(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, !v.IsZero()
	case float64:
		return fromSerial(v)
	case int:
		return fromSerial(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromSerial(f)
	case string:
		return parseDateString(v)
	default:
		return time.Time{}, false
	}
}

func parseDateString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if m := isoDatePattern.FindStringSubmatch(s); m != nil {
		return buildDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := slashDatePattern.FindStringSubmatch(s); m != nil {
		return monthFirst(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := dashDatePattern.FindStringSubmatch(s); m != nil {
		return dayFirst(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := dotDatePattern.FindStringSubmatch(s); m != nil {
		return dayFirst(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := looseDatePattern.FindStringSubmatch(s); m != nil {
		year := atoi(m[3])
		if len(m[3]) == 2 {
			year += 2000
		}
		return monthFirst(atoi(m[1]), atoi(m[2]), year)
	}
	if m := wordDatePattern.FindStringSubmatch(strings.ToLower(s)); m != nil {
		if month, ok := monthWords[m[2]]; ok {
			return buildDate(atoi(m[3]), int(month), atoi(m[1]))
		}
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromSerial(f)
	}
	return time.Time{}, false
}

func monthFirst(a, b, year int) (time.Time, bool) {
	if a > 12 {
		return buildDate(year, b, a)
	}
	return buildDate(year, a, b)
}

func dayFirst(a, b, year int) (time.Time, bool) {
	if b > 12 {
		return buildDate(year, a, b)
	}
	return buildDate(year, b, a)
}

// buildDate rejects dates that time.Date would silently normalize (Feb 30).
func buildDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func fromSerial(f float64) (time.Time, bool) {
	// 1982-01-01 .. 2119-01-01
	if f < 29952 || f > 80000 {
		return time.Time{}, false
	}
	return excelEpoch.AddDate(0, 0, int(f)), true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
