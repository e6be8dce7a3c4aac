package detect

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"household-ledger/internal/models"
)

type dateOrder int

const (
	dayMonthYear dateOrder = iota
	yearMonthDay
	monthDayYear
)

// dateFormat is one accepted statement date shape
type dateFormat struct {
	name    string
	pattern *regexp.Regexp
	order   dateOrder
}

// dateFormats are tried in order; the first format that yields a real
// calendar date wins. Day-first layouts precede MM/dd/yyyy on purpose.
var dateFormats = []dateFormat{
	{"dd/MM/yyyy", regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`), dayMonthYear},
	{"d/M/yyyy", regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`), dayMonthYear},
	{"dd.MM.yyyy", regexp.MustCompile(`^(\d{2})\.(\d{2})\.(\d{4})$`), dayMonthYear},
	{"yyyy-MM-dd", regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`), yearMonthDay},
	{"MM/dd/yyyy", regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`), monthDayYear},
	{"dd.MM.yy", regexp.MustCompile(`^(\d{2})\.(\d{2})\.(\d{2})$`), dayMonthYear},
	{"dd/MM/yy", regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{2})$`), dayMonthYear},
}

// now is swapped in tests to pin the century used for two-digit years
var now = time.Now

// ParseDate parses a statement date. Trailing time components are ignored.
func ParseDate(raw string) (time.Time, bool) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return time.Time{}, false
	}
	s := fields[0]
	// ISO timestamps such as 2026-01-31T10:00:00Z
	if len(s) > 10 && s[4] == '-' && s[10] == 'T' {
		s = s[:10]
	}

	for _, f := range dateFormats {
		m := f.pattern.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		if t, ok := buildDate(m[1], m[2], m[3], f.order); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeDate converts a statement date into YYYY-MM-DD
func NormalizeDate(raw string) (string, bool) {
	t, ok := ParseDate(raw)
	if !ok {
		return "", false
	}
	return models.FormatDate(t), true
}

func buildDate(a, b, c string, order dateOrder) (time.Time, bool) {
	var ys, ms, ds string
	switch order {
	case yearMonthDay:
		ys, ms, ds = a, b, c
	case monthDayYear:
		ms, ds, ys = a, b, c
	default:
		ds, ms, ys = a, b, c
	}

	year, err := strconv.Atoi(ys)
	if err != nil {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(ms)
	if err != nil {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(ds)
	if err != nil {
		return time.Time{}, false
	}
	if len(ys) == 2 {
		year += now().Year() / 100 * 100
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes 31/02 into March; reject instead
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}
