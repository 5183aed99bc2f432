package session

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ruNumericDate is what toLocaleDateString('ru-RU') produces.
const ruNumericDate = "02.01.2006"

var ruNumericLayouts = []string{
	"2.1.2006, 15:04:05",
	"2.1.2006, 15:04",
	"2.1.2006 15:04:05",
	"2.1.2006",
}

// Genitive month names as they appear in "14 января 2025 г. в 12:30".
var ruMonths = map[string]time.Month{
	"января":   time.January,
	"февраля":  time.February,
	"марта":    time.March,
	"апреля":   time.April,
	"мая":      time.May,
	"июня":     time.June,
	"июля":     time.July,
	"августа":  time.August,
	"сентября": time.September,
	"октября":  time.October,
	"ноября":   time.November,
	"декабря":  time.December,
}

var ruLongDate = regexp.MustCompile(`^(\d{1,2})\s+(\p{L}+)(?:\s+(\d{4}))?(?:\s*г\.)?(?:,?\s*(?:в\s+)?(\d{1,2}):(\d{2})(?::(\d{2}))?)?$`)

// parseRuDate reads the ru-RU display dates stored with local content:
// "14.03.2025", "14.03.2025, 09:15:00" and "14 марта 2025 г. в 09:15". A
// long date without a year is placed in the latest year not after now.
func parseRuDate(raw string, now time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(strings.NewReplacer("\u00a0", " ", "\u202f", " ").Replace(raw))
	if raw == "" {
		return time.Time{}, false
	}

	for _, layout := range ruNumericLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, true
		}
	}

	m := ruLongDate.FindStringSubmatch(strings.ToLower(raw))
	if m == nil {
		return time.Time{}, false
	}
	month, ok := ruMonths[m[2]]
	if !ok {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	sec, _ := strconv.Atoi(m[6])

	if m[3] != "" {
		year, _ := strconv.Atoi(m[3])
		return time.Date(year, month, day, hour, minute, sec, 0, time.UTC), true
	}
	t := time.Date(now.Year(), month, day, hour, minute, sec, 0, time.UTC)
	if t.After(now) {
		t = t.AddDate(-1, 0, 0)
	}
	return t, true
}
