package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Layouts accepted for published_at, tried in order. Values without an
// offset are read in the formatter's location.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

var monthAbbreviations = [][12]string{
	{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"},
	{"jan", "fev", "mar", "abr", "mai", "jun", "jul", "ago", "set", "out", "nov", "dez"},
}

var supportedLocales = []language.Tag{
	language.English,
	language.BrazilianPortuguese,
}

var localeMatcher = language.NewMatcher(supportedLocales)

// DateFormatter renders publish dates as "d MMM yy" for a fixed locale.
type DateFormatter struct {
	locale   language.Tag
	months   [12]string
	location *time.Location
}

// NewDateFormatter resolves locale against the supported locales. A nil
// location means UTC.
func NewDateFormatter(locale string, location *time.Location) (*DateFormatter, error) {
	if location == nil {
		location = time.UTC
	}

	locale = strings.TrimSpace(locale)
	if locale == "" {
		locale = language.English.String()
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", locale, err)
	}

	_, index, confidence := localeMatcher.Match(tag)
	if confidence == language.No {
		return nil, fmt.Errorf("unsupported locale %q", locale)
	}

	return &DateFormatter{
		locale:   supportedLocales[index],
		months:   monthAbbreviations[index],
		location: location,
	}, nil
}

// Locale returns the matched locale.
func (f *DateFormatter) Locale() language.Tag {
	return f.locale
}

// Parse reads an ISO-8601 date or date-time.
func (f *DateFormatter) Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, value, f.location); err == nil {
			return t.In(f.location), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// Format renders t as day, abbreviated month and two-digit year.
func (f *DateFormatter) Format(t time.Time) string {
	t = t.In(f.location)
	year := t.Year() % 100
	if year < 0 {
		year = -year
	}
	return strconv.Itoa(t.Day()) + " " + f.months[t.Month()-1] + " " + fmt.Sprintf("%02d", year)
}

// FormatISO parses value and formats it in one step.
func (f *DateFormatter) FormatISO(value string) (string, error) {
	t, err := f.Parse(value)
	if err != nil {
		return "", err
	}
	return f.Format(t), nil
}
