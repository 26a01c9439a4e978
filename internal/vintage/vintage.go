// Package vintage recovers the release date ("vintage") of a vendor file from
// its name.
package vintage

import (
	"errors"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoVersion is returned when a filename matches none of the known patterns.
var ErrNoVersion = errors.New("no version date in filename")

// Patterns are tried in order; the first match wins.
var patterns = []*regexp.Regexp{
	// Wards_December_2024_Boundaries_EN_BFC.geojson
	regexp.MustCompile(`(?i)_([a-z]+)_(\d{4})_Boundaries`),
	// WD_MAY_2025_UK_BFC_V2.geojson, ONSUD_MAY_2025_EE.csv
	regexp.MustCompile(`(?i)^[a-z0-9]+_([a-z]{3})_(\d{4})_`),
	// Police_Force_Areas_December_2023_EW_BUC.geojson
	regexp.MustCompile(`(?i)_([a-z]+)_(\d{4})_[a-z]{2,3}_B[UF]C`),
}

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// FromFilename returns the first day of the month encoded in name.
func FromFilename(name string) (time.Time, error) {
	base := filepath.Base(name)
	for _, re := range patterns {
		m := re.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		month, ok := months[strings.ToLower(m[1])]
		if !ok {
			continue
		}
		year, err := strconv.Atoi(m[2])
		if err != nil || year < 1900 || year > 2999 {
			continue
		}
		return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, ErrNoVersion
}

// Resolve is FromFilename with a soft fallback: when the name carries no
// version the fallback's month is used and a warning is logged.
func Resolve(name string, fallback time.Time, log zerolog.Logger) time.Time {
	v, err := FromFilename(name)
	if err == nil {
		return v
	}
	v = FirstOfMonth(fallback)
	log.Warn().
		Str("file", filepath.Base(name)).
		Str("fallback", v.Format(time.DateOnly)).
		Msg("could not extract version date from filename")
	return v
}

// FirstOfMonth truncates t to midnight UTC on the first of its month.
func FirstOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
