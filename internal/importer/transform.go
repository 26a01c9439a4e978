package importer

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	gssRe = regexp.MustCompile(`^[EWSNKLM]\d{8}$`)
	// ONS pseudo codes such as E99999999 stand for "not applicable".
	pseudoRe  = regexp.MustCompile(`^[A-Z]99999999$`)
	inwardRe  = regexp.MustCompile(`^\d[A-Z]{2}$`)
	outwardRe = regexp.MustCompile(`^[A-Z]{1,2}\d[A-Z\d]?$`)
)

func skipf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errSkipped, fmt.Sprintf(format, args...))
}

func transformf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errTransform, fmt.Sprintf(format, args...))
}

// normalizePostcode returns the postcode as upper-case outward code, one
// space, inward code.
func normalizePostcode(s string) (string, bool) {
	s = strings.ToUpper(strings.Join(strings.Fields(s), ""))
	if len(s) < 5 || len(s) > 7 {
		return "", false
	}
	out, in := s[:len(s)-3], s[len(s)-3:]
	if !inwardRe.MatchString(in) || !outwardRe.MatchString(out) {
		return "", false
	}
	return out + " " + in, true
}

func isGSS(code string) bool { return gssRe.MatchString(code) }

// normalizeCode upper-cases an area code.
func normalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// areaCode is an optional code column: empty and pseudo codes become NULL.
func areaCode(s string) any {
	c := normalizeCode(s)
	if c == "" || pseudoRe.MatchString(c) {
		return nil
	}
	return c
}

// normalizeName trims and NFC-normalizes a place name; Welsh names arrive
// in both composed and decomposed forms.
func normalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// nullable turns "" into NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableName(s string) any { return nullable(normalizeName(s)) }

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func nullableInt(s string) any {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return n
}

// toString renders a GeoJSON property value.
func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case string:
		return parseFloat(strings.TrimSpace(x))
	}
	return 0, false
}
