package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func collectRows(t *testing.T, c *CSV) (rows [][]string, rowErrs int) {
	t.Helper()
	for row, err := range c.Rows() {
		if err != nil {
			if !IsRowError(err) {
				t.Fatalf("unexpected error: %v", err)
			}
			rowErrs++
			continue
		}
		vals := make([]string, row.Len())
		for i := range vals {
			vals[i] = row.Get(i)
		}
		rows = append(rows, vals)
	}
	return rows, rowErrs
}

func TestOpenCSV_HeaderNormalization(t *testing.T) {
	p := writeFile(t, "bom.csv", "\ufeffUPRN, PCDS ,lad25cd\n1,AB1 2CD,E06000001\n")

	c, err := OpenCSV(p, Options{})
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	if got := c.Header(); got[0] != "UPRN" || got[1] != "PCDS" {
		t.Errorf("Header() = %q", got)
	}
	if i, ok := c.Index("pcds"); !ok || i != 1 {
		t.Errorf("Index(pcds) = %d, %v", i, ok)
	}
	if i, ok := c.Index("LAD25CD"); !ok || i != 2 {
		t.Errorf("Index(LAD25CD) = %d, %v", i, ok)
	}
}

func TestCSV_RequireNamesEveryMissingColumn(t *testing.T) {
	p := writeFile(t, "short.csv", "UPRN,PCDS\n1,AB1 2CD\n")
	c, err := OpenCSV(p, Options{})
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}

	err = c.Require("UPRN", "GRIDGB1E", "GRIDGB1N")
	var mc *MissingColumnsError
	if !errors.As(err, &mc) {
		t.Fatalf("Require err = %v, want MissingColumnsError", err)
	}
	if len(mc.Missing) != 2 || mc.Missing[0] != "GRIDGB1E" || mc.Missing[1] != "GRIDGB1N" {
		t.Errorf("Missing = %q", mc.Missing)
	}
}

func TestCSV_MatchPrefersLatestYear(t *testing.T) {
	p := writeFile(t, "years.csv", "WD24CD,LAD24CD,LAD25CD,LAD25NM\n")
	c, err := OpenCSV(p, Options{})
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	name, idx, ok := c.Match(regexp.MustCompile(`(?i)^LAD\d{2}CD$`))
	if !ok || name != "LAD25CD" || idx != 2 {
		t.Errorf("Match = %q, %d, %v", name, idx, ok)
	}
	if _, _, ok := c.Match(regexp.MustCompile(`(?i)^CTY\d{2}CD$`)); ok {
		t.Error("Match found a column that does not exist")
	}
}

func TestCSV_RowsAreRestartableAndSkipMalformed(t *testing.T) {
	p := writeFile(t, "rows.csv", "a,b\n1,2\n3,\"x\"y\n5,6\n")
	c, err := OpenCSV(p, Options{})
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}

	for pass := 0; pass < 2; pass++ {
		rows, rowErrs := collectRows(t, c)
		if len(rows) != 2 || rowErrs != 1 {
			t.Fatalf("pass %d: rows=%d rowErrs=%d, want 2 and 1", pass, len(rows), rowErrs)
		}
		if rows[1][0] != "5" || rows[1][1] != "6" {
			t.Errorf("pass %d: last row = %q", pass, rows[1])
		}
	}

	n, err := c.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
	if len(c.Fingerprint()) != 64 {
		t.Errorf("Fingerprint = %q", c.Fingerprint())
	}
}

func TestCSV_RowsStopEarly(t *testing.T) {
	p := writeFile(t, "many.csv", "a\n1\n2\n3\n")
	c, err := OpenCSV(p, Options{})
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	seen := 0
	for range c.Rows() {
		seen++
		if seen == 2 {
			break
		}
	}
	if seen != 2 {
		t.Errorf("seen = %d", seen)
	}
}

func TestCSV_Windows1252(t *testing.T) {
	p := writeFile(t, "cp.csv", "NM\nYnys M\xf4n\n")
	c, err := OpenCSV(p, Options{Encoding: "windows-1252"})
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	rows, _ := collectRows(t, c)
	if len(rows) != 1 || rows[0][0] != "Ynys M\u00f4n" {
		t.Errorf("rows = %q", rows)
	}
}

func TestOpenCSV_Empty(t *testing.T) {
	p := writeFile(t, "empty.csv", "")
	if _, err := OpenCSV(p, Options{}); !errors.Is(err, ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
}

func TestOpenCSV_UnsupportedEncoding(t *testing.T) {
	p := writeFile(t, "x.csv", "a\n")
	if _, err := OpenCSV(p, Options{Encoding: "ebcdic"}); !errors.Is(err, ErrUnsupportedEncoding) {
		t.Errorf("err = %v, want ErrUnsupportedEncoding", err)
	}
	for _, enc := range []string{"", "UTF-8", "windows-1252", "latin1"} {
		if err := CheckEncoding(enc); err != nil {
			t.Errorf("CheckEncoding(%q) = %v", enc, err)
		}
	}
	if err := CheckEncoding("utf-16"); !errors.Is(err, ErrUnsupportedEncoding) {
		t.Errorf("CheckEncoding(utf-16) = %v", err)
	}
}
