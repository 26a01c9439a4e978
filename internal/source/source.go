// Package source streams vendor CSV and GeoJSON files record by record.
//
// Sources never hold an open file between passes: every call to Rows,
// Features or Count reopens the file, so a sequence can be ranged over again
// to restart from the first record. Memory use is bounded by a single record.
package source

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrEmpty               = errors.New("source has no header")
	ErrNoFeatures          = errors.New("document has no top-level features array")
	ErrUnsupportedEncoding = errors.New("unsupported text encoding")
)

// Options controls how a source file is decoded.
type Options struct {
	// Comma is the CSV field delimiter. Zero means ','.
	Comma rune
	// Encoding is "", "utf-8", "windows-1252" or "latin1". A byte order
	// mark in the file always takes precedence.
	Encoding string
}

// RowError marks a single malformed record. The sequence that produced it
// carries on with the next record.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// IsRowError reports whether err only affects one record.
func IsRowError(err error) bool {
	var re *RowError
	return errors.As(err, &re)
}

// MissingColumnsError lists every required header column that was not found.
type MissingColumnsError struct {
	Path    string
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: missing required columns: %s", e.Path, strings.Join(e.Missing, ", "))
}

func fallbackDecoder(encoding string) (transform.Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8.NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
}

// CheckEncoding reports whether encoding can be named in Options. UTF-16
// cannot: it is only recognised by its byte order mark.
func CheckEncoding(encoding string) error {
	_, err := fallbackDecoder(encoding)
	return err
}

func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	fallback, err := fallbackDecoder(encoding)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(r, unicode.BOMOverride(fallback)), nil
}

func newFingerprint() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// Only fails for keys longer than 64 bytes.
		panic(err)
	}
	return h
}

func sum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
