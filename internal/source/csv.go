package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// CSV is a delimited-text source whose columns are addressed by name.
type CSV struct {
	path        string
	opts        Options
	header      []string
	index       map[string]int
	fingerprint string
}

// Row is one data record. Its fields are only valid until the next
// iteration step.
type Row struct {
	Line   int
	fields []string
}

// Get returns the trimmed value at idx, or "" when the record is short.
func (r Row) Get(idx int) string {
	if idx < 0 || idx >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[idx])
}

// Len is the number of fields in the record.
func (r Row) Len() int { return len(r.fields) }

// OpenCSV reads the header of path once. Rows are not read until Rows or
// Count is called.
func OpenCSV(path string, opts Options) (*CSV, error) {
	c := &CSV{path: path, opts: opts}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr, err := c.reader(f)
	if err != nil {
		return nil, err
	}
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}

	c.header = make([]string, len(header))
	c.index = make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		c.header[i] = h
		key := strings.ToLower(h)
		if _, dup := c.index[key]; !dup {
			c.index[key] = i
		}
	}
	return c, nil
}

func (c *CSV) reader(r io.Reader) (*csv.Reader, error) {
	dr, err := decodeReader(r, c.opts.Encoding)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(dr)
	if c.opts.Comma != 0 {
		cr.Comma = c.opts.Comma
	}
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return cr, nil
}

// Path is the file this source reads.
func (c *CSV) Path() string { return c.path }

// Header returns the normalized header names in file order.
func (c *CSV) Header() []string {
	return append([]string(nil), c.header...)
}

// Index returns the position of a column, ignoring case.
func (c *CSV) Index(name string) (int, bool) {
	i, ok := c.index[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}

// Match finds the column whose name matches re. When several do, the one
// carrying the highest number wins, so LAD25CD is preferred over LAD24CD.
func (c *CSV) Match(re *regexp.Regexp) (string, int, bool) {
	best, bestIdx, bestNum := "", -1, -1
	for i, h := range c.header {
		if !re.MatchString(h) {
			continue
		}
		n := trailingNumber(h)
		if bestIdx < 0 || n > bestNum {
			best, bestIdx, bestNum = h, i, n
		}
	}
	return best, bestIdx, bestIdx >= 0
}

var digitsRe = regexp.MustCompile(`\d+`)

func trailingNumber(s string) int {
	all := digitsRe.FindAllString(s, -1)
	if len(all) == 0 {
		return -1
	}
	n, err := strconv.Atoi(all[len(all)-1])
	if err != nil {
		return -1
	}
	return n
}

// Require fails with a MissingColumnsError naming every absent column.
func (c *CSV) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := c.Index(n); !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Path: c.path, Missing: missing}
	}
	return nil
}

// Rows yields every data record after the header. Malformed records are
// yielded as *RowError and iteration continues; any other error ends the
// sequence.
func (c *CSV) Rows() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		f, err := os.Open(c.path)
		if err != nil {
			yield(Row{}, err)
			return
		}
		defer f.Close()

		cr, err := c.reader(f)
		if err != nil {
			yield(Row{}, err)
			return
		}
		if _, err := cr.Read(); err != nil {
			yield(Row{}, fmt.Errorf("%s: read header: %w", c.path, err))
			return
		}

		for {
			rec, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				var pe *csv.ParseError
				if errors.As(err, &pe) {
					if !yield(Row{}, &RowError{Line: pe.Line, Err: pe.Err}) {
						return
					}
					continue
				}
				yield(Row{}, fmt.Errorf("%s: %w", c.path, err))
				return
			}
			line, _ := cr.FieldPos(0)
			if !yield(Row{Line: line, fields: rec}, nil) {
				return
			}
		}
	}
}

// Count reads the whole file once, returning the number of data records
// (malformed ones included) and recording a fingerprint of its bytes.
func (c *CSV) Count(ctx context.Context) (int64, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := newFingerprint()
	cr, err := c.reader(io.TeeReader(f, h))
	if err != nil {
		return 0, err
	}
	if _, err := cr.Read(); err != nil {
		return 0, fmt.Errorf("%s: read header: %w", c.path, err)
	}

	var n int64
	for {
		_, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return n, fmt.Errorf("%s: %w", c.path, err)
			}
		}
		n++
		if n%100_000 == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
	}
	c.fingerprint = sum(h)
	return n, nil
}

// Fingerprint is the hex BLAKE2b-256 of the file as read by the last Count.
func (c *CSV) Fingerprint() string { return c.fingerprint }
