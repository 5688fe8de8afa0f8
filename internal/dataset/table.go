package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Kind is the inferred type of a column.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindDatetime    Kind = "datetime"
	KindCategorical Kind = "categorical"
	KindText        Kind = "text"
	KindEmpty       Kind = "empty"
)

// Options controls how a CSV stream is loaded.
type Options struct {
	// MaxRows limits rows kept in memory; 0 means DefaultMaxRows.
	MaxRows int
	// Delimiter for CSV. If 0, sniffs ',', ';' or '\t' from the header line.
	Delimiter rune
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune
}

// DefaultMaxRows bounds the in-memory table size.
const DefaultMaxRows = 100000

// Column holds the raw cells of one column plus parsed numbers for numeric columns.
type Column struct {
	Name string
	Kind Kind
	// Values are trimmed raw cells; missing cells are stored as "".
	Values []string
	// Nums is set for numeric columns only; NaN marks missing or unparseable cells.
	Nums []float64
	// Integral is true when every parsed number is a whole number.
	Integral bool
}

// Table is an in-memory, read-only dataset.
type Table struct {
	Name     string
	Columns  []*Column
	Rows     int
	Warnings []string
}

// LoadCSV opens path and reads it with ReadCSV.
func LoadCSV(path string, opt Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	if opt.Delimiter == 0 && strings.HasSuffix(strings.ToLower(path), ".tsv") {
		opt.Delimiter = '\t'
	}
	return ReadCSV(filepath.Base(path), f, opt)
}

// ReadCSV loads a CSV stream into a Table and infers column kinds.
func ReadCSV(name string, src io.Reader, opt Options) (*Table, error) {
	br := bufio.NewReaderSize(src, 64<<10)
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(br)
	}
	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comma = delim

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	t := &Table{Name: name, Columns: make([]*Column, len(header))}
	// Names are compared case-insensitively because SQLite identifiers are.
	taken := map[string]bool{}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		name := h
		for n := 1; taken[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s.%d", h, n)
		}
		taken[strings.ToLower(name)] = true
		t.Columns[i] = &Column{Name: name}
	}

	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	total := 0
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", total+1, err)
		}
		total++
		if t.Rows >= maxRows {
			continue
		}
		if isBlankRecord(rec) {
			total--
			continue
		}
		for j, c := range t.Columns {
			v := ""
			if j < len(rec) {
				v = strings.TrimSpace(rec[j])
			}
			if isMissing(v) {
				v = ""
			}
			c.Values = append(c.Values, v)
		}
		t.Rows++
	}
	if t.Rows < total {
		t.Warnings = append(t.Warnings, fmt.Sprintf("loaded only %d/%d rows due to MaxRows", t.Rows, total))
	}
	for _, c := range t.Columns {
		c.infer(opt)
	}
	return t, nil
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// infer decides the column kind by predominant parsed type.
func (c *Column) infer(opt Options) {
	var numCnt, dtCnt, txtCnt int
	nums := make([]float64, len(c.Values))
	integral := true
	for i, v := range c.Values {
		nums[i] = math.NaN()
		if v == "" {
			continue
		}
		if x, ok := parseNumeric(v, opt); ok {
			numCnt++
			nums[i] = x
			if x != math.Trunc(x) {
				integral = false
			}
			continue
		}
		if _, ok := parseTimeMaybe(v); ok {
			dtCnt++
			continue
		}
		txtCnt++
	}
	switch {
	case numCnt > 0 && numCnt >= dtCnt && numCnt >= txtCnt:
		c.Kind = KindNumeric
		c.Nums = nums
		c.Integral = integral
	case dtCnt > 0 && dtCnt >= txtCnt:
		c.Kind = KindDatetime
	case txtCnt > 0 && c.shortTokens():
		c.Kind = KindCategorical
	case txtCnt > 0:
		c.Kind = KindText
	default:
		c.Kind = KindEmpty
	}
}

// shortTokens reports whether most values look like category labels rather than prose.
func (c *Column) shortTokens() bool {
	var short, long int
	for _, v := range c.Values {
		if v == "" {
			continue
		}
		if len(v) <= 64 {
			short++
		} else {
			long++
		}
	}
	return short > 0 && short >= long
}

// IsNumeric reports whether the column was inferred as numeric.
func (c *Column) IsNumeric() bool { return c.Kind == KindNumeric }

// IsMissing reports whether row i has no usable value.
func (c *Column) IsMissing(i int) bool {
	if c.Values[i] == "" {
		return true
	}
	return c.Kind == KindNumeric && math.IsNaN(c.Nums[i])
}

// Label renders row i as a category label; numbers use their shortest form.
func (c *Column) Label(i int) string {
	if c.Kind == KindNumeric && !math.IsNaN(c.Nums[i]) {
		return strconv.FormatFloat(c.Nums[i], 'g', -1, 64)
	}
	return c.Values[i]
}

// Missing counts rows without a usable value.
func (c *Column) Missing() int {
	n := 0
	for i := range c.Values {
		if c.IsMissing(i) {
			n++
		}
	}
	return n
}

// Count returns the number of non-missing values.
func (c *Column) Count() int { return len(c.Values) - c.Missing() }

// Numbers returns the non-missing numeric values in row order.
func (c *Column) Numbers() []float64 {
	if c.Kind != KindNumeric {
		return nil
	}
	out := make([]float64, 0, len(c.Nums))
	for _, x := range c.Nums {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// Column returns the column with the given name, falling back to a
// case-insensitive match.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	want := strings.ToLower(strings.TrimSpace(name))
	for _, c := range t.Columns {
		if strings.ToLower(c.Name) == want {
			return c, true
		}
	}
	return nil, false
}

// Lookup is Column with a descriptive error for tool callers.
func (t *Table) Lookup(name string) (*Column, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("column name is required")
	}
	c, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("column %q not found (available: %s)", name, strings.Join(t.ColumnNames(), ", "))
	}
	return c, nil
}

// ColumnNames lists column names in file order.
func (t *Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}
