package analysis

import (
	"bytes"
	"encoding/json"

	"github.com/KaramelBytes/finai-cli/internal/dataset"
)

// Histogram thresholds for the low-cardinality policy.
const (
	histogramMaxDistinct      = 10
	histogramMaxDistinctRatio = 0.6
	histogramHardMaxDistinct  = 15
)

// ColumnSummary is the trimmed per-column view handed to the language model.
type ColumnSummary struct {
	NDistinct int    `json:"n_distinct"`
	NUnique   int    `json:"n_unique"`
	Count     int    `json:"count"`
	Type      string `json:"type"`
	// Describe is *dataset.NumStats for numeric columns and *CategoryStats otherwise.
	Describe    any                  `json:"pd_summary,omitempty"`
	ValueCounts []dataset.ValueCount `json:"value_counts,omitempty"`
}

// CategoryStats is the describe block for non-numeric columns.
type CategoryStats struct {
	Count  int    `json:"count"`
	Unique int    `json:"unique"`
	Top    string `json:"top,omitempty"`
	Freq   int    `json:"freq,omitempty"`
}

// Summary maps column name to ColumnSummary and keeps file column order.
type Summary struct {
	names []string
	cols  map[string]ColumnSummary
}

// IncludeHistogram reports whether a column's value counts are worth sending.
// Both the coarse (distinct or ratio) test and the hard distinct cap must pass.
func IncludeHistogram(nDistinct int, pDistinct float64) bool {
	return (nDistinct < histogramMaxDistinct || pDistinct < histogramMaxDistinctRatio) &&
		nDistinct < histogramHardMaxDistinct
}

// Summarize builds the Summary from a profiling report.
func Summarize(r *Report) *Summary {
	s := &Summary{cols: make(map[string]ColumnSummary, len(r.Cols))}
	for _, c := range r.Cols {
		cs := ColumnSummary{
			NDistinct: c.NDistinct,
			NUnique:   c.NUnique,
			Count:     c.NonNull,
			Type:      c.Type,
		}
		if c.Stats != nil {
			st := *c.Stats
			cs.Describe = &st
		} else {
			cat := &CategoryStats{Count: c.NonNull, Unique: c.NDistinct}
			if len(c.ValueCounts) > 0 {
				cat.Top = c.ValueCounts[0].Value
				cat.Freq = c.ValueCounts[0].Count
			}
			cs.Describe = cat
		}
		if len(c.ValueCounts) > 0 && IncludeHistogram(c.NDistinct, c.PDistinct) {
			cs.ValueCounts = append([]dataset.ValueCount(nil), c.ValueCounts...)
		}
		s.names = append(s.names, c.Name)
		s.cols[c.Name] = cs
	}
	return s
}

// Get returns the summary for a column.
func (s *Summary) Get(name string) (ColumnSummary, bool) {
	cs, ok := s.cols[name]
	return cs, ok
}

// Names returns column names in file order.
func (s *Summary) Names() []string { return append([]string(nil), s.names...) }

// Len returns the number of columns.
func (s *Summary) Len() int { return len(s.names) }

// MarshalJSON encodes the summary as an object in column order.
func (s *Summary) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range s.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(s.cols[name])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String renders indented JSON for prompts.
func (s *Summary) String() string {
	raw, err := s.MarshalJSON()
	if err != nil {
		return "{}"
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}
