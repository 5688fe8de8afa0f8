package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/finai-cli/internal/dataset"
)

// Options controls profiling behavior.
type Options struct {
	// SampleRows determines how many example rows to include in the report.
	SampleRows int
	// GroupBy computes per-group summaries for the given column names.
	GroupBy []string
	// Correlations computes Pearson correlations among numeric columns.
	Correlations bool
	// Outlier detection via robust Z-score (MAD). If Outliers is true, counts |z|>threshold.
	Outliers         bool
	OutlierThreshold float64
	// TopValues caps the top-value list shown in Markdown.
	TopValues int
}

// DefaultOptions returns reasonable defaults for dataset profiling.
func DefaultOptions() Options {
	return Options{
		SampleRows:       5,
		Correlations:     true,
		Outliers:         true,
		OutlierThreshold: 3.5,
		TopValues:        8,
	}
}

// Report is the profiling result for a dataset.
type Report struct {
	Name     string
	Rows     int
	Cols     []ColumnProfile
	Samples  [][]string
	Warnings []string
	Groups   []GroupResult
	Corr     *CorrMatrix
	topN     int
}

// ColumnProfile captures inferred type and statistics per column.
type ColumnProfile struct {
	Name string
	Kind dataset.Kind
	// Type is the coarse profiler type: Numeric, Categorical, Boolean, DateTime, Text or Unsupported.
	Type      string
	NonNull   int
	Missing   int
	NDistinct int
	// NUnique counts values that occur exactly once.
	NUnique   int
	PDistinct float64
	Stats     *dataset.NumStats
	// Outliers (robust Z via MAD)
	OutliersCount    int
	OutliersMaxAbsZ  float64
	OutlierThreshold float64
	// ValueCounts excludes missing values, most frequent first.
	ValueCounts  []dataset.ValueCount
	ExampleTexts []string
}

// GroupResult captures aggregated metrics per group key.
type GroupResult struct {
	Key     string
	Size    int
	Metrics map[string]NumSummary // by column name
}

type NumSummary struct {
	Count          int
	Min, Max, Mean float64
}

// CorrMatrix holds a symmetric Pearson correlation matrix across numeric columns.
type CorrMatrix struct {
	Columns []string
	Values  [][]float64 // row-major, Values[i][j]
}

// Profile computes per-column statistics for t.
func Profile(t *dataset.Table, opt Options) *Report {
	rep := &Report{Name: t.Name, Rows: t.Rows, Warnings: append([]string(nil), t.Warnings...), topN: opt.TopValues}
	if rep.topN <= 0 {
		rep.topN = 8
	}
	sampleRows := opt.SampleRows
	if sampleRows <= 0 {
		sampleRows = 5
	}
	for i := 0; i < t.Rows && i < sampleRows; i++ {
		row := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			row[j] = c.Values[i]
		}
		rep.Samples = append(rep.Samples, row)
	}

	var numeric []*dataset.Column
	for _, c := range t.Columns {
		p := profileColumn(c, opt)
		if c.IsNumeric() {
			numeric = append(numeric, c)
		}
		rep.Cols = append(rep.Cols, p)
	}
	if opt.Correlations && len(numeric) >= 2 {
		rep.Corr = correlations(numeric)
	}
	if len(opt.GroupBy) > 0 {
		groups, err := groupBy(t, opt.GroupBy, numeric)
		if err != nil {
			rep.Warnings = append(rep.Warnings, err.Error())
		}
		rep.Groups = groups
	}
	return rep
}

func profileColumn(c *dataset.Column, opt Options) ColumnProfile {
	p := ColumnProfile{Name: c.Name, Kind: c.Kind}
	p.Missing = c.Missing()
	p.NonNull = len(c.Values) - p.Missing
	p.ValueCounts = c.ValueCounts()
	p.NDistinct = len(p.ValueCounts)
	for _, vc := range p.ValueCounts {
		if vc.Count == 1 {
			p.NUnique++
		}
	}
	if p.NonNull > 0 {
		p.PDistinct = float64(p.NDistinct) / float64(p.NonNull)
	}
	p.Type = profilerType(c.Kind, p.ValueCounts)

	switch c.Kind {
	case dataset.KindNumeric:
		vals := c.Numbers()
		st := dataset.Describe(vals)
		p.Stats = &st
		if opt.Outliers && len(vals) >= 8 {
			p.OutlierThreshold = opt.OutlierThreshold
			if p.OutlierThreshold <= 0 {
				p.OutlierThreshold = 3.5
			}
			p.OutliersCount, p.OutliersMaxAbsZ = robustOutliers(vals, p.OutlierThreshold)
		}
	case dataset.KindText:
		for i, v := range c.Values {
			if c.IsMissing(i) {
				continue
			}
			p.ExampleTexts = append(p.ExampleTexts, v)
			if len(p.ExampleTexts) == 3 {
				break
			}
		}
	}
	return p
}

var booleanLabels = map[string]bool{
	"true": true, "false": true, "yes": true, "no": true, "y": true, "n": true, "t": true, "f": true,
}

func profilerType(kind dataset.Kind, vc []dataset.ValueCount) string {
	switch kind {
	case dataset.KindNumeric:
		return "Numeric"
	case dataset.KindDatetime:
		return "DateTime"
	case dataset.KindCategorical:
		if len(vc) > 0 && len(vc) <= 2 {
			all := true
			for _, v := range vc {
				if !booleanLabels[strings.ToLower(v.Value)] {
					all = false
					break
				}
			}
			if all {
				return "Boolean"
			}
		}
		return "Categorical"
	case dataset.KindText:
		return "Text"
	default:
		return "Unsupported"
	}
}

// robustOutliers counts values whose modified z-score exceeds thr.
func robustOutliers(vals []float64, thr float64) (count int, maxAbsZ float64) {
	median, mad := dataset.MedianMAD(vals)
	if mad == 0 {
		return 0, 0
	}
	for _, v := range vals {
		az := math.Abs(0.6745 * (v - median) / mad)
		if az > thr {
			count++
		}
		if az > maxAbsZ {
			maxAbsZ = az
		}
	}
	return count, maxAbsZ
}

// correlations computes pairwise-complete Pearson r for every numeric column pair.
func correlations(cols []*dataset.Column) *CorrMatrix {
	n := len(cols)
	m := &CorrMatrix{Columns: make([]string, n), Values: make([][]float64, n)}
	for i, c := range cols {
		m.Columns[i] = c.Name
		m.Values[i] = make([]float64, n)
		m.Values[i][i] = 1
	}
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			r := pearson(cols[a].Nums, cols[b].Nums)
			m.Values[a][b] = r
			m.Values[b][a] = r
		}
	}
	return m
}

func pearson(xs, ys []float64) float64 {
	var n, sumX, sumY, sumXX, sumYY, sumXY float64
	for i := range xs {
		x, y := xs[i], ys[i]
		if math.IsNaN(x) || math.IsNaN(y) {
			continue
		}
		n++
		sumX += x
		sumY += y
		sumXX += x * x
		sumYY += y * y
		sumXY += x * y
	}
	if n < 2 {
		return 0
	}
	denom := math.Sqrt((n*sumXX - sumX*sumX) * (n*sumYY - sumY*sumY))
	if denom == 0 {
		return 0
	}
	r := (n*sumXY - sumX*sumY) / denom
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

func groupBy(t *dataset.Table, names []string, numeric []*dataset.Column) ([]GroupResult, error) {
	var keys []*dataset.Column
	for _, name := range names {
		c, err := t.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("group-by: %w", err)
		}
		keys = append(keys, c)
	}
	type acc struct {
		size int
		sum  map[string]float64
		cnt  map[string]int
		min  map[string]float64
		max  map[string]float64
	}
	groups := map[string]*acc{}
	for i := 0; i < t.Rows; i++ {
		parts := make([]string, len(keys))
		for k, c := range keys {
			parts[k] = fmt.Sprintf("%s=%s", c.Name, safeVal(c.Values[i]))
		}
		key := strings.Join(parts, " | ")
		g := groups[key]
		if g == nil {
			g = &acc{sum: map[string]float64{}, cnt: map[string]int{}, min: map[string]float64{}, max: map[string]float64{}}
			groups[key] = g
		}
		g.size++
		for _, c := range numeric {
			x := c.Nums[i]
			if math.IsNaN(x) {
				continue
			}
			g.sum[c.Name] += x
			if g.cnt[c.Name] == 0 || x < g.min[c.Name] {
				g.min[c.Name] = x
			}
			if g.cnt[c.Name] == 0 || x > g.max[c.Name] {
				g.max[c.Name] = x
			}
			g.cnt[c.Name]++
		}
	}
	out := make([]GroupResult, 0, len(groups))
	for k, g := range groups {
		gr := GroupResult{Key: k, Size: g.size, Metrics: map[string]NumSummary{}}
		for name, cnt := range g.cnt {
			gr.Metrics[name] = NumSummary{Count: cnt, Min: g.min[name], Max: g.max[name], Mean: g.sum[name] / float64(cnt)}
		}
		out = append(out, gr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Size == out[j].Size {
			return out[i].Key < out[j].Key
		}
		return out[i].Size > out[j].Size
	})
	if len(out) > 20 {
		out = out[:20]
	}
	return out, nil
}
