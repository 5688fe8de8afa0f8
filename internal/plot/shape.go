package plot

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/KaramelBytes/finai-cli/internal/dataset"
)

// MaxCategories is how many categories a chart shows before truncating.
const MaxCategories = 5

// MaxHistogramBins caps the Freedman-Diaconis bin count.
const MaxHistogramBins = 30

const topNote = "\nNote: Showing only top 5 categories."

// group is one category with the numeric values seen for it.
type group struct {
	label string
	sum   float64
	vals  []float64
	order int
}

func (g group) mean() float64 {
	if len(g.vals) == 0 {
		return 0
	}
	return g.sum / float64(len(g.vals))
}

// groupFirstSeen buckets rows by label, keeping first-seen order.
func groupFirstSeen(n int, label func(i int) (string, bool), value func(i int) (float64, bool)) []*group {
	idx := map[string]*group{}
	var out []*group
	for i := 0; i < n; i++ {
		l, ok := label(i)
		if !ok {
			continue
		}
		v, ok := value(i)
		if !ok {
			continue
		}
		g := idx[l]
		if g == nil {
			g = &group{label: l, order: len(out)}
			idx[l] = g
			out = append(out, g)
		}
		g.sum += v
		g.vals = append(g.vals, v)
	}
	return out
}

// topGroups keeps the k groups ranked by key (descending, stable on first-seen
// order) and returns them in first-seen order.
func topGroups(gs []*group, k int, key func(*group) float64) ([]*group, bool) {
	if len(gs) <= k {
		return gs, false
	}
	ranked := append([]*group(nil), gs...)
	sort.SliceStable(ranked, func(i, j int) bool { return key(ranked[i]) > key(ranked[j]) })
	ranked = ranked[:k]
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].order < ranked[j].order })
	return ranked, true
}

// filledLabel renders a category label where missing cells read as 0.
func filledLabel(c *dataset.Column, i int) string {
	if c.IsMissing(i) {
		return "0"
	}
	return c.Label(i)
}

// filledNumber reads a numeric cell, treating missing as 0.
func filledNumber(c *dataset.Column, i int) float64 {
	if c.IsMissing(i) {
		return 0
	}
	return c.Nums[i]
}

func missingCells(cols ...*dataset.Column) int {
	n := 0
	for _, c := range cols {
		n += c.Missing()
	}
	return n
}

func ignoredWarning(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf(" (warning: %d missing values ignored)", n)
}

func filledWarning(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf(" (warning: %d missing values filled with 0)", n)
}

// histogram is a set of equal-width bins over [lo, hi].
type histogram struct {
	edges  []float64
	counts []int
}

// freedmanDiaconisBins returns the bin count for vals. total is the number of
// rows in the column including missing ones.
func freedmanDiaconisBins(vals []float64, total int) int {
	if len(vals) == 0 || total == 0 {
		return 1
	}
	sorted := dataset.Sorted(vals)
	iqr := dataset.Quantile(sorted, 0.75) - dataset.Quantile(sorted, 0.25)
	span := sorted[len(sorted)-1] - sorted[0]
	width := 2 * iqr / math.Cbrt(float64(total))
	if width <= 0 || span <= 0 {
		return 1
	}
	bins := int(math.Floor(span / width))
	if bins > MaxHistogramBins {
		bins = MaxHistogramBins
	}
	if bins < 1 {
		bins = 1
	}
	return bins
}

// binValues splits vals into equal-width bins; the last bin is closed.
func binValues(vals []float64, bins int) histogram {
	sorted := dataset.Sorted(vals)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if hi == lo {
		lo, hi = lo-0.5, hi+0.5
	}
	h := histogram{edges: make([]float64, bins+1), counts: make([]int, bins)}
	step := (hi - lo) / float64(bins)
	for i := range h.edges {
		h.edges[i] = lo + step*float64(i)
	}
	h.edges[bins] = hi
	for _, v := range vals {
		b := int((v - lo) / step)
		if b >= bins {
			b = bins - 1
		}
		if b < 0 {
			b = 0
		}
		h.counts[b]++
	}
	return h
}

func (h histogram) labels() []string {
	out := make([]string, len(h.counts))
	for i := range h.counts {
		out[i] = shortNum(h.edges[i]) + "-" + shortNum(h.edges[i+1])
	}
	return out
}

func shortNum(x float64) string { return strconv.FormatFloat(x, 'g', 4, 64) }

// boxStats summarizes one category for a box plot.
type boxStats struct {
	label            string
	q1, median, q3   float64
	whiskLo, whiskHi float64
	outliers         []float64
}

func newBoxStats(label string, vals []float64) boxStats {
	sorted := dataset.Sorted(vals)
	b := boxStats{
		label:  label,
		q1:     dataset.Quantile(sorted, 0.25),
		median: dataset.Quantile(sorted, 0.5),
		q3:     dataset.Quantile(sorted, 0.75),
	}
	iqr := b.q3 - b.q1
	loFence, hiFence := b.q1-1.5*iqr, b.q3+1.5*iqr
	b.whiskLo, b.whiskHi = b.q1, b.q3
	first := true
	for _, v := range sorted {
		if v < loFence || v > hiFence {
			b.outliers = append(b.outliers, v)
			continue
		}
		if first {
			b.whiskLo = v
			first = false
		}
		b.whiskHi = v
	}
	return b
}
