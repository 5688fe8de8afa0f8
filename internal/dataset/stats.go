package dataset

import (
	"math"
	"sort"
)

// NumStats is the numeric describe block: count, mean, std and the five-number summary.
type NumStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q1     float64 `json:"25%"`
	Median float64 `json:"50%"`
	Q3     float64 `json:"75%"`
	Max    float64 `json:"max"`
}

// Describe computes NumStats using Welford's update for mean and sample std.
func Describe(vals []float64) NumStats {
	s := NumStats{Count: len(vals)}
	if len(vals) == 0 {
		return s
	}
	var mean, m2 float64
	for i, x := range vals {
		delta := x - mean
		mean += delta / float64(i+1)
		m2 += delta * (x - mean)
	}
	s.Mean = mean
	if len(vals) > 1 {
		s.Std = math.Sqrt(m2 / float64(len(vals)-1))
	}
	sorted := Sorted(vals)
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Q1 = Quantile(sorted, 0.25)
	s.Median = Quantile(sorted, 0.5)
	s.Q3 = Quantile(sorted, 0.75)
	return s
}

// Sorted returns a sorted copy of vals.
func Sorted(vals []float64) []float64 {
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	return cp
}

// Quantile uses linear interpolation between closest ranks; sorted must be ascending.
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// MedianMAD computes the median and the median absolute deviation of vals.
func MedianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := Sorted(vals)
	median = Quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = Quantile(dev, 0.5)
	return
}

// ValueCount is one entry of a frequency table.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ValueCounts counts non-missing values, most frequent first; ties keep first-seen order.
func (c *Column) ValueCounts() []ValueCount {
	idx := map[string]int{}
	var out []ValueCount
	for i := range c.Values {
		if c.IsMissing(i) {
			continue
		}
		v := c.Label(i)
		if j, ok := idx[v]; ok {
			out[j].Count++
			continue
		}
		idx[v] = len(out)
		out = append(out, ValueCount{Value: v, Count: 1})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}
