package plot

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/KaramelBytes/finai-cli/internal/dataset"
)

// Params are the arguments a model passes to a plot tool. Each operation
// reads the fields it documents.
type Params struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	X           string `json:"x_col,omitempty"`
	Y           string `json:"y_col,omitempty"`
	Stack       string `json:"stack_col,omitempty"`
	Col         string `json:"col,omitempty"`
	Category    string `json:"category_col,omitempty"`
	Numeric     string `json:"numeric_col,omitempty"`
}

// RenderFunc draws a chart and returns the PNG with its final description.
type RenderFunc func(t *dataset.Table, p Params) (png []byte, desc string, err error)

// Operation is one entry of the plot tool table.
type Operation struct {
	Name        string
	Description string
	// Columns lists the Params fields (by JSON name) the operation requires.
	Columns []string
	Render  RenderFunc
}

// Operation names.
const (
	BarPlot             = "bar_plot"
	StackedBarPlot      = "stacked_bar_plot"
	TopFrequencyBarplot = "top_frequency_barplot"
	HistogramPlot       = "histogram_plot"
	TopCategoryBoxplot  = "top_category_boxplot"
	ScatterPlot         = "scatter_plot"
	LinePlot            = "line_plot"
)

// DefaultEnabled is the operation subset offered to the plotting agent.
var DefaultEnabled = []string{TopCategoryBoxplot, BarPlot, TopFrequencyBarplot, HistogramPlot}

var operations = map[string]Operation{
	BarPlot: {
		Name:        BarPlot,
		Description: "Generate bar plot (auto-fills missing with 0). y_col must be numeric. Bars show the mean of y_col per x_col category. Will only show top 5 categories if more exist.",
		Columns:     []string{"x_col", "y_col"},
		Render:      renderBar,
	},
	StackedBarPlot: {
		Name:        StackedBarPlot,
		Description: "Generate stacked bar plot of y_col per x_col split by stack_col (auto-fills missing with 0). Counts rows when y_col is not numeric. More than 5 stack categories are folded into Other.",
		Columns:     []string{"x_col", "y_col", "stack_col"},
		Render:      renderStacked,
	},
	TopFrequencyBarplot: {
		Name:        TopFrequencyBarplot,
		Description: "Bar plot of the top 5 (at most) frequent categories. Missing values are auto-dropped.",
		Columns:     []string{"category_col"},
		Render:      renderTopFrequency,
	},
	HistogramPlot: {
		Name:        HistogramPlot,
		Description: "Histogram with adaptive binning. For use with numeric data types. Drops null values.",
		Columns:     []string{"col"},
		Render:      renderHistogram,
	},
	TopCategoryBoxplot: {
		Name:        TopCategoryBoxplot,
		Description: "Boxplot of a numeric column across top 5 (at most) most frequent categories. Missing values are auto-dropped.",
		Columns:     []string{"category_col", "numeric_col"},
		Render:      renderBoxplot,
	},
	ScatterPlot: {
		Name:        ScatterPlot,
		Description: "Generate scatter plot of two numeric columns (auto-drops missing values).",
		Columns:     []string{"x_col", "y_col"},
		Render:      renderScatter,
	},
	LinePlot: {
		Name:        LinePlot,
		Description: "Generate line plot of y_col over a numeric or date x_col, sorted by x (auto-drops missing values).",
		Columns:     []string{"x_col", "y_col"},
		Render:      renderLine,
	},
}

// Lookup returns the operation registered under name.
func Lookup(name string) (Operation, bool) {
	op, ok := operations[name]
	return op, ok
}

// Names lists every operation, sorted.
func Names() []string {
	out := make([]string, 0, len(operations))
	for k := range operations {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Schema returns the JSON schema of the operation's arguments.
func (op Operation) Schema() json.RawMessage {
	props := map[string]any{
		"title":       map[string]string{"type": "string", "description": "Chart title."},
		"description": map[string]string{"type": "string", "description": "One sentence explaining what the chart shows."},
	}
	required := []string{"title", "description"}
	for _, c := range op.Columns {
		props[c] = map[string]string{"type": "string", "description": "Exact column name."}
		required = append(required, c)
	}
	raw, _ := json.Marshal(map[string]any{"type": "object", "properties": props, "required": required})
	return raw
}

func withDescription(p Params, suffix string) string {
	d := p.Description
	if d == "" {
		d = p.Title
	}
	return d + suffix
}

func renderBar(t *dataset.Table, p Params) ([]byte, string, error) {
	x, err := t.Lookup(p.X)
	if err != nil {
		return nil, "", err
	}
	y, err := t.Lookup(p.Y)
	if err != nil {
		return nil, "", err
	}
	if !y.IsNumeric() {
		return nil, "", fmt.Errorf("y_col %q must be numeric", y.Name)
	}
	groups := groupFirstSeen(t.Rows,
		func(i int) (string, bool) { return filledLabel(x, i), true },
		func(i int) (float64, bool) { return filledNumber(y, i), true })
	groups, truncated := topGroups(groups, MaxCategories, func(g *group) float64 { return g.sum })
	labels := make([]string, len(groups))
	values := make([]float64, len(groups))
	for i, g := range groups {
		labels[i] = g.label
		values[i] = g.mean()
	}
	png, err := barChart(p.Title, y.Name, labels, values)
	if err != nil {
		return nil, "", err
	}
	suffix := filledWarning(missingCells(x, y))
	if truncated {
		suffix += topNote
	}
	return png, withDescription(p, suffix), nil
}

func renderStacked(t *dataset.Table, p Params) ([]byte, string, error) {
	x, err := t.Lookup(p.X)
	if err != nil {
		return nil, "", err
	}
	y, err := t.Lookup(p.Y)
	if err != nil {
		return nil, "", err
	}
	s, err := t.Lookup(p.Stack)
	if err != nil {
		return nil, "", err
	}
	value := func(i int) float64 { return 1 }
	if y.IsNumeric() {
		value = func(i int) float64 { return filledNumber(y, i) }
	}
	xGroups := groupFirstSeen(t.Rows, func(i int) (string, bool) { return filledLabel(x, i), true }, func(int) (float64, bool) { return 0, true })
	sGroups := groupFirstSeen(t.Rows,
		func(i int) (string, bool) { return filledLabel(s, i), true },
		func(i int) (float64, bool) { return value(i), true })
	xIdx := map[string]int{}
	for i, g := range xGroups {
		xIdx[g.label] = i
	}
	const other = "Other"
	stacks := sGroups
	folded := false
	if len(sGroups) > MaxCategories {
		stacks, _ = topGroups(sGroups, MaxCategories-1, func(g *group) float64 { return g.sum })
		folded = true
	}
	sIdx := map[string]int{}
	stackLabels := make([]string, 0, len(stacks)+1)
	for i, g := range stacks {
		sIdx[g.label] = i
		stackLabels = append(stackLabels, g.label)
	}
	if folded {
		stackLabels = append(stackLabels, other)
	}
	matrix := make([][]float64, len(xGroups))
	for i := range matrix {
		matrix[i] = make([]float64, len(stackLabels))
	}
	for i := 0; i < t.Rows; i++ {
		j, ok := sIdx[filledLabel(s, i)]
		if !ok {
			j = len(stackLabels) - 1
		}
		matrix[xIdx[filledLabel(x, i)]][j] += value(i)
	}
	for _, row := range matrix {
		for _, v := range row {
			if v < 0 {
				return nil, "", fmt.Errorf("stacked bars need non-negative totals")
			}
		}
	}
	xLabels := make([]string, len(xGroups))
	for i, g := range xGroups {
		xLabels[i] = g.label
	}
	png, err := stackedChart(p.Title, xLabels, stackLabels, matrix)
	if err != nil {
		return nil, "", err
	}
	return png, withDescription(p, filledWarning(missingCells(x, y, s))), nil
}

func renderTopFrequency(t *dataset.Table, p Params) ([]byte, string, error) {
	c, err := t.Lookup(p.Category)
	if err != nil {
		return nil, "", err
	}
	vc := c.ValueCounts()
	if len(vc) > MaxCategories {
		vc = vc[:MaxCategories]
	}
	labels := make([]string, len(vc))
	values := make([]float64, len(vc))
	for i, v := range vc {
		labels[i] = v.Value
		values[i] = float64(v.Count)
	}
	png, err := barChart(p.Title, "count", labels, values)
	if err != nil {
		return nil, "", err
	}
	return png, withDescription(p, ignoredWarning(c.Missing())), nil
}

func renderHistogram(t *dataset.Table, p Params) ([]byte, string, error) {
	c, err := t.Lookup(p.Col)
	if err != nil {
		return nil, "", err
	}
	suffix := ignoredWarning(c.Missing())
	var labels []string
	var values []float64
	if c.IsNumeric() {
		vals := c.Numbers()
		if len(vals) == 0 {
			return nil, "", fmt.Errorf("column %q has no values", c.Name)
		}
		h := binValues(vals, freedmanDiaconisBins(vals, t.Rows))
		labels = h.labels()
		for _, n := range h.counts {
			values = append(values, float64(n))
		}
	} else {
		vc := c.ValueCounts()
		rest := 0
		for i, v := range vc {
			if i < MaxCategories {
				labels = append(labels, v.Value)
				values = append(values, float64(v.Count))
				continue
			}
			rest += v.Count
		}
		if len(vc) > MaxCategories {
			labels = append(labels, "Other")
			values = append(values, float64(rest))
			suffix += topNote
		}
	}
	png, err := barChart(p.Title, "count", labels, values)
	if err != nil {
		return nil, "", err
	}
	return png, withDescription(p, suffix), nil
}

func renderBoxplot(t *dataset.Table, p Params) ([]byte, string, error) {
	cat, err := t.Lookup(p.Category)
	if err != nil {
		return nil, "", err
	}
	num, err := t.Lookup(p.Numeric)
	if err != nil {
		return nil, "", err
	}
	if !num.IsNumeric() {
		return nil, "", fmt.Errorf("numeric_col %q must be numeric", num.Name)
	}
	groups := groupFirstSeen(t.Rows,
		func(i int) (string, bool) { return cat.Label(i), !cat.IsMissing(i) },
		func(i int) (float64, bool) { return num.Nums[i], !num.IsMissing(i) })
	groups, _ = topGroups(groups, MaxCategories, func(g *group) float64 { return float64(len(g.vals)) })
	boxes := make([]boxStats, len(groups))
	for i, g := range groups {
		boxes[i] = newBoxStats(g.label, g.vals)
	}
	png, err := boxChart(p.Title, num.Name, boxes)
	if err != nil {
		return nil, "", err
	}
	return png, withDescription(p, ignoredWarning(missingCells(cat, num))), nil
}

// numericPairs returns (x, y) rows where both cells are present.
func numericPairs(t *dataset.Table, p Params) (x, y *dataset.Column, xs, ys []float64, err error) {
	x, err = t.Lookup(p.X)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	y, err = t.Lookup(p.Y)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if !y.IsNumeric() {
		return nil, nil, nil, nil, fmt.Errorf("y_col %q must be numeric", y.Name)
	}
	if !x.IsNumeric() {
		return x, y, nil, nil, nil
	}
	for i := 0; i < t.Rows; i++ {
		if x.IsMissing(i) || y.IsMissing(i) {
			continue
		}
		xs = append(xs, x.Nums[i])
		ys = append(ys, y.Nums[i])
	}
	return x, y, xs, ys, nil
}

func renderScatter(t *dataset.Table, p Params) ([]byte, string, error) {
	x, y, xs, ys, err := numericPairs(t, p)
	if err != nil {
		return nil, "", err
	}
	if !x.IsNumeric() {
		return nil, "", fmt.Errorf("x_col %q must be numeric", x.Name)
	}
	png, err := xyChart(p.Title, x.Name, y.Name, xs, ys, false)
	if err != nil {
		return nil, "", err
	}
	return png, withDescription(p, ignoredWarning(missingCells(x, y))), nil
}

func renderLine(t *dataset.Table, p Params) ([]byte, string, error) {
	x, y, xs, ys, err := numericPairs(t, p)
	if err != nil {
		return nil, "", err
	}
	suffix := ignoredWarning(missingCells(x, y))
	if x.Kind == dataset.KindDatetime {
		type point struct {
			t time.Time
			y float64
		}
		var pts []point
		for i := 0; i < t.Rows; i++ {
			ts, ok := x.Time(i)
			if !ok || y.IsMissing(i) {
				continue
			}
			pts = append(pts, point{ts, y.Nums[i]})
		}
		sort.SliceStable(pts, func(a, b int) bool { return pts[a].t.Before(pts[b].t) })
		times := make([]time.Time, len(pts))
		vals := make([]float64, len(pts))
		for i, pt := range pts {
			times[i], vals[i] = pt.t, pt.y
		}
		png, err := timeChart(p.Title, x.Name, y.Name, times, vals)
		if err != nil {
			return nil, "", err
		}
		return png, withDescription(p, suffix), nil
	}
	if !x.IsNumeric() {
		return nil, "", fmt.Errorf("x_col %q must be numeric or a date", x.Name)
	}
	order := make([]int, len(xs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return xs[order[a]] < xs[order[b]] })
	sx := make([]float64, len(xs))
	sy := make([]float64, len(ys))
	for i, k := range order {
		sx[i], sy[i] = xs[k], ys[k]
	}
	png, err := xyChart(p.Title, x.Name, y.Name, sx, sy, true)
	if err != nil {
		return nil, "", err
	}
	return png, withDescription(p, suffix), nil
}
