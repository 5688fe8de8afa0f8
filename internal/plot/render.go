package plot

import (
	"bytes"
	"fmt"
	"math"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	chartHeight   = 480
	minChartWidth = 640
	maxLabelRunes = 18
)

var palette = []drawing.Color{
	chart.ColorBlue, chart.ColorGreen, chart.ColorRed, chart.ColorOrange, chart.ColorCyan,
}

func paletteColor(i int) drawing.Color { return palette[i%len(palette)] }

func shortLabel(s string) string {
	r := []rune(s)
	if len(r) > maxLabelRunes {
		return string(r[:maxLabelRunes-1]) + "…"
	}
	return s
}

func barWidths(n int) (bar, spacing, width int) {
	bar, spacing = 50, 24
	if n > 10 {
		bar, spacing = 18, 4
	}
	width = n*(bar+spacing) + 160
	if width < minChartWidth {
		width = minChartWidth
	}
	return bar, spacing, width
}

// paddedRange widens [lo, hi] so go-chart never sees a zero-height range.
func paddedRange(lo, hi float64, zeroBased bool) *chart.ContinuousRange {
	if zeroBased {
		lo = math.Min(lo, 0)
		hi = math.Max(hi, 0)
	}
	if hi == lo {
		hi = lo + 1
		if !zeroBased {
			lo -= 1
		}
	}
	pad := (hi - lo) * 0.05
	if !zeroBased || lo < 0 {
		lo -= pad
	}
	hi += pad
	return &chart.ContinuousRange{Min: lo, Max: hi}
}

func minMax(vals []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// barChart draws one bar per label on a zero baseline.
func barChart(title, yName string, labels []string, values []float64) ([]byte, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("no data to plot")
	}
	bw, sp, width := barWidths(len(labels))
	bars := make([]chart.Value, len(labels))
	for i, l := range labels {
		c := paletteColor(i)
		bars[i] = chart.Value{
			Label: shortLabel(l),
			Value: values[i],
			Style: chart.Style{FillColor: c, StrokeColor: c},
		}
	}
	lo, hi := minMax(values)
	bc := chart.BarChart{
		Title:        title,
		Width:        width,
		Height:       chartHeight,
		BarWidth:     bw,
		BarSpacing:   sp,
		Background:   chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		YAxis:        chart.YAxis{Name: yName, Range: paddedRange(lo, hi, true)},
		UseBaseValue: true,
		BaseValue:    0,
		Bars:         bars,
	}
	var buf bytes.Buffer
	if err := bc.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render bar chart: %w", err)
	}
	return buf.Bytes(), nil
}

// stackedChart draws one bar per x label with a segment per stack label.
func stackedChart(title string, xLabels, stackLabels []string, values [][]float64) ([]byte, error) {
	if len(xLabels) == 0 {
		return nil, fmt.Errorf("no data to plot")
	}
	_, _, width := barWidths(len(xLabels))
	bars := make([]chart.StackedBar, 0, len(xLabels))
	for i, x := range xLabels {
		sb := chart.StackedBar{Name: shortLabel(x), Width: 50}
		for j, s := range stackLabels {
			if values[i][j] <= 0 {
				continue
			}
			c := paletteColor(j)
			sb.Values = append(sb.Values, chart.Value{
				Label: shortLabel(s),
				Value: values[i][j],
				Style: chart.Style{FillColor: c, StrokeColor: c},
			})
		}
		if len(sb.Values) > 0 {
			bars = append(bars, sb)
		}
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("all stacked totals are zero")
	}
	sbc := chart.StackedBarChart{
		Title:      title,
		Width:      width,
		Height:     chartHeight,
		BarSpacing: 24,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		Bars:       bars,
	}
	var buf bytes.Buffer
	if err := sbc.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render stacked bar chart: %w", err)
	}
	return buf.Bytes(), nil
}

// boxChart draws boxes and whiskers as line segments at x = 1..n.
func boxChart(title, yName string, boxes []boxStats) ([]byte, error) {
	if len(boxes) == 0 {
		return nil, fmt.Errorf("no data to plot")
	}
	const half = 0.3
	var series []chart.Series
	var ticks []chart.Tick
	var all []float64
	segment := func(c drawing.Color, xs, ys []float64) {
		series = append(series, chart.ContinuousSeries{
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: c, StrokeWidth: 2},
		})
	}
	for i, b := range boxes {
		x := float64(i + 1)
		c := paletteColor(i)
		segment(c, []float64{x - half, x + half, x + half, x - half, x - half}, []float64{b.q1, b.q1, b.q3, b.q3, b.q1})
		segment(chart.ColorBlack, []float64{x - half, x + half}, []float64{b.median, b.median})
		segment(c, []float64{x, x}, []float64{b.q1, b.whiskLo})
		segment(c, []float64{x, x}, []float64{b.q3, b.whiskHi})
		segment(c, []float64{x - half/2, x + half/2}, []float64{b.whiskLo, b.whiskLo})
		segment(c, []float64{x - half/2, x + half/2}, []float64{b.whiskHi, b.whiskHi})
		if len(b.outliers) > 0 {
			xs := make([]float64, len(b.outliers))
			for k := range xs {
				xs[k] = x
			}
			series = append(series, chart.ContinuousSeries{
				XValues: xs,
				YValues: b.outliers,
				Style:   chart.Style{StrokeWidth: 0, DotWidth: 3, DotColor: c},
			})
		}
		ticks = append(ticks, chart.Tick{Value: x, Label: shortLabel(b.label)})
		all = append(all, b.whiskLo, b.whiskHi)
		all = append(all, b.outliers...)
	}
	lo, hi := minMax(all)
	graph := chart.Chart{
		Title:      title,
		Width:      minChartWidth,
		Height:     chartHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{Ticks: ticks, Range: &chart.ContinuousRange{Min: 0.4, Max: float64(len(boxes)) + 0.6}},
		YAxis:      chart.YAxis{Name: yName, Range: paddedRange(lo, hi, false)},
		Series:     series,
	}
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render box plot: %w", err)
	}
	return buf.Bytes(), nil
}

// xyChart draws a scatter (dots only) or a line through points sorted by x.
func xyChart(title, xName, yName string, xs, ys []float64, line bool) ([]byte, error) {
	if len(xs) == 0 {
		return nil, fmt.Errorf("no data to plot")
	}
	style := chart.Style{StrokeWidth: 0, DotWidth: 3, DotColor: chart.ColorBlue}
	if line {
		style = chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 2}
	}
	xlo, xhi := minMax(xs)
	ylo, yhi := minMax(ys)
	graph := chart.Chart{
		Title:      title,
		Width:      minChartWidth + 160,
		Height:     chartHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{Name: xName, Range: paddedRange(xlo, xhi, false)},
		YAxis:      chart.YAxis{Name: yName, Range: paddedRange(ylo, yhi, false)},
		Series:     []chart.Series{chart.ContinuousSeries{Name: yName, XValues: xs, YValues: ys, Style: style}},
	}
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// timeChart draws a line over a datetime x axis.
func timeChart(title, xName, yName string, ts []time.Time, ys []float64) ([]byte, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("no data to plot")
	}
	lo, hi := chart.TimeToFloat64(ts[0]), chart.TimeToFloat64(ts[len(ts)-1])
	if hi == lo {
		hi = lo + float64(24*time.Hour)
	}
	ylo, yhi := minMax(ys)
	graph := chart.Chart{
		Title:      title,
		Width:      minChartWidth + 160,
		Height:     chartHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:           xName,
			Range:          &chart.ContinuousRange{Min: lo, Max: hi},
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02"),
		},
		YAxis: chart.YAxis{Name: yName, Range: paddedRange(ylo, yhi, false)},
		Series: []chart.Series{chart.TimeSeries{
			Name:    yName,
			XValues: ts,
			YValues: ys,
			Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 2},
		}},
	}
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}
