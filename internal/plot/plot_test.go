package plot

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/finai-cli/internal/ai"
	"github.com/KaramelBytes/finai-cli/internal/dataset"
)

var pngMagic = []byte("\x89PNG")

func loadTable(t *testing.T, csv string) *dataset.Table {
	t.Helper()
	tbl, err := dataset.ReadCSV("t.csv", strings.NewReader(csv), dataset.Options{})
	require.NoError(t, err)
	return tbl
}

// sevenRegions has seven categories; G ties A on sum but appears later.
const sevenRegions = `region,sales,units,date
A,10,1,2024-01-01
B,50,2,2024-01-02
C,30,3,2024-01-03
D,5,4,2024-01-04
E,40,5,2024-01-05
F,20,6,2024-01-06
G,10,7,2024-01-07
B,,8,2024-01-08
`

func TestTopGroupsDeterministic(t *testing.T) {
	tbl := loadTable(t, sevenRegions)
	x, _ := tbl.Column("region")
	y, _ := tbl.Column("sales")
	pick := func() []string {
		gs := groupFirstSeen(tbl.Rows,
			func(i int) (string, bool) { return filledLabel(x, i), true },
			func(i int) (float64, bool) { return filledNumber(y, i), true })
		top, truncated := topGroups(gs, MaxCategories, func(g *group) float64 { return g.sum })
		require.True(t, truncated)
		var out []string
		for _, g := range top {
			out = append(out, g.label)
		}
		return out
	}
	first := pick()
	// sums: B 50, E 40, C 30, F 20, A 10, G 10, D 5; A wins the tie by appearing first
	assert.Equal(t, []string{"A", "B", "C", "E", "F"}, first)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, pick())
	}
}

func TestFreedmanDiaconisBins(t *testing.T) {
	vals := make([]float64, 100)
	for i := range vals {
		vals[i] = float64(i)
	}
	// IQR 49.5, n 100: width = 99/4.6416 ≈ 21.33, span 99 -> 4 bins
	assert.Equal(t, 4, freedmanDiaconisBins(vals, 100))
	// missing rows still count toward n, shrinking the width
	assert.Equal(t, 7, freedmanDiaconisBins(vals, 500))
	assert.Equal(t, 1, freedmanDiaconisBins([]float64{3, 3, 3}, 3))
	assert.Equal(t, 1, freedmanDiaconisBins(nil, 0))

	wide := append([]float64{}, vals...)
	wide = append(wide, 1e6)
	assert.Equal(t, MaxHistogramBins, freedmanDiaconisBins(wide, len(wide)))
}

func TestBinValuesClosesLastBin(t *testing.T) {
	h := binValues([]float64{0, 1, 2, 3, 4}, 2)
	assert.Equal(t, []int{2, 3}, h.counts)
	assert.Equal(t, []string{"0-2", "2-4"}, h.labels())
}

func TestBoxStatsWhiskers(t *testing.T) {
	b := newBoxStats("x", []float64{1, 2, 3, 4, 5, 6, 7, 8, 100})
	assert.Equal(t, 3.0, b.q1)
	assert.Equal(t, 5.0, b.median)
	assert.Equal(t, 7.0, b.q3)
	assert.Equal(t, 1.0, b.whiskLo)
	assert.Equal(t, 8.0, b.whiskHi)
	assert.Equal(t, []float64{100}, b.outliers)
}

func TestOperationsRenderPNG(t *testing.T) {
	tbl := loadTable(t, sevenRegions)
	cases := []struct {
		op     string
		params Params
		suffix string
	}{
		{BarPlot, Params{Title: "Sales", Description: "Mean sales", X: "region", Y: "sales"}, " (warning: 1 missing values filled with 0)\nNote: Showing only top 5 categories."},
		{StackedBarPlot, Params{Title: "Units", X: "region", Y: "units", Stack: "region"}, ""},
		{TopFrequencyBarplot, Params{Title: "Regions", Description: "Top regions", Category: "region"}, ""},
		{HistogramPlot, Params{Title: "Units", Description: "Units", Col: "units"}, ""},
		{HistogramPlot, Params{Title: "Regions", Description: "Regions", Col: "region"}, "\nNote: Showing only top 5 categories."},
		{TopCategoryBoxplot, Params{Title: "Box", Description: "Spread", Category: "region", Numeric: "units"}, ""},
		{ScatterPlot, Params{Title: "S", Description: "Units vs sales", X: "units", Y: "sales"}, " (warning: 1 missing values ignored)"},
		{LinePlot, Params{Title: "L", Description: "Sales over units", X: "units", Y: "sales"}, " (warning: 1 missing values ignored)"},
		{LinePlot, Params{Title: "T", Description: "Sales over time", X: "date", Y: "sales"}, " (warning: 1 missing values ignored)"},
	}
	for _, tc := range cases {
		t.Run(tc.op+"/"+tc.params.Title, func(t *testing.T) {
			op, ok := Lookup(tc.op)
			require.True(t, ok)
			png, desc, err := op.Render(tbl, tc.params)
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(png, pngMagic))
			want := tc.params.Description
			if want == "" {
				want = tc.params.Title
			}
			assert.Equal(t, want+tc.suffix, desc)
		})
	}
}

func TestOperationErrors(t *testing.T) {
	tbl := loadTable(t, sevenRegions)
	_, _, err := operations[BarPlot].Render(tbl, Params{X: "region", Y: "region"})
	assert.ErrorContains(t, err, "must be numeric")
	_, _, err = operations[HistogramPlot].Render(tbl, Params{Col: "nope"})
	assert.ErrorContains(t, err, "not found")
	_, _, err = operations[ScatterPlot].Render(tbl, Params{X: "region", Y: "sales"})
	assert.Error(t, err)
}

func TestCollectorLifecycle(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Add(Plot{Image: fmt.Sprint(i)})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, c.Len())
	c.Reset()
	assert.Equal(t, 0, c.Len())

	c.Add(NewPlot("bar_plot", "first", "d1", []byte("a")))
	c.Add(NewPlot("bar_plot", "second", "d2", []byte("b")))
	p, ok := c.Pop()
	require.True(t, ok)
	assert.Equal(t, "second", p.Title)
	assert.Equal(t, "data:image/png;base64,Yg==", p.DataURI())
	assert.Len(t, c.All(), 1)
	c.Pop()
	_, ok = c.Pop()
	assert.False(t, ok)
}

func TestToolkitReportsFailuresAsText(t *testing.T) {
	tbl := loadTable(t, sevenRegions)
	c := NewCollector()
	k, err := NewToolkit(tbl, c, nil, nil)
	require.NoError(t, err)
	require.Len(t, k.Tools(), len(DefaultEnabled))

	call := func(name, args string) string {
		out, err := k.Execute(context.Background(), ai.ToolCall{Function: ai.FunctionCall{Name: name, Arguments: args}})
		require.NoError(t, err)
		return out
	}
	assert.Equal(t, "Plot generated successfully.", call(BarPlot, `{"title":"t","description":"d","x_col":"region","y_col":"sales"}`))
	assert.Equal(t, 1, c.Len())

	out := call(BarPlot, `{"title":"t","description":"d","x_col":"region","y_col":"missing"}`)
	assert.True(t, strings.HasPrefix(out, "Plot generation failed: "), out)
	assert.True(t, strings.HasPrefix(call(ScatterPlot, `{}`), "Plot generation failed: "), "scatter is not enabled by default")
	assert.True(t, strings.HasPrefix(call(BarPlot, `{"x_col":`), "Plot generation failed: "))
	assert.Equal(t, 1, c.Len())

	_, err = NewToolkit(tbl, c, []string{"pie_chart"}, nil)
	assert.Error(t, err)
}

func TestToolkitRecoversPanics(t *testing.T) {
	operations["panic_plot"] = Operation{Name: "panic_plot", Render: func(*dataset.Table, Params) ([]byte, string, error) {
		panic("kaboom")
	}}
	defer delete(operations, "panic_plot")
	k, err := NewToolkit(loadTable(t, sevenRegions), NewCollector(), []string{"panic_plot"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Plot generation failed: kaboom", k.Run("panic_plot", ""))
}
