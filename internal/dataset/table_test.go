package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV_InfersKinds(t *testing.T) {
	csvData := "region,sales,date,notes\n" +
		"North,100,2024-01-01,ok\n" +
		"South,200.5,2024-01-02,\n" +
		"North,NA,2024-01-03,late\n" +
		"East,50,2024-01-04,ok\n"
	tbl, err := ReadCSV("sales.csv", strings.NewReader(csvData), Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, tbl.Rows)
	require.Len(t, tbl.Columns, 4)

	region, ok := tbl.Column("Region")
	require.True(t, ok, "case-insensitive lookup")
	assert.Equal(t, KindCategorical, region.Kind)

	sales, _ := tbl.Column("sales")
	assert.Equal(t, KindNumeric, sales.Kind)
	assert.Equal(t, 1, sales.Missing())
	assert.Equal(t, []float64{100, 200.5, 50}, sales.Numbers())
	assert.Equal(t, "float64", sales.Dtype())

	date, _ := tbl.Column("date")
	assert.Equal(t, KindDatetime, date.Kind)

	notes, _ := tbl.Column("notes")
	assert.Equal(t, 1, notes.Missing())
}

func TestReadCSV_SniffsSemicolonAndDedupesHeaders(t *testing.T) {
	csvData := "a;a;;b\n1;2;3;x\n"
	tbl, err := ReadCSV("x.csv", strings.NewReader(csvData), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a.1", "Unnamed: 2", "b"}, tbl.ColumnNames())
}

func TestReadCSV_DedupesHeadersIgnoringCase(t *testing.T) {
	csvData := "Region,region,sales,region.1,REGION\nN,n,1,x,y\n"
	tbl, err := ReadCSV("x.csv", strings.NewReader(csvData), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Region", "region.1", "sales", "region.1.1", "REGION.2"}, tbl.ColumnNames())
}

func TestReadCSV_EmptyInput(t *testing.T) {
	_, err := ReadCSV("empty.csv", strings.NewReader(""), Options{})
	require.Error(t, err)
}

func TestReadCSV_MaxRowsWarns(t *testing.T) {
	var b strings.Builder
	b.WriteString("v\n")
	for i := 0; i < 10; i++ {
		b.WriteString("1\n")
	}
	tbl, err := ReadCSV("v.csv", strings.NewReader(b.String()), Options{MaxRows: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, tbl.Rows)
	require.Len(t, tbl.Warnings, 1)
	assert.Contains(t, tbl.Warnings[0], "4/10")
}

func TestLoadCSV_TSVByExtension(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "data.tsv")
	require.NoError(t, os.WriteFile(p, []byte("x\ty\n1\t2\n"), 0o644))
	tbl, err := LoadCSV(p, Options{})
	require.NoError(t, err)
	assert.Equal(t, "data.tsv", tbl.Name)
	assert.Equal(t, []string{"x", "y"}, tbl.ColumnNames())
}

func TestParseNumericLocales(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1,234.5", 1234.5, true},
		{"1.234,5", 1234.5, true},
		{"12%", 12, true},
		{"3e2", 300, true},
		{"Inf", 0, false},
		{"abc", 0, false},
	}
	for _, c := range cases {
		got, ok := parseNumeric(c.in, Options{})
		assert.Equal(t, c.ok, ok, c.in)
		if c.ok {
			assert.InDelta(t, c.want, got, 1e-9, c.in)
		}
	}
}

func TestValueCountsTiesKeepFirstSeen(t *testing.T) {
	c := &Column{Name: "c", Values: []string{"b", "a", "b", "a", "c", ""}}
	c.infer(Options{})
	vc := c.ValueCounts()
	require.Len(t, vc, 3)
	assert.Equal(t, ValueCount{Value: "b", Count: 2}, vc[0])
	assert.Equal(t, ValueCount{Value: "a", Count: 2}, vc[1])
	assert.Equal(t, ValueCount{Value: "c", Count: 1}, vc[2])
}

func TestDescribeMatchesLinearPercentiles(t *testing.T) {
	s := Describe([]float64{4, 1, 3, 2})
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 2.5, s.Mean, 1e-9)
	assert.InDelta(t, 1.75, s.Q1, 1e-9)
	assert.InDelta(t, 2.5, s.Median, 1e-9)
	assert.InDelta(t, 3.25, s.Q3, 1e-9)
	assert.InDelta(t, 1.2909944, s.Std, 1e-6)
}

func TestViews(t *testing.T) {
	tbl, err := ReadCSV("v.csv", strings.NewReader("name,qty\nalpha,1\nbeta,\n"), Options{})
	require.NoError(t, err)

	head := tbl.Head(5)
	lines := strings.Split(head, "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "name")
	assert.Contains(t, lines[2], "NaN")

	dt := tbl.Dtypes()
	assert.Contains(t, dt, "name  object")
	assert.Contains(t, dt, "qty   float64")

	desc := tbl.DescribeText()
	assert.Contains(t, desc, "count")
	assert.Contains(t, desc, "qty")
}
