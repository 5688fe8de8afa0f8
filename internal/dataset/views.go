package dataset

import (
	"fmt"
	"strconv"
	"strings"
)

// Text views of the table, formatted for prompts.

const maxCellWidth = 40

// Head renders the first n rows as an aligned text grid with a row index.
func (t *Table) Head(n int) string {
	if n > t.Rows {
		n = t.Rows
	}
	if n < 0 {
		n = 0
	}
	grid := make([][]string, 0, n+1)
	hdr := append([]string{""}, t.ColumnNames()...)
	grid = append(grid, hdr)
	for i := 0; i < n; i++ {
		row := make([]string, 0, len(t.Columns)+1)
		row = append(row, strconv.Itoa(i))
		for _, c := range t.Columns {
			v := c.Values[i]
			if c.IsMissing(i) {
				v = "NaN"
			}
			row = append(row, clip(v))
		}
		grid = append(grid, row)
	}
	return renderGrid(grid)
}

// Dtype names the column's storage type the way dataframe tooling does.
func (c *Column) Dtype() string {
	switch c.Kind {
	case KindNumeric:
		if c.Integral && c.Missing() == 0 {
			return "int64"
		}
		return "float64"
	case KindDatetime:
		return "datetime"
	case KindEmpty:
		return "float64"
	default:
		return "object"
	}
}

// Dtypes lists each column with its dtype.
func (t *Table) Dtypes() string {
	width := 0
	for _, c := range t.Columns {
		if len(c.Name) > width {
			width = len(c.Name)
		}
	}
	var b strings.Builder
	for _, c := range t.Columns {
		fmt.Fprintf(&b, "%-*s  %s\n", width, c.Name, c.Dtype())
	}
	return strings.TrimRight(b.String(), "\n")
}

// DescribeText renders summary statistics for numeric columns, or for the
// categorical columns when the table has no numeric ones.
func (t *Table) DescribeText() string {
	var numeric []*Column
	for _, c := range t.Columns {
		if c.IsNumeric() {
			numeric = append(numeric, c)
		}
	}
	if len(numeric) > 0 {
		labels := []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"}
		grid := [][]string{{""}}
		for _, c := range numeric {
			grid[0] = append(grid[0], c.Name)
		}
		stats := make([]NumStats, len(numeric))
		for i, c := range numeric {
			stats[i] = Describe(c.Numbers())
		}
		for li, l := range labels {
			row := []string{l}
			for _, s := range stats {
				row = append(row, formatStat(s, li))
			}
			grid = append(grid, row)
		}
		return renderGrid(grid)
	}
	grid := [][]string{{"", "count", "unique", "top", "freq"}}
	for _, c := range t.Columns {
		vc := c.ValueCounts()
		row := []string{c.Name, strconv.Itoa(c.Count()), strconv.Itoa(len(vc)), "NaN", "NaN"}
		if len(vc) > 0 {
			row[3] = clip(vc[0].Value)
			row[4] = strconv.Itoa(vc[0].Count)
		}
		grid = append(grid, row)
	}
	return renderGrid(grid)
}

func formatStat(s NumStats, i int) string {
	if s.Count == 0 && i > 0 {
		return "NaN"
	}
	switch i {
	case 0:
		return strconv.FormatFloat(float64(s.Count), 'f', 1, 64)
	case 1:
		return FormatFloat(s.Mean)
	case 2:
		if s.Count < 2 {
			return "NaN"
		}
		return FormatFloat(s.Std)
	case 3:
		return FormatFloat(s.Min)
	case 4:
		return FormatFloat(s.Q1)
	case 5:
		return FormatFloat(s.Median)
	case 6:
		return FormatFloat(s.Q3)
	default:
		return FormatFloat(s.Max)
	}
}

// FormatFloat renders a value with six significant digits.
func FormatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', 6, 64)
}

func clip(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > maxCellWidth {
		return string(r[:maxCellWidth-3]) + "..."
	}
	return s
}

// renderGrid right-aligns every column to its widest cell.
func renderGrid(grid [][]string) string {
	if len(grid) == 0 {
		return ""
	}
	widths := make([]int, len(grid[0]))
	for _, row := range grid {
		for j, cell := range row {
			if j < len(widths) && len([]rune(cell)) > widths[j] {
				widths[j] = len([]rune(cell))
			}
		}
	}
	var b strings.Builder
	for _, row := range grid {
		for j, cell := range row {
			if j > 0 {
				b.WriteString("  ")
			}
			b.WriteString(strings.Repeat(" ", widths[j]-len([]rune(cell))))
			b.WriteString(cell)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
