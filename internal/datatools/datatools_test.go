package datatools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/finai-cli/internal/ai"
	"github.com/KaramelBytes/finai-cli/internal/dataset"
)

const salesCSV = `region,product,amount,units
North,A,10.5,1
South,B,20,2
North,A,,3
East,C,7.25,NA
North,B,2,5
`

func openKit(t *testing.T, maxRows int) *Toolkit {
	t.Helper()
	tbl, err := dataset.ReadCSV("sales.csv", strings.NewReader(salesCSV), dataset.Options{})
	require.NoError(t, err)
	k, err := Open(context.Background(), tbl, maxRows, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	return k
}

func call(name, args string) ai.ToolCall {
	return ai.ToolCall{ID: "c", Type: "function", Function: ai.FunctionCall{Name: name, Arguments: args}}
}

func TestRunSQLAggregates(t *testing.T) {
	k := openKit(t, 0)
	out, err := k.Execute(context.Background(), call(RunSQL, `{"query":"SELECT region, SUM(amount) AS total, COUNT(*) AS n FROM data GROUP BY region ORDER BY total DESC;"}`))
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "region | total | n", lines[0])
	assert.Equal(t, "South | 20 | 1", lines[1])
	assert.Equal(t, "North | 12.5 | 3", lines[2])
}

func TestRunSQLNullsAndLimit(t *testing.T) {
	k := openKit(t, 2)
	out, err := k.Query(context.Background(), "select amount from data")
	require.NoError(t, err)
	assert.Contains(t, out, "... 3 more rows not shown")

	out, err = k.Query(context.Background(), `SELECT amount FROM data WHERE units = 3`)
	require.NoError(t, err)
	assert.Equal(t, "amount\nNULL", out)
}

func TestOpenWithCaseOnlyDuplicateHeaders(t *testing.T) {
	csvData := "Region,region,sales\nNorth,n,10\nSouth,s,20\nNorth,n,5\n"
	tbl, err := dataset.ReadCSV("mixed.csv", strings.NewReader(csvData), dataset.Options{})
	require.NoError(t, err)
	k, err := Open(context.Background(), tbl, 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })

	out, err := k.Query(context.Background(), `SELECT "Region", "region.1", SUM(sales) AS total FROM data GROUP BY 1, 2 ORDER BY total DESC`)
	require.NoError(t, err)
	assert.Equal(t, "Region | region.1 | total\nSouth | s | 20\nNorth | n | 15", out)
}

func TestRunSQLRejectsWrites(t *testing.T) {
	k := openKit(t, 0)
	for _, q := range []string{
		"DELETE FROM data",
		"SELECT 1; DROP TABLE data",
		"",
		"PRAGMA table_info(data)",
	} {
		_, err := k.Query(context.Background(), q)
		assert.Error(t, err, q)
	}
	// the database itself refuses writes hidden in a CTE
	_, err := k.Query(context.Background(), "WITH x AS (SELECT 1) INSERT INTO data(region) SELECT * FROM x")
	assert.Error(t, err)

	out, err := k.Query(context.Background(), "SELECT COUNT(*) FROM data")
	require.NoError(t, err)
	assert.Contains(t, out, "5")
}

func TestDescribeAndCounts(t *testing.T) {
	k := openKit(t, 0)
	out, err := k.Execute(context.Background(), call(DescribeColumn, `{"column":"amount"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "count: 4")
	assert.Contains(t, out, "missing: 1")
	assert.Contains(t, out, "sum: 39.75")

	out, err = k.Execute(context.Background(), call(DescribeColumn, `{"column":"Region"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "top: North")
	assert.Contains(t, out, "freq: 3")

	out, err = k.Execute(context.Background(), call(ValueCounts, `{"column":"product","limit":1}`))
	require.NoError(t, err)
	assert.Equal(t, "A: 2\n... 2 more distinct values", out)

	_, err = k.Execute(context.Background(), call(ValueCounts, `{"column":"nope"}`))
	assert.ErrorContains(t, err, "not found")
}

func TestExecuteUnknownToolAndBadArgs(t *testing.T) {
	k := openKit(t, 0)
	_, err := k.Execute(context.Background(), call("drop_table", `{}`))
	assert.Error(t, err)
	_, err = k.Execute(context.Background(), call(RunSQL, `{"query":`))
	assert.Error(t, err)
	assert.Len(t, k.Tools(), 3)
}
