// Package datatools exposes a dataset to the question-answering agent:
// read-only SQL over an in-memory SQLite copy, column statistics and
// value counts.
package datatools

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/finai-cli/internal/ai"
	"github.com/KaramelBytes/finai-cli/internal/dataset"
)

// TableName is the SQL name the dataset is loaded under.
const TableName = "data"

// Tool names.
const (
	RunSQL         = "run_sql"
	DescribeColumn = "describe_column"
	ValueCounts    = "value_counts"
)

// DefaultMaxRows caps the rows a query returns to the model.
const DefaultMaxRows = 50

var (
	runSQLSchema = json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"A single read-only SELECT statement against the table \"data\"."}},"required":["query"]}`)
	columnSchema = json.RawMessage(`{"type":"object","properties":{"column":{"type":"string","description":"Exact column name."}},"required":["column"]}`)
	countsSchema = json.RawMessage(`{"type":"object","properties":{"column":{"type":"string","description":"Exact column name."},"limit":{"type":"integer","description":"Maximum number of values to return (default 10)."}},"required":["column"]}`)
)

// Toolkit implements agent.ToolExecutor for one dataset.
type Toolkit struct {
	table   *dataset.Table
	db      *sql.DB
	maxRows int
	log     *zap.Logger
}

// Open copies t into a private in-memory SQLite database.
func Open(ctx context.Context, t *dataset.Table, maxRows int, log *zap.Logger) (*Toolkit, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// each connection to :memory: is its own database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := load(ctx, db, t); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("lock database: %w", err)
	}
	log.Debug("dataset loaded into sqlite", zap.Int("rows", t.Rows), zap.Int("columns", len(t.Columns)))
	return &Toolkit{table: t, db: db, maxRows: maxRows, log: log}, nil
}

// Close releases the database.
func (k *Toolkit) Close() error { return k.db.Close() }

func quoteIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

func load(ctx context.Context, db *sql.DB, t *dataset.Table) error {
	if len(t.Columns) == 0 {
		return errors.New("dataset has no columns")
	}
	defs := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		typ := "TEXT"
		if c.IsNumeric() {
			typ = "REAL"
		}
		defs[i] = quoteIdent(c.Name) + " " + typ
		marks[i] = "?"
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", TableName, strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", TableName, strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	args := make([]any, len(t.Columns))
	for r := 0; r < t.Rows; r++ {
		for i, c := range t.Columns {
			switch {
			case c.IsMissing(r):
				args[i] = nil
			case c.IsNumeric():
				args[i] = c.Nums[r]
			default:
				args[i] = c.Values[r]
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", r, err)
		}
	}
	return tx.Commit()
}

// Tools implements agent.ToolExecutor.
func (k *Toolkit) Tools() []ai.Tool {
	return []ai.Tool{
		ai.NewFunctionTool(RunSQL, "Run a read-only SQL SELECT against the SQLite table \"data\" and return the result rows.", runSQLSchema),
		ai.NewFunctionTool(DescribeColumn, "Summary statistics for one column (count, missing, mean, quartiles or top values).", columnSchema),
		ai.NewFunctionTool(ValueCounts, "Most frequent values of one column with their counts.", countsSchema),
	}
}

// Execute implements agent.ToolExecutor.
func (k *Toolkit) Execute(ctx context.Context, call ai.ToolCall) (string, error) {
	var args struct {
		Query  string `json:"query"`
		Column string `json:"column"`
		Limit  int    `json:"limit"`
	}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", call.Function.Name, err)
		}
	}
	switch call.Function.Name {
	case RunSQL:
		return k.Query(ctx, args.Query)
	case DescribeColumn:
		return k.Describe(args.Column)
	case ValueCounts:
		return k.Counts(args.Column, args.Limit)
	default:
		return "", fmt.Errorf("unknown tool %q", call.Function.Name)
	}
}

// checkReadOnly accepts a single SELECT or WITH statement.
func checkReadOnly(q string) (string, error) {
	q = strings.TrimSpace(q)
	q = strings.TrimSpace(strings.TrimRight(q, "; \n\t"))
	if q == "" {
		return "", errors.New("query is empty")
	}
	if strings.Contains(q, ";") {
		return "", errors.New("only a single statement is allowed")
	}
	first := strings.ToUpper(strings.Fields(q)[0])
	if first != "SELECT" && first != "WITH" {
		return "", fmt.Errorf("only SELECT queries are allowed, got %s", first)
	}
	return q, nil
}

// Query runs a read-only statement and renders at most maxRows rows.
func (k *Toolkit) Query(ctx context.Context, q string) (string, error) {
	q, err := checkReadOnly(q)
	if err != nil {
		return "", err
	}
	rows, err := k.db.QueryContext(ctx, q)
	if err != nil {
		return "", fmt.Errorf("sql: %w", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("sql: %w", err)
	}
	var b strings.Builder
	b.WriteString(strings.Join(cols, " | "))
	b.WriteString("\n")
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	n, extra := 0, 0
	for rows.Next() {
		if n >= k.maxRows {
			extra++
			continue
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", fmt.Errorf("sql scan: %w", err)
		}
		cells := make([]string, len(vals))
		for i, v := range vals {
			cells[i] = formatCell(v)
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
		n++
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("sql: %w", err)
	}
	if n == 0 {
		b.WriteString("(no rows)\n")
	}
	if extra > 0 {
		fmt.Fprintf(&b, "... %d more rows not shown\n", extra)
	}
	k.log.Debug("sql tool", zap.String("query", q), zap.Int("rows", n+extra))
	return strings.TrimRight(b.String(), "\n"), nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case float64:
		if math.Trunc(x) == x && math.Abs(x) < 1e15 {
			return strconv.FormatFloat(x, 'f', -1, 64)
		}
		return strconv.FormatFloat(x, 'g', 10, 64)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// Describe returns summary statistics for one column.
func (k *Toolkit) Describe(column string) (string, error) {
	c, err := k.table.Lookup(column)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "column: %s\ndtype: %s\ncount: %d\nmissing: %d\n", c.Name, c.Dtype(), c.Count(), c.Missing())
	if c.IsNumeric() {
		nums := c.Numbers()
		s := dataset.Describe(nums)
		if s.Count == 0 {
			return b.String(), nil
		}
		fmt.Fprintf(&b, "mean: %s\nstd: %s\nmin: %s\n25%%: %s\n50%%: %s\n75%%: %s\nmax: %s\nsum: %s",
			dataset.FormatFloat(s.Mean), dataset.FormatFloat(s.Std), dataset.FormatFloat(s.Min),
			dataset.FormatFloat(s.Q1), dataset.FormatFloat(s.Median), dataset.FormatFloat(s.Q3),
			dataset.FormatFloat(s.Max), dataset.FormatFloat(sum(nums)))
		return b.String(), nil
	}
	vc := c.ValueCounts()
	fmt.Fprintf(&b, "unique: %d", len(vc))
	if len(vc) > 0 {
		fmt.Fprintf(&b, "\ntop: %s\nfreq: %d", vc[0].Value, vc[0].Count)
	}
	return b.String(), nil
}

// Counts lists the most frequent values of a column.
func (k *Toolkit) Counts(column string, limit int) (string, error) {
	c, err := k.table.Lookup(column)
	if err != nil {
		return "", err
	}
	if limit <= 0 {
		limit = 10
	}
	vc := c.ValueCounts()
	var b strings.Builder
	for i, v := range vc {
		if i == limit {
			fmt.Fprintf(&b, "... %d more distinct values\n", len(vc)-limit)
			break
		}
		fmt.Fprintf(&b, "%s: %d\n", v.Value, v.Count)
	}
	if missing := c.Missing(); missing > 0 {
		fmt.Fprintf(&b, "(missing): %d\n", missing)
	}
	if b.Len() == 0 {
		return "(no values)", nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func sum(xs []float64) float64 {
	var t float64
	for _, x := range xs {
		t += x
	}
	return t
}
