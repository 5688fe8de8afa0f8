package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/finai-cli/internal/ai"
	"github.com/KaramelBytes/finai-cli/internal/datatools"
	"github.com/KaramelBytes/finai-cli/internal/plot"
	"github.com/KaramelBytes/finai-cli/internal/report"
)

// resetFlags clears values and Changed state left behind by a previous run.
func resetFlags() {
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)
	repOutput, repModel, repProvider, repOllamaHost = "", "", "", ""
	repNoArchive, repJSON, repQuiet, repParallel = false, false, false, 0
	repCSV = csvFlags{}
	askModel, askProvider, askOllamaHost, askHTML, askCSV = "", "", "", false, csvFlags{}
	anaOutputPath, anaJSON, anaTokens, anaGroupBy, anaCSV = "", false, false, nil, csvFlags{}
	listJSON, listLimit, showMeta, showOut = false, 0, false, ""
	cfg = nil
}

// runCmd executes the root command with args and returns its output.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCmd(t, args...)
	require.NoError(t, err, "command %v failed", args)
	return out
}

// isolate points HOME at a temp dir and clears provider env.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"OPENROUTER_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "FINAI_API_KEY", "FINAI_BASE_URL", "FINAI_DEFAULT_PROVIDER"} {
		t.Setenv(k, "")
	}
	return home
}

func writeSalesCSV(t *testing.T, dir, name string) string {
	t.Helper()
	regions := []string{"North", "South", "East", "West"}
	var b strings.Builder
	b.WriteString("region,sales,units\n")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "%s,%d,%d\n", regions[i%4], 100+(i*37)%250, 1+i%9)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

// fakeProvider is an OpenAI-compatible chat endpoint that drives the whole
// pipeline: question generation, SQL answers, two charts and a summary.
type fakeProvider struct {
	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeProvider) kind(req ai.GenerateRequest) string {
	if req.ResponseFormat != nil {
		return "questions"
	}
	for _, tool := range req.Tools {
		if tool.Function.Name == datatools.RunSQL {
			return "qa"
		}
		if _, ok := plot.Lookup(tool.Function.Name); ok {
			return "plot"
		}
	}
	return "text"
}

func (f *fakeProvider) reply(req ai.GenerateRequest) ai.Message {
	last := req.Messages[len(req.Messages)-1]
	call := func(id, name, args string) ai.ToolCall {
		return ai.ToolCall{ID: id, Type: "function", Function: ai.FunctionCall{Name: name, Arguments: args}}
	}
	switch f.kind(req) {
	case "questions":
		return ai.Message{Role: ai.RoleAssistant, Content: `{"questions": ["Which region sells most?", "What is the average order size?"]}`}
	case "qa":
		if last.Role == ai.RoleTool {
			return ai.Message{Role: ai.RoleAssistant, Content: "Rows counted:\n\n" + last.Content}
		}
		return ai.Message{Role: ai.RoleAssistant, ToolCalls: []ai.ToolCall{call("q1", datatools.RunSQL, `{"query":"SELECT COUNT(*) AS n FROM data"}`)}}
	case "plot":
		if last.Role == ai.RoleTool {
			return ai.Message{Role: ai.RoleAssistant, Content: "done"}
		}
		return ai.Message{Role: ai.RoleAssistant, ToolCalls: []ai.ToolCall{
			call("p1", plot.BarPlot, `{"title":"Sales by region","description":"Mean sales per region.","x_col":"region","y_col":"sales"}`),
			call("p2", plot.HistogramPlot, `{"title":"Units","description":"Distribution of units.","col":"units"}`),
		}}
	default:
		return ai.Message{Role: ai.RoleAssistant, Content: "## Overview\nSixty orders.\n\n## Insights\n- North leads."}
	}
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req ai.GenerateRequest
	if r.URL.Path != "/chat/completions" || json.NewDecoder(r.Body).Decode(&req) != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[f.kind(req)]++
	f.mu.Unlock()
	_ = json.NewEncoder(w).Encode(ai.GenerateResponse{
		ID:      "cmpl-1",
		Choices: []ai.Choice{{Message: f.reply(req), FinishReason: "stop"}},
		Usage:   ai.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	})
}

func TestCLI_ReportArchiveListShow(t *testing.T) {
	home := isolate(t)
	fp := &fakeProvider{}
	srv := httptest.NewServer(fp)
	defer srv.Close()
	t.Setenv("FINAI_DEFAULT_PROVIDER", "openai")
	t.Setenv("FINAI_BASE_URL", srv.URL)
	t.Setenv("OPENAI_API_KEY", "test-key")

	csv := writeSalesCSV(t, home, "sales.csv")
	outPath := filepath.Join(home, "out", "sales.html")
	out := mustRun(t, "report", csv, "-o", outPath, "--json")

	var meta report.Metadata
	require.NoError(t, json.Unmarshal([]byte(out), &meta), out)
	assert.NotEmpty(t, meta.ID)
	assert.Equal(t, "sales.csv", meta.Dataset)
	assert.Equal(t, "gpt-4o", meta.Model)
	assert.Equal(t, 60, meta.Rows)
	assert.Equal(t, 2, meta.Plots)
	assert.Equal(t, 5, meta.QuestionsAsked)
	assert.Equal(t, 1, fp.calls["questions"])

	html, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), `<h2 class="overview">`)
	assert.Contains(t, string(html), `class="plot-container"`)

	archived := filepath.Join(home, ".finai", "reports", meta.ID, "report.html")
	assert.FileExists(t, archived)

	listed := mustRun(t, "list")
	assert.Contains(t, listed, meta.ID)
	assert.Contains(t, listed, "sales.csv")

	shown := mustRun(t, "show", meta.ID, "--meta")
	assert.Contains(t, shown, `"dataset": "sales.csv"`)

	_, err = runCmd(t, "show", "00000000-0000-0000-0000-000000000000")
	assert.Error(t, err)
}

func TestCLI_ReportBatchNamesCollisions(t *testing.T) {
	home := isolate(t)
	srv := httptest.NewServer(&fakeProvider{})
	defer srv.Close()
	t.Setenv("FINAI_DEFAULT_PROVIDER", "openai")
	t.Setenv("FINAI_BASE_URL", srv.URL)
	t.Setenv("OPENAI_API_KEY", "test-key")

	writeSalesCSV(t, filepath.Join(home, "d1"), "metrics.csv")
	writeSalesCSV(t, filepath.Join(home, "d2"), "metrics.csv")
	outDir := filepath.Join(home, "out")
	mustRun(t, "report", filepath.Join(home, "d*", "metrics.csv"), "-o", outDir, "--no-archive", "-q", "--parallel", "2")

	assert.FileExists(t, filepath.Join(outDir, "metrics.report.html"))
	assert.FileExists(t, filepath.Join(outDir, "metrics__2.report.html"))
	assert.NoDirExists(t, filepath.Join(home, ".finai", "reports"))
}

func TestCLI_ReportWithoutAPIKey(t *testing.T) {
	home := isolate(t)
	csv := writeSalesCSV(t, home, "sales.csv")
	_, err := runCmd(t, "report", csv, "--no-archive", "-q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key is missing")
}

func TestCLI_ReportNoInputs(t *testing.T) {
	isolate(t)
	_, err := runCmd(t, "report", filepath.Join(t.TempDir(), "*.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no input files matched")
}

func TestCLI_AnalyzeMarkdownJSONAndTokens(t *testing.T) {
	home := isolate(t)
	csv := writeSalesCSV(t, home, "sales.csv")

	md := mustRun(t, "analyze", csv)
	assert.Contains(t, md, "[DATASET SUMMARY]")
	assert.Contains(t, md, "Rows: 60")

	js := mustRun(t, "analyze", csv, "--json")
	var summary map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(js), &summary))
	assert.Contains(t, summary, "region")
	assert.Contains(t, summary, "sales")

	withTokens := mustRun(t, "analyze", csv, "--tokens")
	assert.Contains(t, withTokens, "Estimated prompt tokens per section:")
	assert.Contains(t, withTokens, "describe")

	_, err := runCmd(t, "analyze", csv, "--delimiter", "|")
	assert.Error(t, err)
}

func TestCLI_ConfigSetShow(t *testing.T) {
	home := isolate(t)

	mustRun(t, "config", "set", "default_model", "openai/gpt-4o-mini")
	mustRun(t, "config", "set", "plot_tools", "bar_plot, histogram_plot")
	mustRun(t, "config", "set", "max_concurrent_reports", "4")
	assert.FileExists(t, filepath.Join(home, ".finai", "config.yaml"))

	out := mustRun(t, "config", "show")
	assert.Contains(t, out, "default_model: openai/gpt-4o-mini")
	assert.Contains(t, out, "plot_tools: bar_plot,histogram_plot")
	assert.Contains(t, out, "max_concurrent_reports: 4")

	for _, args := range [][]string{
		{"config", "set", "plot_tools", "pie_chart"},
		{"config", "set", "default_provider", "nowhere"},
		{"config", "set", "min_plots", "0"},
		{"config", "set", "no_such_key", "1"},
	} {
		_, err := runCmd(t, args...)
		assert.Error(t, err, "%v", args)
	}
}

func TestCLI_ListEmptyArchive(t *testing.T) {
	isolate(t)
	out := mustRun(t, "list")
	assert.Contains(t, out, "(no reports)")
}
