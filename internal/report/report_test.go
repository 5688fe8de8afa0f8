package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/finai-cli/internal/ai"
	"github.com/KaramelBytes/finai-cli/internal/ai/aitest"
	"github.com/KaramelBytes/finai-cli/internal/dataset"
	"github.com/KaramelBytes/finai-cli/internal/datatools"
	"github.com/KaramelBytes/finai-cli/internal/plot"
)

const execSummary = "## Overview\nFour regions over sixty days.\n\n## Key figures\n| region | sales |\n|---|---|\n| North | 100 |\n\n## Insights\n- North leads.\n\n## Recommendations\n- Keep going."

func salesTable(t *testing.T) *dataset.Table {
	t.Helper()
	regions := []string{"North", "South", "East", "West"}
	var b strings.Builder
	b.WriteString("date,region,sales,units\n")
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "%s,%s,%d,%d\n", day.AddDate(0, 0, i).Format("2006-01-02"), regions[i%4], 100+(i*37)%250, 1+i%9)
	}
	tbl, err := dataset.ReadCSV("sales.csv", strings.NewReader(b.String()), dataset.Options{})
	require.NoError(t, err)
	require.Equal(t, 60, tbl.Rows)
	return tbl
}

func requestKind(req ai.GenerateRequest) string {
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
	return "executive"
}

func lastMessage(req ai.GenerateRequest) ai.Message {
	return req.Messages[len(req.Messages)-1]
}

// fakeModel answers every pipeline prompt; the hooks change one behavior.
type fakeModel struct {
	mu        sync.Mutex
	questions string
	failQA    func(user string) bool
	noPlots   bool
	execErr   error
	calls     map[string]int
	qaPrompts []string
}

func (f *fakeModel) runtime() ai.Runtime {
	return aitest.Func(func(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.calls == nil {
			f.calls = map[string]int{}
		}
		kind := requestKind(req)
		f.calls[kind]++
		last := lastMessage(req)
		switch kind {
		case "questions":
			if f.questions != "" {
				return aitest.Text(f.questions), nil
			}
			return aitest.Text(`{"questions": ["Which region sells most?", "How do units relate to sales?"]}`), nil
		case "qa":
			if last.Role == ai.RoleTool {
				return aitest.Text("The result is:\n\n" + last.Content), nil
			}
			f.qaPrompts = append(f.qaPrompts, last.Content)
			if f.failQA != nil && f.failQA(last.Content) {
				return nil, errors.New("upstream unavailable")
			}
			return aitest.ToolCalls(ai.ToolCall{ID: "c1", Type: "function", Function: ai.FunctionCall{
				Name: datatools.RunSQL, Arguments: `{"query":"SELECT COUNT(*) AS n FROM data"}`,
			}}), nil
		case "plot":
			if f.noPlots || last.Role == ai.RoleTool {
				return aitest.Text("done"), nil
			}
			return aitest.ToolCalls(
				ai.ToolCall{ID: "p1", Type: "function", Function: ai.FunctionCall{
					Name: plot.BarPlot, Arguments: `{"title":"Sales by region","description":"Mean sales per region.","x_col":"region","y_col":"sales"}`,
				}},
				ai.ToolCall{ID: "p2", Type: "function", Function: ai.FunctionCall{
					Name: plot.HistogramPlot, Arguments: `{"title":"Units","description":"Distribution of units.","col":"units"}`,
				}},
			), nil
		default:
			if f.execErr != nil {
				return nil, f.execErr
			}
			return aitest.Text(execSummary), nil
		}
	})
}

func TestGenerateEndToEnd(t *testing.T) {
	fm := &fakeModel{}
	g := New(fm.runtime(), nil, DefaultOptions("openai/gpt-4o"), nil)
	c := plot.NewCollector()
	rep, err := g.generate(context.Background(), salesTable(t), c)
	require.NoError(t, err)

	assert.Contains(t, rep.HTML, `<h2 class="overview">`)
	assert.Contains(t, rep.HTML, `<h2 class="insights">`)
	assert.Contains(t, rep.HTML, `src="data:image/png;base64,`)
	assert.Contains(t, rep.HTML, "<h2>Primary questions</h2>")
	assert.Contains(t, rep.HTML, "Question 1: Which region sells most?")
	assert.Contains(t, rep.HTML, "60")
	assert.Equal(t, 0, c.Len())

	assert.Equal(t, 2, rep.Meta.Plots)
	assert.Equal(t, 60, rep.Meta.Rows)
	assert.Equal(t, 4, rep.Meta.Columns)
	assert.Equal(t, 5, rep.Meta.QuestionsAsked)
	assert.Zero(t, rep.Meta.QuestionsSkipped)
	assert.Empty(t, rep.Meta.Warnings)
	assert.True(t, rep.Meta.Usage.Estimated)
	assert.Equal(t, 1, fm.calls["questions"])
	assert.Equal(t, 10, fm.calls["qa"])
	assert.Equal(t, 2, fm.calls["plot"])
	assert.Equal(t, 1, fm.calls["executive"])
	require.NotNil(t, rep.Meta.CostUSD)

	// exploratory questions are answered before the primary list
	require.NotEmpty(t, fm.qaPrompts)
	assert.Contains(t, fm.qaPrompts[0], "Which region sells most?")
	require.Len(t, rep.Sections, 2)
	assert.Equal(t, PrimaryHeading, rep.Sections[0].Heading)
	assert.Less(t, strings.Index(rep.HTML, PrimaryHeading), strings.Index(rep.HTML, SecondaryHeading))
}

func TestGenerateSkipsAndRenumbers(t *testing.T) {
	fm := &fakeModel{
		questions: `{"questions": ["Q-a", "Q-b", "Q-c"]}`,
		failQA:    func(user string) bool { return strings.Contains(user, "Question: Q-b") },
	}
	opt := DefaultOptions("m")
	opt.MinQuestions = 3
	rep, err := New(fm.runtime(), nil, opt, nil).Generate(context.Background(), salesTable(t))
	require.NoError(t, err)

	sec := rep.Sections[1]
	require.Equal(t, SecondaryHeading, sec.Heading)
	require.Len(t, sec.Answers, 2)
	assert.Equal(t, Answer{Number: 1, Question: "Q-a", Answer: sec.Answers[0].Answer}, sec.Answers[0])
	assert.Equal(t, 2, sec.Answers[1].Number)
	assert.Equal(t, "Q-c", sec.Answers[1].Question)
	assert.Equal(t, 1, rep.Meta.QuestionsSkipped)
	assert.NotContains(t, rep.HTML, "Q-b")

	failed := 0
	for _, p := range fm.qaPrompts {
		if strings.Contains(p, "Question: Q-b") {
			failed++
		}
	}
	assert.Equal(t, 2, failed, "one retry")
}

func TestGenerateWithoutPlots(t *testing.T) {
	fm := &fakeModel{noPlots: true}
	c := plot.NewCollector()
	rep, err := New(fm.runtime(), nil, DefaultOptions("m"), nil).generate(context.Background(), salesTable(t), c)
	require.NoError(t, err)
	assert.NotContains(t, rep.HTML, "plot-container")
	assert.Zero(t, rep.Meta.Plots)
	assert.Contains(t, rep.Meta.Warnings, "only 0 of 2 charts were generated")
	assert.Equal(t, 3, fm.calls["plot"])
	assert.Zero(t, c.Len())
}

func TestGenerateFatalErrors(t *testing.T) {
	tbl := salesTable(t)

	_, err := New((&fakeModel{questions: "no json here"}).runtime(), nil, DefaultOptions("m"), nil).Generate(context.Background(), tbl)
	assert.ErrorIs(t, err, ErrMalformedQuestions)

	boom := errors.New("summary backend down")
	_, err = New((&fakeModel{execErr: boom}).runtime(), nil, DefaultOptions("m"), nil).Generate(context.Background(), tbl)
	assert.ErrorIs(t, err, boom)

	_, err = New((&fakeModel{}).runtime(), nil, DefaultOptions("m"), nil).Generate(context.Background(), &dataset.Table{})
	assert.Error(t, err)
}

func TestGenerateUnknownPlotTool(t *testing.T) {
	opt := DefaultOptions("m")
	opt.PlotTools = []string{"pie_chart"}
	_, err := New((&fakeModel{}).runtime(), nil, opt, nil).Generate(context.Background(), salesTable(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pie_chart")
}

func TestAsk(t *testing.T) {
	rt := aitest.NewScripted(
		aitest.Call("c1", datatools.RunSQL, `{"query":"SELECT COUNT(*) AS n FROM data"}`),
		aitest.Reply("There are **60** rows."),
	)
	g := New(rt, nil, DefaultOptions("m"), nil)
	out, err := g.Ask(context.Background(), salesTable(t), "How many rows?")
	require.NoError(t, err)
	assert.Contains(t, out, "<strong>60</strong>")

	require.Len(t, rt.Requests, 2)
	assert.Contains(t, lastMessage(rt.Requests[0]).Content, "Question: How many rows?")
	assert.Contains(t, lastMessage(rt.Requests[0]).Content, "date, region, sales, units")
	tool := lastMessage(rt.Requests[1])
	assert.Equal(t, ai.RoleTool, tool.Role)
	assert.Equal(t, "n\n60", tool.Content)

	_, err = g.Ask(context.Background(), salesTable(t), "  ")
	assert.Error(t, err)
}
