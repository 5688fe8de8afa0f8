// Package report turns a dataset into an HTML analytics report: it generates
// exploratory questions, answers them with a tool-using agent, draws charts,
// writes an executive summary and assembles everything into one document.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/finai-cli/internal/agent"
	"github.com/KaramelBytes/finai-cli/internal/ai"
	"github.com/KaramelBytes/finai-cli/internal/analysis"
	"github.com/KaramelBytes/finai-cli/internal/dataset"
	"github.com/KaramelBytes/finai-cli/internal/datatools"
	"github.com/KaramelBytes/finai-cli/internal/plot"
	"github.com/KaramelBytes/finai-cli/internal/prompts"
	"github.com/KaramelBytes/finai-cli/internal/utils"
)

// Defaults for Options.
const (
	DefaultMinQuestions    = 2
	DefaultMaxQuestions    = 3
	DefaultRowsPerQuestion = 50
	DefaultQAAttempts      = 2
	DefaultPlotAttempts    = 3
	DefaultMinPlots        = 2
)

// maxTranscriptTokens caps the Q&A transcript sent with the summary prompt.
const maxTranscriptTokens = 12000

// Options tunes one pipeline run.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64

	MinQuestions    int
	MaxQuestions    int
	RowsPerQuestion int

	// QAAttempts is the number of tries per question, the first included.
	QAAttempts   int
	PlotAttempts int
	MinPlots     int
	PlotTools    []string

	MaxIterations int
	SQLMaxRows    int
	// LLMTimeout bounds each model call; zero means no bound.
	LLMTimeout time.Duration
}

// DefaultOptions returns the stock pipeline settings for model.
func DefaultOptions(model string) Options {
	return Options{
		Model:           model,
		MinQuestions:    DefaultMinQuestions,
		MaxQuestions:    DefaultMaxQuestions,
		RowsPerQuestion: DefaultRowsPerQuestion,
		QAAttempts:      DefaultQAAttempts,
		PlotAttempts:    DefaultPlotAttempts,
		MinPlots:        DefaultMinPlots,
		PlotTools:       append([]string(nil), plot.DefaultEnabled...),
		MaxIterations:   agent.DefaultMaxIterations,
		SQLMaxRows:      datatools.DefaultMaxRows,
	}
}

func (o *Options) normalize() {
	d := DefaultOptions(o.Model)
	if o.MinQuestions <= 0 {
		o.MinQuestions = d.MinQuestions
	}
	if o.MaxQuestions < o.MinQuestions {
		o.MaxQuestions = o.MinQuestions
	}
	if o.RowsPerQuestion <= 0 {
		o.RowsPerQuestion = d.RowsPerQuestion
	}
	if o.QAAttempts <= 0 {
		o.QAAttempts = d.QAAttempts
	}
	if o.PlotAttempts <= 0 {
		o.PlotAttempts = d.PlotAttempts
	}
	if o.MinPlots <= 0 {
		o.MinPlots = d.MinPlots
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
}

// Metadata describes a finished report.
type Metadata struct {
	ID               string           `json:"id,omitempty"`
	Dataset          string           `json:"dataset"`
	Model            string           `json:"model"`
	Rows             int              `json:"rows"`
	Columns          int              `json:"columns"`
	Questions        []string         `json:"questions"`
	QuestionsAsked   int              `json:"questions_asked"`
	QuestionsSkipped int              `json:"questions_skipped"`
	Plots            int              `json:"plots"`
	Usage            ai.MeterSnapshot `json:"usage"`
	CostUSD          *float64         `json:"cost_usd,omitempty"`
	Warnings         []string         `json:"warnings,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	DurationMS       int64            `json:"duration_ms"`
}

// Report is the pipeline output.
type Report struct {
	HTML     string    `json:"html"`
	Summary  string    `json:"summary"`
	Sections []Section `json:"sections"`
	Meta     Metadata  `json:"meta"`
}

// Generator runs the report pipeline against one runtime.
type Generator struct {
	rt      ai.Runtime
	prompts *prompts.Set
	opt     Options
	log     *zap.Logger
}

// New builds a Generator. A nil prompt set uses the embedded defaults.
func New(rt ai.Runtime, ps *prompts.Set, opt Options, log *zap.Logger) *Generator {
	if ps == nil {
		ps = prompts.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	opt.normalize()
	return &Generator{rt: rt, prompts: ps, opt: opt, log: log}
}

// input holds the dataset views shared by every prompt of one run.
type input struct {
	table    *dataset.Table
	summary  *analysis.Summary
	head     string
	describe string
	dtypes   string
}

func newInput(t *dataset.Table) *input {
	return &input{
		table:    t,
		summary:  analysis.Summarize(analysis.Profile(t, analysis.DefaultOptions())),
		head:     t.Head(5),
		describe: t.DescribeText(),
		dtypes:   t.Dtypes(),
	}
}

func (g *Generator) runtime(m *ai.Meter) ai.Runtime {
	return ai.Metered(ai.WithTimeout(g.rt, g.opt.LLMTimeout), m)
}

func (g *Generator) agentConfig() agent.Config {
	return agent.Config{
		Model:         g.opt.Model,
		MaxIterations: g.opt.MaxIterations,
		MaxTokens:     g.opt.MaxTokens,
		Temperature:   g.opt.Temperature,
	}
}

// Generate runs the whole pipeline for t.
func (g *Generator) Generate(ctx context.Context, t *dataset.Table) (*Report, error) {
	return g.generate(ctx, t, plot.NewCollector())
}

func (g *Generator) generate(ctx context.Context, t *dataset.Table, collector *plot.Collector) (*Report, error) {
	if t == nil || t.Rows == 0 {
		return nil, errors.New("dataset is empty")
	}
	defer collector.Reset()
	start := time.Now()
	meter := &ai.Meter{}
	rt := g.runtime(meter)
	log := g.log.With(zap.String("dataset", t.Name), zap.String("model", g.opt.Model))
	in := newInput(t)

	primary, err := g.prompts.PrimaryQuestions()
	if err != nil {
		return nil, err
	}
	k := ResolveNumQuestions(t.Rows, g.opt.RowsPerQuestion, g.opt.MinQuestions, g.opt.MaxQuestions)
	dynamic, err := g.generateQuestions(ctx, rt, in, k)
	if err != nil {
		return nil, err
	}

	tools, err := datatools.Open(ctx, t, g.opt.SQLMaxRows, log)
	if err != nil {
		return nil, err
	}
	defer tools.Close()
	qa := agent.New(rt, tools, g.agentConfig(), log)

	secondary, skippedDyn, err := g.answerQuestions(ctx, qa, in, SecondaryHeading, dynamic)
	if err != nil {
		return nil, err
	}
	primarySec, skippedPri, err := g.answerQuestions(ctx, qa, in, PrimaryHeading, primary)
	if err != nil {
		return nil, err
	}
	sections := []Section{primarySec, secondary}
	transcript := Transcript(sections...)

	if err := g.drawPlots(ctx, rt, in, collector, log); err != nil {
		return nil, err
	}

	summary, err := g.executiveSummary(ctx, rt, in, transcript)
	if err != nil {
		return nil, err
	}

	var warnings []string
	first, okFirst := collector.Pop()
	second, okSecond := collector.Pop()
	var p1, p2 *plot.Plot
	if okFirst {
		p1 = &first
	}
	if okSecond {
		p2 = &second
	}
	plots := 0
	if p1 != nil {
		plots++
	}
	if p2 != nil {
		plots++
	}
	if plots < g.opt.MinPlots {
		msg := fmt.Sprintf("only %d of %d charts were generated", plots, g.opt.MinPlots)
		warnings = append(warnings, msg)
		log.Warn("report has fewer charts than expected", zap.Int("plots", plots), zap.Int("want", g.opt.MinPlots))
	}
	html, err := buildDocument(summary, p1, p2, sections).Render()
	if err != nil {
		return nil, err
	}

	usage := meter.Snapshot()
	meta := Metadata{
		Dataset:          t.Name,
		Model:            g.opt.Model,
		Rows:             t.Rows,
		Columns:          len(t.Columns),
		Questions:        append(append([]string(nil), primary...), dynamic...),
		QuestionsAsked:   len(primary) + len(dynamic),
		QuestionsSkipped: skippedDyn + skippedPri,
		Plots:            plots,
		Usage:            usage,
		Warnings:         append(warnings, t.Warnings...),
		CreatedAt:        start.UTC(),
		DurationMS:       time.Since(start).Milliseconds(),
	}
	if cost, ok := usage.CostUSD(g.opt.Model); ok {
		meta.CostUSD = &cost
	}
	log.Info("report generated",
		zap.Int("questions", meta.QuestionsAsked),
		zap.Int("skipped", meta.QuestionsSkipped),
		zap.Int("plots", plots),
		zap.Int("calls", usage.Calls),
		zap.Int64("duration_ms", meta.DurationMS))
	return &Report{HTML: html, Summary: summary, Sections: sections, Meta: meta}, nil
}

// drawPlots runs the plotting agent until the collector holds MinPlots
// charts or the attempts run out. Agent failures are logged only.
func (g *Generator) drawPlots(ctx context.Context, rt ai.Runtime, in *input, c *plot.Collector, log *zap.Logger) error {
	kit, err := plot.NewToolkit(in.table, c, g.opt.PlotTools, log)
	if err != nil {
		return err
	}
	system, err := g.prompts.Render(prompts.PlottingSystem, nil)
	if err != nil {
		return err
	}
	user, err := g.prompts.Render(prompts.PlottingContext, prompts.ContextData{
		Head:     in.head,
		Describe: in.describe,
		Dtypes:   in.dtypes,
	})
	if err != nil {
		return err
	}
	plotter := agent.New(rt, kit, g.agentConfig(), log)
	for attempt := 1; attempt <= g.opt.PlotAttempts && c.Len() < g.opt.MinPlots; attempt++ {
		if _, err := plotter.Run(ctx, system, user); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("plotting attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		log.Debug("plotting attempt finished", zap.Int("attempt", attempt), zap.Int("plots", c.Len()))
	}
	return nil
}

func (g *Generator) executiveSummary(ctx context.Context, rt ai.Runtime, in *input, transcript string) (string, error) {
	system, err := g.prompts.Render(prompts.ExecutiveSystem, nil)
	if err != nil {
		return "", err
	}
	user, err := g.prompts.Render(prompts.ExecutiveUser, prompts.ExecutiveData{
		Head:    in.head,
		Summary: in.summary.String(),
		Report:  utils.TruncateToTokenLimit(transcript, maxTranscriptTokens),
	})
	if err != nil {
		return "", err
	}
	resp, err := rt.Generate(ctx, ai.GenerateRequest{
		Model: g.opt.Model,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: system},
			{Role: ai.RoleUser, Content: user},
		},
		MaxTokens:   g.opt.MaxTokens,
		Temperature: g.opt.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("executive summary: %w", err)
	}
	msg, err := resp.Message()
	if err != nil {
		return "", fmt.Errorf("executive summary: %w", err)
	}
	summary := strings.TrimSpace(msg.Content)
	if summary == "" {
		return "", errors.New("executive summary: empty reply")
	}
	return summary, nil
}

// Ask answers one free-form question about t and returns HTML.
func (g *Generator) Ask(ctx context.Context, t *dataset.Table, query string) (string, error) {
	answer, err := g.Chat(ctx, t, query)
	if err != nil {
		return "", err
	}
	return MarkdownToHTML(answer)
}

// Chat answers query against t and returns the agent's Markdown reply.
func (g *Generator) Chat(ctx context.Context, t *dataset.Table, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("query is empty")
	}
	if t == nil || t.Rows == 0 {
		return "", errors.New("dataset is empty")
	}
	system, err := g.prompts.Render(prompts.QASystem, nil)
	if err != nil {
		return "", err
	}
	user, err := g.prompts.Render(prompts.Chatbot, prompts.ChatData{
		Columns: strings.Join(t.ColumnNames(), ", "),
		Query:   query,
	})
	if err != nil {
		return "", err
	}
	tools, err := datatools.Open(ctx, t, g.opt.SQLMaxRows, g.log)
	if err != nil {
		return "", err
	}
	defer tools.Close()
	res, err := agent.New(ai.WithTimeout(g.rt, g.opt.LLMTimeout), tools, g.agentConfig(), g.log).Run(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	return res.Answer, nil
}
