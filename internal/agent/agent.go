// Package agent runs the multi-turn tool-calling loop shared by the
// question-answering, plotting and chat flows.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/finai-cli/internal/ai"
)

// DefaultMaxIterations bounds the loop when Config leaves it unset.
const DefaultMaxIterations = 8

// ErrMaxIterations is returned when the model keeps calling tools past the limit.
var ErrMaxIterations = errors.New("agent: iteration limit reached without a final answer")

// ToolExecutor advertises tools to the model and runs the calls it makes.
// Execute returns tool output as text; an error is reported back to the model.
type ToolExecutor interface {
	Tools() []ai.Tool
	Execute(ctx context.Context, call ai.ToolCall) (string, error)
}

// Config selects the model and loop bounds.
type Config struct {
	Model         string
	MaxIterations int
	MaxTokens     int
	Temperature   float64
}

// Result is the agent's explicit final text plus loop statistics.
type Result struct {
	Answer     string
	Iterations int
	ToolCalls  int
}

// Agent pairs a runtime with a tool executor.
type Agent struct {
	rt    ai.Runtime
	tools ToolExecutor
	cfg   Config
	log   *zap.Logger
}

// New builds an agent. tools may be nil for a plain completion.
func New(rt ai.Runtime, tools ToolExecutor, cfg Config, log *zap.Logger) *Agent {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{rt: rt, tools: tools, cfg: cfg, log: log}
}

// Run sends system and user prompts and iterates until the model answers
// without tool calls.
func (a *Agent) Run(ctx context.Context, system, user string) (*Result, error) {
	messages := make([]ai.Message, 0, 8)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: system})
	}
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: user})

	var tools []ai.Tool
	if a.tools != nil {
		tools = a.tools.Tools()
	}
	res := &Result{}
	for iter := 1; iter <= a.cfg.MaxIterations; iter++ {
		res.Iterations = iter
		resp, err := a.rt.Generate(ctx, ai.GenerateRequest{
			Model:       a.cfg.Model,
			Messages:    messages,
			MaxTokens:   a.cfg.MaxTokens,
			Temperature: a.cfg.Temperature,
			Tools:       tools,
		})
		if err != nil {
			return nil, fmt.Errorf("agent iteration %d: %w", iter, err)
		}
		msg, err := resp.Message()
		if err != nil {
			return nil, fmt.Errorf("agent iteration %d: %w", iter, err)
		}
		if len(msg.ToolCalls) == 0 {
			res.Answer = strings.TrimSpace(msg.Content)
			return res, nil
		}
		if a.tools == nil {
			return nil, fmt.Errorf("agent iteration %d: model requested tools but none are configured", iter)
		}

		messages = append(messages, ai.Message{Role: ai.RoleAssistant, Content: msg.Content, ToolCalls: msg.ToolCalls})
		for _, call := range msg.ToolCalls {
			res.ToolCalls++
			out, err := a.tools.Execute(ctx, call)
			if err != nil {
				a.log.Debug("tool call failed", zap.String("tool", call.Function.Name), zap.Error(err))
				out = "Error executing tool: " + err.Error()
			} else {
				a.log.Debug("tool call", zap.String("tool", call.Function.Name), zap.Int("output_len", len(out)))
			}
			messages = append(messages, ai.Message{
				Role:       ai.RoleTool,
				Content:    out,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
			})
		}
	}
	return nil, ErrMaxIterations
}
