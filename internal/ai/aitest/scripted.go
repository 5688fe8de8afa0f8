// Package aitest provides scripted runtimes for tests.
package aitest

import (
	"context"
	"errors"
	"sync"

	"github.com/KaramelBytes/finai-cli/internal/ai"
)

// Step is one scripted reply: either a response or an error.
type Step struct {
	Text      string
	ToolCalls []ai.ToolCall
	Err       error
}

// Reply is a text answer.
func Reply(text string) Step { return Step{Text: text} }

// Fail makes the call return err.
func Fail(err error) Step { return Step{Err: err} }

// Call requests one tool invocation.
func Call(id, name, args string) Step {
	return Step{ToolCalls: []ai.ToolCall{{ID: id, Type: "function", Function: ai.FunctionCall{Name: name, Arguments: args}}}}
}

// ErrExhausted is returned once a Scripted runtime runs out of steps.
var ErrExhausted = errors.New("aitest: script exhausted")

// Scripted replays steps in order and records every request.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	Requests []ai.GenerateRequest
}

// NewScripted returns a runtime that plays steps in order.
func NewScripted(steps ...Step) *Scripted { return &Scripted{steps: steps} }

// Generate implements ai.Runtime.
func (s *Scripted) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := req
	cp.Messages = append([]ai.Message(nil), req.Messages...)
	s.Requests = append(s.Requests, cp)
	if len(s.steps) == 0 {
		return nil, ErrExhausted
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	if st.Err != nil {
		return nil, st.Err
	}
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: ai.RoleAssistant, Content: st.Text, ToolCalls: st.ToolCalls}}}}, nil
}

// Func adapts a function to ai.Runtime for tests that route on the prompt.
type Func func(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error)

// Generate implements ai.Runtime.
func (f Func) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	return f(ctx, req)
}

// Text wraps text as a single-choice response.
func Text(text string) *ai.GenerateResponse {
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: ai.RoleAssistant, Content: text}}}}
}

// ToolCalls wraps calls as a single-choice response.
func ToolCalls(calls ...ai.ToolCall) *ai.GenerateResponse {
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: ai.RoleAssistant, ToolCalls: calls}}}}
}
