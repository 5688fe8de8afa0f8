package ai

import (
	"context"
	"errors"
	"time"
)

// Runtime is implemented by every chat backend: OpenAI-compatible HTTP
// endpoints (OpenRouter, OpenAI), a local Ollama, and Gemini.
// A response either carries text or a set of tool calls to execute.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used across the CLI for selection.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderGoogle     = "google"
	ProviderOllama     = "ollama"
	ProviderLocal      = "local"
)

// NormalizeProvider maps aliases onto registered provider names.
func NormalizeProvider(name string) string {
	switch name {
	case ProviderGoogle:
		return ProviderGemini
	case ProviderLocal:
		return ProviderOllama
	default:
		return name
	}
}

type timeoutRuntime struct {
	next Runtime
	d    time.Duration
}

// WithTimeout bounds every Generate call on rt by d. A zero d returns rt.
// Calls cut short by d fail with *TimeoutError.
func WithTimeout(rt Runtime, d time.Duration) Runtime {
	if d <= 0 {
		return rt
	}
	return &timeoutRuntime{next: rt, d: d}
}

func (r *timeoutRuntime) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.d)
	defer cancel()
	resp, err := r.next.Generate(callCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return nil, &TimeoutError{Limit: r.d, Err: err}
	}
	return resp, err
}
