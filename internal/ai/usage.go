package ai

import (
	"context"
	"sync"

	"github.com/KaramelBytes/finai-cli/internal/utils"
)

// Meter accumulates token usage across calls made through a metered runtime.
type Meter struct {
	mu               sync.Mutex
	calls            int
	promptTokens     int
	completionTokens int
	estimated        bool
}

// MeterSnapshot is a point-in-time copy of a Meter.
type MeterSnapshot struct {
	Calls            int  `json:"calls"`
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	Estimated        bool `json:"estimated,omitempty"`
}

// Snapshot returns the current totals.
func (m *Meter) Snapshot() MeterSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MeterSnapshot{Calls: m.calls, PromptTokens: m.promptTokens, CompletionTokens: m.completionTokens, Estimated: m.estimated}
}

// CostUSD prices the totals against the model catalog.
func (s MeterSnapshot) CostUSD(model string) (float64, bool) {
	return EstimateCostUSD(model, s.PromptTokens, s.CompletionTokens)
}

func (m *Meter) record(req GenerateRequest, resp *GenerateResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		m.promptTokens += resp.Usage.PromptTokens
		m.completionTokens += resp.Usage.CompletionTokens
		return
	}
	// Provider did not report usage; fall back to the character heuristic.
	m.estimated = true
	for _, msg := range req.Messages {
		m.promptTokens += utils.CountTokens(msg.Content)
	}
	for _, ch := range resp.Choices {
		m.completionTokens += utils.CountTokens(ch.Message.Content)
	}
}

type meteredRuntime struct {
	next  Runtime
	meter *Meter
}

// Metered wraps rt so every successful call is recorded in m.
func Metered(rt Runtime, m *Meter) Runtime {
	return &meteredRuntime{next: rt, meter: m}
}

func (r *meteredRuntime) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	resp, err := r.next.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	r.meter.record(req, resp)
	return resp, nil
}
