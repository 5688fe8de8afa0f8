package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRuntime struct{ resp *GenerateResponse }

func (s stubRuntime) Generate(context.Context, GenerateRequest) (*GenerateResponse, error) {
	return s.resp, nil
}

func TestMeteredRecordsReportedUsage(t *testing.T) {
	var m Meter
	rt := Metered(stubRuntime{resp: &GenerateResponse{
		Choices: []Choice{{Message: Message{Role: RoleAssistant, Content: "ok"}}},
		Usage:   Usage{PromptTokens: 1000, CompletionTokens: 500},
	}}, &m)
	for i := 0; i < 2; i++ {
		_, err := rt.Generate(context.Background(), GenerateRequest{Model: "openai/gpt-4o"})
		require.NoError(t, err)
	}
	snap := m.Snapshot()
	assert.Equal(t, 2, snap.Calls)
	assert.Equal(t, 2000, snap.PromptTokens)
	assert.Equal(t, 1000, snap.CompletionTokens)
	assert.False(t, snap.Estimated)
	cost, ok := snap.CostUSD("openai/gpt-4o")
	require.True(t, ok)
	assert.InDelta(t, 0.025, cost, 1e-9)
}

func TestMeteredEstimatesMissingUsage(t *testing.T) {
	var m Meter
	rt := Metered(stubRuntime{resp: &GenerateResponse{Choices: []Choice{{Message: Message{Content: "a fairly short answer"}}}}}, &m)
	_, err := rt.Generate(context.Background(), GenerateRequest{Messages: []Message{{Role: RoleUser, Content: "what is the mean of sales?"}}})
	require.NoError(t, err)
	snap := m.Snapshot()
	assert.True(t, snap.Estimated)
	assert.Positive(t, snap.PromptTokens)
	assert.Positive(t, snap.CompletionTokens)
}

func TestWithTimeoutBoundsCalls(t *testing.T) {
	var deadline bool
	rt := WithTimeout(runtimeFunc(func(ctx context.Context, _ GenerateRequest) (*GenerateResponse, error) {
		_, deadline = ctx.Deadline()
		return &GenerateResponse{}, nil
	}), time.Second)
	_, err := rt.Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)
	assert.True(t, deadline)

	base := stubRuntime{}
	assert.Equal(t, Runtime(base), WithTimeout(base, 0))
}

func TestWithTimeoutReportsExpiredCall(t *testing.T) {
	slow := runtimeFunc(func(ctx context.Context, _ GenerateRequest) (*GenerateResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := WithTimeout(slow, 20*time.Millisecond).Generate(context.Background(), GenerateRequest{})
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 20*time.Millisecond, te.Limit)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = WithTimeout(slow, time.Minute).Generate(ctx, GenerateRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.As(err, &te), "caller cancellation is not a timeout")
}

type runtimeFunc func(context.Context, GenerateRequest) (*GenerateResponse, error)

func (f runtimeFunc) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	return f(ctx, req)
}
