package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetCatalogByProvider(t *testing.T) {
	m, ok := PresetCatalog("openrouter")
	require.True(t, ok)
	assert.Contains(t, m, "openai/gpt-4o-mini")
	assert.Contains(t, m, "deepseek/deepseek-r1:free")
	assert.NotContains(t, m, "llama3:latest")

	g, ok := PresetCatalog("google")
	require.True(t, ok)
	assert.Contains(t, g, "gemini-2.0-flash")
	assert.Contains(t, g, "google/gemini-1.5-flash")

	o, ok := PresetCatalog("local")
	require.True(t, ok)
	assert.Contains(t, o, "llama3:latest")
	assert.NotContains(t, o, "deepseek/deepseek-r1:free")

	_, ok = PresetCatalog("nope")
	assert.False(t, ok)
}

func TestDefaultModelFor(t *testing.T) {
	assert.Equal(t, "openai/gpt-4o", DefaultModelFor("openrouter"))
	assert.Equal(t, "gemini-2.0-flash", DefaultModelFor("google"))
	assert.Equal(t, "llama3.1:8b-instruct", DefaultModelFor("ollama"))
}

func TestEstimateCostUSD(t *testing.T) {
	cost, ok := EstimateCostUSD("openai/gpt-4o", 2000, 1000)
	require.True(t, ok)
	assert.InDelta(t, 0.025, cost, 1e-9)
	_, ok = EstimateCostUSD("unknown/model", 1, 1)
	assert.False(t, ok)
}

func TestGetRuntimeProviders(t *testing.T) {
	for _, name := range []string{"openrouter", "openai", "ollama", "gemini", "google", "local"} {
		rt, ok := GetRuntime(name, RuntimeConfig{APIKey: "k"})
		require.True(t, ok, name)
		require.NotNil(t, rt, name)
	}
	_, ok := GetRuntime("anthropic", RuntimeConfig{})
	assert.False(t, ok)
}
