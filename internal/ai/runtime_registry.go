package ai

import (
	"sort"
	"time"
)

// RuntimeFactory builds a Runtime from the generic config below.
type RuntimeFactory func(RuntimeConfig) Runtime

// RuntimeConfig carries common knobs used by runtimes.
type RuntimeConfig struct {
	// Common
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// OpenRouter, OpenAI and Gemini
	APIKey string
	// BaseURL overrides the OpenAI-compatible endpoint.
	BaseURL string
	// Ollama
	Host string
}

func (c RuntimeConfig) withDefaults(retryMax int, baseDelay, maxDelay time.Duration) RuntimeConfig {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 60 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = retryMax
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = baseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = maxDelay
	}
	return c
}

var registry = map[string]RuntimeFactory{}

// RegisterRuntime registers a provider name with its factory.
func RegisterRuntime(name string, f RuntimeFactory) { registry[name] = f }

// GetRuntime creates a Runtime for the given provider if registered.
func GetRuntime(name string, cfg RuntimeConfig) (Runtime, bool) {
	if f, ok := registry[NormalizeProvider(name)]; ok {
		return f(cfg), true
	}
	return nil, false
}

// Providers lists registered provider names.
func Providers() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func openAICompatible(defaultBase string) RuntimeFactory {
	return func(c RuntimeConfig) Runtime {
		c = c.withDefaults(3, 500*time.Millisecond, 4*time.Second)
		base := c.BaseURL
		if base == "" {
			base = defaultBase
		}
		return NewClientWithBaseURL(c.APIKey, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay, base)
	}
}

// init registers built-in runtimes.
func init() {
	RegisterRuntime(ProviderOpenRouter, openAICompatible(OpenRouterBaseURL))
	RegisterRuntime(ProviderOpenAI, openAICompatible(OpenAIBaseURL))
	RegisterRuntime(ProviderOllama, func(c RuntimeConfig) Runtime {
		c = c.withDefaults(2, 200*time.Millisecond, time.Second)
		return NewOllamaClient(c.Host, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay)
	})
	RegisterRuntime(ProviderGemini, func(c RuntimeConfig) Runtime {
		c = c.withDefaults(3, 500*time.Millisecond, 4*time.Second)
		return NewGeminiClient(c.APIKey, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay)
	})
}
