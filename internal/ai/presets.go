package ai

import "strings"

// PresetCatalog returns the built-in catalog entries served by a provider.
// The result can be merged into or replace the in-memory catalog.
func PresetCatalog(provider string) (map[string]ModelInfo, bool) {
	var keep func(name string) bool
	switch NormalizeProvider(provider) {
	case ProviderOpenRouter:
		keep = func(name string) bool { return strings.Contains(name, "/") }
	case ProviderOpenAI:
		keep = func(name string) bool { return strings.HasPrefix(name, "openai/") || strings.HasPrefix(name, "gpt-") }
	case ProviderGemini:
		keep = func(name string) bool { return strings.HasPrefix(name, "google/") || strings.HasPrefix(name, "gemini-") }
	case ProviderOllama:
		keep = func(name string) bool { return strings.Contains(name, ":") && !strings.Contains(name, "/") }
	default:
		return nil, false
	}
	out := map[string]ModelInfo{}
	for k, v := range builtinModels {
		if keep(k) {
			out[k] = v
		}
	}
	return out, len(out) > 0
}

// DefaultModelFor returns the model used when none is configured for provider.
func DefaultModelFor(provider string) string {
	switch NormalizeProvider(provider) {
	case ProviderOpenAI:
		return "gpt-4o"
	case ProviderGemini:
		return "gemini-2.0-flash"
	case ProviderOllama:
		return "llama3.1:8b-instruct"
	default:
		return "openai/gpt-4o"
	}
}
