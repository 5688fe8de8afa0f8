package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/finai-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/finai-cli/internal/config"
	"github.com/KaramelBytes/finai-cli/internal/dataset"
	"github.com/KaramelBytes/finai-cli/internal/prompts"
	"github.com/KaramelBytes/finai-cli/internal/report"
)

type runtimeOptions struct {
	ProviderFlag string
	OllamaHost   string
}

// resolveProvider maps flag/config values onto a registered provider name.
func resolveProvider(cfg *cfgpkg.Global, flag string) string {
	name := strings.ToLower(strings.TrimSpace(flag))
	if name == "" && cfg != nil && cfg.DefaultProvider != "" {
		name = strings.ToLower(cfg.DefaultProvider)
	}
	if name == "" {
		name = ai.ProviderOpenRouter
	}
	switch name {
	case "anthropic", "meta", "llama":
		name = ai.ProviderOpenRouter
	}
	return ai.NormalizeProvider(name)
}

// apiKeyFor prefers the provider's conventional env var over the config file.
func apiKeyFor(cfg *cfgpkg.Global, provider string) string {
	var env, fallback string
	switch provider {
	case ai.ProviderGemini:
		env = os.Getenv("GEMINI_API_KEY")
		if cfg != nil {
			fallback = cfg.GeminiAPIKey
		}
	case ai.ProviderOpenAI:
		env = os.Getenv("OPENAI_API_KEY")
		if cfg != nil {
			fallback = cfg.APIKey
		}
	default:
		env = os.Getenv("OPENROUTER_API_KEY")
		if cfg != nil {
			fallback = cfg.APIKey
		}
	}
	if env != "" {
		return env
	}
	return fallback
}

func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (ai.Runtime, string, error) {
	httpTimeout := 60 * time.Second
	retryMax := 3
	baseDelay := 500 * time.Millisecond
	maxDelay := 4 * time.Second
	if cfg != nil {
		if cfg.HTTPTimeoutSec > 0 {
			httpTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		if cfg.RetryMaxAttempts > 0 {
			retryMax = cfg.RetryMaxAttempts
		}
		if cfg.RetryBaseDelayMs > 0 {
			baseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
		}
		if cfg.RetryMaxDelayMs > 0 {
			maxDelay = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
		}
	}

	providerName := resolveProvider(cfg, opts.ProviderFlag)
	rc := ai.RuntimeConfig{
		HTTPTimeout: httpTimeout,
		RetryMax:    retryMax,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		APIKey:      apiKeyFor(cfg, providerName),
	}
	if cfg != nil {
		rc.BaseURL = cfg.BaseURL
	}

	if providerName == ai.ProviderOllama {
		host := strings.TrimSpace(opts.OllamaHost)
		if host == "" {
			host = os.Getenv("FINAI_OLLAMA_HOST")
		}
		if host == "" && cfg != nil && cfg.OllamaHost != "" {
			host = cfg.OllamaHost
		}
		if host == "" {
			host = "http://127.0.0.1:11434"
		}
		rc.Host = host
		if v := os.Getenv("FINAI_OLLAMA_TIMEOUT_SEC"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				rc.HTTPTimeout = time.Duration(n) * time.Second
			}
		}
		if cfg != nil && cfg.OllamaTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(cfg.OllamaTimeoutSec) * time.Second
		}
	}

	client, ok := ai.GetRuntime(providerName, rc)
	if !ok {
		return nil, providerName, fmt.Errorf("provider not supported: %s (available: %s)", providerName, strings.Join(ai.Providers(), ", "))
	}
	return client, providerName, nil
}

func selectModel(cfg *cfgpkg.Global, explicit, provider string) string {
	if explicit != "" {
		return explicit
	}
	if cfg != nil && cfg.DefaultModel != "" {
		return cfg.DefaultModel
	}
	return ai.DefaultModelFor(provider)
}

// reportOptions maps configuration onto pipeline options.
func reportOptions(cfg *cfgpkg.Global, model string) report.Options {
	opt := report.DefaultOptions(model)
	if cfg == nil {
		return opt
	}
	opt.MaxTokens = cfg.MaxTokens
	opt.Temperature = cfg.Temperature
	opt.MinQuestions = cfg.MinQuestions
	opt.MaxQuestions = cfg.MaxQuestions
	opt.RowsPerQuestion = cfg.RowsPerQuestion
	opt.QAAttempts = cfg.QAAttempts
	opt.PlotAttempts = cfg.PlotAttempts
	opt.MinPlots = cfg.MinPlots
	if len(cfg.PlotTools) > 0 {
		opt.PlotTools = cfg.PlotTools
	}
	opt.MaxIterations = cfg.AgentMaxIterations
	opt.SQLMaxRows = cfg.SQLMaxRows
	opt.LLMTimeout = cfg.LLMTimeout()
	return opt
}

func promptSet(cfg *cfgpkg.Global) *prompts.Set {
	if cfg == nil {
		return prompts.Default()
	}
	return prompts.New(cfg.PromptsDir, cfg.PrimaryQuestionsFile)
}

// newGenerator wires runtime, prompts and options into a pipeline.
func newGenerator(cfg *cfgpkg.Global, ro runtimeOptions, model string) (*report.Generator, string, string, error) {
	rt, provider, err := buildRuntime(cfg, ro)
	if err != nil {
		return nil, "", "", err
	}
	model = selectModel(cfg, model, provider)
	return report.New(rt, promptSet(cfg), reportOptions(cfg, model), logger), provider, model, nil
}

// csvFlags holds the loader flags shared by report, ask and analyze.
type csvFlags struct {
	Delimiter string
	Decimal   string
	Thousands string
	MaxRows   int
}

func (f csvFlags) options() (dataset.Options, error) {
	var opt dataset.Options
	opt.MaxRows = f.MaxRows
	switch f.Delimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", f.Delimiter)
	}
	switch strings.ToLower(strings.TrimSpace(f.Decimal)) {
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case "":
	default:
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", f.Decimal)
	}
	switch strings.ToLower(strings.TrimSpace(f.Thousands)) {
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	case "":
	default:
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", f.Thousands)
	}
	return opt, nil
}

func loadTable(path string, f csvFlags) (*dataset.Table, error) {
	opt, err := f.options()
	if err != nil {
		return nil, err
	}
	t, err := dataset.LoadCSV(path, opt)
	if err != nil {
		return nil, err
	}
	if t.Rows == 0 {
		return nil, fmt.Errorf("%s: csv has no data rows", path)
	}
	return t, nil
}

// friendlyError turns typed runtime errors into actionable messages.
func friendlyError(err error, provider, model string) error {
	if err == nil {
		return nil
	}
	var (
		authErr *ai.AuthError
		rlErr   *ai.RateLimitError
		nfErr   *ai.ModelNotFoundError
		brErr   *ai.BadRequestError
		qErr    *ai.QuotaExceededError
		sErr    *ai.ServerError
		unreach *ai.UnreachableError
		tmo     *ai.TimeoutError
	)
	switch {
	case errors.As(err, &tmo):
		return fmt.Errorf("model %s did not answer within %s. Raise llm_timeout_sec or pick a faster model: %w", model, tmo.Limit, err)
	case errors.As(err, &unreach):
		if provider == ai.ProviderOllama {
			return fmt.Errorf("Ollama not reachable at %s. Ensure Ollama is running (see https://ollama.com) and host is correct. You can set FINAI_OLLAMA_HOST or config 'ollama_host'. Detail: %w", unreach.Host, err)
		}
		return fmt.Errorf("endpoint unreachable. Check your network and provider settings: %w", err)
	case errors.As(err, &authErr):
		return fmt.Errorf("authentication failed: set the provider API key env var or add api_key in config (~/.finai/config.yaml): %w", err)
	case errors.As(err, &rlErr):
		if rlErr.RetryAfter > 0 {
			return fmt.Errorf("rate limited, try again in ~%ds: %w", int(rlErr.RetryAfter.Seconds()), err)
		}
		return fmt.Errorf("rate limited by provider, please retry: %w", err)
	case errors.As(err, &nfErr):
		if provider == ai.ProviderOllama {
			return fmt.Errorf("local model not available (%s). Install it with 'ollama pull %s' or choose another model. %w", model, model, err)
		}
		return fmt.Errorf("model not found (%s). Verify the model name or sync catalog via 'finai models fetch' or 'finai models show': %w", model, err)
	case errors.As(err, &brErr):
		return fmt.Errorf("request invalid. Try a smaller --max-rows or another model: %w", err)
	case errors.As(err, &qErr):
		return fmt.Errorf("quota/billing issue. Check your provider account: %w", err)
	case errors.As(err, &sErr):
		return fmt.Errorf("provider appears unavailable (server error). Please retry later: %w", err)
	default:
		return err
	}
}
