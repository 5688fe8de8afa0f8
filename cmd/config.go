package cmd

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/finai-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/finai-cli/internal/config"
	"github.com/KaramelBytes/finai-cli/internal/plot"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set FinAI configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if cfg == nil {
			fmt.Fprintln(w, "No config loaded")
			return nil
		}
		fmt.Fprintf(w, "api_key: %s\n", mask(cfg.APIKey))
		if cfg.GeminiAPIKey != "" {
			fmt.Fprintf(w, "gemini_api_key: %s\n", mask(cfg.GeminiAPIKey))
		}
		fmt.Fprintf(w, "default_provider: %s\n", cfg.DefaultProvider)
		fmt.Fprintf(w, "default_model: %s\n", cfg.DefaultModel)
		if cfg.BaseURL != "" {
			fmt.Fprintf(w, "base_url: %s\n", cfg.BaseURL)
		}
		fmt.Fprintf(w, "max_tokens: %d\n", cfg.MaxTokens)
		fmt.Fprintf(w, "temperature: %.3f\n", cfg.Temperature)
		fmt.Fprintf(w, "llm_timeout_sec: %d\n", cfg.LLMTimeoutSec)
		fmt.Fprintf(w, "ollama_host: %s\n", cfg.OllamaHost)
		fmt.Fprintf(w, "reports_dir: %s\n", cfg.ReportsDir)
		if cfg.PromptsDir != "" {
			fmt.Fprintf(w, "prompts_dir: %s\n", cfg.PromptsDir)
		}
		if cfg.PrimaryQuestionsFile != "" {
			fmt.Fprintf(w, "primary_questions_file: %s\n", cfg.PrimaryQuestionsFile)
		}
		fmt.Fprintf(w, "questions: %d-%d (one per %d rows)\n", cfg.MinQuestions, cfg.MaxQuestions, cfg.RowsPerQuestion)
		fmt.Fprintf(w, "qa_attempts: %d\n", cfg.QAAttempts)
		fmt.Fprintf(w, "plot_attempts: %d\n", cfg.PlotAttempts)
		fmt.Fprintf(w, "min_plots: %d\n", cfg.MinPlots)
		fmt.Fprintf(w, "plot_tools: %s\n", strings.Join(cfg.PlotTools, ","))
		fmt.Fprintf(w, "http_addr: %s\n", cfg.HTTPAddr)
		fmt.Fprintf(w, "max_concurrent_reports: %d\n", cfg.MaxConcurrentReports)
		fmt.Fprintf(w, "max_upload_mb: %d\n", cfg.MaxUploadMB)
		fmt.Fprintf(w, "cors_origins: %s\n", strings.Join(cfg.CORSOrigins, ","))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := setConfigValue(cfg, key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	positive := func(dst *int) error {
		i, err := strconv.Atoi(val)
		if err != nil || i <= 0 {
			return fmt.Errorf("invalid positive int for %s: %v", key, val)
		}
		*dst = i
		return nil
	}
	switch key {
	case "api_key":
		c.APIKey = val
	case "gemini_api_key":
		c.GeminiAPIKey = val
	case "default_model":
		c.DefaultModel = val
	case "default_provider":
		p := ai.NormalizeProvider(strings.ToLower(strings.TrimSpace(val)))
		if !slices.Contains(ai.Providers(), p) {
			return fmt.Errorf("invalid default_provider: %s (use %s)", val, strings.Join(ai.Providers(), ", "))
		}
		c.DefaultProvider = p
	case "base_url":
		c.BaseURL = val
	case "max_tokens":
		return positive(&c.MaxTokens)
	case "temperature":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("invalid float for temperature: %v", val)
		}
		c.Temperature = f
	case "llm_timeout_sec":
		return positive(&c.LLMTimeoutSec)
	case "http_timeout_sec":
		return positive(&c.HTTPTimeoutSec)
	case "ollama_host":
		c.OllamaHost = val
	case "reports_dir":
		c.ReportsDir = val
	case "prompts_dir":
		c.PromptsDir = val
	case "primary_questions_file":
		c.PrimaryQuestionsFile = val
	case "min_questions":
		return positive(&c.MinQuestions)
	case "max_questions":
		return positive(&c.MaxQuestions)
	case "rows_per_question":
		return positive(&c.RowsPerQuestion)
	case "qa_attempts":
		return positive(&c.QAAttempts)
	case "plot_attempts":
		return positive(&c.PlotAttempts)
	case "min_plots":
		return positive(&c.MinPlots)
	case "plot_tools":
		tools := splitList(val)
		for _, name := range tools {
			if _, ok := plot.Lookup(name); !ok {
				return fmt.Errorf("unknown plot tool: %s (available: %s)", name, strings.Join(plot.Names(), ", "))
			}
		}
		c.PlotTools = tools
	case "agent_max_iterations":
		return positive(&c.AgentMaxIterations)
	case "http_addr":
		c.HTTPAddr = val
	case "max_concurrent_reports":
		return positive(&c.MaxConcurrentReports)
	case "max_upload_mb":
		return positive(&c.MaxUploadMB)
	case "cors_origins":
		c.CORSOrigins = splitList(val)
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
