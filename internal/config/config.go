package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. FINAI_API_KEY.
const EnvPrefix = "FINAI"

// Global configuration structure.
type Global struct {
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`
	GeminiAPIKey    string  `mapstructure:"gemini_api_key" yaml:"gemini_api_key"`
	DefaultModel    string  `mapstructure:"default_model" yaml:"default_model"`
	DefaultProvider string  `mapstructure:"default_provider" yaml:"default_provider"`
	BaseURL         string  `mapstructure:"base_url" yaml:"base_url"`
	MaxTokens       int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`

	// Models catalog auto-sync
	ModelsCatalogURL string `mapstructure:"models_catalog_url" yaml:"models_catalog_url"`
	ModelsAutoSync   bool   `mapstructure:"models_auto_sync" yaml:"models_auto_sync"`
	ModelsMerge      bool   `mapstructure:"models_merge" yaml:"models_merge"`
	ModelsProvider   string `mapstructure:"models_provider" yaml:"models_provider"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`
	// LLMTimeoutSec bounds every model call made by the pipeline.
	LLMTimeoutSec int `mapstructure:"llm_timeout_sec" yaml:"llm_timeout_sec"`

	// Local runtimes (Ollama)
	OllamaHost       string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OllamaTimeoutSec int    `mapstructure:"ollama_timeout_sec" yaml:"ollama_timeout_sec"`

	// Report pipeline
	ReportsDir           string   `mapstructure:"reports_dir" yaml:"reports_dir"`
	PromptsDir           string   `mapstructure:"prompts_dir" yaml:"prompts_dir"`
	PrimaryQuestionsFile string   `mapstructure:"primary_questions_file" yaml:"primary_questions_file"`
	MinQuestions         int      `mapstructure:"min_questions" yaml:"min_questions"`
	MaxQuestions         int      `mapstructure:"max_questions" yaml:"max_questions"`
	RowsPerQuestion      int      `mapstructure:"rows_per_question" yaml:"rows_per_question"`
	QAAttempts           int      `mapstructure:"qa_attempts" yaml:"qa_attempts"`
	PlotAttempts         int      `mapstructure:"plot_attempts" yaml:"plot_attempts"`
	MinPlots             int      `mapstructure:"min_plots" yaml:"min_plots"`
	PlotTools            []string `mapstructure:"plot_tools" yaml:"plot_tools"`
	AgentMaxIterations   int      `mapstructure:"agent_max_iterations" yaml:"agent_max_iterations"`
	SQLMaxRows           int      `mapstructure:"sql_max_rows" yaml:"sql_max_rows"`

	// HTTP API
	HTTPAddr             string   `mapstructure:"http_addr" yaml:"http_addr"`
	MaxConcurrentReports int      `mapstructure:"max_concurrent_reports" yaml:"max_concurrent_reports"`
	MaxUploadMB          int      `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	CORSOrigins          []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LLMTimeout returns the per-call model timeout.
func (c *Global) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSec) * time.Second
}

// Dir returns ~/.finai.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".finai"), nil
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.finai/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("default_model", "")
	v.SetDefault("default_provider", "openrouter")
	v.SetDefault("base_url", "")
	v.SetDefault("max_tokens", 4096)
	v.SetDefault("temperature", 0.2)
	v.SetDefault("models_catalog_url", "")
	v.SetDefault("models_auto_sync", false)
	v.SetDefault("models_merge", true)
	v.SetDefault("models_provider", "")
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("llm_timeout_sec", 120)
	// Ollama defaults
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("ollama_timeout_sec", 120)
	// Pipeline defaults
	v.SetDefault("reports_dir", "")
	v.SetDefault("prompts_dir", "")
	v.SetDefault("primary_questions_file", "")
	v.SetDefault("min_questions", 2)
	v.SetDefault("max_questions", 3)
	v.SetDefault("rows_per_question", 50)
	v.SetDefault("qa_attempts", 2)
	v.SetDefault("plot_attempts", 3)
	v.SetDefault("min_plots", 2)
	v.SetDefault("plot_tools", []string{"top_category_boxplot", "bar_plot", "top_frequency_barplot", "histogram_plot"})
	v.SetDefault("agent_max_iterations", 8)
	v.SetDefault("sql_max_rows", 50)
	// HTTP API defaults
	v.SetDefault("http_addr", ":8000")
	v.SetDefault("max_concurrent_reports", 2)
	v.SetDefault("max_upload_mb", 32)
	v.SetDefault("cors_origins", []string{"*"})
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. cfgFile selects the file.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Resolve reports_dir default: ~/.finai/reports
	if c.ReportsDir == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		c.ReportsDir = filepath.Join(dir, "reports")
	}
	return &c, nil
}
