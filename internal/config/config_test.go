package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "openrouter", c.DefaultProvider)
	assert.Equal(t, 2, c.MinQuestions)
	assert.Equal(t, 3, c.MaxQuestions)
	assert.Equal(t, 50, c.RowsPerQuestion)
	assert.Equal(t, 3, c.PlotAttempts)
	assert.Equal(t, []string{"top_category_boxplot", "bar_plot", "top_frequency_barplot", "histogram_plot"}, c.PlotTools)
	assert.Equal(t, filepath.Join(home, ".finai", "reports"), c.ReportsDir)
	assert.Equal(t, 2*time.Minute, c.LLMTimeout())
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "finai.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_tokens: 1000\ndefault_model: gpt-4o\nreports_dir: /srv/reports\n"), 0o644))
	t.Setenv("FINAI_MAX_TOKENS", "2048")
	t.Setenv("FINAI_CORS_ORIGINS", "https://a.example,https://b.example")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2048, c.MaxTokens)
	assert.Equal(t, "gpt-4o", c.DefaultModel)
	assert.Equal(t, "/srv/reports", c.ReportsDir)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSOrigins)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_tokens: [unterminated\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	c, err := Load(path)
	require.NoError(t, err)
	c.DefaultModel = "gemini-2.0-flash"
	c.MinPlots = 1
	require.NoError(t, Save(c, path))

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", again.DefaultModel)
	assert.Equal(t, 1, again.MinPlots)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("FINAI_TEST_DOTENV=from-file\nFINAI_TEST_PRESET=from-file\n"), 0o644))
	t.Setenv("FINAI_TEST_PRESET", "from-env")
	t.Cleanup(func() { os.Unsetenv("FINAI_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("FINAI_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("FINAI_TEST_PRESET"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}
