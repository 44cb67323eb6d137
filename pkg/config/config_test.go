package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"DEEP_RESEARCH_CONFIG", "OPENAI_API_KEY", "GOOGLE_API_KEY", "FIRECRAWL_API_KEY", "FIRECRAWL_BASE_URL",
	"BRAVE_API_KEY", "SEARCH_PROVIDER", "DEFAULT_MODEL", "TOKENIZER_MODEL", "PORT", "LOG_LEVEL",
	"LOG_DATABASE_URL", "SEARCH_TIMEOUT", "SEARCH_LIMIT", "EXTRACTION_TIMEOUT", "DOCUMENT_TOKEN_BUDGET",
	"REPORT_TOKEN_BUDGET", "RESEARCH_CONCURRENCY", "GENERATION_RETRIES", "MAX_DURATION",
}

func clearEnv(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "o3-mini", cfg.DefaultModel)
	assert.Equal(t, 15*time.Second, cfg.SearchTimeout)
	assert.Equal(t, 60*time.Second, cfg.ExtractionTimeout)
	assert.Equal(t, 25_000, cfg.DocumentTokenBudget)
	assert.Equal(t, 150_000, cfg.ReportTokenBudget)
	assert.Equal(t, 300*time.Second, cfg.MaxDuration)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
search_provider: brave
brave_api_key: from-file
search_limit: 7
concurrency: 4
search_timeout: 20s
`), 0o600))

	clearEnv(t)
	t.Setenv("DEEP_RESEARCH_CONFIG", path)
	t.Setenv("BRAVE_API_KEY", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, SearchProviderBrave, cfg.SearchProvider)
	assert.Equal(t, "from-env", cfg.BraveApiKey)
	assert.Equal(t, 7, cfg.SearchLimit)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 20*time.Second, cfg.SearchTimeout)
}

func TestLoadInvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("EXTRACTION_TIMEOUT", "sixty")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEEP_RESEARCH_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.OpenAIApiKey = "sk"
		cfg.FirecrawlApiKey = "fc"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		model   string
		wantErr bool
	}{
		{"Default model", func(*Config) {}, "", false},
		{"Listed model", func(*Config) {}, "gpt-4o-mini", false},
		{"Unknown model", func(*Config) {}, "gpt-9", true},
		{"Missing provider key", func(c *Config) { c.OpenAIApiKey = "" }, "", true},
		{"Gemini without key", func(*Config) {}, "gemini-3-flash-preview", true},
		{"Missing firecrawl key", func(c *Config) { c.FirecrawlApiKey = "" }, "", true},
		{"Brave without key", func(c *Config) { c.SearchProvider = SearchProviderBrave }, "", true},
		{"Arxiv is keyless", func(c *Config) { c.SearchProvider = SearchProviderArxiv; c.FirecrawlApiKey = "" }, "", false},
		{"Unknown provider", func(c *Config) { c.SearchProvider = "altavista" }, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate(tt.model)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateModelIgnoresSearch(t *testing.T) {
	cfg := Default()
	cfg.OpenAIApiKey = "sk"
	assert.NoError(t, cfg.ValidateModel(""))
	assert.Error(t, cfg.Validate(""))
}

func TestSlogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	cfg.LogLevel = "loud"
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}
