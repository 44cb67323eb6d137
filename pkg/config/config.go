package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mikeboe/deep-research/pkg/clients"
)

// ErrConfiguration marks missing or invalid credentials and settings. It is
// detected before any research call is made.
var ErrConfiguration = errors.New("invalid configuration")

const (
	SearchProviderFirecrawl = "firecrawl"
	SearchProviderBrave     = "brave"
	SearchProviderArxiv     = "arxiv"
)

type Config struct {
	OpenAIApiKey     string `yaml:"openai_api_key"`
	GoogleApiKey     string `yaml:"google_api_key"`
	FirecrawlApiKey  string `yaml:"firecrawl_api_key"`
	FirecrawlBaseURL string `yaml:"firecrawl_base_url"`
	BraveApiKey      string `yaml:"brave_api_key"`
	SearchProvider   string `yaml:"search_provider"`
	DefaultModel     string `yaml:"default_model"`
	TokenizerModel   string `yaml:"tokenizer_model"`
	Port             string `yaml:"port"`
	LogLevel         string `yaml:"log_level"`
	LogDatabaseURL   string `yaml:"log_database_url"`

	SearchTimeout       time.Duration `yaml:"search_timeout"`
	SearchLimit         int           `yaml:"search_limit"`
	ExtractionTimeout   time.Duration `yaml:"extraction_timeout"`
	DocumentTokenBudget int           `yaml:"document_token_budget"`
	ReportTokenBudget   int           `yaml:"report_token_budget"`
	Concurrency         int           `yaml:"concurrency"`
	GenerationRetries   int           `yaml:"generation_retries"`
	MaxDuration         time.Duration `yaml:"max_duration"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		SearchProvider:      SearchProviderFirecrawl,
		DefaultModel:        string(clients.DefaultModel),
		TokenizerModel:      "gpt-4o",
		Port:                "8081",
		LogLevel:            "info",
		SearchTimeout:       15 * time.Second,
		SearchLimit:         5,
		ExtractionTimeout:   60 * time.Second,
		DocumentTokenBudget: 25_000,
		ReportTokenBudget:   150_000,
		Concurrency:         1,
		GenerationRetries:   clients.DefaultMaxRetries,
		MaxDuration:         300 * time.Second,
	}
}

// Load starts from Default, applies the YAML file named by DEEP_RESEARCH_CONFIG
// if set, then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("DEEP_RESEARCH_CONFIG"); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.OpenAIApiKey = getEnv("OPENAI_API_KEY", cfg.OpenAIApiKey)
	cfg.GoogleApiKey = getEnv("GOOGLE_API_KEY", cfg.GoogleApiKey)
	cfg.FirecrawlApiKey = getEnv("FIRECRAWL_API_KEY", cfg.FirecrawlApiKey)
	cfg.FirecrawlBaseURL = getEnv("FIRECRAWL_BASE_URL", cfg.FirecrawlBaseURL)
	cfg.BraveApiKey = getEnv("BRAVE_API_KEY", cfg.BraveApiKey)
	cfg.SearchProvider = getEnv("SEARCH_PROVIDER", cfg.SearchProvider)
	cfg.DefaultModel = getEnv("DEFAULT_MODEL", cfg.DefaultModel)
	cfg.TokenizerModel = getEnv("TOKENIZER_MODEL", cfg.TokenizerModel)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogDatabaseURL = getEnv("LOG_DATABASE_URL", cfg.LogDatabaseURL)

	var err error
	if cfg.SearchTimeout, err = getEnvAsDuration("SEARCH_TIMEOUT", cfg.SearchTimeout); err != nil {
		return nil, err
	}
	if cfg.ExtractionTimeout, err = getEnvAsDuration("EXTRACTION_TIMEOUT", cfg.ExtractionTimeout); err != nil {
		return nil, err
	}
	if cfg.MaxDuration, err = getEnvAsDuration("MAX_DURATION", cfg.MaxDuration); err != nil {
		return nil, err
	}
	cfg.SearchLimit = getEnvAsInt("SEARCH_LIMIT", cfg.SearchLimit)
	cfg.DocumentTokenBudget = getEnvAsInt("DOCUMENT_TOKEN_BUDGET", cfg.DocumentTokenBudget)
	cfg.ReportTokenBudget = getEnvAsInt("REPORT_TOKEN_BUDGET", cfg.ReportTokenBudget)
	cfg.Concurrency = getEnvAsInt("RESEARCH_CONCURRENCY", cfg.Concurrency)
	cfg.GenerationRetries = getEnvAsInt("GENERATION_RETRIES", cfg.GenerationRetries)

	return cfg, nil
}

// Credentials returns the generation API keys.
func (c *Config) Credentials() clients.Credentials {
	return clients.Credentials{OpenAIKey: c.OpenAIApiKey, GoogleKey: c.GoogleApiKey}
}

// ValidateModel checks that modelID is known and its provider key is set.
// An empty modelID means DefaultModel.
func (c *Config) ValidateModel(modelID string) error {
	if modelID == "" {
		modelID = c.DefaultModel
	}
	info, ok := clients.LookupModel(modelID)
	if !ok {
		return fmt.Errorf("%w: unknown model %q", ErrConfiguration, modelID)
	}
	if c.Credentials().KeyFor(info.Provider) == "" {
		return fmt.Errorf("%w: API key for %s is not set", ErrConfiguration, info.Provider)
	}
	return nil
}

// Validate checks everything a research run with modelID needs: the model,
// its provider key and the search provider key.
func (c *Config) Validate(modelID string) error {
	if err := c.ValidateModel(modelID); err != nil {
		return err
	}

	switch c.SearchProvider {
	case SearchProviderFirecrawl:
		if c.FirecrawlApiKey == "" {
			return fmt.Errorf("%w: FIRECRAWL_API_KEY is not set", ErrConfiguration)
		}
	case SearchProviderBrave:
		if c.BraveApiKey == "" {
			return fmt.Errorf("%w: BRAVE_API_KEY is not set", ErrConfiguration)
		}
	case SearchProviderArxiv:
		// keyless
	default:
		return fmt.Errorf("%w: unknown search provider %q", ErrConfiguration, c.SearchProvider)
	}
	return nil
}

// SlogLevel parses LogLevel, falling back to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
