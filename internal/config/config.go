package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Places    PlacesConfig    `yaml:"places" mapstructure:"places"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Query     QueryConfig     `yaml:"query" mapstructure:"query"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// SearchConfig configures the web search provider and the search batch.
type SearchConfig struct {
	Provider    string        `yaml:"provider" mapstructure:"provider"`
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	MaxResults  int           `yaml:"max_results" mapstructure:"max_results"`
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxURLs     int           `yaml:"max_urls" mapstructure:"max_urls"`
	// Retries is the number of extra attempts for a query that failed with a
	// transient error.
	Retries     int           `yaml:"retries" mapstructure:"retries"`
}

// PlacesConfig configures the enrichment providers. A non-empty GoogleKey
// routes every record to Google Places.
type PlacesConfig struct {
	GoogleKey    string `yaml:"google_key" mapstructure:"google_key"`
	NominatimURL string `yaml:"nominatim_url" mapstructure:"nominatim_url"`
}

// HTTPConfig configures outbound requests.
type HTTPConfig struct {
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ScrapeConfig configures the page fetch batch.
type ScrapeConfig struct {
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// EnrichConfig configures the enrichment batch.
type EnrichConfig struct {
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// QueryConfig configures the query planner.
type QueryConfig struct {
	K              int    `yaml:"k" mapstructure:"k"`
	VocabularyFile string `yaml:"vocabulary_file" mapstructure:"vocabulary_file"`
}

// EmbeddingConfig points at the Ollama embedding server.
type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	CacheSize int    `yaml:"cache_size" mapstructure:"cache_size"`
}

// AnthropicConfig holds the extraction oracle credentials.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PipelineConfig configures run-level behavior.
type PipelineConfig struct {
	// Timeout bounds a whole run. Zero means no deadline.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment, in
// increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional provider variable names.
	for key, envs := range map[string][]string{
		"search.api_key":    {"FINDER_SEARCH_API_KEY", "SERP_API_KEY"},
		"places.google_key": {"FINDER_PLACES_GOOGLE_KEY", "GOOGLE_PLACES_KEY"},
		"anthropic.key":     {"FINDER_ANTHROPIC_KEY", "ANTHROPIC_API_KEY"},
	} {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("search.provider", "serpapi")
	v.SetDefault("search.max_results", 50)
	v.SetDefault("search.concurrency", 8)
	v.SetDefault("search.timeout", 20*time.Second)
	v.SetDefault("search.max_urls", 0)
	v.SetDefault("search.retries", 0)
	v.SetDefault("places.nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("http.user_agent", "Mozilla/5.0 (compatible; CompanyFinder/0.1)")
	v.SetDefault("scrape.concurrency", 20)
	v.SetDefault("scrape.timeout", 15*time.Second)
	v.SetDefault("enrich.concurrency", 10)
	v.SetDefault("enrich.timeout", 15*time.Second)
	v.SetDefault("query.k", 8)
	v.SetDefault("embedding.base_url", "http://localhost:11434")
	v.SetDefault("embedding.model", "all-minilm")
	v.SetDefault("embedding.cache_size", 10000)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "company-finder.db")
	v.SetDefault("pipeline.timeout", time.Duration(0))
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before any work starts.
// Modes: "find" (one pipeline run), "serve" (HTTP API) and "runs" (store
// inspection).
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "find", "serve":
		errs = append(errs, c.validatePipeline()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "runs":
		if strings.EqualFold(c.Store.Driver, "none") {
			errs = append(errs, "store.driver must not be none")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	errs = append(errs, c.validateStore()...)

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validatePipeline() []string {
	var errs []string
	switch strings.ToLower(c.Search.Provider) {
	case "serpapi", "jina":
	default:
		errs = append(errs, "search.provider must be serpapi or jina")
	}
	if strings.TrimSpace(c.Search.APIKey) == "" {
		errs = append(errs, "search.api_key is required")
	}
	if strings.TrimSpace(c.Anthropic.Key) == "" {
		errs = append(errs, "anthropic.key is required")
	}
	if c.Search.Concurrency < 1 {
		errs = append(errs, "search.concurrency must be >= 1")
	}
	if c.Scrape.Concurrency < 1 {
		errs = append(errs, "scrape.concurrency must be >= 1")
	}
	if c.Enrich.Concurrency < 1 {
		errs = append(errs, "enrich.concurrency must be >= 1")
	}
	if c.Query.K < 0 {
		errs = append(errs, "query.k must be >= 0")
	}
	if c.Search.MaxURLs < 0 {
		errs = append(errs, "search.max_urls must be >= 0")
	}
	if c.Pipeline.Timeout < 0 {
		errs = append(errs, "pipeline.timeout must be >= 0")
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch strings.ToLower(c.Store.Driver) {
	case "none":
		return nil
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
		return nil
	default:
		return []string{"store.driver must be sqlite, postgres or none"}
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
