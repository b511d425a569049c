package main

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-finder/internal/adapters"
	"github.com/sells-group/company-finder/internal/cluster"
	"github.com/sells-group/company-finder/internal/config"
	"github.com/sells-group/company-finder/internal/dedup"
	"github.com/sells-group/company-finder/internal/enrich"
	"github.com/sells-group/company-finder/internal/extract"
	"github.com/sells-group/company-finder/internal/metrics"
	"github.com/sells-group/company-finder/internal/pipeline"
	"github.com/sells-group/company-finder/internal/ports"
	"github.com/sells-group/company-finder/internal/query"
	"github.com/sells-group/company-finder/internal/scrape"
	"github.com/sells-group/company-finder/internal/store"
	anthropicpkg "github.com/sells-group/company-finder/pkg/anthropic"
	"github.com/sells-group/company-finder/pkg/google"
	"github.com/sells-group/company-finder/pkg/jina"
	"github.com/sells-group/company-finder/pkg/nominatim"
	"github.com/sells-group/company-finder/pkg/ollama"
	"github.com/sells-group/company-finder/pkg/serpapi"
)

// finderEnv holds the store, metrics and pipeline needed by the find and
// serve commands.
type finderEnv struct {
	Store    store.Store // nil when store.driver is none
	Metrics  *metrics.Metrics
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (fe *finderEnv) Close() {
	if fe.Store != nil {
		_ = fe.Store.Close()
	}
}

// initFinder validates the config for mode, opens the run store and wires
// every stage of the pipeline. Callers should defer env.Close().
func initFinder(ctx context.Context, mode string, reg *prometheus.Registry) (*finderEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	search, err := newSearchProvider(cfg)
	if err != nil {
		return nil, err
	}

	vocabulary := query.DefaultVocabulary
	if cfg.Query.VocabularyFile != "" {
		vocabulary, err = query.LoadVocabulary(cfg.Query.VocabularyFile)
		if err != nil {
			return nil, err
		}
	}

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if st == nil {
		zap.L().Debug("run store disabled")
	}

	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := metrics.New(reg)

	embedder := adapters.NewOllamaEmbedder(ollama.NewClient(
		ollama.WithBaseURL(cfg.Embedding.BaseURL),
		ollama.WithModel(cfg.Embedding.Model),
	), adapters.WithCacheSize(cfg.Embedding.CacheSize))
	oracle := adapters.NewClaudeOracle(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)

	p := pipeline.New(cfg, pipeline.Deps{
		Planner:   query.New(embedder, vocabulary),
		Search:    search,
		Fetcher:   scrape.NewFetcher(scrape.WithUserAgent(cfg.HTTP.UserAgent)),
		Extractor: extract.New(oracle, oracle),
		Deduper:   dedup.New(embedder, cluster.New()),
		Enricher:  newEnricher(cfg, m),
		Store:     st,
		Metrics:   m,
	})

	zap.L().Info("pipeline ready",
		zap.String("search", search.Name()),
		zap.String("store", cfg.Store.Driver),
	)

	return &finderEnv{Store: st, Metrics: m, Pipeline: p}, nil
}

// newSearchProvider builds the configured web search backend.
func newSearchProvider(c *config.Config) (ports.SearchProvider, error) {
	switch strings.ToLower(c.Search.Provider) {
	case "serpapi":
		opts := []serpapi.Option{
			serpapi.WithNum(c.Search.MaxResults),
			serpapi.WithUserAgent(c.HTTP.UserAgent),
		}
		if c.Search.BaseURL != "" {
			opts = append(opts, serpapi.WithBaseURL(c.Search.BaseURL))
		}
		return adapters.NewSerpSearch(serpapi.NewClient(c.Search.APIKey, opts...)), nil
	case "jina":
		opts := []jina.Option{jina.WithUserAgent(c.HTTP.UserAgent)}
		if c.Search.BaseURL != "" {
			opts = append(opts, jina.WithBaseURL(c.Search.BaseURL))
		}
		return adapters.NewJinaSearch(jina.NewClient(c.Search.APIKey, opts...), c.Search.MaxResults), nil
	}
	return nil, eris.Errorf("search: unknown provider %q", c.Search.Provider)
}

// newEnricher picks Google Places when a key is configured and Nominatim
// otherwise.
func newEnricher(c *config.Config, m *metrics.Metrics) *enrich.Engine {
	var primary ports.PrimaryPlaces
	if c.Places.GoogleKey != "" {
		primary = adapters.NewGooglePlaces(google.NewClient(c.Places.GoogleKey,
			google.WithUserAgent(c.HTTP.UserAgent),
		))
	}
	secondary := adapters.NewNominatimPlaces(nominatim.NewClient(
		nominatim.WithBaseURL(c.Places.NominatimURL),
		nominatim.WithUserAgent(c.HTTP.UserAgent),
	))

	e := enrich.New(enrich.Config{
		PlacesKey:   c.Places.GoogleKey,
		Concurrency: c.Enrich.Concurrency,
		Timeout:     c.Enrich.Timeout,
	}, primary, secondary, enrich.WithMetrics(m))

	zap.L().Debug("enrichment provider selected", zap.String("provider", e.Strategy()))
	return e
}
