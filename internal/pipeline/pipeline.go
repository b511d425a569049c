// Package pipeline runs the discovery state machine:
// planning, searching, scraping, extracting, deduping, enriching, done.
// Stages run strictly in sequence and each consumes only the previous
// stage's output.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-finder/internal/config"
	"github.com/sells-group/company-finder/internal/fetch"
	"github.com/sells-group/company-finder/internal/metrics"
	"github.com/sells-group/company-finder/internal/model"
	"github.com/sells-group/company-finder/internal/ports"
	"github.com/sells-group/company-finder/internal/resilience"
	"github.com/sells-group/company-finder/internal/store"
)

// Planner produces ranked search queries.
type Planner interface {
	Plan(ctx context.Context, industry, location string, k int) ([]model.Query, error)
}

// Extractor turns pages into candidate records.
type Extractor interface {
	ExtractAll(ctx context.Context, pages []model.Page, industryPrompt string) ([]model.CandidateRecord, error)
}

// Deduper merges candidate records that denote the same business.
type Deduper interface {
	Dedupe(ctx context.Context, records []model.CandidateRecord) ([]model.MergedRecord, error)
}

// Enricher fills contact fields. It never fails as a whole.
type Enricher interface {
	Enrich(ctx context.Context, records []model.MergedRecord) []model.MergedRecord
}

// Deps are the stage implementations. Store and Metrics may be nil.
type Deps struct {
	Planner   Planner
	Search    ports.SearchProvider
	Fetcher   ports.PageFetcher
	Extractor Extractor
	Deduper   Deduper
	Enricher  Enricher
	Store     store.Store
	Metrics   *metrics.Metrics
}

// StageError reports the stage that ended a run.
type StageError struct {
	Stage model.RunStatus
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Result is the output of a completed run.
type Result struct {
	RunID   string               `json:"run_id"`
	Request model.Request        `json:"request"`
	Queries []model.Query        `json:"queries"`
	Records []model.MergedRecord `json:"records"`
	Phases  []model.PhaseResult  `json:"phases"`
}

// Pipeline orchestrates one discovery run per call to Run.
type Pipeline struct {
	cfg  *config.Config
	deps Deps
}

// New creates a Pipeline.
func New(cfg *config.Config, deps Deps) *Pipeline {
	return &Pipeline{cfg: cfg, deps: deps}
}

// run carries the state of one execution.
type run struct {
	p       *Pipeline
	id      string
	tracked bool
	log     *zap.Logger
	result  *Result
}

// Run executes every stage for req. On failure it returns a *StageError and
// no records.
func (p *Pipeline) Run(ctx context.Context, req model.Request) (*Result, error) {
	if req.K == 0 {
		req.K = p.cfg.Query.K
	}
	if p.cfg.Pipeline.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Pipeline.Timeout)
		defer cancel()
	}

	r := &run{p: p, result: &Result{Request: req}}
	r.id = r.createRun(ctx, req)
	r.result.RunID = r.id
	r.log = zap.L().With(
		zap.String("run_id", r.id),
		zap.String("industry", req.Industry),
		zap.String("location", req.Location),
	)
	r.log.Info("pipeline: starting run")

	records, err := r.execute(ctx, req)
	if err != nil {
		r.fail(ctx, err)
		return nil, err
	}

	r.result.Records = records
	r.complete(ctx, records)
	r.log.Info("pipeline: run complete", zap.Int("records", len(records)))
	return r.result, nil
}

func (r *run) execute(ctx context.Context, req model.Request) ([]model.MergedRecord, error) {
	p := r.p

	var queries []model.Query
	err := r.stage(ctx, model.RunStatusPlanning, func() (int, map[string]any, error) {
		var err error
		queries, err = p.deps.Planner.Plan(ctx, req.Industry, req.Location, req.K)
		return len(queries), map[string]any{"queries": len(queries)}, err
	})
	if err != nil {
		return nil, err
	}
	r.result.Queries = queries

	var urls []string
	err = r.stage(ctx, model.RunStatusSearching, func() (int, map[string]any, error) {
		var failed int
		urls, failed = p.search(ctx, queries)
		return len(urls), map[string]any{
			"provider":       p.deps.Search.Name(),
			"queries":        len(queries),
			"failed_queries": failed,
			"urls":           len(urls),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	var pages []model.Page
	err = r.stage(ctx, model.RunStatusScraping, func() (int, map[string]any, error) {
		var failed int
		pages, failed = p.scrape(ctx, urls)
		return len(pages), map[string]any{
			"urls":   len(urls),
			"pages":  len(pages),
			"failed": failed,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	var candidates []model.CandidateRecord
	err = r.stage(ctx, model.RunStatusExtracting, func() (int, map[string]any, error) {
		var err error
		candidates, err = p.deps.Extractor.ExtractAll(ctx, pages, req.Industry)
		return len(candidates), map[string]any{"records": len(candidates)}, err
	})
	if err != nil {
		return nil, err
	}

	var merged []model.MergedRecord
	err = r.stage(ctx, model.RunStatusDeduping, func() (int, map[string]any, error) {
		var err error
		merged, err = p.deps.Deduper.Dedupe(ctx, candidates)
		return len(merged), map[string]any{
			"input":  len(candidates),
			"output": len(merged),
		}, err
	})
	if err != nil {
		return nil, err
	}

	var enriched []model.MergedRecord
	err = r.stage(ctx, model.RunStatusEnriching, func() (int, map[string]any, error) {
		enriched = p.deps.Enricher.Enrich(ctx, merged)
		return len(enriched), map[string]any{"records": len(enriched)}, nil
	})
	if err != nil {
		return nil, err
	}
	return enriched, nil
}

// stage runs fn as the named state: it moves the run to that status, records
// a phase, and converts a failure (or an expired run deadline) into a
// StageError.
func (r *run) stage(ctx context.Context, name model.RunStatus, fn func() (int, map[string]any, error)) error {
	r.setStatus(ctx, name)
	phase := r.createPhase(ctx, string(name))

	start := time.Now()
	items, meta, err := fn()
	if err == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = eris.Wrap(ctxErr, "pipeline: run deadline")
		}
	}
	elapsed := time.Since(start)

	pr := &model.PhaseResult{
		Name:     string(name),
		Duration: elapsed.Milliseconds(),
		Metadata: meta,
	}
	if err != nil {
		pr.Status = model.PhaseStatusFailed
		pr.Error = err.Error()
		r.p.deps.Metrics.StageFailed(string(name))
		r.log.Error("pipeline: stage failed",
			zap.String("stage", string(name)),
			zap.Int64("duration_ms", pr.Duration),
			zap.Error(err),
		)
	} else {
		pr.Status = model.PhaseStatusComplete
		r.p.deps.Metrics.ObserveStage(string(name), elapsed, items)
		r.log.Info("pipeline: stage complete",
			zap.String("stage", string(name)),
			zap.Int64("duration_ms", pr.Duration),
			zap.Int("items", items),
		)
	}

	r.completePhase(ctx, phase, pr)
	r.result.Phases = append(r.result.Phases, *pr)

	if err != nil {
		return &StageError{Stage: name, Err: err}
	}
	return nil
}

// search runs every query through the provider and returns the unique
// result URLs in query order, with the number of failed queries.
func (p *Pipeline) search(ctx context.Context, queries []model.Query) ([]string, int) {
	texts := make([]string, len(queries))
	for i, q := range queries {
		texts[i] = q.Text
	}

	retry := resilience.RetryConfig{
		Attempts:  max(p.cfg.Search.Retries, 0) + 1,
		Operation: "search",
	}
	task := func(ctx context.Context, q string) ([]string, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) ([]string, error) {
			return p.deps.Search.Search(ctx, q)
		})
	}

	outcomes := fetch.Run(ctx, texts, task, fetch.Options{
		Concurrency: p.cfg.Search.Concurrency,
		Timeout:     p.cfg.Search.Timeout,
	})

	lists := make([][]string, 0, len(outcomes))
	failed := 0
	for i, o := range outcomes {
		p.deps.Metrics.FetchOutcome("search", o.Err)
		if !o.OK() {
			failed++
			zap.L().Debug("pipeline: search query failed", zap.String("query", texts[i]), zap.Error(o.Err))
			continue
		}
		lists = append(lists, o.Value)
	}
	return UniqueURLs(lists, p.cfg.Search.MaxURLs), failed
}

// scrape fetches every URL and keeps the non-empty pages in URL order, with
// the number of failed fetches.
func (p *Pipeline) scrape(ctx context.Context, urls []string) ([]model.Page, int) {
	outcomes := fetch.Run(ctx, urls, p.deps.Fetcher.Fetch, fetch.Options{
		Concurrency: p.cfg.Scrape.Concurrency,
		Timeout:     p.cfg.Scrape.Timeout,
	})

	pages := make([]model.Page, 0, len(outcomes))
	failed := 0
	for i, o := range outcomes {
		p.deps.Metrics.FetchOutcome("scrape", o.Err)
		if !o.OK() {
			failed++
			zap.L().Debug("pipeline: page fetch failed", zap.String("url", urls[i]), zap.Error(o.Err))
			continue
		}
		if o.Value.Empty() {
			continue
		}
		pages = append(pages, o.Value)
	}
	return pages, failed
}
