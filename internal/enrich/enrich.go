// Package enrich fills contact fields of merged records from a places
// provider. The provider is chosen once per engine: the keyed primary
// provider when a credential is configured, otherwise the keyless geocoder.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-finder/internal/fetch"
	"github.com/sells-group/company-finder/internal/metrics"
	"github.com/sells-group/company-finder/internal/model"
	"github.com/sells-group/company-finder/internal/ports"
	"github.com/sells-group/company-finder/internal/resilience"
)

const (
	DefaultConcurrency = 10
	DefaultTimeout     = 15 * time.Second
)

// Per-record outcome labels.
const (
	OutcomeEnriched = "enriched"
	OutcomeNoMatch  = "no_match"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// Config controls an Engine.
type Config struct {
	// PlacesKey is the primary provider credential. Empty selects the
	// geocoding fallback for every record.
	PlacesKey   string
	Concurrency int
	Timeout     time.Duration
}

// Strategy enriches one record in place. It reports whether the provider
// returned a match. Records that Queryable rejects are never sent.
type Strategy interface {
	Name() string
	Queryable(rec model.MergedRecord) bool
	Apply(ctx context.Context, rec *model.MergedRecord) (bool, error)
}

// Engine enriches batches of records with a fixed Strategy.
type Engine struct {
	strategy Strategy
	opts     fetch.Options
	metrics  *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records per-record outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithBreaker overrides the circuit breaker guarding the primary provider.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(e *Engine) {
		if ps, ok := e.strategy.(*placesStrategy); ok {
			ps.breaker = cb
		}
	}
}

// New builds an Engine. The strategy is decided here and never changes.
func New(cfg Config, primary ports.PrimaryPlaces, secondary ports.SecondaryPlaces, opts ...Option) *Engine {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	var s Strategy
	if strings.TrimSpace(cfg.PlacesKey) != "" {
		s = &placesStrategy{
			provider: primary,
			breaker:  resilience.NewCircuitBreaker(resilience.BreakerConfig{Name: "google_places"}),
		}
	} else {
		s = &geocodeStrategy{provider: secondary}
	}

	e := &Engine{
		strategy: s,
		opts:     fetch.Options{Concurrency: cfg.Concurrency, Timeout: cfg.Timeout},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Strategy returns the name of the provider every record is sent to.
func (e *Engine) Strategy() string { return e.strategy.Name() }

// Enrich returns enriched copies of records in input order. A record whose
// lookup fails or matches nothing is returned unchanged, as is a record the
// strategy has nothing to query with.
func (e *Engine) Enrich(ctx context.Context, records []model.MergedRecord) []model.MergedRecord {
	out := make([]model.MergedRecord, len(records))
	var targets []int
	for i, r := range records {
		out[i] = r.Clone()
		if !e.strategy.Queryable(r) {
			e.metrics.EnrichOutcome(e.strategy.Name(), OutcomeSkipped)
			continue
		}
		targets = append(targets, i)
	}
	if len(targets) == 0 {
		return out
	}

	type result struct {
		rec     model.MergedRecord
		matched bool
	}

	outcomes := fetch.Run(ctx, targets, func(ctx context.Context, i int) (result, error) {
		rec := out[i].Clone()
		matched, err := e.strategy.Apply(ctx, &rec)
		if err != nil {
			return result{}, err
		}
		return result{rec: rec, matched: matched}, nil
	}, e.opts)

	var enriched, failed int
	for k, o := range outcomes {
		i := targets[k]
		switch {
		case !o.OK():
			failed++
			e.metrics.EnrichOutcome(e.strategy.Name(), OutcomeFailed)
			zap.L().Debug("enrich: record lookup failed",
				zap.String("provider", e.strategy.Name()),
				zap.String("name", out[i].Name),
				zap.Error(o.Err),
			)
		case o.Value.matched:
			enriched++
			out[i] = o.Value.rec
			e.metrics.EnrichOutcome(e.strategy.Name(), OutcomeEnriched)
		default:
			e.metrics.EnrichOutcome(e.strategy.Name(), OutcomeNoMatch)
		}
	}

	zap.L().Info("enrich: batch complete",
		zap.String("provider", e.strategy.Name()),
		zap.Int("records", len(records)),
		zap.Int("looked_up", len(targets)),
		zap.Int("enriched", enriched),
		zap.Int("failed", failed),
	)
	return out
}

// placesStrategy treats the primary provider as authoritative: any field it
// supplies replaces the current value.
type placesStrategy struct {
	provider ports.PrimaryPlaces
	breaker  *resilience.CircuitBreaker
}

func (s *placesStrategy) Name() string { return "google_places" }

// Queryable requires a name; Find Place searches by name alone.
func (s *placesStrategy) Queryable(rec model.MergedRecord) bool {
	return strings.TrimSpace(rec.Name) != ""
}

func (s *placesStrategy) Apply(ctx context.Context, rec *model.MergedRecord) (bool, error) {
	name := rec.Name
	details, err := resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) (*ports.PlaceDetails, error) {
		return s.provider.FindPlace(ctx, name)
	})
	if err != nil {
		return false, eris.Wrapf(err, "enrich: find place %q", name)
	}
	if details == nil {
		return false, nil
	}

	if details.Address != "" {
		rec.Address = model.StringPtr(details.Address)
	}
	if details.Phone != "" {
		rec.Phone = model.StringPtr(details.Phone)
	}
	if details.Website != "" {
		rec.Website = details.Website
	}
	return true, nil
}

// geocodeStrategy canonicalizes the address and links the map object when
// the record has no website.
type geocodeStrategy struct {
	provider ports.SecondaryPlaces
}

func (s *geocodeStrategy) Name() string { return "nominatim" }

// Queryable accepts a record with a name, an address or both.
func (s *geocodeStrategy) Queryable(rec model.MergedRecord) bool {
	return strings.TrimSpace(rec.Name) != "" || strings.TrimSpace(model.Deref(rec.Address)) != ""
}

func (s *geocodeStrategy) Apply(ctx context.Context, rec *model.MergedRecord) (bool, error) {
	match, err := s.provider.Lookup(ctx, rec.Name, model.Deref(rec.Address))
	if err != nil {
		return false, eris.Wrapf(err, "enrich: geocode %q", rec.Name)
	}
	if match == nil {
		return false, nil
	}

	if match.FormattedAddress != "" {
		rec.Address = model.StringPtr(match.FormattedAddress)
	}
	if rec.Website == "" {
		rec.Website = ObjectURL(match)
	}
	return true, nil
}

// ObjectURL is the deterministic openstreetmap.org link for a match, or ""
// when the match carries no object reference.
func ObjectURL(m *ports.GeoMatch) string {
	if m == nil || m.ObjectType == "" || m.ObjectID == "" {
		return ""
	}
	return fmt.Sprintf("https://www.openstreetmap.org/%s/%s", m.ObjectType, m.ObjectID)
}
