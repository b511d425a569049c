package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStage("search", time.Second, 3)
		m.StageFailed("search")
		m.FetchOutcome("scrape", nil)
		m.EnrichOutcome("google_places", "ok")
		m.RunFinished("done")
	})
	assert.NotNil(t, m.Handler())
}

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveStage("scrape", 2*time.Second, 3)
	m.ObserveStage("scrape", time.Second, 2)
	m.StageFailed("dedup")
	m.FetchOutcome("scrape", nil)
	m.FetchOutcome("scrape", context.DeadlineExceeded)
	m.FetchOutcome("scrape", errors.New("scrape: status 404"))
	m.EnrichOutcome("nominatim", "enriched")
	m.RunFinished("done")

	assert.Equal(t, float64(5), testutil.ToFloat64(m.StageItems.WithLabelValues("scrape")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StageFailures.WithLabelValues("dedup")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchOutcomes.WithLabelValues("scrape", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchOutcomes.WithLabelValues("scrape", "timeout")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchOutcomes.WithLabelValues("scrape", "permanent")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EnrichOutcomes.WithLabelValues("nominatim", "enriched")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Runs.WithLabelValues("done")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RunFinished("failed")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `company_finder_runs_total{status="failed"} 1`)
}
