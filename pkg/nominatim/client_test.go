package nominatim

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Acme MG Road", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "finder-test/1.0", r.Header.Get("User-Agent"))

		_, _ = w.Write([]byte(`[{"place_id":1,"osm_type":"way","osm_id":4242,
			"display_name":"Acme, MG Road, Bengaluru, Karnataka, 560001, India","lat":"12.97","lon":"77.59"}]`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithUserAgent("finder-test/1.0"), WithRateLimit(rate.Inf, 1))
	places, err := client.Search(context.Background(), "Acme MG Road")

	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, "Acme, MG Road, Bengaluru, Karnataka, 560001, India", places[0].DisplayName)
	assert.Equal(t, "way", places[0].OSMType)
	assert.Equal(t, int64(4242), places[0].OSMID)
}

func TestSearch_DefaultUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, defaultUserAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	places, err := NewClient(WithBaseURL(srv.URL), WithUserAgent("")).Search(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, places)
}

func TestSearch_RateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(rate.Every(50*time.Millisecond), 1))

	start := time.Now()
	for range 3 {
		_, err := client.Search(context.Background(), "x")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearch_WaitHonoursContext(t *testing.T) {
	client := NewClient(WithBaseURL("http://127.0.0.1:0"), WithRateLimit(rate.Every(time.Hour), 1))
	_, _ = client.Search(context.Background(), "burn the token")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := client.Search(ctx, "x")
	assert.ErrorContains(t, err, "nominatim: rate limit wait")
}

func TestSearch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Search(context.Background(), "x")
	assert.ErrorContains(t, err, "403")
}
