package jina

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "no-content", r.Header.Get("X-Respond-With"))
		assert.Equal(t, "finder", r.Header.Get("User-Agent"))
		assert.Equal(t, "/fintech firms Pune", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(SearchResponse{
			Code: 200,
			Data: []SearchResult{
				{Title: "Acme", URL: "https://acme.io"},
				{Title: "Empty"},
				{Title: "Zenith", URL: "https://zenith.in"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithUserAgent("finder"))
	got, err := client.Search(context.Background(), "fintech firms Pune")

	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.io", "https://zenith.in"}, got.URLs())
}

func TestSearch_NoResults422(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	got, err := NewClient("k", WithBaseURL(srv.URL)).Search(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, got.URLs())
}

func TestSearch_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSearch_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{bad`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Search(context.Background(), "q")
	assert.ErrorContains(t, err, "jina: unmarshal search response")
}

func TestSearch_RetryOn500(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(SearchResponse{Data: []SearchResult{{URL: "https://ok.test"}}})
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), WithBackoff(time.Millisecond))
	got, err := client.Search(context.Background(), "q")

	require.NoError(t, err)
	assert.Equal(t, []string{"https://ok.test"}, got.URLs())
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearch_RetryExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), WithBackoff(time.Millisecond))
	_, err := client.Search(context.Background(), "q")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearch_ContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := NewClient("k", WithBaseURL(srv.URL), WithBackoff(time.Second))
	_, err := client.Search(ctx, "q")
	assert.Error(t, err)
}

func TestRetryableStatusCode(t *testing.T) {
	t.Parallel()

	for _, code := range []int{429, 500, 502, 503} {
		assert.True(t, retryableStatusCode(code), code)
	}
	for _, code := range []int{200, 400, 401, 404, 422} {
		assert.False(t, retryableStatusCode(code), code)
	}
}
