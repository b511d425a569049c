package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-finder/internal/metrics"
	"github.com/sells-group/company-finder/internal/model"
	"github.com/sells-group/company-finder/internal/pipeline"
	"github.com/sells-group/company-finder/internal/store"
)

type fakeRunner struct {
	got model.Request
	res *pipeline.Result
	err error
}

func (f *fakeRunner) Run(_ context.Context, req model.Request) (*pipeline.Result, error) {
	f.got = req
	return f.res, f.err
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := New(&fakeRunner{}, nil, nil).Handler()

	rec := do(t, h, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestFind_Success(t *testing.T) {
	runner := &fakeRunner{res: &pipeline.Result{
		RunID:   "run-1",
		Records: []model.MergedRecord{{Name: "Acme Pay", Website: "https://acme.example"}},
	}}
	h := New(runner, nil, nil).Handler()

	rec := do(t, h, http.MethodPost, "/v1/find", `{"industry":" fintech ","location":"Bengaluru","k":4}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.Request{Industry: "fintech", Location: "Bengaluru", K: 4}, runner.got)

	var got pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "Acme Pay", got.Records[0].Name)
}

func TestFind_EmptyRecordsEncodeAsArray(t *testing.T) {
	h := New(&fakeRunner{res: &pipeline.Result{RunID: "run-2"}}, nil, nil).Handler()

	rec := do(t, h, http.MethodPost, "/v1/find", `{"industry":"fintech","location":"Pune"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"records":[]`)
}

func TestFind_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"industry":`, "invalid request body"},
		{"unknown field", `{"industry":"a","location":"b","extra":1}`, "invalid request body"},
		{"missing industry", `{"location":"Pune"}`, "industry is required"},
		{"blank location", `{"industry":"fintech","location":"  "}`, "location is required"},
		{"k too large", `{"industry":"fintech","location":"Pune","k":500}`, "k must be between 0 and 50"},
		{"negative k", `{"industry":"fintech","location":"Pune","k":-1}`, "k must be between 0 and 50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			h := New(runner, nil, nil).Handler()

			rec := do(t, h, http.MethodPost, "/v1/find", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			assert.Empty(t, runner.got.Industry)
		})
	}
}

func TestFind_StageError(t *testing.T) {
	runner := &fakeRunner{err: &pipeline.StageError{
		Stage: model.RunStatusExtracting,
		Err:   errors.New("oracle unavailable"),
	}}
	h := New(runner, nil, nil).Handler()

	rec := do(t, h, http.MethodPost, "/v1/find", `{"industry":"fintech","location":"Pune"}`)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "extracting", body["stage"])
	assert.Contains(t, body["error"], "oracle unavailable")
}

func TestFind_InternalError(t *testing.T) {
	h := New(&fakeRunner{err: errors.New("boom")}, nil, nil).Handler()

	rec := do(t, h, http.MethodPost, "/v1/find", `{"industry":"fintech","location":"Pune"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestRuns_StoreDisabled(t *testing.T) {
	h := New(&fakeRunner{}, nil, nil).Handler()

	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/v1/runs", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/v1/runs/abc", "").Code)
}

func TestRuns_ListAndGet(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	done, err := st.CreateRun(ctx, model.Request{Industry: "fintech", Location: "Pune"})
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, done.ID, []model.MergedRecord{{Name: "Acme Pay"}}))
	failed, err := st.CreateRun(ctx, model.Request{Industry: "dental", Location: "Austin"})
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, failed.ID, "search down"))

	h := New(&fakeRunner{}, st, nil).Handler()

	rec := do(t, h, http.MethodGet, "/v1/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rec = do(t, h, http.MethodGet, "/v1/runs?status=failed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var onlyFailed []model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &onlyFailed))
	require.Len(t, onlyFailed, 1)
	assert.Equal(t, failed.ID, onlyFailed[0].ID)
	assert.Equal(t, "search down", onlyFailed[0].Error)

	rec = do(t, h, http.MethodGet, "/v1/runs/"+done.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.RunStatusDone, got.Status)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "Acme Pay", got.Records[0].Name)
}

func TestRuns_EmptyListEncodesAsArray(t *testing.T) {
	h := New(&fakeRunner{}, newTestStore(t), nil).Handler()

	rec := do(t, h, http.MethodGet, "/v1/runs", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRuns_NotFound(t *testing.T) {
	h := New(&fakeRunner{}, newTestStore(t), nil).Handler()

	rec := do(t, h, http.MethodGet, "/v1/runs/missing", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"run not found"}`, rec.Body.String())
}

func TestRuns_BadPagination(t *testing.T) {
	h := New(&fakeRunner{}, newTestStore(t), nil).Handler()

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/runs?limit=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/runs?offset=-3", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	m.RunFinished("done")
	h := New(&fakeRunner{}, nil, m).Handler()

	rec := do(t, h, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `company_finder_runs_total{status="done"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	h := New(&fakeRunner{}, nil, nil).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/v1/find", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	h := New(&fakeRunner{}, nil, nil).Handler()

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v2/nothing", "").Code)
}
