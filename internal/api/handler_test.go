package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakerunner/internal/domain"
	"lakerunner/internal/engine"
	"lakerunner/internal/jobs"
	"lakerunner/internal/schema"
	"lakerunner/internal/store"
)

type stubAdapter struct {
	id      string
	execute func(ctx context.Context, sqlText string) (*engine.RawResult, error)
}

func (s *stubAdapter) Descriptor() domain.EngineDescriptor {
	return domain.EngineDescriptor{ID: s.id, MaxConcurrency: 1}
}

func (s *stubAdapter) Execute(ctx context.Context, sqlText string) (*engine.RawResult, error) {
	if s.execute != nil {
		return s.execute(ctx, sqlText)
	}
	return &engine.RawResult{
		Columns:   []string{"n"},
		TypeNames: []string{"BIGINT"},
		Rows:      [][]interface{}{{int64(1)}},
		WallTime:  time.Millisecond,
	}, nil
}

func (s *stubAdapter) Ping(context.Context) error { return nil }
func (s *stubAdapter) Close() error               { return nil }

func newTestServer(t *testing.T, cfg RouterConfig, adapters ...engine.Adapter) *httptest.Server {
	t.Helper()
	if len(adapters) == 0 {
		adapters = []engine.Adapter{&stubAdapter{id: "duckdb"}}
	}

	registry := engine.NewRegistry(adapters...)
	manager := jobs.NewManager(store.NewMemoryJobStore(), registry, jobs.Options{}, nil)
	require.NoError(t, manager.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})

	var dialects []string
	for _, a := range adapters {
		dialects = append(dialects, a.Descriptor().ID)
	}
	schemas := schema.NewRegistry(store.NewMemorySchemaStore(), dialects, nil)

	h := NewHandler(manager, schemas, registry, nil)
	srv := httptest.NewServer(h.Router(cfg))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestSubmitAndPollQuery(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})

	resp := postJSON(t, srv.URL+"/v1/queries", map[string]string{
		"sql": "SELECT 1", "engine_id": "duckdb",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var submitted submitQueryResponse
	decodeBody(t, resp, &submitted)
	require.NotEmpty(t, submitted.JobID)
	assert.Equal(t, "QUEUED", submitted.State)

	require.Eventually(t, func() bool {
		r, err := http.Get(srv.URL + "/v1/queries/" + submitted.JobID)
		if err != nil {
			return false
		}
		defer r.Body.Close()
		var status jobStatusResponse
		if err := json.NewDecoder(r.Body).Decode(&status); err != nil {
			return false
		}
		return status.State == "SUCCEEDED"
	}, 5*time.Second, 10*time.Millisecond)

	r, err := http.Get(srv.URL + "/v1/queries/" + submitted.JobID + "/result")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, r.StatusCode)

	var result jobResultResponse
	decodeBody(t, r, &result)
	assert.Equal(t, "SUCCEEDED", result.State)
	require.Len(t, result.Columns, 1)
	assert.Equal(t, "n", result.Columns[0].Name)
	require.Len(t, result.Rows, 1)
	assert.EqualValues(t, 1, result.Rows[0][0])
	require.NotNil(t, result.Stats)
	assert.Equal(t, 1, result.Stats.RowsReturned)
}

func TestSubmitUnknownEngineReturns404(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})

	resp := postJSON(t, srv.URL+"/v1/queries", map[string]string{
		"sql": "SELECT 1", "engine_id": "sparkles",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitEmptySQLReturns400(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})

	resp := postJSON(t, srv.URL+"/v1/queries", map[string]string{
		"sql": "  ", "engine_id": "duckdb",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResultBeforeTerminalReturns409(t *testing.T) {
	release := make(chan struct{})
	slow := &stubAdapter{id: "duckdb", execute: func(ctx context.Context, _ string) (*engine.RawResult, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, domain.ErrAdapter(domain.ErrorKindCancelled, "cancelled")
		}
		return &engine.RawResult{Columns: []string{"n"}, TypeNames: []string{"BIGINT"}, Rows: nil}, nil
	}}
	srv := newTestServer(t, RouterConfig{}, slow)
	defer close(release)

	resp := postJSON(t, srv.URL+"/v1/queries", map[string]string{
		"sql": "SELECT 1", "engine_id": "duckdb",
	})
	var submitted submitQueryResponse
	decodeBody(t, resp, &submitted)

	r, err := http.Get(srv.URL + "/v1/queries/" + submitted.JobID + "/result")
	require.NoError(t, err)
	defer r.Body.Close()
	assert.Equal(t, http.StatusConflict, r.StatusCode)
}

func TestFailedJobResultCarriesErrorKind(t *testing.T) {
	failing := &stubAdapter{id: "duckdb", execute: func(context.Context, string) (*engine.RawResult, error) {
		return nil, domain.ErrAdapter(domain.ErrorKindAdapterFailure, "table missing")
	}}
	srv := newTestServer(t, RouterConfig{}, failing)

	resp := postJSON(t, srv.URL+"/v1/queries", map[string]string{
		"sql": "SELECT * FROM nope", "engine_id": "duckdb",
	})
	var submitted submitQueryResponse
	decodeBody(t, resp, &submitted)

	var result jobResultResponse
	require.Eventually(t, func() bool {
		r, err := http.Get(srv.URL + "/v1/queries/" + submitted.JobID + "/result")
		if err != nil {
			return false
		}
		defer r.Body.Close()
		if r.StatusCode != http.StatusOK {
			return false
		}
		return json.NewDecoder(r.Body).Decode(&result) == nil
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "FAILED", result.State)
	assert.Equal(t, "ADAPTER_FAILURE", result.ErrorKind)
	assert.Contains(t, result.Message, "table missing")
}

func TestCancelQueuedJobViaHTTP(t *testing.T) {
	block := make(chan struct{})
	blocking := &stubAdapter{id: "duckdb", execute: func(ctx context.Context, _ string) (*engine.RawResult, error) {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, domain.ErrAdapter(domain.ErrorKindCancelled, "cancelled")
		}
		return &engine.RawResult{}, nil
	}}
	srv := newTestServer(t, RouterConfig{}, blocking)
	defer close(block)

	// First job occupies the single worker; the second stays queued.
	first := postJSON(t, srv.URL+"/v1/queries", map[string]string{"sql": "SELECT 1", "engine_id": "duckdb"})
	first.Body.Close()
	resp := postJSON(t, srv.URL+"/v1/queries", map[string]string{"sql": "SELECT 2", "engine_id": "duckdb"})
	var submitted submitQueryResponse
	decodeBody(t, resp, &submitted)

	r, err := http.Post(srv.URL+"/v1/queries/"+submitted.JobID+"/cancel", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, r.StatusCode)

	var cancelled cancelJobResponse
	decodeBody(t, r, &cancelled)
	assert.Equal(t, "CANCELLED", cancelled.State)
}

func TestUnknownJobReturns404(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})

	for _, path := range []string{
		"/v1/queries/" + domain.NewID(),
		"/v1/queries/" + domain.NewID() + "/result",
	} {
		r, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		r.Body.Close()
		assert.Equal(t, http.StatusNotFound, r.StatusCode, path)
	}
}

func TestSchemaRegisterAndFetch(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})

	fields := []map[string]interface{}{
		{"name": "id", "type": "int64", "nullable": false},
		{"name": "note", "type": "string", "nullable": true},
	}
	resp := postJSON(t, srv.URL+"/v1/schemas", map[string]interface{}{
		"table_name": "events", "fields": fields,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created schemaResponse
	decodeBody(t, resp, &created)
	assert.Equal(t, "events", created.TableName)
	assert.Equal(t, 1, created.Version)
	assert.Contains(t, created.CompiledDDL, "duckdb")

	// Second registration bumps the version.
	resp = postJSON(t, srv.URL+"/v1/schemas", map[string]interface{}{
		"table_name": "events", "fields": fields,
	})
	var second schemaResponse
	decodeBody(t, resp, &second)
	assert.Equal(t, 2, second.Version)

	// Current resolves to the latest, explicit version still serves v1.
	r, err := http.Get(srv.URL + "/v1/schemas/events")
	require.NoError(t, err)
	var current schemaResponse
	decodeBody(t, r, &current)
	assert.Equal(t, 2, current.Version)

	r, err = http.Get(srv.URL + "/v1/schemas/events/versions/1")
	require.NoError(t, err)
	var v1 schemaResponse
	decodeBody(t, r, &v1)
	assert.Equal(t, 1, v1.Version)

	r, err = http.Get(srv.URL + "/v1/schemas/events/versions")
	require.NoError(t, err)
	var listing struct {
		TableName string                    `json:"table_name"`
		Versions  []domain.SchemaVersionInfo `json:"versions"`
	}
	decodeBody(t, r, &listing)
	require.Len(t, listing.Versions, 2)
	assert.Equal(t, 2, listing.Versions[0].FieldCount)
}

func TestSchemaUnknownTableReturns404(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})

	r, err := http.Get(srv.URL + "/v1/schemas/missing")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusNotFound, r.StatusCode)
}

func TestSchemaBadVersionReturns400(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})

	r, err := http.Get(srv.URL + "/v1/schemas/events/versions/zero")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

func TestListEngines(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})

	r, err := http.Get(srv.URL + "/v1/engines")
	require.NoError(t, err)
	var body struct {
		Engines []struct {
			ID             string `json:"id"`
			MaxConcurrency int    `json:"max_concurrency"`
			QueueDepth     int    `json:"queue_depth"`
		} `json:"engines"`
	}
	decodeBody(t, r, &body)
	require.Len(t, body.Engines, 1)
	assert.Equal(t, "duckdb", body.Engines[0].ID)
	assert.Equal(t, 1, body.Engines[0].MaxConcurrency)
	assert.Zero(t, body.Engines[0].QueueDepth)
}

func TestListEnginesReportsQueueDepth(t *testing.T) {
	block := make(chan struct{})
	blocking := &stubAdapter{id: "duckdb", execute: func(ctx context.Context, _ string) (*engine.RawResult, error) {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, domain.ErrAdapter(domain.ErrorKindCancelled, "cancelled")
		}
		return &engine.RawResult{}, nil
	}}
	srv := newTestServer(t, RouterConfig{}, blocking)
	defer close(block)

	// One job occupies the single worker, two more wait in the queue.
	for i := 0; i < 3; i++ {
		resp := postJSON(t, srv.URL+"/v1/queries", map[string]string{
			"sql": fmt.Sprintf("SELECT %d", i), "engine_id": "duckdb",
		})
		resp.Body.Close()
	}

	var body struct {
		Engines []struct {
			ID         string `json:"id"`
			QueueDepth int    `json:"queue_depth"`
		} `json:"engines"`
	}
	require.Eventually(t, func() bool {
		r, err := http.Get(srv.URL + "/v1/engines")
		if err != nil {
			return false
		}
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return false
		}
		return len(body.Engines) == 1 && body.Engines[0].QueueDepth == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})

	r, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var body struct {
		Status string `json:"status"`
	}
	decodeBody(t, r, &body)
	assert.Equal(t, "ok", body.Status)
}

func TestSubmitRateLimited(t *testing.T) {
	srv := newTestServer(t, RouterConfig{RateLimitRPS: 1, RateLimitBurst: 2})

	var limited bool
	for i := 0; i < 5; i++ {
		resp := postJSON(t, srv.URL+"/v1/queries", map[string]string{
			"sql": fmt.Sprintf("SELECT %d", i), "engine_id": "duckdb",
		})
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited, "burst of submissions should trip the limiter")

	// Reads are never rate limited.
	r, err := http.Get(srv.URL + "/v1/engines")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)
}
