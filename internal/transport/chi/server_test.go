package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/chronodex"
	"github.com/kailas-cloud/chronodex/internal/ingest"
	"github.com/kailas-cloud/chronodex/internal/logger"
)

type registryMock struct {
	specs     map[string]chronodex.DataSource
	createErr error
}

func newRegistryMock() *registryMock {
	return &registryMock{specs: make(map[string]chronodex.DataSource)}
}

func (m *registryMock) Create(_ context.Context, ds chronodex.DataSource) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.specs[ds.Name()]; ok {
		return chronodex.ErrAlreadyExists
	}
	m.specs[ds.Name()] = ds
	return nil
}

func (m *registryMock) Get(_ context.Context, name string) (chronodex.DataSource, error) {
	ds, ok := m.specs[name]
	if !ok {
		return chronodex.DataSource{}, chronodex.ErrNotFound
	}
	return ds, nil
}

func (m *registryMock) List(context.Context) ([]string, error) {
	var names []string
	for name := range m.specs {
		names = append(names, name)
	}
	return names, nil
}

func (m *registryMock) Delete(_ context.Context, name string) error {
	if _, ok := m.specs[name]; !ok {
		return chronodex.ErrNotFound
	}
	delete(m.specs, name)
	return nil
}

type ingesterMock struct {
	result      ingest.Result
	err         error
	invalidated []string
}

func (m *ingesterMock) Ingest(_ context.Context, _ string, events []map[string]any) (ingest.Result, error) {
	if m.err != nil {
		return ingest.Result{}, m.err
	}
	res := m.result
	if res.Received == 0 {
		res.Received = len(events)
	}
	return res, nil
}

func (m *ingesterMock) Invalidate(_ context.Context, name string) {
	m.invalidated = append(m.invalidated, name)
}

type pingerMock struct {
	err error
}

func (m *pingerMock) Ping(context.Context) error { return m.err }

func newTestServer(registry *registryMock, ingester *ingesterMock, pinger *pingerMock) *httptest.Server {
	srv := NewServer(registry, ingester, pinger, zap.NewNop())
	r := chirouter.NewRouter()
	srv.Routes(r)
	return httptest.NewServer(r)
}

func specJSON(t *testing.T) []byte {
	t.Helper()
	rollup, err := chronodex.NewRollup(
		chronodex.Dimensions("host"),
		[]chronodex.Aggregator{chronodex.Count("count")},
		chronodex.GranularityMinute,
	)
	if err != nil {
		t.Fatalf("NewRollup: %v", err)
	}
	ds, err := chronodex.NewDataSource("events",
		chronodex.NewTimestampSpec("ts", chronodex.TimestampAuto), rollup)
	if err != nil {
		t.Fatalf("NewDataSource: %v", err)
	}
	data, err := json.Marshal(ds)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestServer_CreateDataSource(t *testing.T) {
	registry := newRegistryMock()
	ts := newTestServer(registry, &ingesterMock{}, &pingerMock{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/datasources", "application/json", bytes.NewReader(specJSON(t)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if _, ok := registry.specs["events"]; !ok {
		t.Error("datasource not stored")
	}
}

func TestServer_CreateDataSourceBadSpec(t *testing.T) {
	ts := newTestServer(newRegistryMock(), &ingesterMock{}, &pingerMock{})
	defer ts.Close()

	// Duplicate column name between a dimension and a metric: the decoder
	// re-validates, so the conflict surfaces as a 400 before storage.
	body := `{
		"dataSource": "events",
		"timestampSpec": {"column": "ts", "format": "auto"},
		"dimensionsSpec": {"dimensions": ["count"], "spatialDimensions": []},
		"metricsSpec": [{"type": "count", "name": "count"}],
		"granularitySpec": {"segmentGranularity": "minute", "rollup": true}
	}`
	resp, err := http.Post(ts.URL+"/v1/datasources", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServer_CreateDataSourceConflict(t *testing.T) {
	registry := newRegistryMock()
	ts := newTestServer(registry, &ingesterMock{}, &pingerMock{})
	defer ts.Close()

	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		resp, err := http.Post(ts.URL+"/v1/datasources", "application/json", bytes.NewReader(specJSON(t)))
		if err != nil {
			t.Fatalf("POST #%d: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("POST #%d status = %d, want %d", i, resp.StatusCode, want)
		}
	}
}

func TestServer_GetDataSourceNotFound(t *testing.T) {
	ts := newTestServer(newRegistryMock(), &ingesterMock{}, &pingerMock{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/datasources/missing")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_ListDataSources(t *testing.T) {
	registry := newRegistryMock()
	ts := newTestServer(registry, &ingesterMock{}, &pingerMock{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/datasources")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		DataSources []string `json:"dataSources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.DataSources == nil {
		t.Error("empty list should serialize as [], not null")
	}
}

func TestServer_DeleteInvalidatesIngest(t *testing.T) {
	registry := newRegistryMock()
	ingester := &ingesterMock{}
	ts := newTestServer(registry, ingester, &pingerMock{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/datasources", "application/json", bytes.NewReader(specJSON(t)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/datasources/events", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if len(ingester.invalidated) != 1 || ingester.invalidated[0] != "events" {
		t.Errorf("invalidated = %v", ingester.invalidated)
	}
}

func TestServer_IngestEvents(t *testing.T) {
	ingester := &ingesterMock{result: ingest.Result{BatchID: "b-1", Received: 2, Dropped: 1}}
	ts := newTestServer(newRegistryMock(), ingester, &pingerMock{})
	defer ts.Close()

	body := `[{"ts": "2026-03-14T15:09:26Z", "host": "a"}]`
	resp, err := http.Post(ts.URL+"/v1/datasources/events/events", "application/json",
		bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var res ingest.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.BatchID != "b-1" || res.Received != 2 || res.Dropped != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestServer_IngestUnknownDataSource(t *testing.T) {
	ingester := &ingesterMock{err: chronodex.ErrNotFound}
	ts := newTestServer(newRegistryMock(), ingester, &pingerMock{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/datasources/missing/events", "application/json",
		bytes.NewBufferString(`[]`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_RequestLoggerTagsRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	srv := NewServer(newRegistryMock(), &ingesterMock{}, &pingerMock{}, zap.New(core))

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info("handled")
		w.WriteHeader(http.StatusOK)
	})
	handler = srv.RequestLogger(handler)
	handler = chimiddleware.RequestID(handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/datasources", nil))

	if logs.Len() != 1 {
		t.Fatalf("logged %d entries, want 1", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "handled" {
		t.Errorf("message = %q", entry.Message)
	}
	fields := entry.ContextMap()
	if id, ok := fields["request_id"].(string); !ok || id == "" {
		t.Errorf("request_id field = %v, want non-empty", fields["request_id"])
	}
}

func TestServer_Health(t *testing.T) {
	tests := []struct {
		name    string
		pingErr error
		want    int
	}{
		{"up", nil, http.StatusOK},
		{"degraded", errors.New("db down"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(newRegistryMock(), &ingesterMock{}, &pingerMock{err: tt.pingErr})
			defer ts.Close()

			resp, err := http.Get(ts.URL + "/health")
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
