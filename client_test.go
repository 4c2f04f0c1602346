package chronodex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(WithBaseURL(srv.URL), WithAPIKey("secret"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, srv
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(); err == nil {
		t.Fatal("expected error without base URL")
	}
}

func TestClient_CreateAndGetDataSource(t *testing.T) {
	rollup, _ := NewRollup(Dimensions("host"), []Aggregator{Count("count")}, GranularityHour)
	ds, _ := NewDataSource("web_events", NewTimestampSpec("ts", TimestampAuto), rollup)

	var stored []byte
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/datasources", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		var body DataSource
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		stored, _ = json.Marshal(body)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /v1/datasources/web_events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(stored)
	})

	c, _ := newTestClient(t, mux)
	ctx := context.Background()

	if err := c.CreateDataSource(ctx, ds); err != nil {
		t.Fatalf("CreateDataSource: %v", err)
	}
	back, err := c.GetDataSource(ctx, "web_events")
	if err != nil {
		t.Fatalf("GetDataSource: %v", err)
	}
	if back.Name() != "web_events" {
		t.Errorf("name = %q", back.Name())
	}
}

func TestClient_GetDataSource_NotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "datasource not found"})
	}))

	_, err := c.GetDataSource(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_Ingest(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/datasources/web_events/events" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var events []map[string]any
		if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(IngestResult{BatchID: "b1", Received: len(events)})
	}))

	res, err := c.Ingest(context.Background(), "web_events", []map[string]any{
		{"ts": "2026-03-14T15:09:26Z", "host": "a", "bytes": 10},
		{"ts": "2026-03-14T15:09:27Z", "host": "b", "bytes": 20},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Received != 2 {
		t.Errorf("received = %d, want 2", res.Received)
	}
}

func TestClient_ListDataSources(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"dataSources": []string{"a", "b"}})
	}))

	names, err := c.ListDataSources(context.Background())
	if err != nil {
		t.Fatalf("ListDataSources: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("names = %v", names)
	}
}
