package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"asterhunt/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatusWithoutLiveRun(t *testing.T) {
	s := New(":0", nil, nil, testLogger())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if live, ok := body["live"].(bool); !ok || live {
		t.Errorf("expected live=false, got %v", body)
	}
}

func TestStacksWithoutLiveRunIs404(t *testing.T) {
	s := New(":0", nil, nil, testLogger())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/stacks", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", rec.Code)
	}
}

func TestRunsEndpointServesStore(t *testing.T) {
	store, err := storage.New(filepath.Join(t.TempDir(), "t.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	id, err := store.BeginRun("/data/x", 3, nil)
	if err != nil {
		t.Fatal(err)
	}

	s := New(":0", store, nil, testLogger())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/runs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var runs []storage.RunRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != id {
		t.Errorf("runs = %+v", runs)
	}

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/runs/"+id+"/movers", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("movers status %d", rec.Code)
	}
}
