package api

import (
	"context"
	stdjson "encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kotori/internal/config"
	"kotori/internal/convstore"
	"kotori/internal/flashcard"
	"kotori/internal/graph"
	"kotori/internal/registry"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	g := graph.NewGraph(graph.NodeGreeting)
	g.AddNode(graph.NodeGreeting, func(ctx context.Context, rt *graph.Runtime, state *graph.State, resume *string) (graph.Step, error) {
		return graph.Pending("Hey!", state), nil
	})
	rt := &graph.Runtime{
		Graph:        g,
		Checkpoints:  graph.NewMemoryCheckpointer(),
		SystemConfig: config.DefaultSystemConfig(),
	}
	reg := registry.New(rt, nil, nil)
	hist := convstore.New()
	fc := flashcard.New("http://127.0.0.1:0", 0)
	return NewServer(reg, hist, fc)
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestServer(t)

	body := strings.NewReader(`{"language":"english","deck_name":"Kotori","temperature":0.7}`)
	req := httptest.NewRequest(http.MethodPost, "/sessions", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created sessionView
	if err := stdjson.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.DeckName != "Kotori" {
		t.Fatalf("expected deck_name Kotori, got %q", created.DeckName)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/sessions/"+created.ID, nil)
	getRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", getRec.Code)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/sessions/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var errBody errorBody
	if err := stdjson.Unmarshal(rec.Body.Bytes(), &errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody.Error != "not_found" {
		t.Fatalf("expected not_found, got %q", errBody.Error)
	}
}

func TestCreateSession_RejectsBadTemperature(t *testing.T) {
	s := newTestServer(t)
	body := strings.NewReader(`{"language":"english","deck_name":"Kotori","temperature":5}`)
	req := httptest.NewRequest(http.MethodPost, "/sessions", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHistoryExportAndClear(t *testing.T) {
	s := newTestServer(t)
	createReq := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"language":"english","deck_name":"Kotori"}`))
	createRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(createRec, createReq)
	var created sessionView
	stdjson.Unmarshal(createRec.Body.Bytes(), &created)

	s.history.Append(created.ID, convstore.Record{ID: "m1", Kind: convstore.KindUser, Content: "hello"})

	histReq := httptest.NewRequest(http.MethodGet, "/sessions/"+created.ID+"/history", nil)
	histRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(histRec, histReq)
	if histRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", histRec.Code)
	}
	if !strings.Contains(histRec.Body.String(), "hello") {
		t.Fatalf("expected history to contain appended message, got %s", histRec.Body.String())
	}

	exportReq := httptest.NewRequest(http.MethodPost, "/sessions/"+created.ID+"/history/export", strings.NewReader(`{"format":"txt"}`))
	exportRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(exportRec, exportReq)
	if exportRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", exportRec.Code)
	}
	if !strings.Contains(exportRec.Body.String(), "HELLO") && !strings.Contains(exportRec.Body.String(), "hello") {
		t.Fatalf("expected export to contain message content, got %s", exportRec.Body.String())
	}

	clearReq := httptest.NewRequest(http.MethodDelete, "/sessions/"+created.ID+"/history", nil)
	clearRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(clearRec, clearReq)
	if clearRec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", clearRec.Code)
	}
	if len(s.history.Get(created.ID, 0)) != 0 {
		t.Fatal("expected history to be cleared")
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMaintenanceCleanupInactive(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/maintenance/cleanup-inactive?max_age_hours=0", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
