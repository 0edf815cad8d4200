package registry

import (
	"testing"
	"time"

	"kotori/internal/config"
	"kotori/internal/graph"
)

func newTestRegistry() *Registry {
	rt := &graph.Runtime{
		Graph:        graph.NewGraph(graph.NodeGreeting),
		Checkpoints:  graph.NewMemoryCheckpointer(),
		SystemConfig: config.DefaultSystemConfig(),
	}
	return New(rt, nil, nil)
}

func TestCreate_NeverReusesIDs(t *testing.T) {
	r := newTestRegistry()
	cfg := graph.Config{Language: graph.LanguageEnglish, DeckName: "Test"}

	id1, err := r.Create(cfg)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	id2, err := r.Create(cfg)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if id1 == id2 {
		t.Fatal("expected distinct session ids")
	}
	if r.Count() != 2 {
		t.Fatalf("expected 2 sessions, got %d", r.Count())
	}
}

func TestExistsAndGet(t *testing.T) {
	r := newTestRegistry()
	cfg := graph.Config{Language: graph.LanguageJapanese, DeckName: "JP"}
	id, _ := r.Create(cfg)

	if !r.Exists(id) {
		t.Fatal("expected session to exist")
	}
	if r.Exists("not-a-real-id") {
		t.Fatal("unexpected session found")
	}

	rec, ok := r.Get(id)
	if !ok {
		t.Fatal("expected to fetch session record")
	}
	if rec.Config.DeckName != "JP" {
		t.Fatalf("unexpected config on record: %+v", rec.Config)
	}
	if rec.IsActive {
		t.Fatal("a freshly-created session should not be active until attached")
	}
}

func TestCleanupInactive_RemovesOnlyStaleDisconnected(t *testing.T) {
	r := newTestRegistry()
	cfg := graph.Config{Language: graph.LanguageEnglish, DeckName: "Test"}

	staleID, _ := r.Create(cfg)
	freshID, _ := r.Create(cfg)

	e, _ := r.get(staleID)
	e.mu.Lock()
	e.record.LastActivity = time.Now().Add(-48 * time.Hour)
	e.mu.Unlock()

	removed := r.CleanupInactive(nil, 24*time.Hour)
	if removed != 1 {
		t.Fatalf("expected 1 session removed, got %d", removed)
	}
	if r.Exists(staleID) {
		t.Fatal("stale session should have been reaped")
	}
	if !r.Exists(freshID) {
		t.Fatal("fresh session should not have been reaped")
	}
}

func TestUpdateUISettings_Merges(t *testing.T) {
	r := newTestRegistry()
	cfg := graph.Config{Language: graph.LanguageEnglish, DeckName: "Test"}
	id, _ := r.Create(cfg)

	if err := r.UpdateUISettings(id, map[string]any{"theme": "dark"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.UpdateUISettings(id, map[string]any{"font_size": 14}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, _ := r.Get(id)
	if rec.UISettings["theme"] != "dark" || rec.UISettings["font_size"] != 14 {
		t.Fatalf("expected merged settings, got %+v", rec.UISettings)
	}
}
