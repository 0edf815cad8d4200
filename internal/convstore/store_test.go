package convstore

import (
	"strings"
	"testing"
)

func TestAppend_RejectsIDCollision(t *testing.T) {
	s := New()
	if !s.Append("sess1", Record{ID: "m1", Kind: KindUser, Content: "hello"}) {
		t.Fatal("first append should succeed")
	}
	if s.Append("sess1", Record{ID: "m1", Kind: KindUser, Content: "different content"}) {
		t.Fatal("append with a colliding id should be rejected")
	}
	if got := len(s.Get("sess1", 0)); got != 1 {
		t.Fatalf("expected 1 stored record, got %d", got)
	}
}

func TestAppend_RejectsNormalizedDuplicateWithinWindow(t *testing.T) {
	s := New()
	s.Append("sess1", Record{ID: "a", Kind: KindAssistant, Content: "Hello there!"})
	if s.Append("sess1", Record{ID: "b", Kind: KindAssistant, Content: "hello   there!"}) {
		t.Fatal("normalized-duplicate same-kind content should be rejected")
	}
	// A different kind with the same content is not a duplicate.
	if !s.Append("sess1", Record{ID: "c", Kind: KindUser, Content: "Hello there!"}) {
		t.Fatal("same content under a different kind should be accepted")
	}
}

func TestAppend_OutsideDedupeWindowIsAccepted(t *testing.T) {
	s := New()
	s.Append("sess1", Record{ID: "m0", Kind: KindAssistant, Content: "repeat me"})
	for i := 0; i < dedupeWindow; i++ {
		s.Append("sess1", Record{ID: string(rune('a' + i)), Kind: KindAssistant, Content: "filler " + string(rune('a'+i))})
	}
	if !s.Append("sess1", Record{ID: "m-last", Kind: KindAssistant, Content: "repeat me"}) {
		t.Fatal("content outside the dedupe window should be accepted again")
	}
}

func TestExport_RoundTrip(t *testing.T) {
	s := New()
	s.Append("sess1", Record{ID: "1", Kind: KindUser, Content: "what's tree?", Metadata: map[string]any{"turn": float64(1)}})
	s.Append("sess1", Record{ID: "2", Kind: KindAssistant, Content: "tree is 木"})

	data, err := s.Export("sess1", FormatJSON)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	s2 := New()
	if err := s2.Import("sess2", data); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	got := s2.Get("sess2", 0)
	want := s.Get("sess1", 0)
	if len(got) != len(want) {
		t.Fatalf("expected %d records after round-trip, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Content != want[i].Content || got[i].Kind != want[i].Kind {
			t.Errorf("record %d mismatch: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestExport_TXTAndCSVShapes(t *testing.T) {
	s := New()
	s.Append("sess1", Record{ID: "1", Kind: KindUser, Content: "hi"})

	txt, err := s.Export("sess1", FormatTXT)
	if err != nil {
		t.Fatalf("txt export failed: %v", err)
	}
	if !strings.Contains(string(txt), "USER: hi") {
		t.Errorf("txt export missing expected line, got %q", txt)
	}

	csvData, err := s.Export("sess1", FormatCSV)
	if err != nil {
		t.Fatalf("csv export failed: %v", err)
	}
	if !strings.Contains(string(csvData), "timestamp,type,content,metadata") {
		t.Errorf("csv export missing header, got %q", csvData)
	}
}

func TestClear(t *testing.T) {
	s := New()
	s.Append("sess1", Record{ID: "1", Kind: KindUser, Content: "hi"})
	s.Clear("sess1")
	if got := len(s.Get("sess1", 0)); got != 0 {
		t.Fatalf("expected empty history after Clear, got %d records", got)
	}
	// The id should be reusable after a clear.
	if !s.Append("sess1", Record{ID: "1", Kind: KindUser, Content: "hi again"}) {
		t.Fatal("id should be reusable after Clear")
	}
}
