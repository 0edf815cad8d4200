// Package convstore is the append-only conversation history store backing
// the management API's history/export endpoints (spec §4.5, §6). It is kept
// separate from internal/graph.State.Messages: the graph's message log is
// the checkpointed working set a node reads and mutates; this store is the
// durable (in-process) per-session record used for export and the
// `GET /sessions/{id}/history` surface, the same split the teacher draws
// between `llm.ChatHistory` (working memory) and on-disk history.
package convstore

import (
	"encoding/csv"
	"fmt"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind mirrors graph.MessageKind without importing the graph package, so
// convstore has no dependency on the runtime it is recording.
type Kind string

const (
	KindUser       Kind = "user"
	KindAssistant  Kind = "assistant"
	KindSystem     Kind = "system"
	KindToolCall   Kind = "tool_call"
	KindToolResult Kind = "tool_result"
)

// Record is one stored conversation item.
type Record struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// dedupeWindow is how many of the most recent same-kind messages a new
// message's normalized content is checked against (spec §4.5, P3).
const dedupeWindow = 5

// Store holds one append-only record list per session, each guarded by its
// own mutex (spec §5 "the conversation store uses one mutex per session").
type Store struct {
	mu       sync.Mutex // guards the sessions map itself
	sessions map[string]*sessionLog
}

type sessionLog struct {
	mu      sync.Mutex
	records []Record
	ids     map[string]struct{}
}

func New() *Store {
	return &Store{sessions: make(map[string]*sessionLog)}
}

func (s *Store) logFor(sessionID string) *sessionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.sessions[sessionID]
	if !ok {
		l = &sessionLog{ids: make(map[string]struct{})}
		s.sessions[sessionID] = l
	}
	return l
}

func normalizeContent(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Append adds rec to sessionID's log. It reports false and does not store
// the record when rec.ID collides with an existing record, or when its
// normalized content matches any of the last dedupeWindow same-kind
// messages (spec §4.5 invariants, P3).
func (s *Store) Append(sessionID string, rec Record) bool {
	l := s.logFor(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.ID != "" {
		if _, exists := l.ids[rec.ID]; exists {
			return false
		}
	}

	normalized := normalizeContent(rec.Content)
	checked := 0
	for i := len(l.records) - 1; i >= 0 && checked < dedupeWindow; i-- {
		if l.records[i].Kind != rec.Kind {
			continue
		}
		checked++
		if normalizeContent(l.records[i].Content) == normalized {
			return false
		}
	}

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	l.records = append(l.records, rec)
	if rec.ID != "" {
		l.ids[rec.ID] = struct{}{}
	}
	return true
}

// Get returns the last limit records for a session (0 or negative means
// all), oldest first.
func (s *Store) Get(sessionID string, limit int) []Record {
	l := s.logFor(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 || limit >= len(l.records) {
		return append([]Record(nil), l.records...)
	}
	start := len(l.records) - limit
	return append([]Record(nil), l.records[start:]...)
}

// Clear deletes every record for a session (DELETE /sessions/{id}/history).
func (s *Store) Clear(sessionID string) {
	l := s.logFor(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
	l.ids = make(map[string]struct{})
}

// Format is one of the three export shapes spec §4.5 defines.
type Format string

const (
	FormatJSON Format = "json"
	FormatTXT  Format = "txt"
	FormatCSV  Format = "csv"
)

// Export renders a session's history in the requested format. json returns
// the structured record list; txt returns one "[timestamp] KIND: content"
// line per record; csv returns a table with timestamp/type/content/metadata
// columns.
func (s *Store) Export(sessionID string, format Format) ([]byte, error) {
	records := s.Get(sessionID, 0)

	switch format {
	case FormatJSON:
		return json.MarshalIndent(records, "", "  ")

	case FormatTXT:
		var b strings.Builder
		for _, r := range records {
			fmt.Fprintf(&b, "[%s] %s: %s\n", r.Timestamp.Format(time.RFC3339), strings.ToUpper(string(r.Kind)), r.Content)
		}
		return []byte(b.String()), nil

	case FormatCSV:
		var b strings.Builder
		w := csv.NewWriter(&b)
		if err := w.Write([]string{"timestamp", "type", "content", "metadata"}); err != nil {
			return nil, err
		}
		for _, r := range records {
			meta := ""
			if len(r.Metadata) > 0 {
				raw, err := json.Marshal(r.Metadata)
				if err == nil {
					meta = string(raw)
				}
			}
			if err := w.Write([]string{r.Timestamp.Format(time.RFC3339), string(r.Kind), r.Content, meta}); err != nil {
				return nil, err
			}
		}
		w.Flush()
		return []byte(b.String()), w.Error()

	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// Import re-ingests a previously-exported JSON record list, used by R1's
// round-trip property: export then re-ingest is lossless for content, kind,
// timestamp, and metadata.
func (s *Store) Import(sessionID string, data []byte) error {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse exported history: %w", err)
	}
	l := s.logFor(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
	l.ids = make(map[string]struct{})
	for _, r := range records {
		l.records = append(l.records, r)
		if r.ID != "" {
			l.ids[r.ID] = struct{}{}
		}
	}
	return nil
}
