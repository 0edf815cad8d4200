// Package api implements the management HTTP surface of spec §6: session
// CRUD, health probes, history export, and maintenance endpoints. It is the
// thin composition-root surface the teacher always ships alongside its
// runtime core (pkg/api in the teacher is the tool/channel contract layer;
// here it is the outward-facing REST layer), backed by net/http and the
// session registry/conversation store.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"kotori/internal/convstore"
	"kotori/internal/flashcard"
	"kotori/internal/graph"
	"kotori/internal/registry"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server wires the session registry, conversation store, and flashcard
// client into the endpoint set spec §6 names.
type Server struct {
	registry  *registry.Registry
	history   *convstore.Store
	flashcard *flashcard.Client
	mux       *http.ServeMux
}

func NewServer(reg *registry.Registry, hist *convstore.Store, fc *flashcard.Client) *Server {
	s := &Server{registry: reg, history: hist, flashcard: fc, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	s.mux.HandleFunc("POST /sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /sessions/stats", s.handleStats)
	s.mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("PUT /sessions/{id}/config", s.handleUpdateConfig)
	s.mux.HandleFunc("PUT /sessions/{id}/ui-settings", s.handleUpdateUISettings)
	s.mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("GET /sessions/{id}/history", s.handleGetHistory)
	s.mux.HandleFunc("POST /sessions/{id}/history/export", s.handleExportHistory)
	s.mux.HandleFunc("DELETE /sessions/{id}/history", s.handleClearHistory)
	s.mux.HandleFunc("POST /sessions/{id}/cleanup", s.handleSessionCleanup)
	s.mux.HandleFunc("POST /maintenance/cleanup-inactive", s.handleCleanupInactive)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /flashcards/status", s.handleFlashcardStatus)
	s.mux.HandleFunc("GET /flashcards/decks", s.handleFlashcardDecks)
}

// errorBody is the uniform error envelope spec §6 requires: "HTTP status +
// {error, message, timestamp}".
type errorBody struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: code, Message: message, Timestamp: time.Now()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type createSessionRequest struct {
	Language    string  `json:"language"`
	DeckName    string  `json:"deck_name"`
	Temperature float64 `json:"temperature"`
}

type sessionView struct {
	ID                  string         `json:"id"`
	IsActive            bool           `json:"is_active"`
	CreatedAt           time.Time      `json:"created_at"`
	LastActivity        time.Time      `json:"last_activity"`
	Language            string         `json:"language"`
	DeckName            string         `json:"deck_name"`
	Temperature         float64        `json:"temperature"`
	UISettings          map[string]any `json:"ui_settings"`
	CurrentStateSummary string         `json:"current_state_summary"`
}

func toView(rec registry.Record) sessionView {
	return sessionView{
		ID:                  rec.ID,
		IsActive:            rec.IsActive,
		CreatedAt:           rec.CreatedAt,
		LastActivity:        rec.LastActivity,
		Language:            string(rec.Config.Language),
		DeckName:            rec.Config.DeckName,
		Temperature:         rec.Config.Temperature,
		UISettings:          rec.UISettings,
		CurrentStateSummary: rec.CurrentStateSummary,
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	lang := graph.Language(req.Language)
	if lang != graph.LanguageEnglish && lang != graph.LanguageJapanese {
		lang = graph.LanguageEnglish
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		writeError(w, http.StatusBadRequest, "invalid_request", "temperature must be within [0,2]")
		return
	}

	cfg := graph.Config{Language: lang, DeckName: req.DeckName, Temperature: req.Temperature}
	id, err := s.registry.Create(cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create_failed", err.Error())
		return
	}

	rec, _ := s.registry.Get(id)
	writeJSON(w, http.StatusCreated, toView(rec))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok := s.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	writeJSON(w, http.StatusOK, toView(rec))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var out []sessionView
	for _, id := range s.registry.AllIDs() {
		rec, ok := s.registry.Get(id)
		if ok {
			out = append(out, toView(rec))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Stats())
}

type updateConfigRequest struct {
	Language    string  `json:"language"`
	DeckName    string  `json:"deck_name"`
	Temperature float64 `json:"temperature"`
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.registry.Exists(id) {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		writeError(w, http.StatusBadRequest, "invalid_request", "temperature must be within [0,2]")
		return
	}
	cfg := graph.Config{Language: graph.Language(req.Language), DeckName: req.DeckName, Temperature: req.Temperature}
	if err := s.registry.UpdateConfig(id, cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "update_failed", err.Error())
		return
	}
	rec, _ := s.registry.Get(id)
	writeJSON(w, http.StatusOK, toView(rec))
}

func (s *Server) handleUpdateUISettings(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.registry.Exists(id) {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	var settings map[string]any
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if err := s.registry.UpdateUISettings(id, settings); err != nil {
		writeError(w, http.StatusInternalServerError, "update_failed", err.Error())
		return
	}
	rec, _ := s.registry.Get(id)
	writeJSON(w, http.StatusOK, toView(rec))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.Close(id, true); err != nil {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.registry.Exists(id) {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.history.Get(id, limit))
}

type exportRequest struct {
	Format string `json:"format"`
}

func (s *Server) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.registry.Exists(id) {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	var req exportRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	format := convstore.Format(req.Format)
	switch format {
	case convstore.FormatJSON, convstore.FormatTXT, convstore.FormatCSV:
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "format must be one of json, txt, csv")
		return
	}
	data, err := s.history.Export(id, format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export_failed", err.Error())
		return
	}
	switch format {
	case convstore.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case convstore.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
	default:
		w.Header().Set("Content-Type", "text/plain")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.registry.Exists(id) {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	s.history.Clear(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionCleanup(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.Deactivate(id); err != nil {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCleanupInactive(w http.ResponseWriter, r *http.Request) {
	maxAgeHours := 24.0
	if v := r.URL.Query().Get("max_age_hours"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			maxAgeHours = f
		}
	}
	removed := s.registry.CleanupInactive(context.Background(), time.Duration(maxAgeHours*float64(time.Hour)))
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.registry.Stats()})
}

func (s *Server) handleFlashcardStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	version, err := s.flashcard.Health(ctx)
	if err != nil {
		writeError(w, http.StatusBadGateway, "flashcard_unreachable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reachable": true, "version": version})
}

func (s *Server) handleFlashcardDecks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	decks, err := s.flashcard.GetDecks(ctx)
	if err != nil {
		writeError(w, http.StatusBadGateway, "flashcard_unreachable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decks": decks})
}
