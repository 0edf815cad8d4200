// Package registry owns the process-wide set of sessions: their records,
// their orchestrator handles, and the single push connection slot each may
// hold (spec §4.5). It is adapted from the teacher's
// pkg/gateway.GatewayManager locking shape (a manager-level map guarded by
// its own mutex, entries mutated under their own lock) repurposed from
// channel connections to tutoring sessions.
package registry

import (
	"context"
	"sync"
	"time"

	"kotori/internal/graph"
	"kotori/internal/kerrors"
	"kotori/internal/metrics"
	"kotori/internal/monitor"
	"kotori/internal/session"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

// Record is the registry-owned, externally-visible view of a session (spec
// §3 "Session record").
type Record struct {
	ID                  string
	IsActive            bool
	CreatedAt           time.Time
	LastActivity        time.Time
	Config              graph.Config
	UISettings          map[string]any
	CurrentStateSummary string
}

type entry struct {
	mu           sync.Mutex
	record       Record
	orchestrator *session.Orchestrator
	connected    bool
}

// Registry is the process-wide session table. Creation is globally
// serialized via creationMu (plus the in-flight creating set, guarding
// against a UUID collision publishing the same id twice); every other
// mutation takes only the target session's own lock (spec §4.5).
type Registry struct {
	rt   *graph.Runtime
	pool *ants.Pool
	mon  monitor.Observer

	creationMu sync.Mutex
	creating   map[string]struct{}

	mu       sync.RWMutex
	sessions map[string]*entry
}

// New builds a registry around rt and pool. mon may be nil, in which case
// sessions run with no turn observer attached.
func New(rt *graph.Runtime, pool *ants.Pool, mon monitor.Observer) *Registry {
	return &Registry{
		rt:       rt,
		pool:     pool,
		mon:      mon,
		creating: make(map[string]struct{}),
		sessions: make(map[string]*entry),
	}
}

// Create allocates a fresh session id (never reused — R2) and registers its
// record. The orchestrator is not started until a push connection attaches
// (spec §3 lifecycle: "activated on push-channel attach").
func (r *Registry) Create(cfg graph.Config) (string, error) {
	r.creationMu.Lock()
	defer r.creationMu.Unlock()

	var id string
	for {
		candidate := uuid.NewString()
		if _, exists := r.sessions[candidate]; exists {
			continue
		}
		if _, inFlight := r.creating[candidate]; inFlight {
			continue
		}
		id = candidate
		break
	}
	r.creating[id] = struct{}{}
	defer delete(r.creating, id)

	now := time.Now()
	e := &entry{
		record: Record{
			ID:           id,
			IsActive:     false,
			CreatedAt:    now,
			LastActivity: now,
			Config:       cfg,
			UISettings:   make(map[string]any),
		},
	}

	r.mu.Lock()
	r.sessions[id] = e
	r.mu.Unlock()

	metrics.SessionsTotal.Inc()
	return id, nil
}

// Exists is a read-only lookup, deliberately not requiring the creation
// mutex (spec §4.5: "session_exists and get are read operations not
// requiring the creation mutex").
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Get returns a snapshot of a session's record.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return Record{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record, true
}

// Count returns the total number of known sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ActiveCount returns the number of sessions currently marked active.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.sessions {
		e.mu.Lock()
		if e.record.IsActive {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// AllIDs returns the ids of every known session, active or not.
func (r *Registry) AllIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// ActiveIDs returns the ids of every active session.
func (r *Registry) ActiveIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, e := range r.sessions {
		e.mu.Lock()
		if e.record.IsActive {
			ids = append(ids, id)
		}
		e.mu.Unlock()
	}
	return ids
}

func (r *Registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	return e, ok
}

// UpdateConfig replaces a session's config under its own lock.
func (r *Registry) UpdateConfig(id string, cfg graph.Config) error {
	e, ok := r.get(id)
	if !ok {
		return kerrors.New(kerrors.KindUserInputRejected, "session not found: "+id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record.Config = cfg
	return nil
}

// UpdateUISettings merges keys into a session's UI settings map.
func (r *Registry) UpdateUISettings(id string, settings map[string]any) error {
	e, ok := r.get(id)
	if !ok {
		return kerrors.New(kerrors.KindUserInputRejected, "session not found: "+id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.record.UISettings == nil {
		e.record.UISettings = make(map[string]any)
	}
	for k, v := range settings {
		e.record.UISettings[k] = v
	}
	return nil
}

// UpdateStateSummary records the latest human-readable state description,
// fed from the orchestrator's state_change events.
func (r *Registry) UpdateStateSummary(id, summary string) {
	e, ok := r.get(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record.CurrentStateSummary = summary
	e.record.LastActivity = time.Now()
}

// touch bumps last_activity without changing anything else.
func (r *Registry) touch(id string) {
	e, ok := r.get(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record.LastActivity = time.Now()
}

// Attach activates a session and, on its very first attach, starts its
// orchestrator (spec §3: "activated on push-channel attach", §4.5 "exactly
// one push connection may be attached at any instant"). It reports an error
// if a connection is already attached.
func (r *Registry) Attach(ctx context.Context, id string) (*session.Orchestrator, bool, error) {
	e, ok := r.get(id)
	if !ok {
		return nil, false, kerrors.New(kerrors.KindUserInputRejected, "session not found: "+id)
	}

	e.mu.Lock()

	if e.connected {
		e.mu.Unlock()
		return nil, false, kerrors.New(kerrors.KindUserInputRejected, "session already has an attached connection: "+id)
	}

	isFirstRun := e.orchestrator == nil
	if isFirstRun {
		e.orchestrator = session.NewOrchestrator(id, r.rt, r.rt.SystemConfig, r.pool, r.mon)
	}

	e.connected = true
	e.record.IsActive = true
	e.record.LastActivity = time.Now()

	if isFirstRun {
		initial := graph.NewState(e.record.Config)
		initial.Next = graph.NodeGreeting
		if err := e.orchestrator.Start(ctx, initial); err != nil {
			e.connected = false
			e.record.IsActive = false
			e.mu.Unlock()
			return nil, false, err
		}
	}
	orch := e.orchestrator
	e.mu.Unlock()

	metrics.SessionsActive.Set(float64(r.ActiveCount()))
	return orch, isFirstRun, nil
}

// Detach releases the push-connection slot without deactivating the
// session: a reconnect within the idle window resumes exactly where the
// conversation paused (spec §3, scenario 4).
func (r *Registry) Detach(id string) {
	e, ok := r.get(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected = false
}

// Connected reports whether a push connection is currently attached.
func (r *Registry) Connected(id string) bool {
	e, ok := r.get(id)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// Orchestrator returns the session's orchestrator handle, if it has been
// started (i.e. the session has been attached at least once).
func (r *Registry) Orchestrator(id string) (*session.Orchestrator, bool) {
	e, ok := r.get(id)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	orch := e.orchestrator
	if orch != nil {
		e.record.LastActivity = time.Now()
	}
	e.mu.Unlock()
	if orch == nil {
		return nil, false
	}
	return orch, true
}

// Close deactivates and (if force) fully deletes a session, stopping its
// orchestrator.
func (r *Registry) Close(id string, force bool) error {
	e, ok := r.get(id)
	if !ok {
		return kerrors.New(kerrors.KindUserInputRejected, "session not found: "+id)
	}

	e.mu.Lock()
	e.record.IsActive = false
	e.connected = false
	orch := e.orchestrator
	e.mu.Unlock()

	if orch != nil {
		orch.Stop()
	}

	if force {
		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()
	}
	metrics.SessionsActive.Set(float64(r.ActiveCount()))
	return nil
}

// Deactivate marks a session inactive without deleting its record.
func (r *Registry) Deactivate(id string) error {
	e, ok := r.get(id)
	if !ok {
		return kerrors.New(kerrors.KindUserInputRejected, "session not found: "+id)
	}
	e.mu.Lock()
	e.record.IsActive = false
	orch := e.orchestrator
	e.mu.Unlock()
	if orch != nil {
		orch.Stop()
	}
	metrics.SessionsActive.Set(float64(r.ActiveCount()))
	return nil
}

// CleanupInactive sweeps every session whose last_activity predates maxAge
// and is not currently connected, stopping its orchestrator and deleting
// both its record and lock (spec §4.5 reaping).
func (r *Registry) CleanupInactive(ctx context.Context, maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	r.mu.RLock()
	candidates := make([]string, 0, len(r.sessions))
	for id, e := range r.sessions {
		e.mu.Lock()
		stale := !e.connected && e.record.LastActivity.Before(cutoff)
		e.mu.Unlock()
		if stale {
			candidates = append(candidates, id)
		}
	}
	r.mu.RUnlock()

	removed := 0
	for _, id := range candidates {
		if err := r.Close(id, true); err == nil {
			removed++
		}
	}
	if removed > 0 {
		metrics.ReapedSessions.Add(float64(removed))
	}
	return removed
}

// Stats summarizes the registry for GET /sessions/stats.
type Stats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

func (r *Registry) Stats() Stats {
	return Stats{Total: r.Count(), Active: r.ActiveCount()}
}
