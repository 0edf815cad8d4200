package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"kotori/internal/config"
	"kotori/internal/graph"
	"kotori/internal/kerrors"
	"kotori/internal/llm"
	"kotori/internal/metrics"
	"kotori/internal/monitor"

	"github.com/panjf2000/ants/v2"
)

// EventType names one of the eight outbound events spec §4.2 defines the
// orchestrator's callback surface around.
type EventType string

const (
	EventAIResponse       EventType = "ai_response"
	EventUserMessage      EventType = "user_message"
	EventStateChange      EventType = "state_change"
	EventToolCall         EventType = "tool_call"
	EventToolMessage      EventType = "tool_message"
	EventAssessmentUpdate EventType = "assessment_update"
	EventConversationEnd  EventType = "conversation_end"
	EventError            EventType = "error"
)

// Event is a single callback invocation: a type tag plus a loosely-typed
// payload, mirroring the push-channel envelope's own data field (spec §6)
// so the registry's fan-out layer can forward it with no translation.
type Event struct {
	Type EventType
	Data map[string]any
}

const maxRetries = 3

// Orchestrator drives a single session's graph execution (spec §4.2),
// translating Interrupt/Advance outcomes into outbound events and bridging
// the bounded-depth-1 user-reply channel the drive loop awaits on.
type Orchestrator struct {
	ThreadID string

	rt   *graph.Runtime
	sys  *config.SystemConfig
	pool *ants.Pool
	mon  monitor.Observer

	dedup *DuplicateFilter

	inputCh chan string
	stopCh  chan struct{}
	stopped atomic.Bool
	running atomic.Bool

	awaiting atomic.Bool

	cbMu      sync.Mutex
	callbacks map[EventType][]func(Event)
}

// NewOrchestrator builds an orchestrator for threadID against rt. pool may
// be nil, in which case the drive loop runs on a plain goroutine instead of
// a bounded worker pool. mon may be nil, in which case turns are not
// reported to an operator-visible observer.
func NewOrchestrator(threadID string, rt *graph.Runtime, sys *config.SystemConfig, pool *ants.Pool, mon monitor.Observer) *Orchestrator {
	cooldown := time.Duration(sys.InterruptCooldownMs) * time.Millisecond
	return &Orchestrator{
		ThreadID:  threadID,
		rt:        rt,
		sys:       sys,
		pool:      pool,
		mon:       mon,
		dedup:     NewDuplicateFilter(cooldown, sys.InterruptSimilarityThreshold, sys.InterruptHistoryCap),
		inputCh:   make(chan string, 1),
		stopCh:    make(chan struct{}),
		callbacks: make(map[EventType][]func(Event)),
	}
}

// observeTurn reports a turn to the attached monitor, if any. It is a no-op
// when no observer was configured.
func (o *Orchestrator) observeTurn(role, content string) {
	if o.mon == nil {
		return
	}
	o.mon.OnTurn(monitor.Turn{
		Timestamp: time.Now(),
		SessionID: o.ThreadID,
		Role:      role,
		Content:   content,
	})
}

// RegisterCallback attaches fn to be invoked for every event of the given
// type. Callbacks are invoked synchronously from the drive loop goroutine
// in program order; a callback must not block.
func (o *Orchestrator) RegisterCallback(evt EventType, fn func(Event)) {
	o.cbMu.Lock()
	defer o.cbMu.Unlock()
	o.callbacks[evt] = append(o.callbacks[evt], fn)
}

func (o *Orchestrator) emit(evt EventType, data map[string]any) {
	o.cbMu.Lock()
	fns := append([]func(Event){}, o.callbacks[evt]...)
	o.cbMu.Unlock()
	e := Event{Type: evt, Data: data}
	for _, fn := range fns {
		fn(e)
	}
}

// Start launches the drive loop; an Orchestrator can be started only once,
// and a second call is rejected. Pass initial when the thread has no
// checkpoint yet, or nil to continue from the thread's existing checkpoint,
// per spec §4.1's "initial state supplied on the first run of a thread" rule.
func (o *Orchestrator) Start(ctx context.Context, initial *graph.State) error {
	if !o.running.CompareAndSwap(false, true) {
		return kerrors.New(kerrors.KindUserInputRejected, "orchestrator already running")
	}
	task := func() { o.driveLoop(ctx, initial) }
	if o.pool != nil {
		return o.pool.Submit(task)
	}
	go task()
	return nil
}

// SendUserMessage delivers text to the drive loop as the reply to the
// currently pending interrupt. It is rejected (accepted=false) unless the
// loop is actively awaiting a reply, and the bounded depth-1 queue means a
// second send before the first is consumed is also rejected.
func (o *Orchestrator) SendUserMessage(text string) bool {
	if !o.awaiting.Load() {
		return false
	}
	select {
	case o.inputCh <- text:
		return true
	default:
		return false
	}
}

// Stop cancels the drive loop; it exits at the next checkpoint boundary and
// drains any queued-but-unconsumed reply.
func (o *Orchestrator) Stop() {
	if o.stopped.CompareAndSwap(false, true) {
		close(o.stopCh)
	}
	select {
	case <-o.inputCh:
	default:
	}
}

func (o *Orchestrator) driveLoop(ctx context.Context, initial *graph.State) {
	obs := &observerAdapter{o: o}
	state := initial
	var resume *string
	retries := 0

	for {
		select {
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		outcome, err := o.rt.Advance(ctx, o.ThreadID, state, resume, obs)
		state = nil
		resume = nil

		if err != nil {
			if kerrors.Is(err, kerrors.KindStateCorruption) {
				o.emit(EventError, map[string]any{"error": err.Error(), "fatal": true})
				return
			}
			retries++
			o.emit(EventError, map[string]any{"error": err.Error(), "fatal": false, "attempt": retries})
			if retries > maxRetries {
				o.emit(EventError, map[string]any{"error": "retry budget exhausted", "fatal": true})
				return
			}
			backoff := time.Duration(retries) * 200 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-o.stopCh:
				return
			case <-ctx.Done():
				return
			}
			continue
		}
		retries = 0

		if outcome.Kind == graph.OutcomeTerminal {
			o.emit(EventConversationEnd, map[string]any{"reason": "complete"})
			return
		}

		accepted := o.dedup.Accept(outcome.Prompt)
		if accepted {
			metrics.InterruptsAccepted.Inc()
			o.emit(EventAIResponse, map[string]any{"message": outcome.Prompt})
			o.observeTurn("assistant", outcome.Prompt)
		} else {
			metrics.InterruptsSuppressed.Inc()
		}

		// awaitReply runs whether or not the prompt was re-announced above:
		// the checkpoint the graph just saved is awaiting a reply regardless
		// of dedup's decision to suppress the repeat, so a suppressed
		// interrupt still blocks here for the user's next message.
		reply, ok := o.awaitReply(ctx)
		if !ok {
			return
		}
		o.dedup.Resumed()
		if reply == "exit" || reply == "quit" {
			o.emit(EventConversationEnd, map[string]any{"reason": "user_exit"})
			return
		}

		o.emit(EventUserMessage, map[string]any{"message": reply})
		o.observeTurn("user", reply)
		resume = &reply
	}
}

// awaitReply blocks for the next queued user reply, up to the configured
// resume timeout (default 300s). It reports ok=false if the loop should
// stop: a timeout, an explicit Stop(), or context cancellation.
func (o *Orchestrator) awaitReply(ctx context.Context) (string, bool) {
	timeout := time.Duration(o.sys.ResumeTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	o.awaiting.Store(true)
	defer o.awaiting.Store(false)

	select {
	case msg := <-o.inputCh:
		return msg, true
	case <-timer.C:
		o.emit(EventConversationEnd, map[string]any{"reason": "timeout"})
		return "", false
	case <-o.stopCh:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// observerAdapter bridges graph.Observer callbacks, fired synchronously
// inside Runtime.Advance, into the orchestrator's event stream — preserving
// the program order spec §5 requires between node-boundary effects.
type observerAdapter struct{ o *Orchestrator }

func (a *observerAdapter) OnStateChange(node string, state *graph.State) {
	a.o.emit(EventStateChange, map[string]any{
		"node":        node,
		"active_card": state.ActiveCard,
		"counter":     state.Counter,
	})
	if state.NeedCardAnswer {
		a.o.emit(EventAssessmentUpdate, map[string]any{
			"assessment_history": append([]string(nil), state.AssessmentHistory...),
		})
	}
}

func (a *observerAdapter) OnToolCall(call llm.ToolCall) {
	a.o.emit(EventToolCall, map[string]any{
		"id":        call.ID,
		"tool":      call.Name,
		"arguments": call.Function.Arguments,
	})
}

func (a *observerAdapter) OnToolResult(toolName, content string) {
	a.o.emit(EventToolMessage, map[string]any{
		"tool":    toolName,
		"content": content,
	})
}

var _ graph.Observer = (*observerAdapter)(nil)
