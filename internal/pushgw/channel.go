// Package pushgw is the WebSocket push channel of spec §6: a full-duplex,
// per-session event stream multiplexed over the session registry. It is
// adapted from the teacher's pkg/channels/web.WebChannel — the same
// SafeConn-wrapped gorilla/websocket connection and per-user connection map
// — repurposed from a single global chat channel into one connection slot
// per tutoring session (spec §4.5, P6).
package pushgw

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"kotori/internal/convstore"
	"kotori/internal/idgen"
	"kotori/internal/registry"
	"kotori/internal/session"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Inbound event type names (spec §6).
const (
	inUserMessage = "user_message"
	inGetHistory  = "get_history"
	inPing        = "ping"
)

// Outbound event type names (spec §6). This is a closed set: internal
// orchestrator events with no outbound counterpart are never pushed as their
// own frame. Tool results are recorded to the conversation store; assessment
// updates are neither recorded nor pushed.
const (
	outConnectionEstablished = "connection_established"
	outAIResponse            = "ai_response"
	outMessageSent           = "message_sent"
	outStateChange           = "state_change"
	outToolCall              = "tool_call"
	outConversationHistory   = "conversation_history"
	outPong                  = "pong"
	outConversationEnd       = "conversation_end"
	outError                 = "error"
)

// envelope is the push event envelope spec §6 defines.
type envelope struct {
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
}

// safeConn serializes writes to a single WebSocket connection, since the
// orchestrator's callbacks and the inbound read loop run on different
// goroutines (teacher's pkg/channels/web.SafeConn).
type safeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *safeConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteJSON(v)
}

// Channel serves the /ws push endpoint, wiring each connection to the
// session registry and conversation store.
type Channel struct {
	registry *registry.Registry
	history  *convstore.Store
}

func NewChannel(reg *registry.Registry, hist *convstore.Store) *Channel {
	return &Channel{registry: reg, history: hist}
}

func (ch *Channel) Handler() http.HandlerFunc {
	return ch.serveWS
}

func (ch *Channel) serveWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	if sessionID == "" || !ch.registry.Exists(sessionID) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		closePolicyViolation(conn, "Session not found")
		return
	}

	if ch.registry.Connected(sessionID) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		closePolicyViolation(conn, "Session already has an attached connection")
		return
	}

	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("push channel upgrade failed", "session", sessionID, "error", err)
		return
	}
	conn := &safeConn{Conn: rawConn}
	defer conn.Close()

	ctx := context.Background()
	orch, _, err := ch.registry.Attach(ctx, sessionID)
	if err != nil {
		closePolicyViolation(conn.Conn, "Session already has an attached connection")
		return
	}
	defer ch.registry.Detach(sessionID)

	ch.registerForwarders(sessionID, orch, conn)

	if err := conn.writeJSON(envelope{
		EventType: outConnectionEstablished,
		Data:      map[string]any{},
		SessionID: sessionID,
		Timestamp: time.Now(),
	}); err != nil {
		return
	}

	ch.readLoop(sessionID, orch, conn)
}

func closePolicyViolation(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	_ = conn.Close()
}

// registerForwarders maps the orchestrator's internal event stream onto the
// closed outbound envelope set, recording every user/assistant/tool item
// into the conversation store along the way.
func (ch *Channel) registerForwarders(sessionID string, orch *session.Orchestrator, conn *safeConn) {
	send := func(eventType string, data map[string]any) {
		_ = conn.writeJSON(envelope{EventType: eventType, Data: data, SessionID: sessionID, Timestamp: time.Now()})
	}

	orch.RegisterCallback(session.EventAIResponse, func(e session.Event) {
		msg, _ := e.Data["message"].(string)
		ch.history.Append(sessionID, convstore.Record{ID: idgen.New(), Kind: convstore.KindAssistant, Content: msg})
		send(outAIResponse, e.Data)
	})

	orch.RegisterCallback(session.EventUserMessage, func(e session.Event) {
		msg, _ := e.Data["message"].(string)
		ch.history.Append(sessionID, convstore.Record{ID: idgen.New(), Kind: convstore.KindUser, Content: msg})
		send(outMessageSent, e.Data)
	})

	orch.RegisterCallback(session.EventStateChange, func(e session.Event) {
		if summary, ok := e.Data["active_card"].(string); ok {
			ch.registry.UpdateStateSummary(sessionID, summary)
		}
		send(outStateChange, map[string]any{"state": e.Data})
	})

	orch.RegisterCallback(session.EventToolCall, func(e session.Event) {
		send(outToolCall, map[string]any{"tool": e.Data})
	})

	orch.RegisterCallback(session.EventToolMessage, func(e session.Event) {
		tool, _ := e.Data["tool"].(string)
		content, _ := e.Data["content"].(string)
		ch.history.Append(sessionID, convstore.Record{
			ID: idgen.New(), Kind: convstore.KindToolResult, Content: content,
			Metadata: map[string]any{"tool": tool},
		})
	})

	orch.RegisterCallback(session.EventAssessmentUpdate, func(e session.Event) {
		// Not part of the closed outbound event set; the update is neither
		// pushed nor recorded.
	})

	orch.RegisterCallback(session.EventConversationEnd, func(e session.Event) {
		send(outConversationEnd, map[string]any{"data": e.Data})
	})

	orch.RegisterCallback(session.EventError, func(e session.Event) {
		send(outError, map[string]any{"error": e.Data["error"]})
	})
}

type inboundFrame struct {
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
}

func (ch *Channel) readLoop(sessionID string, orch *session.Orchestrator, conn *safeConn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			_ = conn.writeJSON(envelope{
				EventType: outError,
				Data:      map[string]any{"error": "malformed event envelope"},
				SessionID: sessionID,
				Timestamp: time.Now(),
			})
			continue
		}

		switch frame.EventType {
		case inUserMessage:
			text, _ := frame.Data["message"].(string)
			if !orch.SendUserMessage(text) {
				_ = conn.writeJSON(envelope{
					EventType: outError,
					Data:      map[string]any{"error": "no pending interrupt to reply to"},
					SessionID: sessionID,
					Timestamp: time.Now(),
				})
			}

		case inGetHistory:
			records := ch.history.Get(sessionID, 0)
			_ = conn.writeJSON(envelope{
				EventType: outConversationHistory,
				Data:      map[string]any{"history": records},
				SessionID: sessionID,
				Timestamp: time.Now(),
			})

		case inPing:
			_ = conn.writeJSON(envelope{
				EventType: outPong,
				Data:      map[string]any{},
				SessionID: sessionID,
				Timestamp: time.Now(),
			})
		}
	}
}
