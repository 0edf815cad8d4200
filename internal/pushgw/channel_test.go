package pushgw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kotori/internal/config"
	"kotori/internal/convstore"
	"kotori/internal/graph"
	"kotori/internal/registry"

	"github.com/gorilla/websocket"
)

// readUntil drains frames until one with the wanted event type arrives,
// tolerating interleaved drive-loop events (e.g. the greeting ai_response)
// whose arrival relative to other frames is not ordered.
func readUntil(t *testing.T, conn *websocket.Conn, want string) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 10; i++ {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %q: %v", want, err)
		}
		if env.EventType == want {
			return env
		}
	}
	t.Fatalf("did not observe %q frame within 10 reads", want)
	return envelope{}
}

func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()
	g := graph.NewGraph(graph.NodeGreeting)
	g.AddNode(graph.NodeGreeting, func(ctx context.Context, rt *graph.Runtime, state *graph.State, resume *string) (graph.Step, error) {
		return graph.Pending("Hey! I'm Kotori, your tutor.", state), nil
	})
	rt := &graph.Runtime{
		Graph:        g,
		Checkpoints:  graph.NewMemoryCheckpointer(),
		SystemConfig: config.DefaultSystemConfig(),
	}
	reg := registry.New(rt, nil, nil)
	ch := NewChannel(reg, convstore.New())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ch.Handler())
	return httptest.NewServer(mux), reg
}

func wsURL(srv *httptest.Server, sessionID string) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session_id=" + sessionID
	return u
}

func TestChannel_RejectsUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "no-such-session"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected a close error, got %v", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("expected policy_violation close code, got %d", closeErr.Code)
	}
	if closeErr.Text != "Session not found" {
		t.Fatalf("unexpected close reason: %q", closeErr.Text)
	}
}

func TestChannel_EstablishesConnectionForKnownSession(t *testing.T) {
	srv, reg := newTestServer(t)
	defer srv.Close()

	id, err := reg.Create(graph.Config{Language: graph.LanguageEnglish, DeckName: "Test"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, id), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	env := readUntil(t, conn, outConnectionEstablished)
	if env.SessionID != id {
		t.Fatalf("expected session id %q, got %q", id, env.SessionID)
	}
}

func TestChannel_RejectsSecondAttach(t *testing.T) {
	srv, reg := newTestServer(t)
	defer srv.Close()

	id, _ := reg.Create(graph.Config{Language: graph.LanguageEnglish, DeckName: "Test"})

	first, _, err := websocket.DefaultDialer.Dial(wsURL(srv, id), nil)
	if err != nil {
		t.Fatalf("first dial failed: %v", err)
	}
	defer first.Close()
	readUntil(t, first, outConnectionEstablished)

	second, _, err := websocket.DefaultDialer.Dial(wsURL(srv, id), nil)
	if err != nil {
		t.Fatalf("second dial failed: %v", err)
	}
	defer second.Close()

	_, _, err = second.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected a close error on second attach, got %v", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("expected policy_violation close code, got %d", closeErr.Code)
	}
}

func TestChannel_PingPong(t *testing.T) {
	srv, reg := newTestServer(t)
	defer srv.Close()

	id, _ := reg.Create(graph.Config{Language: graph.LanguageEnglish, DeckName: "Test"})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, id), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	readUntil(t, conn, outConnectionEstablished)

	if err := conn.WriteJSON(inboundFrame{EventType: inPing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	readUntil(t, conn, outPong)
}
