package graph

import (
	"context"
	"testing"

	"kotori/internal/config"
	"kotori/internal/llm"
	"kotori/internal/tools"
)

// scriptedLLM replays a fixed sequence of canned assistant messages, one per
// StreamChat call, so node tests never touch a real provider.
type scriptedLLM struct {
	responses []llm.Message
	calls     int
}

func (s *scriptedLLM) StreamChat(ctx context.Context, messages []llm.Message, toolset []llm.Tool, temperature float64) (<-chan llm.StreamChunk, error) {
	if s.calls >= len(s.responses) {
		panic("scriptedLLM: ran out of canned responses")
	}
	resp := s.responses[s.calls]
	s.calls++

	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.StreamChunk{ContentBlocks: resp.Content, ToolCalls: resp.ToolCalls}
	ch <- llm.StreamChunk{IsFinal: true}
	close(ch)
	return ch, nil
}

func (s *scriptedLLM) IsTransientError(err error) bool { return false }

func textMsg(text string) llm.Message {
	return llm.Message{Role: "assistant", Content: []llm.ContentBlock{llm.NewTextBlock(text)}}
}

func toolCallMsg(id, name, args string) llm.Message {
	return llm.Message{
		Role: "assistant",
		ToolCalls: []llm.ToolCall{
			{ID: id, Name: name, Function: llm.FunctionCall{Name: name, Arguments: args}},
		},
	}
}

func newTestRuntime(t *testing.T, fake *scriptedLLM) *Runtime {
	t.Helper()
	return &Runtime{
		Graph:        New(),
		Checkpoints:  NewMemoryCheckpointer(),
		LLM:          fake,
		Tools:        tools.NewRegistry(),
		SystemConfig: config.DefaultSystemConfig(),
	}
}

// TestAdvance_GreetingThroughFreeConversation drives the happy-path greeting
// -> mode selection -> free conversation route (spec §8 scenario 1), and
// checks that each interrupt carries the expected prompt and that messages
// accumulate in program order.
func TestAdvance_GreetingThroughFreeConversation(t *testing.T) {
	fake := &scriptedLLM{responses: []llm.Message{
		textMsg("chat"),                       // mode_selection classifier
		textMsg("What's on your mind today?"), // free_conversation opener
	}}
	rt := newTestRuntime(t, fake)
	ctx := context.Background()
	thread := "thread-1"

	initial := NewState(Config{Language: LanguageEnglish, DeckName: "Kotori"})
	out, err := rt.Advance(ctx, thread, initial, nil, nil)
	if err != nil {
		t.Fatalf("greeting advance failed: %v", err)
	}
	if out.Kind != OutcomeInterrupt {
		t.Fatalf("expected an interrupt at greeting, got %v", out.Kind)
	}
	if out.Prompt == "" {
		t.Fatal("greeting interrupt should carry a non-empty prompt")
	}

	reply := "beginner, I want daily chat practice"
	out, err = rt.Advance(ctx, thread, nil, &reply, nil)
	if err != nil {
		t.Fatalf("mode-selection-prompt advance failed: %v", err)
	}
	if out.Kind != OutcomeInterrupt {
		t.Fatalf("expected the mode-selection interrupt, got %v", out.Kind)
	}

	modeReply := "chat"
	out, err = rt.Advance(ctx, thread, nil, &modeReply, nil)
	if err != nil {
		t.Fatalf("mode-selection advance failed: %v", err)
	}
	if out.Kind != OutcomeInterrupt {
		t.Fatalf("expected the free-conversation opener interrupt, got %v", out.Kind)
	}
	if out.Prompt != "What's on your mind today?" {
		t.Fatalf("unexpected free-conversation prompt: %q", out.Prompt)
	}
	if out.State.LearningGoals != reply {
		t.Fatalf("learning_goals not captured: got %q", out.State.LearningGoals)
	}
	if len(out.State.Messages) == 0 {
		t.Fatal("messages should have accumulated across the drive")
	}
}

// TestAdvance_ResumeWithoutInitialState checks that calling Advance with
// neither a checkpoint nor an initial state is rejected (spec §4.1's
// "first run only" rule).
func TestAdvance_ResumeWithoutInitialState(t *testing.T) {
	rt := newTestRuntime(t, &scriptedLLM{})
	ctx := context.Background()

	_, err := rt.Advance(ctx, "no-checkpoint-thread", nil, nil, nil)
	if err == nil {
		t.Fatal("expected an error when neither a checkpoint nor initial state is available")
	}
}

// TestAdvance_ToolCallRoutesThroughToolsNode verifies P4: after a tools
// step, control returns to the recorded calling_node.
func TestAdvance_ToolCallRoutesThroughToolsNode(t *testing.T) {
	fake := &scriptedLLM{responses: []llm.Message{
		textMsg("chat"),
		toolCallMsg("call-1", "add_flashcard", `{"front":"tree","back":"a plant"}`),
		textMsg("Got it, saved 'tree' for you!"),
	}}
	reg := tools.NewRegistry()
	rt := newTestRuntime(t, fake)
	rt.Tools = reg

	ctx := context.Background()
	thread := "thread-tools"

	initial := NewState(Config{Language: LanguageEnglish})
	out, err := rt.Advance(ctx, thread, initial, nil, nil)
	if err != nil {
		t.Fatalf("greeting advance failed: %v", err)
	}
	reply := "beginner"
	out, err = rt.Advance(ctx, thread, nil, &reply, nil)
	if err != nil {
		t.Fatalf("mode-selection-prompt advance failed: %v", err)
	}
	modeReply := "chat"
	out, err = rt.Advance(ctx, thread, nil, &modeReply, nil)
	if err != nil {
		t.Fatalf("mode-selection advance failed: %v", err)
	}

	// free_conversation now issues a tool call; Advance must run the tools
	// node internally and resume free_conversation's own caller state
	// without surfacing a fresh interrupt mid-tool-call.
	if out.Kind != OutcomeInterrupt {
		t.Fatalf("expected the post-tool-call assistant reply as the next interrupt, got %v", out.Kind)
	}
	if out.Prompt != "Got it, saved 'tree' for you!" {
		t.Fatalf("unexpected prompt after tool round-trip: %q", out.Prompt)
	}

	var toolResultSeen bool
	for _, m := range out.State.Messages {
		if m.Kind == MessageToolResult && m.ToolName == "add_flashcard" {
			toolResultSeen = true
		}
	}
	if !toolResultSeen {
		t.Fatal("expected a tool-result message for add_flashcard in the message log")
	}
}

// TestAdvance_UnknownCallingNodeFallsBackToModeSelectionPrompt exercises the
// routeNext fail-safe directly: an invalid calling_node after the tools
// node must fall back to mode_selection_prompt (P4).
func TestAdvance_UnknownCallingNodeFallsBackToModeSelectionPrompt(t *testing.T) {
	rt := newTestRuntime(t, &scriptedLLM{})
	state := &State{CallingNode: "not_a_real_node"}
	got := rt.routeNext(NodeTools, state)
	if got != NodeModeSelectionPrompt {
		t.Fatalf("expected fallback to %q, got %q", NodeModeSelectionPrompt, got)
	}
}

// TestAdvance_RecursionCapExceeded checks that a node which always sets a
// valid Next and never interrupts eventually trips the recursion cap rather
// than looping forever.
func TestAdvance_RecursionCapExceeded(t *testing.T) {
	g := NewGraph("a")
	g.AddNode("a", func(ctx context.Context, rt *Runtime, state *State, resume *string) (Step, error) {
		state = state.Clone()
		state.Next = "a"
		return Ready(state), nil
	})
	rt := &Runtime{
		Graph:        g,
		Checkpoints:  NewMemoryCheckpointer(),
		SystemConfig: &config.SystemConfig{MaxNodeSteps: 3},
	}
	_, err := rt.Advance(context.Background(), "loop-thread", &State{}, nil, nil)
	if err == nil {
		t.Fatal("expected the recursion cap to trip")
	}
}
