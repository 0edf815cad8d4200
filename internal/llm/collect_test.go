package llm

import (
	"context"
	"testing"
)

func TestCollect_AssemblesTextAcrossChunks(t *testing.T) {
	ch := make(chan StreamChunk, 3)
	ch <- StreamChunk{ContentBlocks: []ContentBlock{NewTextBlock("Hel")}}
	ch <- StreamChunk{ContentBlocks: []ContentBlock{NewTextBlock("lo!")}}
	ch <- StreamChunk{IsFinal: true, Usage: &Usage{PromptTokens: 3, CompletionTokens: 2}}
	close(ch)

	msg, usage, err := Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.GetTextContent() != "Hello!" {
		t.Fatalf("expected assembled text %q, got %q", "Hello!", msg.GetTextContent())
	}
	if usage == nil || usage.CompletionTokens != 2 {
		t.Fatalf("expected final usage to be captured, got %+v", usage)
	}
}

func TestCollect_MergesStreamedToolCallArgumentsByID(t *testing.T) {
	ch := make(chan StreamChunk, 3)
	ch <- StreamChunk{ToolCalls: []ToolCall{{ID: "call-1", Name: "add_flashcard", Function: FunctionCall{Arguments: `{"front":`}}}}
	ch <- StreamChunk{ToolCalls: []ToolCall{{ID: "call-1", Function: FunctionCall{Arguments: `"tree"}`}}}}
	ch <- StreamChunk{IsFinal: true}
	close(ch)

	msg, _, err := Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("expected a single merged tool call, got %d", len(msg.ToolCalls))
	}
	got := msg.ToolCalls[0]
	if got.Name != "add_flashcard" || got.Function.Arguments != `{"front":"tree"}` {
		t.Fatalf("tool call arguments did not merge across chunks: %+v", got)
	}
}

func TestCollect_PropagatesMidStreamError(t *testing.T) {
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Err: errStream{}}
	close(ch)

	_, _, err := Collect(context.Background(), ch)
	if err == nil {
		t.Fatal("expected a mid-stream error to propagate")
	}
}

type errStream struct{}

func (errStream) Error() string { return "stream failed" }
