package tools

import (
	"context"
	"testing"
)

type stubTool struct {
	name   string
	result *ToolResult
	err    error
}

func (s *stubTool) Name() string                 { return s.name }
func (s *stubTool) Description() string          { return "stub tool for tests" }
func (s *stubTool) Parameters() map[string]any   { return nil }
func (s *stubTool) RequiredParameters() []string { return nil }
func (s *stubTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	return s.result, s.err
}

func TestRegistry_DispatchUnknownToolProducesErrorResult(t *testing.T) {
	r := NewRegistry()
	result := r.Dispatch(context.Background(), "no_such_tool", nil)
	if len(result.Content) == 0 {
		t.Fatal("expected an error content block for an unknown tool")
	}
	if result.Content[0].Text != "Error: unknown tool: no_such_tool" {
		t.Fatalf("unexpected error text: %q", result.Content[0].Text)
	}
}

func TestRegistry_DispatchExecutesRegisteredTool(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "echo", result: textResult("ok")})

	result := r.Dispatch(context.Background(), "echo", map[string]any{"x": 1})
	if len(result.Content) != 1 || result.Content[0].Text != "ok" {
		t.Fatalf("unexpected dispatch result: %+v", result)
	}
}

func TestRegistry_DispatchWrapsExecuteError(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "boom", err: errBoom{}})

	result := r.Dispatch(context.Background(), "boom", nil)
	if len(result.Content) == 0 || result.Content[0].Text != "Error: boom" {
		t.Fatalf("expected the executor's error surfaced as a tool-result error, got %+v", result)
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func TestRegistry_SubsetPreservesRequestedOrderAndSkipsUnknown(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "a"})
	r.Register(&stubTool{name: "b"})
	r.Register(&stubTool{name: "c"})

	got := r.Subset("c", "missing", "a")
	if len(got) != 2 {
		t.Fatalf("expected 2 tools (c, a), got %d", len(got))
	}
	if got[0].Name() != "c" || got[1].Name() != "a" {
		t.Fatalf("subset did not preserve requested order: %v, %v", got[0].Name(), got[1].Name())
	}
}

func TestRegistry_AllReturnsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "first"})
	r.Register(&stubTool{name: "second"})

	all := r.All()
	if len(all) != 2 || all[0].Name() != "first" || all[1].Name() != "second" {
		t.Fatalf("expected registration order to be preserved, got %+v", all)
	}
}
