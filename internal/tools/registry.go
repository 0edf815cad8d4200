package tools

import (
	"context"

	"kotori/internal/llm"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Registry holds the set of tools available to the LLM, preserving
// registration order so the tool list presented to providers is stable.
type Registry struct {
	tools *orderedmap.OrderedMap[string, Tool]
}

func NewRegistry() *Registry {
	return &Registry{tools: orderedmap.New[string, Tool]()}
}

func (r *Registry) Register(t Tool) {
	r.tools.Set(t.Name(), t)
}

func (r *Registry) Get(name string) (Tool, bool) {
	return r.tools.Get(name)
}

// All returns the registered tools as llm.Tool, in registration order, ready
// to pass to Client.StreamChat.
func (r *Registry) All() []llm.Tool {
	out := make([]llm.Tool, 0, r.tools.Len())
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Subset returns the named tools, in the order requested, skipping any name
// that isn't registered. Used by graph nodes that only bind a handful of
// tools to the LLM rather than the full catalogue.
func (r *Registry) Subset(names ...string) []llm.Tool {
	out := make([]llm.Tool, 0, len(names))
	for _, name := range names {
		if t, ok := r.Get(name); ok {
			out = append(out, t)
		}
	}
	return out
}

// Dispatch executes the named tool. An unknown tool name produces a
// tool-result error rather than an error return, so the calling node never
// has to special-case it: the LLM sees the failure and can recover.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) *ToolResult {
	t, ok := r.Get(name)
	if !ok {
		return errorResult("unknown tool: " + name)
	}
	result, err := t.Execute(ctx, args)
	if err != nil {
		return errorResult(err.Error())
	}
	return result
}
