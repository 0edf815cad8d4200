package graph

import (
	"context"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// nodeTools executes every tool call attached to the latest assistant
// message and appends a tool-result message for each. It always returns
// Ready: it never suspends, and the runtime's post-tools routing rule (not
// this node) decides where control returns.
func nodeTools(ctx context.Context, rt *Runtime, state *State, _ *string) (Step, error) {
	state = state.Clone()

	last, ok := state.lastMessage()
	if !ok {
		return Ready(state), nil
	}

	for _, call := range last.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(call.Function.Arguments), &args)

		result := rt.Tools.Dispatch(ctx, call.Name, args)

		var text string
		for _, block := range result.Content {
			text += block.Text
		}

		state.Messages = append(state.Messages, Message{
			Kind:       MessageToolResult,
			Content:    text,
			ToolCallID: call.ID,
			ToolName:   call.Name,
		})
	}

	return Ready(state), nil
}
