package graph

import (
	"context"

	"kotori/internal/llm"
)

// toLLMMessages converts the graph's append-only message log into the LLM
// client's message shape, folding in the system prompt for the node.
func toLLMMessages(systemPrompt string, state *State, fromIdx int) []llm.Message {
	out := []llm.Message{llm.NewSystemMessage(systemPrompt)}
	for _, m := range state.Messages[fromIdx:] {
		switch m.Kind {
		case MessageUser:
			out = append(out, llm.NewUserMessage(m.Content))
		case MessageAssistant:
			msg := llm.NewAssistantMessage(m.Content)
			msg.ToolCalls = m.ToolCalls
			out = append(out, msg)
		case MessageToolResult:
			out = append(out, llm.Message{
				Role:       "tool",
				Content:    []llm.ContentBlock{llm.NewTextBlock(m.Content)},
				ToolCallID: m.ToolCallID,
				ToolName:   m.ToolName,
			})
		}
	}
	return out
}

// callLLM invokes the LLM with an optional tool set and collects the full
// response into a single assistant message.
func callLLM(ctx context.Context, rt *Runtime, systemPrompt string, state *State, fromIdx int, toolset []llm.Tool) (llm.Message, error) {
	msgs := toLLMMessages(systemPrompt, state, fromIdx)
	ch, err := rt.LLM.StreamChat(ctx, msgs, toolset, state.Config.Temperature)
	if err != nil {
		return llm.Message{}, err
	}
	msg, _, err := llm.Collect(ctx, ch)
	return msg, err
}

func appendAssistantFromLLM(state *State, msg llm.Message) {
	state.Messages = append(state.Messages, Message{
		Kind:      MessageAssistant,
		Content:   msg.GetTextContent(),
		ToolCalls: msg.ToolCalls,
	})
}
