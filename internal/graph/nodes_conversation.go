package graph

import (
	"context"
	"fmt"
)

const conversationSystemPromptTmpl = `You are Kotori, a friendly language tutor running a guided study round.
ACTIVE CARD: %s
Anchor the conversation on this card: ask the user to use the vocabulary or
grammar point in a sentence, or quiz them naturally. Keep replies short. You
may call add_flashcard to capture a new word the user asks about, or
check_service to verify the flashcard service is reachable.`

// nodeConversation drives guided dialogue anchored on the active card. It is
// both interactive and tool-capable: a fresh entry calls the LLM, and
// whether it interrupts (asking the user something) or stays Ready (because
// the LLM requested a tool call) depends on the response.
func nodeConversation(ctx context.Context, rt *Runtime, state *State, resume *string) (Step, error) {
	state = state.Clone()

	if resume != nil {
		state.appendMessage(MessageUser, *resume)
		state.Next = NodeAssessment
		return Ready(state), nil
	}

	systemPrompt := fmt.Sprintf(conversationSystemPromptTmpl, state.ActiveCard)
	toolset := rt.Tools.Subset("add_flashcard", "check_service")

	respMsg, err := callLLM(ctx, rt, systemPrompt, state, state.RoundStartIdx, toolset)
	if err != nil {
		return Step{}, err
	}
	appendAssistantFromLLM(state, respMsg)

	if len(respMsg.ToolCalls) > 0 {
		state.CallingNode = NodeConversation
		return Ready(state), nil
	}

	return Pending(respMsg.GetTextContent(), state), nil
}
