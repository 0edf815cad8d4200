package graph

import (
	"context"
	"strings"
)

const modeSelectionPromptText = "Would you like to study flashcards or just chat? (study/chat)"

// nodeModeSelectionPrompt asks the user to pick a mode for this round.
func nodeModeSelectionPrompt(ctx context.Context, rt *Runtime, state *State, resume *string) (Step, error) {
	if resume == nil {
		return Pending(modeSelectionPromptText, state), nil
	}

	state = state.Clone()
	state.appendMessage(MessageAssistant, modeSelectionPromptText)
	state.appendMessage(MessageUser, *resume)
	state.Next = NodeModeSelection
	return Ready(state), nil
}

const modeClassifierSystemPrompt = `You classify a user's reply to a mode-selection question as exactly one
word: "study" if they want flashcard practice/review, or "chat" if they want
free conversation. Respond with only that single word.`

// nodeModeSelection classifies the user's reply into a route using a 2-way
// LLM classifier over the last few messages.
func nodeModeSelection(ctx context.Context, rt *Runtime, state *State, _ *string) (Step, error) {
	state = state.Clone()

	fromIdx := len(state.Messages) - 2
	if fromIdx < 0 {
		fromIdx = 0
	}
	resp, err := callLLM(ctx, rt, modeClassifierSystemPrompt, state, fromIdx, nil)
	if err != nil {
		return Step{}, err
	}

	classification := strings.ToLower(strings.TrimSpace(resp.GetTextContent()))
	state.RoundStartIdx = len(state.Messages)

	if strings.Contains(classification, "study") {
		state.Next = NodeRetrieveCards
	} else {
		state.Next = NodeFreeConversation
	}
	return Ready(state), nil
}
