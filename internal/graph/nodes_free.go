package graph

import (
	"context"
	"strings"
)

const freeConversationSystemPrompt = `You are Kotori, a friendly language tutor having a casual conversation.
Chat naturally about whatever the user brings up. Do not correct their
grammar or usage unless they explicitly ask for feedback. You may call
add_flashcard if the user wants to save a word or phrase they learned.`

// nodeFreeConversation is casual, uncorrected chat; it binds only the
// add_flashcard tool.
func nodeFreeConversation(ctx context.Context, rt *Runtime, state *State, resume *string) (Step, error) {
	state = state.Clone()

	if resume != nil {
		state.appendMessage(MessageUser, *resume)
		state.Next = NodeFreeConversationEval
		return Ready(state), nil
	}

	toolset := rt.Tools.Subset("add_flashcard")
	respMsg, err := callLLM(ctx, rt, freeConversationSystemPrompt, state, state.RoundStartIdx, toolset)
	if err != nil {
		return Step{}, err
	}
	appendAssistantFromLLM(state, respMsg)

	if len(respMsg.ToolCalls) > 0 {
		state.CallingNode = NodeFreeConversation
		return Ready(state), nil
	}

	return Pending(respMsg.GetTextContent(), state), nil
}

const freeConversationEvalSystemPrompt = `You assess the naturalness and grammatical correctness of a language
learner's last message during free conversation. If the message already
sounds natural and native-like, or the user is asking for help or
clarification, respond with exactly "NO_ASSESSMENT". Otherwise, respond in
this format:
MEANING_UNDERSTANDING: <1-5> - <brief note>
USAGE_ACCURACY: <1-5> - <brief note>
NATURALNESS: <1-5> - <brief note>
OVERALL_MASTERY: <1-5> - <brief note>`

// nodeFreeConversationEval either produces a brief naturalness assessment or
// routes back to card-study mode.
func nodeFreeConversationEval(ctx context.Context, rt *Runtime, state *State, _ *string) (Step, error) {
	state = state.Clone()

	fromIdx := len(state.Messages) - 2
	if fromIdx < 0 {
		fromIdx = 0
	}
	resp, err := callLLM(ctx, rt, freeConversationEvalSystemPrompt, state, fromIdx, nil)
	if err != nil {
		return Step{}, err
	}

	assessment := resp.GetTextContent()
	if strings.Contains(assessment, "NO_ASSESSMENT") || len(strings.TrimSpace(assessment)) == 0 {
		state.Next = NodeFreeConversation
		return Ready(state), nil
	}

	state.AssessmentHistory = append(state.AssessmentHistory, assessment)
	state.Next = NodeRetrieveCards
	return Ready(state), nil
}
