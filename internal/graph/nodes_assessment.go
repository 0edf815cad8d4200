package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const assessmentRouterSystemPromptTmpl = `You are a task manager for %s language learning assessment. Given the
user's recent messages and their interaction with the active card, choose
the route that matches their intent. Respond only with the route number.
ACTIVE CARD: %s

Routes:
1. FREE_CONVERSATION: the user wants to talk about something unrelated to the active card.
2. RETRIEVE_CARDS: the user has shown sufficient mastery of the active card, or wants a different card.
3. CONVERSATION: the user needs more practice or is asking for help with the active card.`

const assessmentRubricSystemPromptTmpl = `You are assessing a language learner's mastery of the active card based on
their recent messages.

ACTIVE CARD: %s

Score each axis 1-5:
1. MEANING_UNDERSTANDING: do they grasp the core meaning?
2. USAGE_ACCURACY: do they use correct form and grammar?
3. NATURALNESS: do they use it in a natural, native-like way?

Respond in exactly this format:
MEANING_UNDERSTANDING: <1-5> - <brief evidence>
USAGE_ACCURACY: <1-5> - <brief evidence>
NATURALNESS: <1-5> - <brief evidence>
OVERALL_MASTERY: <1-5> - <brief summary>`

// nodeAssessment classifies intent among {continue, switch-card, free-talk}.
// On switch or free-talk it first produces a rubric-scored assessment of
// the active card and grades it, then routes onward.
func nodeAssessment(ctx context.Context, rt *Runtime, state *State, _ *string) (Step, error) {
	state = state.Clone()

	roundCount := len(state.Messages) - state.RoundStartIdx

	routerPrompt := fmt.Sprintf(assessmentRouterSystemPromptTmpl, state.Config.Language, state.ActiveCard)
	fromIdx := state.RoundStartIdx - 10
	if fromIdx < 0 {
		fromIdx = 0
	}
	routeResp, err := callLLM(ctx, rt, routerPrompt, state, fromIdx, nil)
	if err != nil {
		return Step{}, err
	}
	decision := strings.TrimSpace(routeResp.GetTextContent())

	switchingAway := strings.Contains(decision, "1") || strings.Contains(decision, "2")

	if switchingAway && roundCount > 0 && state.ActiveCard != "" {
		if err := runCardAssessment(ctx, rt, state); err != nil {
			slog.WarnContext(ctx, "assessment: card grading failed, continuing", "error", err)
		}
	}

	switch {
	case strings.Contains(decision, "1"):
		state.Next = NodeFreeConversation
		resetRoundState(state)
	case strings.Contains(decision, "2"):
		state.Next = NodeRetrieveCards
		resetRoundState(state)
	default:
		state.Next = NodeConversation
	}

	return Ready(state), nil
}

// runCardAssessment produces the rubric-scored assessment, appends it to
// history, and grades the active card from its OVERALL_MASTERY score.
func runCardAssessment(ctx context.Context, rt *Runtime, state *State) error {
	rubricPrompt := fmt.Sprintf(assessmentRubricSystemPromptTmpl, state.ActiveCard)
	fromIdx := state.RoundStartIdx
	if fromIdx > len(state.Messages) {
		fromIdx = len(state.Messages)
	}
	resp, err := callLLM(ctx, rt, rubricPrompt, state, fromIdx, nil)
	if err != nil {
		return err
	}

	assessment := resp.GetTextContent()
	state.AssessmentHistory = append(state.AssessmentHistory, assessment)
	state.NeedCardAnswer = true

	summary, err := rt.Flashcard.GradeActiveCard(ctx, state.ActiveCard, assessment)
	if err != nil {
		return err
	}
	if summary != "" {
		state.appendMessage(MessageToolResult, summary)
	}
	return nil
}

func resetRoundState(state *State) {
	state.ActiveCard = ""
	state.RoundStartIdx = len(state.Messages)
	state.NeedCardAnswer = false
}
