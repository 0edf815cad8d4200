package graph

import "context"

func greetingPrompt(lang Language) string {
	switch lang {
	case LanguageJapanese:
		return "こんにちは！コトリです。あなたの日本語レベルを教えてください（初級/中級/上級）。今日は何を勉強したいですか？"
	default:
		return "Hey! I'm Kotori 🦜 What's your English level? (beginner/intermediate/advanced). And what would you like to focus on today?"
	}
}

// nodeGreeting emits a locale-appropriate greeting and captures the user's
// level and goal as learning_goals.
func nodeGreeting(ctx context.Context, rt *Runtime, state *State, resume *string) (Step, error) {
	prompt := greetingPrompt(state.Config.Language)

	if resume == nil {
		return Pending(prompt, state), nil
	}

	state = state.Clone()
	state.appendMessage(MessageAssistant, prompt)
	state.appendMessage(MessageUser, *resume)
	state.LearningGoals = *resume
	state.Next = NodeModeSelectionPrompt
	return Ready(state), nil
}
