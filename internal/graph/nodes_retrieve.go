package graph

import (
	"context"
	"fmt"
	"log/slog"
)

// nodeRetrieveCards requests one candidate card from the flashcard client;
// on empty or error it falls back to free conversation rather than failing
// the graph.
func nodeRetrieveCards(ctx context.Context, rt *Runtime, state *State, _ *string) (Step, error) {
	state = state.Clone()

	cards, err := rt.Flashcard.FindCardsForStudy(ctx, state.Config.DeckName, 1)
	if err != nil {
		slog.WarnContext(ctx, "retrieve_cards: flashcard lookup failed, falling back to free conversation", "error", err)
		state.ActiveCard = ""
		state.Next = NodeFreeConversation
		return Ready(state), nil
	}

	if len(cards) == 0 {
		state.ActiveCard = ""
		state.Next = NodeFreeConversation
		return Ready(state), nil
	}

	card := cards[0]
	state.ActiveCard = fmt.Sprintf("ID: %d | Deck: %s | Front: %s | Back: %s", card.CardID, card.Deck, card.Front, card.Back)
	state.Next = NodeConversation
	return Ready(state), nil
}
