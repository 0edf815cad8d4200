package tools

import (
	"context"
	"fmt"
	"strings"

	"kotori/internal/flashcard"
)

// RegisterFlashcardTools adds the minimum viable flashcard tool set from the
// tutor's tool catalogue to the registry, bound to a single flashcard client.
func RegisterFlashcardTools(r *Registry, fc *flashcard.Client) {
	r.Register(&addFlashcardTool{fc})
	r.Register(&getDecksTool{fc})
	r.Register(&checkServiceTool{fc})
	r.Register(&queryNotesTool{fc})
	r.Register(&getNoteTool{fc})
	r.Register(&searchNotesTool{fc})
	r.Register(&deleteNotesTool{fc})
	r.Register(&createDeckTool{fc})
	r.Register(&deleteDeckTool{fc})
	r.Register(&deckStatsTool{fc})
	r.Register(&findCardsForStudyTool{fc})
	r.Register(&answerCardTool{fc})
	r.Register(&answerCardsTool{fc})
	r.Register(&relearnCardsTool{fc})
}

type addFlashcardTool struct{ fc *flashcard.Client }

func (t *addFlashcardTool) Name() string        { return "add_flashcard" }
func (t *addFlashcardTool) Description() string { return "Add a new flashcard note to a deck." }
func (t *addFlashcardTool) Parameters() map[string]any {
	return map[string]any{
		"front":     map[string]any{"type": "string", "description": "Front side (question/prompt)"},
		"back":      map[string]any{"type": "string", "description": "Back side (answer/explanation)"},
		"deck":      map[string]any{"type": "string", "description": "Deck name"},
		"tags":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"audio_url": map[string]any{"type": "string", "description": "Optional audio attachment URL"},
	}
}
func (t *addFlashcardTool) RequiredParameters() []string { return []string{"front", "back", "deck"} }
func (t *addFlashcardTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	front, err := requireString(args, "front")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	back, err := requireString(args, "back")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	deck, err := requireString(args, "deck")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	tags := argStringSlice(args, "tags")
	audioURL, _ := argString(args, "audio_url")

	id, err := t.fc.AddFlashcard(ctx, front, back, deck, tags, audioURL)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(fmt.Sprintf("Successfully added note to deck %q with ID: %d", deck, id)), nil
}

type getDecksTool struct{ fc *flashcard.Client }

func (t *getDecksTool) Name() string                 { return "get_decks" }
func (t *getDecksTool) Description() string          { return "List all available flashcard decks." }
func (t *getDecksTool) Parameters() map[string]any   { return map[string]any{} }
func (t *getDecksTool) RequiredParameters() []string { return nil }
func (t *getDecksTool) Execute(ctx context.Context, _ map[string]any) (*ToolResult, error) {
	decks, err := t.fc.GetDecks(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if len(decks) == 0 {
		return textResult("No decks found"), nil
	}
	return textResult("Available decks: " + strings.Join(decks, ", ")), nil
}

type checkServiceTool struct{ fc *flashcard.Client }

func (t *checkServiceTool) Name() string { return "check_service" }
func (t *checkServiceTool) Description() string {
	return "Check whether the flashcard service is reachable."
}
func (t *checkServiceTool) Parameters() map[string]any   { return map[string]any{} }
func (t *checkServiceTool) RequiredParameters() []string { return nil }
func (t *checkServiceTool) Execute(ctx context.Context, _ map[string]any) (*ToolResult, error) {
	version, err := t.fc.Health(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(fmt.Sprintf("Flashcard service is reachable, protocol version %d", version)), nil
}

type queryNotesTool struct{ fc *flashcard.Client }

func (t *queryNotesTool) Name() string { return "query_notes" }
func (t *queryNotesTool) Description() string {
	return "Query notes by content, deck, note type and tags."
}
func (t *queryNotesTool) Parameters() map[string]any {
	return map[string]any{
		"query":     map[string]any{"type": "string"},
		"deck":      map[string]any{"type": "string"},
		"note_type": map[string]any{"type": "string"},
		"tags":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"limit":     map[string]any{"type": "integer"},
	}
}
func (t *queryNotesTool) RequiredParameters() []string { return nil }
func (t *queryNotesTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	query, _ := argString(args, "query")
	deck, _ := argString(args, "deck")
	noteType, _ := argString(args, "note_type")
	tags := argStringSlice(args, "tags")
	limit, ok := argInt(args, "limit")
	if !ok {
		limit = 20
	}

	notes, err := t.fc.QueryNotes(ctx, query, deck, noteType, tags, limit)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(formatNotes(notes, limit)), nil
}

type getNoteTool struct{ fc *flashcard.Client }

func (t *getNoteTool) Name() string        { return "get_note" }
func (t *getNoteTool) Description() string { return "Get detailed information about a note by id." }
func (t *getNoteTool) Parameters() map[string]any {
	return map[string]any{"id": map[string]any{"type": "integer"}}
}
func (t *getNoteTool) RequiredParameters() []string { return []string{"id"} }
func (t *getNoteTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	id, err := requireInt64(args, "id")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	note, err := t.fc.GetNote(ctx, id)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(formatNotes([]flashcard.Note{*note}, 1)), nil
}

type searchNotesTool struct{ fc *flashcard.Client }

func (t *searchNotesTool) Name() string { return "search_notes" }
func (t *searchNotesTool) Description() string {
	return "Search notes containing specific content in any field."
}
func (t *searchNotesTool) Parameters() map[string]any {
	return map[string]any{
		"content": map[string]any{"type": "string"},
		"limit":   map[string]any{"type": "integer"},
	}
}
func (t *searchNotesTool) RequiredParameters() []string { return []string{"content"} }
func (t *searchNotesTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	content, err := requireString(args, "content")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	limit, ok := argInt(args, "limit")
	if !ok {
		limit = 10
	}
	notes, err := t.fc.SearchNotes(ctx, content, limit)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(formatNotes(notes, limit)), nil
}

type deleteNotesTool struct{ fc *flashcard.Client }

func (t *deleteNotesTool) Name() string        { return "delete_notes" }
func (t *deleteNotesTool) Description() string { return "Delete notes by id." }
func (t *deleteNotesTool) Parameters() map[string]any {
	return map[string]any{"ids": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}}}
}
func (t *deleteNotesTool) RequiredParameters() []string { return []string{"ids"} }
func (t *deleteNotesTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	ids := argInt64Slice(args, "ids")
	if len(ids) == 0 {
		return errorResult("no note ids provided"), nil
	}
	if err := t.fc.DeleteNotes(ctx, ids); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(fmt.Sprintf("Successfully deleted %d note(s)", len(ids))), nil
}

type createDeckTool struct{ fc *flashcard.Client }

func (t *createDeckTool) Name() string        { return "create_deck" }
func (t *createDeckTool) Description() string { return "Create a new deck." }
func (t *createDeckTool) Parameters() map[string]any {
	return map[string]any{"name": map[string]any{"type": "string"}}
}
func (t *createDeckTool) RequiredParameters() []string { return []string{"name"} }
func (t *createDeckTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	name, err := requireString(args, "name")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if err := t.fc.CreateDeck(ctx, name); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(fmt.Sprintf("Successfully created deck %q", name)), nil
}

type deleteDeckTool struct{ fc *flashcard.Client }

func (t *deleteDeckTool) Name() string { return "delete_deck" }
func (t *deleteDeckTool) Description() string {
	return "Delete a deck, optionally deleting its cards too."
}
func (t *deleteDeckTool) Parameters() map[string]any {
	return map[string]any{
		"name":      map[string]any{"type": "string"},
		"cards_too": map[string]any{"type": "boolean"},
	}
}
func (t *deleteDeckTool) RequiredParameters() []string { return []string{"name"} }
func (t *deleteDeckTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	name, err := requireString(args, "name")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	cardsToo := argBool(args, "cards_too")
	if err := t.fc.DeleteDeck(ctx, name, cardsToo); err != nil {
		return errorResult(err.Error()), nil
	}
	if cardsToo {
		return textResult(fmt.Sprintf("Successfully deleted deck %q and all its cards", name)), nil
	}
	return textResult(fmt.Sprintf("Successfully deleted deck %q (cards moved to default deck)", name)), nil
}

type deckStatsTool struct{ fc *flashcard.Client }

func (t *deckStatsTool) Name() string        { return "deck_stats" }
func (t *deckStatsTool) Description() string { return "Get statistics for a deck." }
func (t *deckStatsTool) Parameters() map[string]any {
	return map[string]any{"name": map[string]any{"type": "string"}}
}
func (t *deckStatsTool) RequiredParameters() []string { return []string{"name"} }
func (t *deckStatsTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	name, err := requireString(args, "name")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	stats, err := t.fc.DeckStats(ctx, name)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(fmt.Sprintf(
		"Statistics for deck %q:\nTotal notes: %d\nNew cards: %d\nLearning cards: %d\nReview cards: %d",
		name, stats.TotalInDeck, stats.NewCount, stats.LearnCount, stats.ReviewCount,
	)), nil
}

type findCardsForStudyTool struct{ fc *flashcard.Client }

func (t *findCardsForStudyTool) Name() string { return "find_cards_for_study" }
func (t *findCardsForStudyTool) Description() string {
	return "Find due cards to drive the guided study conversation."
}
func (t *findCardsForStudyTool) Parameters() map[string]any {
	return map[string]any{
		"deck":  map[string]any{"type": "string"},
		"limit": map[string]any{"type": "integer"},
	}
}
func (t *findCardsForStudyTool) RequiredParameters() []string { return nil }
func (t *findCardsForStudyTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	deck, _ := argString(args, "deck")
	limit, ok := argInt(args, "limit")
	if !ok {
		limit = 1
	}
	cards, err := t.fc.FindCardsForStudy(ctx, deck, limit)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if len(cards) == 0 {
		return textResult("No due cards found"), nil
	}
	var b strings.Builder
	for _, c := range cards {
		fmt.Fprintf(&b, "ID: %d | Deck: %s | Front: %s | Back: %s\n", c.CardID, c.Deck, c.Front, c.Back)
	}
	return textResult(strings.TrimSuffix(b.String(), "\n")), nil
}

type answerCardTool struct{ fc *flashcard.Client }

func (t *answerCardTool) Name() string { return "answer_card" }
func (t *answerCardTool) Description() string {
	return "Grade a single card with ease 1 (Again) through 4 (Easy)."
}
func (t *answerCardTool) Parameters() map[string]any {
	return map[string]any{
		"card_id": map[string]any{"type": "integer"},
		"ease":    map[string]any{"type": "integer", "enum": []int{1, 2, 3, 4}},
	}
}
func (t *answerCardTool) RequiredParameters() []string { return []string{"card_id", "ease"} }
func (t *answerCardTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	cardID, err := requireInt64(args, "card_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	ease, ok := argInt(args, "ease")
	if !ok {
		return errorResult("missing required argument \"ease\""), nil
	}
	if err := t.fc.AnswerCard(ctx, cardID, ease); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(fmt.Sprintf("Successfully answered card %d with ease: %d", cardID, ease)), nil
}

type answerCardsTool struct{ fc *flashcard.Client }

func (t *answerCardsTool) Name() string        { return "answer_cards" }
func (t *answerCardsTool) Description() string { return "Grade multiple cards in a single batch." }
func (t *answerCardsTool) Parameters() map[string]any {
	return map[string]any{
		"answers": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"card_id": map[string]any{"type": "integer"},
					"ease":    map[string]any{"type": "integer"},
				},
			},
		},
	}
}
func (t *answerCardsTool) RequiredParameters() []string { return []string{"answers"} }
func (t *answerCardsTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	raw, ok := args["answers"].([]any)
	if !ok || len(raw) == 0 {
		return errorResult("no card answers provided"), nil
	}
	var answers []flashcard.CardAnswer
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return errorResult("each card answer must have 'card_id' and 'ease' keys"), nil
		}
		cardID, ok1 := argInt64(m, "card_id")
		ease, ok2 := argInt(m, "ease")
		if !ok1 || !ok2 {
			return errorResult("each card answer must have 'card_id' and 'ease' keys"), nil
		}
		answers = append(answers, flashcard.CardAnswer{CardID: cardID, Ease: ease})
	}
	if err := t.fc.AnswerCards(ctx, answers); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(fmt.Sprintf("Successfully answered %d card(s)", len(answers))), nil
}

type relearnCardsTool struct{ fc *flashcard.Client }

func (t *relearnCardsTool) Name() string        { return "relearn_cards" }
func (t *relearnCardsTool) Description() string { return "Move cards back into the learning queue." }
func (t *relearnCardsTool) Parameters() map[string]any {
	return map[string]any{"ids": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}}}
}
func (t *relearnCardsTool) RequiredParameters() []string { return []string{"ids"} }
func (t *relearnCardsTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	ids := argInt64Slice(args, "ids")
	if len(ids) == 0 {
		return errorResult("no card ids provided"), nil
	}
	if err := t.fc.RelearnCards(ctx, ids); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(fmt.Sprintf("Successfully moved %d card(s) to relearning", len(ids))), nil
}

func formatNotes(notes []flashcard.Note, limit int) string {
	if len(notes) == 0 {
		return "No notes found"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d note(s) (showing up to %d):\n\n", len(notes), limit)
	for _, n := range notes {
		fmt.Fprintf(&b, "Note ID: %d | Deck: %s | Model: %s\n", n.ID, n.Deck, n.ModelName)
		for field, value := range n.Fields {
			if value != "" {
				fmt.Fprintf(&b, "  %s: %s\n", field, value)
			}
		}
		if len(n.Tags) > 0 {
			fmt.Fprintf(&b, "  Tags: %s\n", strings.Join(n.Tags, ", "))
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
