// Package flashcard is a thin typed wrapper over a localhost JSON envelope
// protocol of shape {action, version, params} -> {result, error}.
package flashcard

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kotori/internal/kerrors"
	"kotori/internal/metrics"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const protocolVersion = 6

// Client talks to a single local flashcard service endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New returns a Client bound to the given endpoint. callTimeout bounds a
// normal action call; requests that need a tighter bound (health checks)
// pass their own context deadline.
func New(baseURL string, callTimeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: callTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(10), 10),
	}
}

type envelope struct {
	Action  string         `json:"action"`
	Version int            `json:"version"`
	Params  map[string]any `json:"params,omitempty"`
}

// call posts a single action and returns the raw result payload as gjson.Result.
func (c *Client) call(ctx context.Context, action string, params map[string]any) (gjson.Result, error) {
	start := time.Now()
	defer func() {
		metrics.FlashcardCallDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		metrics.FlashcardCallErrors.WithLabelValues(action, string(kerrors.KindTimeout)).Inc()
		return gjson.Result{}, kerrors.Wrap(kerrors.KindTimeout, "rate limiter wait", err)
	}

	body, err := json.Marshal(envelope{Action: action, Version: protocolVersion, Params: params})
	if err != nil {
		metrics.FlashcardCallErrors.WithLabelValues(action, string(kerrors.KindServiceProtocol)).Inc()
		return gjson.Result{}, kerrors.Wrap(kerrors.KindServiceProtocol, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		metrics.FlashcardCallErrors.WithLabelValues(action, string(kerrors.KindTransport)).Inc()
		return gjson.Result{}, kerrors.Wrap(kerrors.KindTransport, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "timeout") {
			metrics.FlashcardCallErrors.WithLabelValues(action, string(kerrors.KindTransport)).Inc()
			return gjson.Result{}, kerrors.Wrap(kerrors.KindTransport, "flashcard request timed out", err)
		}
		metrics.FlashcardCallErrors.WithLabelValues(action, string(kerrors.KindTransport)).Inc()
		return gjson.Result{}, kerrors.Wrap(kerrors.KindTransport, "flashcard request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.FlashcardCallErrors.WithLabelValues(action, string(kerrors.KindTransport)).Inc()
		return gjson.Result{}, kerrors.Wrap(kerrors.KindTransport, "read response body", err)
	}

	parsed := gjson.ParseBytes(raw)
	if errVal := parsed.Get("error"); errVal.Exists() && errVal.Type != gjson.Null && errVal.String() != "" {
		metrics.FlashcardCallErrors.WithLabelValues(action, string(kerrors.KindServiceProtocol)).Inc()
		return gjson.Result{}, kerrors.New(kerrors.KindServiceProtocol, errVal.String())
	}

	return parsed.Get("result"), nil
}

// Health checks the flashcard service is reachable and returns its version.
func (c *Client) Health(ctx context.Context) (int, error) {
	res, err := c.call(ctx, "version", nil)
	if err != nil {
		return 0, err
	}
	return int(res.Int()), nil
}

// Deck is a single deck name returned by GetDecks.
type Deck = string

func (c *Client) GetDecks(ctx context.Context) ([]Deck, error) {
	res, err := c.call(ctx, "deckNames", nil)
	if err != nil {
		return nil, err
	}
	var decks []Deck
	for _, d := range res.Array() {
		decks = append(decks, d.String())
	}
	return decks, nil
}

func (c *Client) CreateDeck(ctx context.Context, name string) error {
	_, err := c.call(ctx, "createDeck", map[string]any{"deck": name})
	return err
}

func (c *Client) DeleteDeck(ctx context.Context, name string, cardsToo bool) error {
	_, err := c.call(ctx, "deleteDecks", map[string]any{
		"decks":    []string{name},
		"cardsToo": cardsToo,
	})
	return err
}

// DeckStats holds the subset of AnkiConnect getDeckStats fields used for
// study-session reporting.
type DeckStats struct {
	Name        string `json:"name"`
	TotalInDeck int    `json:"total_in_deck"`
	NewCount    int    `json:"new_count"`
	LearnCount  int    `json:"learn_count"`
	ReviewCount int    `json:"review_count"`
}

func (c *Client) DeckStats(ctx context.Context, name string) (*DeckStats, error) {
	res, err := c.call(ctx, "getDeckStats", map[string]any{"decks": []string{name}})
	if err != nil {
		return nil, err
	}
	var stats *DeckStats
	res.ForEach(func(_, v gjson.Result) bool {
		if v.Get("name").String() == name {
			stats = &DeckStats{
				Name:        name,
				TotalInDeck: int(v.Get("total_in_deck").Int()),
				NewCount:    int(v.Get("new_count").Int()),
				LearnCount:  int(v.Get("learn_count").Int()),
				ReviewCount: int(v.Get("review_count").Int()),
			}
			return false
		}
		return true
	})
	if stats == nil {
		return nil, kerrors.New(kerrors.KindServiceProtocol, fmt.Sprintf("no stats found for deck %q", name))
	}
	return stats, nil
}

// Note mirrors the subset of an AnkiConnect notesInfo entry the tutor uses.
type Note struct {
	ID        int64             `json:"id"`
	Deck      string            `json:"deck"`
	ModelName string            `json:"model_name"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags"`
}

func parseNote(v gjson.Result) Note {
	fields := map[string]string{}
	v.Get("fields").ForEach(func(k, fv gjson.Result) bool {
		fields[k.String()] = fv.Get("value").String()
		return true
	})
	var tags []string
	for _, t := range v.Get("tags").Array() {
		tags = append(tags, t.String())
	}
	return Note{
		ID:        v.Get("noteId").Int(),
		Deck:      v.Get("deckName").String(),
		ModelName: v.Get("modelName").String(),
		Fields:    fields,
		Tags:      tags,
	}
}

func (c *Client) notesInfo(ctx context.Context, ids []int64) ([]Note, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := c.call(ctx, "notesInfo", map[string]any{"notes": ids})
	if err != nil {
		return nil, err
	}
	var notes []Note
	for _, n := range res.Array() {
		notes = append(notes, parseNote(n))
	}
	return notes, nil
}

func (c *Client) GetNote(ctx context.Context, id int64) (*Note, error) {
	notes, err := c.notesInfo(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, kerrors.New(kerrors.KindServiceProtocol, fmt.Sprintf("no note found with id %d", id))
	}
	return &notes[0], nil
}

func (c *Client) findNotes(ctx context.Context, query string) ([]int64, error) {
	res, err := c.call(ctx, "findNotes", map[string]any{"query": query})
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, v := range res.Array() {
		ids = append(ids, v.Int())
	}
	return ids, nil
}

func (c *Client) QueryNotes(ctx context.Context, query, deck, noteType string, tags []string, limit int) ([]Note, error) {
	parts := []string{}
	if query != "" {
		parts = append(parts, fmt.Sprintf("%q", query))
	}
	if deck != "" {
		parts = append(parts, fmt.Sprintf("deck:%q", deck))
	}
	if noteType != "" {
		parts = append(parts, fmt.Sprintf("note:%q", noteType))
	}
	for _, t := range tags {
		parts = append(parts, "tag:"+t)
	}
	search := strings.Join(parts, " ")
	if search == "" {
		search = "*"
	}

	ids, err := c.findNotes(ctx, search)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return c.notesInfo(ctx, ids)
}

func (c *Client) SearchNotes(ctx context.Context, content string, limit int) ([]Note, error) {
	ids, err := c.findNotes(ctx, fmt.Sprintf("%q", content))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return c.notesInfo(ctx, ids)
}

func (c *Client) DeleteNotes(ctx context.Context, ids []int64) error {
	_, err := c.call(ctx, "deleteNotes", map[string]any{"notes": ids})
	return err
}

// AddFlashcard adds a Basic note and returns the new note id.
func (c *Client) AddFlashcard(ctx context.Context, front, back, deck string, tags []string, audioURL string) (int64, error) {
	note := map[string]any{
		"deckName":  deck,
		"modelName": "Basic",
		"fields":    map[string]string{"Front": front, "Back": back},
		"options": map[string]any{
			"allowDuplicate": false,
			"duplicateScope": "deck",
		},
	}
	if len(tags) > 0 {
		note["tags"] = tags
	}

	res, err := c.call(ctx, "addNote", map[string]any{"note": note})
	if err != nil {
		return 0, err
	}
	noteID := res.Int()

	if audioURL != "" && noteID != 0 {
		if err := c.attachAudio(ctx, noteID, audioURL); err != nil {
			return noteID, kerrors.Wrap(kerrors.KindServiceProtocol, "note added but audio attach failed", err)
		}
	}
	return noteID, nil
}

func (c *Client) attachAudio(ctx context.Context, noteID int64, audioURL string) error {
	filename := fmt.Sprintf("audio_%d.mp3", noteID)
	res, err := c.call(ctx, "storeMediaFile", map[string]any{"filename": filename, "url": audioURL})
	if err != nil {
		return err
	}
	stored := res.String()
	if stored == "" {
		stored = filename
	}
	_, err = c.call(ctx, "updateNoteFields", map[string]any{
		"note": map[string]any{
			"id":     noteID,
			"fields": map[string]string{"Back": fmt.Sprintf("[sound:%s]", stored)},
		},
	})
	return err
}

// CardStudyCandidate is a due card surfaced for the retrieval/assessment flow.
type CardStudyCandidate struct {
	CardID int64  `json:"card_id"`
	Deck   string `json:"deck"`
	Front  string `json:"front"`
	Back   string `json:"back"`
}

// FindCardsForStudy finds due cards in a deck (or all decks) and returns the
// front/back content the conversation node needs to build a prompt.
func (c *Client) FindCardsForStudy(ctx context.Context, deck string, limit int) ([]CardStudyCandidate, error) {
	query := "is:due"
	if deck != "" {
		query = fmt.Sprintf("%s deck:%q", query, deck)
	}

	res, err := c.call(ctx, "findCards", map[string]any{"query": query})
	if err != nil {
		return nil, err
	}
	var cardIDs []int64
	for _, v := range res.Array() {
		cardIDs = append(cardIDs, v.Int())
	}
	if len(cardIDs) == 0 {
		return nil, nil
	}
	if limit > 0 && len(cardIDs) > limit {
		cardIDs = cardIDs[:limit]
	}

	infoRes, err := c.call(ctx, "cardsInfo", map[string]any{"cards": cardIDs})
	if err != nil {
		return nil, err
	}

	var out []CardStudyCandidate
	for _, card := range infoRes.Array() {
		out = append(out, CardStudyCandidate{
			CardID: card.Get("cardId").Int(),
			Deck:   card.Get("deckName").String(),
			Front:  card.Get("fields.Front.value").String(),
			Back:   card.Get("fields.Back.value").String(),
		})
	}
	return out, nil
}

// CardAnswer pairs a card id with the ease (1..4) it should be graded with.
type CardAnswer struct {
	CardID int64 `json:"card_id"`
	Ease   int   `json:"ease"`
}

func validEase(ease int) bool { return ease >= 1 && ease <= 4 }

func (c *Client) AnswerCard(ctx context.Context, cardID int64, ease int) error {
	if !validEase(ease) {
		return kerrors.New(kerrors.KindUserInputRejected, "ease must be 1 (Again), 2 (Hard), 3 (Good) or 4 (Easy)")
	}
	_, err := c.call(ctx, "answerCards", map[string]any{
		"answers": []map[string]any{{"cardId": cardID, "ease": ease}},
	})
	return err
}

func (c *Client) AnswerCards(ctx context.Context, answers []CardAnswer) error {
	var payload []map[string]any
	for _, a := range answers {
		if !validEase(a.Ease) {
			return kerrors.New(kerrors.KindUserInputRejected, fmt.Sprintf("ease for card %d must be 1..4", a.CardID))
		}
		payload = append(payload, map[string]any{"cardId": a.CardID, "ease": a.Ease})
	}
	_, err := c.call(ctx, "answerCards", map[string]any{"answers": payload})
	return err
}

func (c *Client) RelearnCards(ctx context.Context, cardIDs []int64) error {
	_, err := c.call(ctx, "relearnCards", map[string]any{"cards": cardIDs})
	return err
}
