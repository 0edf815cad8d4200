// Package graph implements the conversational control plane's directed graph
// of suspendable nodes: greeting, mode selection, card retrieval, guided and
// free conversation, assessment, and tool dispatch.
package graph

import (
	"time"

	"kotori/internal/llm"
)

// Terminal is the sentinel "next node" value that ends a drive loop.
const Terminal = "__terminal__"

// Canonical node names. These must never be renamed: the orchestrator,
// checkpoints, and the routing fail-safe all refer to them by literal string.
const (
	NodeGreeting             = "greeting"
	NodeModeSelectionPrompt  = "mode_selection_prompt"
	NodeModeSelection        = "mode_selection"
	NodeRetrieveCards        = "retrieve_cards"
	NodeConversation         = "conversation"
	NodeAssessment           = "assessment"
	NodeFreeConversation     = "free_conversation"
	NodeFreeConversationEval = "free_conversation_eval"
	NodeTools                = "tools"
)

var validNodes = map[string]bool{
	NodeGreeting:             true,
	NodeModeSelectionPrompt:  true,
	NodeModeSelection:        true,
	NodeRetrieveCards:        true,
	NodeConversation:         true,
	NodeAssessment:           true,
	NodeFreeConversation:     true,
	NodeFreeConversationEval: true,
}

// Language is the session's chosen tutoring language.
type Language string

const (
	LanguageEnglish  Language = "english"
	LanguageJapanese Language = "japanese"
)

// Config is immutable for the lifetime of a session.
type Config struct {
	Language    Language
	DeckName    string
	Temperature float64
}

// MessageKind tags a conversation item by its role in the exchange.
type MessageKind string

const (
	MessageUser       MessageKind = "user"
	MessageAssistant  MessageKind = "assistant"
	MessageSystem     MessageKind = "system"
	MessageToolCall   MessageKind = "tool_call"
	MessageToolResult MessageKind = "tool_result"
)

// Message is one append-only conversation item.
type Message struct {
	ID         string
	Kind       MessageKind
	Content    string
	ToolCalls  []llm.ToolCall
	ToolCallID string
	ToolName   string
	Timestamp  int64
}

// State is the full per-thread session state, checkpointed after every node
// step. Config travels with it because it must survive process-local
// checkpoint round-trips exactly like the mutable fields do.
type State struct {
	Config Config

	Messages          []Message
	RoundStartIdx     int
	LearningGoals     string
	ActiveCard        string
	AssessmentHistory []string
	CallingNode       string
	Next              string
	Counter           int
	NeedCardAnswer    bool
}

// NewState seeds a fresh thread's state from its immutable config.
func NewState(cfg Config) *State {
	return &State{Config: cfg}
}

// Clone returns a deep-enough copy so that a node can mutate its working
// copy without corrupting the checkpoint of a concurrently-read state.
func (s *State) Clone() *State {
	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	cp.AssessmentHistory = append([]string(nil), s.AssessmentHistory...)
	return &cp
}

func (s *State) appendMessage(kind MessageKind, content string) {
	s.Messages = append(s.Messages, Message{
		Kind:      kind,
		Content:   content,
		Timestamp: time.Now().Unix(),
	})
}

func (s *State) lastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

func isValidNode(name string) bool {
	return validNodes[name]
}
