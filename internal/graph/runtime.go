package graph

import (
	"context"
	"log/slog"

	"kotori/internal/config"
	"kotori/internal/flashcard"
	"kotori/internal/kerrors"
	"kotori/internal/llm"
	"kotori/internal/tools"
)

// Observer receives node-boundary events as the runtime drives a thread, so
// the orchestrator can emit them to the push channel in program order.
type Observer interface {
	OnStateChange(node string, state *State)
	OnToolCall(call llm.ToolCall)
	OnToolResult(toolName, content string)
}

type noopObserver struct{}

func (noopObserver) OnStateChange(string, *State) {}
func (noopObserver) OnToolCall(llm.ToolCall)      {}
func (noopObserver) OnToolResult(string, string)  {}

// OutcomeKind is what a drive-loop Advance call produced.
type OutcomeKind int

const (
	OutcomeInterrupt OutcomeKind = iota
	OutcomeTerminal
)

// Outcome is returned from Advance: either the thread suspended on a new
// interrupt, or it reached the terminal marker.
type Outcome struct {
	Kind   OutcomeKind
	Prompt string
	State  *State
}

// Runtime holds the graph definition, the per-thread checkpointer, and the
// collaborators every node needs: the LLM client, the tool dispatcher, and
// the flashcard client.
type Runtime struct {
	Graph        *Graph
	Checkpoints  Checkpointer
	LLM          llm.Client
	Tools        *tools.Registry
	Flashcard    *flashcard.Client
	SystemConfig *config.SystemConfig
}

// Advance runs the graph forward from the thread's checkpoint until it
// either suspends on a new interrupt or reaches the terminal node.
//
// On the very first call for a thread, pass initialState and a nil
// userReply. On every subsequent call, pass nil initialState and the user's
// reply to the last interrupt.
func (rt *Runtime) Advance(ctx context.Context, threadID string, initialState *State, userReply *string, obs Observer) (*Outcome, error) {
	if obs == nil {
		obs = noopObserver{}
	}
	ctx = context.WithValue(ctx, llm.DebugDirContextKey, threadID)

	cp, ok := rt.Checkpoints.Load(threadID)
	var state *State
	var currentNode string
	var resumeArg *string

	if !ok {
		if initialState == nil {
			return nil, kerrors.New(kerrors.KindStateCorruption, "no checkpoint for thread and no initial state supplied")
		}
		state = initialState
		currentNode = rt.Graph.start
	} else {
		state = cp.State.Clone()
		currentNode = cp.AwaitingNode
		if cp.Waiting() {
			if userReply == nil {
				return nil, kerrors.New(kerrors.KindUserInputRejected, "thread is awaiting a user reply")
			}
			resumeArg = userReply
		}
	}

	maxSteps := rt.SystemConfig.MaxNodeSteps
	if maxSteps <= 0 {
		maxSteps = 100
	}

	for step := 0; step < maxSteps; step++ {
		fn, ok := rt.Graph.node(currentNode)
		if !ok {
			return nil, kerrors.New(kerrors.KindStateCorruption, "unknown node: "+currentNode)
		}

		prevMsgLen := len(state.Messages)
		result, err := fn(ctx, rt, state, resumeArg)
		resumeArg = nil
		if err != nil {
			return nil, err
		}

		if result.Kind == StepPending {
			rt.Checkpoints.Save(threadID, &Checkpoint{State: result.State, AwaitingNode: currentNode, Prompt: result.Prompt})
			obs.OnStateChange(currentNode, result.State)
			return &Outcome{Kind: OutcomeInterrupt, Prompt: result.Prompt, State: result.State}, nil
		}

		state = result.State
		obs.OnStateChange(currentNode, state)

		if currentNode == NodeTools {
			for _, m := range state.Messages[prevMsgLen:] {
				if m.Kind == MessageToolResult {
					obs.OnToolResult(m.ToolName, m.Content)
				}
			}
		}

		if calls := pendingToolCalls(state); len(calls) > 0 && currentNode != NodeTools {
			for _, c := range calls {
				obs.OnToolCall(c)
			}
			state.CallingNode = currentNode
			currentNode = NodeTools
			rt.Checkpoints.Save(threadID, &Checkpoint{State: state, AwaitingNode: currentNode})
			continue
		}

		next := rt.routeNext(currentNode, state)
		if next == Terminal {
			rt.Checkpoints.Delete(threadID)
			return &Outcome{Kind: OutcomeTerminal, State: state}, nil
		}

		rt.Checkpoints.Save(threadID, &Checkpoint{State: state, AwaitingNode: next})
		currentNode = next
	}

	return nil, kerrors.New(kerrors.KindStateCorruption, "recursion cap exceeded")
}

// routeNext implements the post-step routing rule: after the tools node,
// control returns to calling_node (or the fail-safe); otherwise it follows
// state.Next as set by the node that just ran.
func (rt *Runtime) routeNext(currentNode string, state *State) string {
	if currentNode == NodeTools {
		if isValidNode(state.CallingNode) {
			return state.CallingNode
		}
		slog.Warn("tools node returned to an invalid calling_node, falling back", "calling_node", state.CallingNode)
		return NodeModeSelectionPrompt
	}
	if state.Next == "" {
		return Terminal
	}
	return state.Next
}

func pendingToolCalls(state *State) []llm.ToolCall {
	last, ok := state.lastMessage()
	if !ok || last.Kind != MessageAssistant {
		return nil
	}
	return last.ToolCalls
}
