// Package kerrors defines the error taxonomy shared across the runtime,
// the session orchestrator, and the external-service clients.
package kerrors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the abstract error categories the runtime reasons
// about when deciding whether to retry, surface, or terminate a session.
type Kind string

const (
	// KindTransport covers connection-refused/timeout failures talking to an
	// external service (flashcard service, LLM gateway). Retriable.
	KindTransport Kind = "transport"
	// KindServiceProtocol covers a well-formed response carrying a non-null
	// domain error field. Surfaced verbatim, never retried.
	KindServiceProtocol Kind = "service_protocol"
	// KindLLM covers failures from the LLM invoker itself. Retried with
	// backoff up to a small bound.
	KindLLM Kind = "llm"
	// KindToolExecution covers a tool call that failed to execute; the node
	// continues, the failure becomes a tool-result message.
	KindToolExecution Kind = "tool_execution"
	// KindStateCorruption covers invariant violations in session state that
	// cannot be safely continued from; terminates the session.
	KindStateCorruption Kind = "state_corruption"
	// KindTimeout covers await timeouts (drive-loop resume wait, the
	// flashcard client's rate-limiter wait). A request that times out on the
	// wire is reported as KindTransport.
	KindTimeout Kind = "timeout"
	// KindUserInputRejected covers a user reply that the orchestrator could
	// not accept (e.g. queue full); never crashes the session.
	KindUserInputRejected Kind = "user_input_rejected"
)

// Error wraps an underlying cause with one of the abstract Kinds so callers
// can branch with errors.As without parsing strings.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a Error of the given kind around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
