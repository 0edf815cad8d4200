package llm

// Stop-reason constants; every provider normalizes its native finish reason
// into one of these.
const (
	StopReasonStop   = "stop"
	StopReasonLength = "length"
)

// ContentBlock type constants.
const (
	BlockTypeText     = "text"
	BlockTypeThinking = "thinking"
	BlockTypeImage    = "image"
	BlockTypeError    = "error"
)

// debugDirContextKey is the context key under which a session-scoped debug
// directory name is stored, consulted by StreamDebugger.
type debugDirContextKey struct{}

// DebugDirContextKey is exported so callers building a context for a
// streaming call can attach a session-scoped debug directory.
var DebugDirContextKey = debugDirContextKey{}
