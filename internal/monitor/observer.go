package monitor

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Turn is a single user/assistant turn observed for operational visibility.
// It carries no business logic; it exists purely so operators can see
// traffic flowing through sessions without reading structured logs.
type Turn struct {
	Timestamp time.Time
	SessionID string
	Role      string // "user" or "assistant"
	Content   string
}

// Observer receives Turns for display or recording.
type Observer interface {
	Start() error
	Stop() error
	OnTurn(t Turn)
}

// CLIObserver prints turns to a writer (typically stdout), colorizing the
// timestamp the way the teacher's terminal monitor does.
type CLIObserver struct {
	w io.Writer
}

func NewCLIObserver() *CLIObserver {
	return &CLIObserver{w: os.Stdout}
}

func (m *CLIObserver) Start() error {
	fmt.Fprintln(m.w, "----------------------------------------------------------------")
	fmt.Fprintln(m.w, "Session monitor active - turns will appear here")
	fmt.Fprintln(m.w, "----------------------------------------------------------------")
	return nil
}

func (m *CLIObserver) Stop() error { return nil }

func (m *CLIObserver) OnTurn(t Turn) {
	ts := t.Timestamp.Format("2006-01-02 15:04:05")
	var line string
	if t.Role == "assistant" {
		line = fmt.Sprintf("[AI] %s", t.Content)
	} else {
		line = fmt.Sprintf("[%s] %s", t.SessionID, t.Content)
	}
	fmt.Fprintf(m.w, "\033[90m[%s]\033[0m %s\n", ts, line)
}
