package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// StreamDebugger optionally records every raw chunk from a provider stream
// to disk, grouped by session when one is present in the context. Disabled
// by default; the teacher's own debugger follows the same lazy-open,
// session-scoped-directory shape.
type StreamDebugger struct {
	file     *os.File
	debugDir string
	filename string
	enabled  bool
}

func NewStreamDebugger(ctx context.Context, provider string, enabled bool) *StreamDebugger {
	if !enabled {
		return &StreamDebugger{enabled: false}
	}

	debugDir := filepath.Join("debug", "chunks", provider)
	if val := ctx.Value(DebugDirContextKey); val != nil {
		if dir, ok := val.(string); ok && dir != "" {
			debugDir = filepath.Join("debug", "chunks", dir, provider)
		}
	}

	d := &StreamDebugger{
		debugDir: debugDir,
		filename: filepath.Join(debugDir, "chat.log"),
		enabled:  true,
	}
	d.WriteString(fmt.Sprintf("--- ROUND START: %s ---", time.Now().Format("2006-01-02 15:04:05")))
	return d
}

func (d *StreamDebugger) ensureOpen() error {
	if !d.enabled || d.file != nil {
		return nil
	}
	if err := os.MkdirAll(d.debugDir, 0755); err != nil {
		slog.Error("failed to create debug directory", "dir", d.debugDir, "error", err)
		d.enabled = false
		return err
	}
	f, err := os.OpenFile(d.filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Error("failed to open debug file", "file", d.filename, "error", err)
		d.enabled = false
		return err
	}
	d.file = f
	return nil
}

func (d *StreamDebugger) Write(data []byte) {
	if !d.enabled || d.ensureOpen() != nil {
		return
	}
	d.file.Write(data)
	d.file.WriteString("\n")
}

func (d *StreamDebugger) WriteString(s string) {
	if !d.enabled || d.ensureOpen() != nil {
		return
	}
	d.file.WriteString(s)
	d.file.WriteString("\n")
}

func (d *StreamDebugger) Close() {
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
}

func NewFinalChunk(reason string, usage *Usage) StreamChunk {
	return StreamChunk{IsFinal: true, FinishReason: reason, Usage: usage}
}

func NewErrorChunk(text string, err error, isFinal bool) StreamChunk {
	return StreamChunk{
		ContentBlocks: []ContentBlock{{Type: BlockTypeError, Text: text}},
		Err:           err,
		IsFinal:       isFinal,
	}
}
