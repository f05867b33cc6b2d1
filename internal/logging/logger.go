// Package logging builds the process logger and an optional JSONL trace of
// every round a simulation plays.
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace sits below Debug and enables per-item resolution detail.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps "info", "debug" or "trace" (any case) to a slog.Level.
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled text logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// RoundTracer appends one JSON line per event to dir/rounds.jsonl.
// A nil *RoundTracer is valid; every method is a no-op.
type RoundTracer struct {
	mu   sync.Mutex
	file *os.File
}

// NewRoundTracer opens dir/rounds.jsonl for append. It returns nil when dir
// is empty or the file cannot be opened.
func NewRoundTracer(dir string) *RoundTracer {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Warn("round trace disabled", "dir", dir, "error", err)
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, "rounds.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		slog.Warn("round trace disabled", "dir", dir, "error", err)
		return nil
	}
	return &RoundTracer{file: f}
}

// Log writes event as a single line with a "time" field added. The caller's
// map is not mutated.
func (rt *RoundTracer) Log(event map[string]any) {
	if rt == nil || rt.file == nil {
		return
	}

	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	rt.mu.Lock()
	defer rt.mu.Unlock()
	_, _ = rt.file.Write(data)
}

// Close closes the trace file.
func (rt *RoundTracer) Close() {
	if rt == nil || rt.file == nil {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.file.Close()
	rt.file = nil
}
