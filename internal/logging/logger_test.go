package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"info", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{" Trace ", LevelTrace},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("info", &buf)
	logger.Debug("hidden")
	logger.Info("shown", "round", 3)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "round=3")

	buf.Reset()
	logger = NewLogger("trace", &buf)
	logger.Log(t.Context(), LevelTrace, "deep")
	assert.Contains(t, buf.String(), "level=TRACE")
}

func TestRoundTracer(t *testing.T) {
	assert.Nil(t, NewRoundTracer(""))

	var nilTracer *RoundTracer
	nilTracer.Log(map[string]any{"round": 1})
	nilTracer.Close()

	dir := t.TempDir()
	rt := NewRoundTracer(dir)
	require.NotNil(t, rt)

	event := map[string]any{"round": 1, "bids": 2}
	rt.Log(event)
	rt.Log(map[string]any{"round": 2, "bids": 0})
	rt.Close()
	rt.Log(map[string]any{"round": 3})

	_, hasTime := event["time"]
	assert.False(t, hasTime, "caller's map is not mutated")

	f, err := os.Open(filepath.Join(dir, "rounds.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, 1.0, lines[0]["round"])
	assert.Contains(t, lines[0], "time")
}
