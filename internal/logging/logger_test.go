package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for name, want := range tests {
		assert.Equal(t, want, ParseLevel(name), name)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "warn", Format: "json", Output: &buf})

	logger.Info("dropped")
	logger.WithRequestID("req-1").WithFields(slog.String("component", "http")).Warn("kept")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var record map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &record))
	assert.Equal(t, "kept", record["msg"])
	assert.Equal(t, "req-1", record["request_id"])
	assert.Equal(t, "http", record["component"])
	assert.NotContains(t, record, "source")
}

func TestNewLogger_TextAddsSourceOnErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(Config{Level: "error", Output: &buf}).Error("boom")
	assert.Contains(t, buf.String(), "source=")
	assert.Contains(t, buf.String(), "msg=boom")
}

type recordingHandler struct {
	level   slog.Level
	records *[]string
	attrs   []slog.Attr
}

func (h recordingHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.level }

func (h recordingHandler) Handle(_ context.Context, r slog.Record) error {
	msg := r.Message
	for _, a := range h.attrs {
		msg += " " + a.String()
	}
	*h.records = append(*h.records, msg)
	return nil
}

func (h recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return h
}

func (h recordingHandler) WithGroup(string) slog.Handler { return h }

func TestFanout(t *testing.T) {
	var debug, errs []string
	logger := slog.New(fanout{
		recordingHandler{level: slog.LevelDebug, records: &debug},
		recordingHandler{level: slog.LevelError, records: &errs},
	}).With("k", "v")

	logger.Debug("one")
	logger.Error("two")

	assert.Equal(t, []string{"one k=v", "two k=v"}, debug)
	assert.Equal(t, []string{"two k=v"}, errs)
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, FromContext(ctx).Logger)
	assert.Empty(t, GetRequestID(ctx))

	logger := NewLogger(Config{Output: &bytes.Buffer{}})
	ctx = WithRequestIDContext(WithLogger(ctx, logger), "abc")
	assert.Same(t, logger, FromContext(ctx))
	assert.Equal(t, "abc", GetRequestID(ctx))
}
