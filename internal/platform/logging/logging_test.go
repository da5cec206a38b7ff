package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any

	dec := json.NewDecoder(buf)
	for dec.More() {
		var entry map[string]any
		require.NoError(t, dec.Decode(&entry))
		entries = append(entries, entry)
	}

	return entries
}

func TestFromContext_FallsBackToCurrentDefault(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	var buf bytes.Buffer
	replaced := slog.New(slog.NewJSONHandler(&buf, nil))
	slog.SetDefault(replaced)

	assert.Same(t, replaced, FromContext(context.Background()))
	assert.Same(t, replaced, FromContext(nil)) //nolint:staticcheck // nil guard
}

func TestFromContextOr(t *testing.T) {
	fallback := slog.New(slog.DiscardHandler)
	stored := slog.New(slog.DiscardHandler)

	assert.Same(t, fallback, FromContextOr(context.Background(), fallback))
	assert.Same(t, stored, FromContextOr(WithContext(context.Background(), stored), fallback))
}

func TestRequestScopedIDs(t *testing.T) {
	var buf bytes.Buffer

	ctx := WithContext(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithCorrelationID(ctx, "corr-1")
	ctx = WithTraceID(ctx, "trace-1")
	ctx = With(ctx, slog.String("policy", "union"))

	FromContext(ctx).InfoContext(ctx, "conflicts resolved")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0]["request_id"])
	assert.Equal(t, "corr-1", entries[0]["correlation_id"])
	assert.Equal(t, "trace-1", entries[0]["trace_id"])
	assert.Equal(t, "union", entries[0]["policy"])
}

func TestNewWithWriter_Formats(t *testing.T) {
	tests := []struct {
		format string
		check  func(t *testing.T, out string)
	}{
		{
			format: "json",
			check: func(t *testing.T, out string) {
				var entry map[string]any
				require.NoError(t, json.Unmarshal([]byte(out), &entry))
				assert.Equal(t, "sync finished", entry["msg"])
				assert.Equal(t, "quote-sync", entry["service_name"])
				assert.Equal(t, "1.2.0", entry["service_version"])
			},
		},
		{
			format: "text",
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, `msg="sync finished"`)
				assert.Contains(t, out, "service_name=quote-sync")
			},
		},
		{
			format: "pretty",
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "sync finished")
				assert.Contains(t, out, "quote-sync")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer

			logger := NewWithWriter(&Config{Level: "info", Format: tt.format, Service: "quote-sync", Version: "1.2.0"}, &buf)
			logger.Info("sync finished")

			tt.check(t, buf.String())
		})
	}
}

func TestNewWithWriter_TraceLevel(t *testing.T) {
	tests := []struct {
		level     string
		wantTrace bool
		wantDebug bool
	}{
		{level: "trace", wantTrace: true, wantDebug: true},
		{level: "debug", wantTrace: false, wantDebug: true},
		{level: "info", wantTrace: false, wantDebug: false},
		{level: "bogus", wantTrace: false, wantDebug: false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer

			logger := NewWithWriter(&Config{Level: tt.level, Format: "json"}, &buf)
			ctx := context.Background()

			assert.Equal(t, tt.wantTrace, logger.Enabled(ctx, LevelTrace))
			assert.Equal(t, tt.wantDebug, logger.Enabled(ctx, slog.LevelDebug))
			assert.True(t, logger.Enabled(ctx, slog.LevelWarn))
		})
	}
}

func TestNewWithWriter_RollingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quote-sync.log")

	var console bytes.Buffer

	logger := NewWithWriter(&Config{
		Level:  "info",
		Format: "pretty",
		File:   FileConfig{Enabled: true, Path: path, MaxSizeMB: 1, MaxBackups: 1},
	}, &console)

	logger.Info("quotes saved", slog.Int("count", 6))
	logger.Debug("below threshold")

	assert.Contains(t, console.String(), "quotes saved")

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	entries := decodeLines(t, bytes.NewBuffer(content))
	require.Len(t, entries, 1)
	assert.Equal(t, "quotes saved", entries[0]["msg"])
	assert.InDelta(t, 6, entries[0]["count"], 0)
}

func TestSlogToCharmLevel(t *testing.T) {
	tests := []struct {
		input slog.Level
		want  log.Level
	}{
		{input: LevelTrace, want: log.DebugLevel},
		{input: slog.LevelDebug, want: log.DebugLevel},
		{input: slog.LevelInfo, want: log.InfoLevel},
		{input: slog.LevelWarn, want: log.WarnLevel},
		{input: slog.LevelError + 4, want: log.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, slogToCharmLevel(tt.input))
		})
	}
}

func TestTeeHandler(t *testing.T) {
	var verbose, quiet bytes.Buffer

	tee := teeHandler{
		slog.NewJSONHandler(&verbose, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewJSONHandler(&quiet, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}

	logger := slog.New(tee).WithGroup("sync").With(slog.String("source", "posts"))
	logger.Debug("fetch attempt")
	logger.Warn("fetch failed")

	verboseEntries := decodeLines(t, &verbose)
	quietEntries := decodeLines(t, &quiet)

	require.Len(t, verboseEntries, 2)
	require.Len(t, quietEntries, 1)
	assert.Equal(t, "fetch failed", quietEntries[0]["msg"])
	assert.Equal(t, map[string]any{"source": "posts"}, quietEntries[0]["sync"])

	assert.False(t, tee.Enabled(context.Background(), LevelTrace))
	assert.True(t, tee.Enabled(context.Background(), slog.LevelDebug))
}

func TestNewReplaceAttr_MasksSecrets(t *testing.T) {
	type redisOptions struct {
		Addr     string
		Password string
	}

	tests := []struct {
		name   string
		attr   slog.Attr
		secret string
	}{
		{name: "password key", attr: slog.String("password", "hunter2"), secret: "hunter2"},
		{name: "redis url", attr: slog.String("redis", "redis://:s3cret@cache:6379/0"), secret: "s3cret"},
		{name: "bearer credential", attr: slog.String("auth_header", "Bearer abc.def"), secret: "abc.def"},
		{name: "struct field", attr: slog.Any("redis", redisOptions{Addr: "cache:6379", Password: "pw-123"}), secret: "pw-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{ReplaceAttr: NewReplaceAttr()}))
			logger.Info("connecting", tt.attr, slog.String("category", "life"))

			assert.NotContains(t, buf.String(), tt.secret)
			assert.Contains(t, buf.String(), `"category":"life"`)
		})
	}
}
