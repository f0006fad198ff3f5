package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	cerrors "github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/genotrain/pkg/errors"
)

// TestLoggerInterface tests the Logger interface implementation
func TestLoggerInterface(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationSave)
	testLogger.Warn("warning message", CheckpointPathKey, "/tmp/x.ckpt")
	testLogger.Error("error message", fmt.Errorf("test error"), "error_code", "TEST_ERROR")

	require.NotEmpty(t, buffer.String())

	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		assert.True(t, testLogger.ContainsMessage(msg), "missing %q", msg)
	}
	assert.True(t, testLogger.ContainsField("key1", "value1"))
	// JSON decoding turns numbers into float64
	assert.True(t, testLogger.ContainsField("number", 42.0))
	assert.True(t, testLogger.ContainsField(ErrAttrKey, "test error"))
	assert.True(t, testLogger.ContainsField("error_code", "TEST_ERROR"))
}

func TestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	ckptLogger := testLogger.With(
		ComponentKey, "checkpoint",
		CheckpointDirKey, "/runs/ckpt",
	)
	ckptLogger.Info("Saved checkpoint", StepKey, 100, EpochKey, 2)

	assert.True(t, testLogger.ContainsField(ComponentKey, "checkpoint"))
	assert.True(t, testLogger.ContainsField(CheckpointDirKey, "/runs/ckpt"))
	assert.True(t, testLogger.ContainsField(StepKey, 100.0))
	assert.True(t, testLogger.ContainsField(EpochKey, 2.0))

	// parent must not inherit child fields
	testLogger.Clear()
	testLogger.Info("plain")
	entries, err := testLogger.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	_, ok := entries[0][ComponentKey]
	assert.False(t, ok)
}

func TestLoggerEnabled(t *testing.T) {
	tests := []struct {
		name     string
		minLevel Level
		check    Level
		want     bool
	}{
		{"debug at debug", LevelDebug, LevelDebug, true},
		{"debug at info", LevelInfo, LevelDebug, false},
		{"warn at info", LevelInfo, LevelWarn, true},
		{"error at error", LevelError, LevelError, true},
		{"warn at error", LevelError, LevelWarn, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := NewTestLogger(tt.minLevel)
			assert.Equal(t, tt.want, l.Enabled(context.Background(), tt.check))
		})
	}
}

func TestEntriesAt(t *testing.T) {
	l, _ := NewTestLogger(LevelInfo)
	l.Debug("dropped")
	l.Info("saved")
	l.Warn("history unreadable")
	l.Warn("device unavailable")

	assert.Len(t, l.EntriesAt(LevelInfo), 1)
	assert.Len(t, l.EntriesAt(LevelWarn), 2)
	assert.Empty(t, l.EntriesAt(LevelDebug))
}

func TestSlogLoggerErrorStacktrace(t *testing.T) {
	var buf bytes.Buffer
	h := WrapByErrFmtHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := NewSlogLogger(slog.New(h))

	err := errors.NewCheckpointNotFoundError("/tmp/missing.ckpt")
	l.Error("Load failed", err, CheckpointPathKey, "/tmp/missing.ckpt")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "Load failed", rec["msg"])
	assert.Contains(t, rec[ErrAttrKey], "checkpoint not found")
	assert.NotEmpty(t, rec[StacktraceAttrKey])
	assert.Equal(t, "/tmp/missing.ckpt", rec[CheckpointPathKey])
}

func TestErrFmtHandlerWithoutError(t *testing.T) {
	var buf bytes.Buffer
	h := WrapByErrFmtHandler(slog.NewJSONHandler(&buf, nil))
	slog.New(h).Info("Saved checkpoint", StepKey, 3)
	assert.NotContains(t, buf.String(), StacktraceAttrKey)
}

func TestGetLoggerDefault(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	tl, _ := NewTestLogger(LevelDebug)
	SetLogger(tl)
	GetLogger().Info("routed")
	assert.True(t, tl.ContainsMessage("routed"))

	SetLogger(nil)
	assert.NotNil(t, GetLogger())
}

func TestToLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ToLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ToLogLevel("warn"))
	assert.Panics(t, func() { ToLogLevel("verbose") })
}

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	l.Debug("hidden")
	l.With(ComponentKey, "benchmark").Info("Computed metrics", ThroughputKey, 12.5)
	l.Error("Forward failed", cerrors.New("boom"), TaskNameKey, "splice")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &info))
	assert.Equal(t, "info", info["level"])
	assert.Equal(t, "benchmark", info[ComponentKey])
	assert.Equal(t, 12.5, info[ThroughputKey])

	var errRec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &errRec))
	assert.Equal(t, "boom", errRec["error"])
	assert.Equal(t, "splice", errRec[TaskNameKey])

	assert.False(t, l.Enabled(context.Background(), LevelDebug))
	assert.True(t, l.Enabled(context.Background(), LevelWarn))
}

func TestInstallZerologWarnings(t *testing.T) {
	t.Cleanup(func() { errors.SetZerologWarnFunc(nil) })

	var buf bytes.Buffer
	InstallZerologWarnings(&buf)
	errors.Warn(errors.NewMetricWarning("roc_auc", "class 2 never observed"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "warn", rec["level"])
	w, ok := rec["warning"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "roc_auc", w["metric"])
	assert.Equal(t, "MetricWarning", w["type"])
}

func TestConcurrentLogging(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)

	const goroutines = 10
	const messagesPerGoroutine = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			l := testLogger.With("worker", id)
			for j := 0; j < messagesPerGoroutine; j++ {
				l.Info("batch evaluated", BatchKey, j)
			}
		}(i)
	}
	wg.Wait()

	entries, err := testLogger.GetLogEntries()
	require.NoError(t, err)
	assert.Len(t, entries, goroutines*messagesPerGoroutine)
}
