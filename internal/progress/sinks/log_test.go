package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/linkcheck/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	runID := progress.UUIDToBytes(uuid.New())
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart, Total: 3},
		{RunID: runID, TS: time.Now(), Stage: progress.StageProbeRetry, Site: "a.com", Attempt: 2, Note: "connection refused"},
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunDone, Outcome: progress.OutcomeTimedOut},
	}))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, zapcore.DebugLevel, entries[1].Level)
	require.Equal(t, "connection refused", entries[1].ContextMap()["note"])
	require.Equal(t, "timed_out", entries[2].ContextMap()["outcome"])
	require.Equal(t, uuid.UUID(runID).String(), entries[0].ContextMap()["run_id"])
}
