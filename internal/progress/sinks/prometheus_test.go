package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkcheck/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Total: 2},
		{RunID: runID, TS: now, Stage: progress.StageProbeRetry, Site: "a.com", Attempt: 2},
		{RunID: runID, TS: now, Stage: progress.StageProbeFailed, Site: "a.com", Attempt: 3, LinkStatus: "error"},
		{RunID: runID, TS: now, Stage: progress.StageProbeDone, Site: "a.com", LinkStatus: "error", Dur: time.Second},
		{RunID: runID, TS: now, Stage: progress.StageProbeDone, Site: "b.com", LinkStatus: "ok", Dur: 80 * time.Millisecond},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Outcome: progress.OutcomeCompleted, Dur: 2 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsStarted), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("completed")), 1e-9)
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.runsRunning), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.probeRetries), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.probeFailures.WithLabelValues("error")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.linksChecked.WithLabelValues("ok")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.linksChecked.WithLabelValues("error")), 1e-9)
	require.Equal(t, 2, testutil.CollectAndCount(sink.probeDuration, "linkcheck_probe_duration_seconds"))
}

func TestPrometheusSinkRunErrorReleasesGauge(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart},
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart},
	}))
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsRunning), 1e-9)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunError, Note: "boom"},
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunDone, Outcome: progress.OutcomeCompleted},
	}))
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.runsRunning), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")), 1e-9)
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
