package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/linkcheck/internal/progress"
)

// PrometheusSink exports run and probe metrics. It owns all collectors for
// runs started/completed/running and per-status link counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	linksChecked  *prometheus.CounterVec
	probeRetries  prometheus.Counter
	probeFailures *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkcheck_runs_started_total",
			Help: "Total link-check runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcheck_runs_completed_total",
			Help: "Total link-check runs finished, partitioned by outcome.",
		}, []string{"outcome"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linkcheck_runs_running",
			Help: "Current number of running link-check runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkcheck_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60, 90},
		}, []string{"outcome"}),
		linksChecked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcheck_links_checked_total",
			Help: "Links checked, partitioned by reported status.",
		}, []string{"status"}),
		probeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkcheck_probe_retries_total",
			Help: "Probe attempts repeated after a transient failure.",
		}),
		probeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcheck_probe_failures_total",
			Help: "Probes that stayed transient after retries or hit a fail-fast domain.",
		}, []string{"status"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkcheck_probe_duration_seconds",
			Help:    "Probe duration including retries, partitioned by status.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"status"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.linksChecked,
		s.probeRetries,
		s.probeFailures,
		s.probeDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		s.finishRun(evt, string(evt.Outcome))
	case progress.StageRunError:
		s.finishRun(evt, "error")
	case progress.StageProbeRetry:
		s.probeRetries.Inc()
	case progress.StageProbeFailed:
		s.probeFailures.WithLabelValues(labelOrUnknown(evt.LinkStatus)).Inc()
	case progress.StageProbeDone:
		status := labelOrUnknown(evt.LinkStatus)
		s.linksChecked.WithLabelValues(status).Inc()
		if evt.Dur > 0 {
			s.probeDuration.WithLabelValues(status).Observe(evt.Dur.Seconds())
		}
	}
}

func (s *PrometheusSink) finishRun(evt progress.Event, outcome string) {
	s.runsCompleted.WithLabelValues(outcome).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(outcome).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func labelOrUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
