package linkcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/metrics"
	"github.com/JakeFAU/linkcheck/internal/policy/ratelimit"
	"github.com/JakeFAU/linkcheck/internal/progress"
)

// Scheduler defaults.
const (
	DefaultConcurrency = 10
	DefaultDomainDelay = 100 * time.Millisecond
	DefaultBudget      = 60 * time.Second
)

// SchedulerConfig bounds a run.
type SchedulerConfig struct {
	// Concurrency caps simultaneous probes.
	Concurrency int
	// DomainDelay is the minimum spacing between dispatches to one host.
	// Zero means DefaultDomainDelay; a negative value disables pacing.
	DomainDelay time.Duration
	// Budget is the wall time allowed from the first dispatch. No new probe
	// starts once it is spent.
	Budget time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.DomainDelay == 0 {
		c.DomainDelay = DefaultDomainDelay
	}
	if c.Budget <= 0 {
		c.Budget = DefaultBudget
	}
	return c
}

// Scheduler fans probes out under the run limits and fans results back in.
type Scheduler struct {
	cfg    SchedulerConfig
	prober Prober
	clock  Clock
	events progress.Emitter
	logger *zap.Logger
}

// NewScheduler builds a Scheduler. events and logger may be nil.
func NewScheduler(cfg SchedulerConfig, prober Prober, clock Clock, events progress.Emitter, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:    cfg.withDefaults(),
		prober: prober,
		clock:  clock,
		events: events,
		logger: logger,
	}
}

type completion struct {
	index  int
	result Result
	dur    time.Duration
}

// runState is owned by the coordinating goroutine of a single Run.
type runState struct {
	targets  []Target
	pageURL  string
	next     int
	inFlight int
	checked  int
	emitted  []bool
	started  bool
	start    time.Time
	timedOut bool

	pacer *ratelimit.Pacer
	done  chan completion
	out   chan<- Event
}

// Run checks every target and sends one result event per link to out, in
// completion order. It returns when all dispatched probes have reported, the
// budget is spent and in-flight probes have drained, or ctx is done. In the
// last case it returns at once with Disconnected set and abandons in-flight
// probes. Run never closes out.
func (s *Scheduler) Run(ctx context.Context, pageURL string, targets []Target, out chan<- Event) Summary {
	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := &runState{
		targets: targets,
		pageURL: pageURL,
		emitted: make([]bool, len(targets)),
		pacer:   ratelimit.NewPacer(s.cfg.DomainDelay),
		// Sized to the ceiling so a probe finishing after the run ends
		// never blocks.
		done: make(chan completion, s.cfg.Concurrency),
		out:  out,
	}

	for {
		if ctx.Err() != nil {
			return s.disconnected(st)
		}
		if st.canDispatch(s.cfg.Concurrency) {
			if !s.dispatchNext(ctx, probeCtx, st) {
				return s.disconnected(st)
			}
			continue
		}
		if st.inFlight == 0 {
			break
		}
		select {
		case c := <-st.done:
			if !s.complete(ctx, st, c) {
				return s.disconnected(st)
			}
		case <-ctx.Done():
			return s.disconnected(st)
		}
	}

	if st.timedOut {
		s.logger.Warn("run budget exhausted",
			zap.String("run_id", runIDFromContext(ctx)),
			zap.Duration("budget", s.cfg.Budget),
			zap.Int("checked", st.checked),
			zap.Int("total", len(targets)),
		)
	}
	return Summary{Total: len(targets), Checked: st.checked, TimedOut: st.timedOut}
}

func (st *runState) canDispatch(limit int) bool {
	return !st.timedOut && st.next < len(st.targets) && st.inFlight < limit
}

// dispatchNext paces and launches the next queued target. It returns false
// when the client went away while waiting.
func (s *Scheduler) dispatchNext(ctx, probeCtx context.Context, st *runState) bool {
	target := st.targets[st.next]
	host := hostOf(target.Probe)

	// The slot is taken at the instant of dispatch, so time lost while
	// waiting (a slow reader, a late timer) never shortens the next gap.
	for {
		if s.budgetSpent(st) {
			st.timedOut = true
			return true
		}
		at := now(s.clock)
		if st.pacer.Allow(host, at) {
			break
		}
		delay := st.pacer.Wait(host, at)
		metrics.ObservePacingDelay(delay)
		if !s.waitPacing(ctx, st, delay) {
			return false
		}
	}

	if !st.started {
		st.started = true
		st.start = now(s.clock)
	}
	index := st.next
	st.next++
	st.inFlight++
	go s.probe(probeCtx, st.done, index, target, st.pageURL)
	return true
}

// waitPacing sleeps for d while still collecting completions.
func (s *Scheduler) waitPacing(ctx context.Context, st *runState, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return true
		case c := <-st.done:
			if !s.complete(ctx, st, c) {
				return false
			}
		case <-ctx.Done():
			return false
		}
	}
}

func (s *Scheduler) budgetSpent(st *runState) bool {
	return st.started && now(s.clock).Sub(st.start) >= s.cfg.Budget
}

// complete records a finished probe and forwards its result.
func (s *Scheduler) complete(ctx context.Context, st *runState, c completion) bool {
	st.inFlight--
	if st.emitted[c.index] {
		return true
	}
	// A gone client gets no further results, even when out is ready.
	if ctx.Err() != nil {
		return false
	}

	s.emitProbeDone(ctx, st.targets[c.index], c)

	select {
	case st.out <- ResultEvent(c.result):
	case <-ctx.Done():
		return false
	}
	st.emitted[c.index] = true
	st.checked++
	return true
}

func (s *Scheduler) probe(ctx context.Context, done chan<- completion, index int, target Target, pageURL string) {
	metrics.IncProbesInFlight()
	defer metrics.DecProbesInFlight()

	start := time.Now()
	var (
		res Result
		pc  panics.Catcher
	)
	pc.Try(func() {
		res = s.prober.Probe(ctx, target, pageURL)
	})
	if rec := pc.Recovered(); rec != nil {
		s.logger.Error("probe panicked",
			zap.String("run_id", runIDFromContext(ctx)),
			zap.String("url", target.Original),
			zap.Any("panic", rec.Value),
			zap.ByteString("stack", rec.Stack),
		)
		res = Failed(target.Original, fmt.Sprintf("internal error while checking link: %v", rec.Value))
	}
	done <- completion{index: index, result: res.withURL(target.Original), dur: time.Since(start)}
}

func (s *Scheduler) disconnected(st *runState) Summary {
	s.logger.Info("client disconnected; abandoning run",
		zap.Int("checked", st.checked),
		zap.Int("in_flight", st.inFlight),
		zap.Int("total", len(st.targets)),
	)
	metrics.ObserveStreamDisconnect()
	return Summary{
		Total:        len(st.targets),
		Checked:      st.checked,
		TimedOut:     st.timedOut,
		Disconnected: true,
	}
}

func (s *Scheduler) emitProbeDone(ctx context.Context, target Target, c completion) {
	if s.events == nil {
		return
	}
	id, ok := runUUIDFromContext(ctx)
	if !ok {
		return
	}
	s.events.Emit(progress.Event{
		RunID:      progress.UUIDToBytes(id),
		TS:         now(s.clock),
		Stage:      progress.StageProbeDone,
		Site:       hostOf(target.Probe),
		URL:        target.Original,
		LinkStatus: string(c.result.Status),
		StatusCode: c.result.StatusCode,
		Dur:        c.dur,
		Note:       c.result.Error,
	})
}
