package linkcheck

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/progress"
)

// DefaultFailFastDomains lists social sites that reject automated probes
// unpredictably. A transient failure there is reported without retrying.
var DefaultFailFastDomains = map[string]string{
	"linkedin.com":  "LinkedIn blocks automated link checks; verify this link manually",
	"facebook.com":  "Facebook blocks automated link checks; verify this link manually",
	"instagram.com": "Instagram blocks automated link checks; verify this link manually",
	"twitter.com":   "Twitter/X blocks automated link checks; verify this link manually",
	"x.com":         "Twitter/X blocks automated link checks; verify this link manually",
}

// RetryPolicy describes when and how often a transient probe failure is
// retried. It is pure data; Retrier interprets it.
type RetryPolicy struct {
	// MaxRetries is the number of extra attempts (2 = 3 total attempts).
	MaxRetries int
	// Backoff lists the delay before each retry. The last entry is reused
	// when there are more retries than delays.
	Backoff []time.Duration
	// FailFast maps host patterns to the diagnostic reported instead of
	// retrying. Keys match the host and its subdomains.
	FailFast map[string]string
}

// DefaultRetryPolicy returns 2 retries with 100ms then 200ms backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		Backoff:    []time.Duration{100 * time.Millisecond, 200 * time.Millisecond},
		FailFast:   DefaultFailFastDomains,
	}
}

// Delay returns the wait before retry number n (1-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	if n <= 0 || len(p.Backoff) == 0 {
		return 0
	}
	if n > len(p.Backoff) {
		return p.Backoff[len(p.Backoff)-1]
	}
	return p.Backoff[n-1]
}

// Retrier wraps a Prober with RetryPolicy.
type Retrier struct {
	prober   Prober
	policy   RetryPolicy
	failFast *domainPatterns
	sleep    func(ctx context.Context, d time.Duration) error
	events   progress.Emitter
	clock    Clock
	logger   *zap.Logger
}

// NewRetrier builds a Retrier. events and logger may be nil.
func NewRetrier(prober Prober, policy RetryPolicy, clock Clock, events progress.Emitter, logger *zap.Logger) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Retrier{
		prober:   prober,
		policy:   policy,
		failFast: newDomainPatterns(policy.FailFast),
		sleep:    sleepContext,
		events:   events,
		clock:    clock,
		logger:   logger,
	}
}

// Probe runs the wrapped prober, retrying transient failures.
func (r *Retrier) Probe(ctx context.Context, target Target, pageURL string) Result {
	runID := runIDFromContext(ctx)
	host := hostOf(target.Probe)
	attempts := r.policy.MaxRetries + 1

	var (
		last Result
		made int
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := r.policy.Delay(attempt - 1)
			r.logger.Debug("retrying probe",
				zap.String("run_id", runID),
				zap.String("url", target.Original),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.String("last_status", string(last.Status)),
				zap.String("last_error", last.Error),
			)
			r.emit(ctx, progress.StageProbeRetry, host, target, last, attempt)
			if err := r.sleep(ctx, delay); err != nil {
				break
			}
		}

		last = r.prober.Probe(ctx, target, pageURL)
		made = attempt
		if !last.Status.Transient() {
			return last
		}
		if msg, ok := r.failFast.Lookup(host); ok {
			r.logger.Info("probe failed on fail-fast domain",
				zap.String("run_id", runID),
				zap.String("url", target.Original),
				zap.String("status", string(last.Status)),
				zap.String("error", last.Error),
			)
			last.Error = msg
			r.emit(ctx, progress.StageProbeFailed, host, target, last, attempt)
			return last
		}
		if ctx.Err() != nil {
			break
		}
	}

	if last.Error != "" && made > 1 {
		last.Error = fmt.Sprintf("%s (after %d attempts)", last.Error, made)
	}
	r.logger.Warn("probe failed",
		zap.String("run_id", runID),
		zap.String("url", target.Original),
		zap.String("status", string(last.Status)),
		zap.String("error", last.Error),
	)
	r.emit(ctx, progress.StageProbeFailed, host, target, last, made)
	return last
}

func (r *Retrier) emit(ctx context.Context, stage progress.Stage, host string, target Target, res Result, attempt int) {
	if r.events == nil {
		return
	}
	id, ok := runUUIDFromContext(ctx)
	if !ok {
		return
	}
	r.events.Emit(progress.Event{
		RunID:      progress.UUIDToBytes(id),
		TS:         now(r.clock),
		Stage:      stage,
		Site:       host,
		URL:        target.Original,
		LinkStatus: string(res.Status),
		StatusCode: res.StatusCode,
		Attempt:    attempt,
		Note:       res.Error,
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func now(clock Clock) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock.Now()
}
