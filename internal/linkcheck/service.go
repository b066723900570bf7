package linkcheck

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/progress"
)

// ErrorMessageInternal is sent in-band when a run fails unexpectedly.
const ErrorMessageInternal = "link check failed unexpectedly; please try again"

// Runner executes a validated batch and streams its events.
type Runner interface {
	Run(ctx context.Context, req Request, out chan<- Event) Summary
}

// Service ties normalization and scheduling into one run per request.
type Service struct {
	normalizer *Normalizer
	scheduler  *Scheduler
	ids        IDGenerator
	clock      Clock
	events     progress.Emitter
	logger     *zap.Logger
}

// NewService wires a Service. ids, clock, events and logger may be nil.
func NewService(normalizer *Normalizer, scheduler *Scheduler, ids IDGenerator, clock Clock, events progress.Emitter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		normalizer: normalizer,
		scheduler:  scheduler,
		ids:        ids,
		clock:      clock,
		events:     events,
		logger:     logger,
	}
}

// Run checks req and writes result events followed by a completion event to
// out, then closes out. When ctx ends early the completion event is skipped.
// A panic inside the run is reported as an error event instead.
func (s *Service) Run(ctx context.Context, req Request, out chan<- Event) (summary Summary) {
	defer close(out)

	runID := s.newRunID()
	ctx = WithRunID(ctx, runID)
	logger := s.logger.With(zap.String("run_id", runID.String()))
	start := now(s.clock)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("link check run panicked", zap.Any("panic", r), zap.Stack("stack"))
			s.emit(runID, progress.Event{Stage: progress.StageRunError, Note: fmt.Sprint(r)})
			select {
			case out <- ErrorEvent(ErrorMessageInternal):
			case <-ctx.Done():
			}
		}
	}()

	targets := s.normalizer.Targets(req.URLs)
	logger.Info("link check run started",
		zap.Int("total", len(targets)),
		zap.String("page_url", req.PageURL),
	)
	s.emit(runID, progress.Event{Stage: progress.StageRunStart, Total: len(targets)})

	summary = s.scheduler.Run(ctx, req.PageURL, targets, out)

	outcome := progress.OutcomeCompleted
	switch {
	case summary.Disconnected:
		outcome = progress.OutcomeDisconnected
	case summary.TimedOut:
		outcome = progress.OutcomeTimedOut
	}
	elapsed := now(s.clock).Sub(start)
	s.emit(runID, progress.Event{
		Stage:   progress.StageRunDone,
		Outcome: outcome,
		Total:   summary.Total,
		Checked: summary.Checked,
		Dur:     max(elapsed, 0),
	})
	logger.Info("link check run finished",
		zap.String("outcome", string(outcome)),
		zap.Int("total", summary.Total),
		zap.Int("checked", summary.Checked),
		zap.Duration("elapsed", elapsed),
	)

	if summary.Disconnected {
		return summary
	}
	select {
	case out <- CompleteEvent(summary):
	case <-ctx.Done():
		summary.Disconnected = true
	}
	return summary
}

func (s *Service) newRunID() uuid.UUID {
	if s.ids != nil {
		if id, err := s.ids.NewRunID(); err == nil {
			return id
		}
	}
	return uuid.New()
}

func (s *Service) emit(runID uuid.UUID, evt progress.Event) {
	if s.events == nil {
		return
	}
	evt.RunID = progress.UUIDToBytes(runID)
	evt.TS = now(s.clock)
	s.events.Emit(evt)
}
