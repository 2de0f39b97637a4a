package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
	"github.com/meridianrisk/exposure-engine/internal/domain"
	"github.com/meridianrisk/exposure-engine/internal/logging"
	"github.com/meridianrisk/exposure-engine/internal/metrics"
	"github.com/meridianrisk/exposure-engine/internal/runs"
)

// Handler executes the business logic for one run_type. Implementations own
// their own batching and must call registry.ShouldContinue at every batch
// boundary, finalizing via registry.ObserveCancel when it returns false.
// Handle must be idempotent: at-least-once delivery means the dispatcher may
// invoke it again for a run still RUNNING after a retryable failure, so
// implementations resume from whatever progress output_refs records rather
// than redoing completed work. A Handle call that returns nil must have
// already finalized the run (Succeed or ObserveCancel); a non-nil error
// leaves finalization to the dispatcher.
type Handler interface {
	RunType() domain.RunType
	Handle(ctx context.Context, registry *runs.Registry, run *domain.Run) error
}

// Dispatcher polls QUEUED and RUNNING runs per registered run_type and
// forwards them to handlers, generalizing
// internal/app/services/oracle/dispatcher.go's single-resolver ticker loop
// to a handler-per-run_type registry with a shared backoff map keyed by run
// id. Runs are taken oldest first; there is no per-tenant fairness.
type Dispatcher struct {
	registry *runs.Registry
	log      *logging.Logger
	interval time.Duration
	pollSize int

	mu          sync.Mutex
	handlers    map[domain.RunType]Handler
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	nextAttempt map[string]time.Time
}

// NewDispatcher constructs a lifecycle-managed run dispatcher polling on
// the given interval, pulling up to pollSize queued runs per run_type per
// tick.
func NewDispatcher(registry *runs.Registry, log *logging.Logger, interval time.Duration, pollSize int) *Dispatcher {
	if log == nil {
		log = logging.NewTest()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if pollSize <= 0 {
		pollSize = 50
	}
	return &Dispatcher{
		registry:    registry,
		log:         log,
		interval:    interval,
		pollSize:    pollSize,
		handlers:    make(map[domain.RunType]Handler),
		nextAttempt: make(map[string]time.Time),
	}
}

func (d *Dispatcher) Name() string { return "run-dispatcher" }

// RegisterHandler binds a handler to its run_type. Must be called before
// Start.
func (d *Dispatcher) RegisterHandler(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[h.RunType()] = h
}

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				d.tick(runCtx)
			}
		}
	}()

	d.log.WithFields(logrus.Fields{"poll_size": d.pollSize}).Info("run dispatcher started")
	return nil
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (d *Dispatcher) tick(ctx context.Context) {
	d.mu.Lock()
	runTypes := make([]domain.RunType, 0, len(d.handlers))
	for rt := range d.handlers {
		runTypes = append(runTypes, rt)
	}
	d.mu.Unlock()

	now := time.Now()
	for _, rt := range runTypes {
		queued, err := d.registry.ListQueued(ctx, rt, d.pollSize)
		if err != nil {
			d.log.WithError(err).Warn("dispatcher list queued runs failed")
			continue
		}
		metrics.QueueDepth.WithLabelValues(string(rt)).Set(float64(len(queued)))

		for _, run := range queued {
			if !d.shouldAttempt(run.ID, now) {
				continue
			}
			d.dispatchOne(ctx, rt, run)
		}
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, rt domain.RunType, run *domain.Run) {
	d.mu.Lock()
	handler := d.handlers[rt]
	d.mu.Unlock()
	if handler == nil {
		return
	}

	started, err := d.registry.Start(ctx, run.TenantID, run.ID, "")
	if err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{"run_id": run.ID}).Warn("dispatcher failed to start run")
		d.scheduleNext(run.ID, d.interval)
		return
	}
	if started.Status != domain.RunRunning {
		// Already finalized (e.g. cancelled while queued); nothing to run.
		d.clearSchedule(run.ID)
		return
	}

	metrics.RunsDispatched.WithLabelValues(string(rt)).Inc()
	startedAt := time.Now()

	handleErr := handler.Handle(ctx, d.registry, started)
	if handleErr == nil {
		d.clearSchedule(run.ID)
		metrics.RunDuration.WithLabelValues(string(rt)).Observe(time.Since(startedAt).Seconds())
		d.recordTerminal(ctx, run.TenantID, run.ID, rt)
		return
	}

	if ae, ok := apperrors.As(handleErr); ok && ae.Retryable {
		d.log.WithError(handleErr).WithFields(logrus.Fields{"run_id": run.ID}).Warn("retryable provider error, rescheduling run")
		d.scheduleNext(run.ID, d.interval)
		return
	}

	if _, err := d.registry.Fail(ctx, run.TenantID, run.ID, handleErr); err != nil {
		d.log.WithError(err).Warn("dispatcher failed to mark run failed")
	}
	metrics.RunsFailed.WithLabelValues(string(rt)).Inc()
	metrics.RunDuration.WithLabelValues(string(rt)).Observe(time.Since(startedAt).Seconds())
	d.clearSchedule(run.ID)
}

// recordTerminal fetches the run post-Handle to attribute the right
// succeeded/cancelled metric, since Handle finalizes the run itself.
func (d *Dispatcher) recordTerminal(ctx context.Context, tenantID, runID string, rt domain.RunType) {
	final, err := d.registry.Get(ctx, tenantID, runID)
	if err != nil {
		return
	}
	switch final.Status {
	case domain.RunSucceeded:
		metrics.RunsSucceeded.WithLabelValues(string(rt)).Inc()
	case domain.RunCancelled:
		metrics.RunsCancelled.WithLabelValues(string(rt)).Inc()
	}
}

func (d *Dispatcher) shouldAttempt(id string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	next, ok := d.nextAttempt[id]
	return !ok || now.After(next)
}

func (d *Dispatcher) scheduleNext(id string, after time.Duration) {
	if after <= 0 {
		after = d.interval
	}
	d.mu.Lock()
	d.nextAttempt[id] = time.Now().Add(after)
	d.mu.Unlock()
}

func (d *Dispatcher) clearSchedule(id string) {
	d.mu.Lock()
	delete(d.nextAttempt, id)
	d.mu.Unlock()
}
