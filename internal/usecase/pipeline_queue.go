package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SigFlow/internal/domain/models"
	domrepo "SigFlow/internal/domain/repository"
	xhttp "SigFlow/pkg/http"
	applogger "SigFlow/pkg/logger"
)

const defaultRetryLimit = 3

// pipelineFailureSource labels queue delivery outcomes for the failure
// tracker.
const pipelineFailureSource = "pipeline"

// FailureTracker consumes per-delivery outcomes for consecutive-failure
// alerting. AlertEvaluator implements it.
type FailureTracker interface {
	RecordFailure(ctx context.Context, source string) *models.SystemAlert
	RecordSuccess(source string)
}

// QueuedSignal is one FIFO entry. Attempts counts deliveries, so a freshly
// enqueued signal carries Attempts == 1 when it reaches the worker.
type QueuedSignal struct {
	SignalID string    `json:"signal_id"`
	QueuedAt time.Time `json:"queued_at"`
	Attempts int       `json:"attempts"`
}

// QueueStatus is the observable state of the in-process queue.
type QueueStatus struct {
	Depth      int            `json:"depth"`
	Processing bool           `json:"processing"`
	RetryLimit int            `json:"retry_limit"`
	Entries    []QueuedSignal `json:"entries"`
}

// PipelineQueue is the in-process FIFO that drives signals through the
// enrich/decide/execute pipeline with a single worker. A failed attempt is
// requeued at the tail; the retry ceiling dead-letters the signal.
type PipelineQueue struct {
	signals     domrepo.SignalStore
	enrichments domrepo.EnrichmentStore
	decisions   domrepo.DecisionStore
	enricher    domrepo.Enricher
	engine      domrepo.DecisionEngine
	executor    *TradeExecutor
	monitor     *Monitor
	events      domrepo.EventPublisher
	metrics     domrepo.Metrics
	l           *applogger.Logger

	rules      *models.RuleSet
	retryLimit int
	failures   FailureTracker

	mu         sync.Mutex
	queue      []*QueuedSignal
	wake       chan struct{}
	processing bool
	started    bool
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// QueueOption configures the pipeline queue.
type QueueOption func(*PipelineQueue)

// WithRetryLimit overrides the delivery ceiling before dead-lettering.
func WithRetryLimit(n int) QueueOption {
	return func(q *PipelineQueue) {
		if n > 0 {
			q.retryLimit = n
		}
	}
}

// WithRuleSet sets the decision rule configuration handed to the engine.
func WithRuleSet(rules *models.RuleSet) QueueOption {
	return func(q *PipelineQueue) { q.rules = rules }
}

// WithFailureTracker feeds delivery outcomes into consecutive-failure
// alerting.
func WithFailureTracker(ft FailureTracker) QueueOption {
	return func(q *PipelineQueue) { q.failures = ft }
}

// NewPipelineQueue creates the queue.
func NewPipelineQueue(
	signals domrepo.SignalStore,
	enrichments domrepo.EnrichmentStore,
	decisions domrepo.DecisionStore,
	enricher domrepo.Enricher,
	engine domrepo.DecisionEngine,
	executor *TradeExecutor,
	monitor *Monitor,
	events domrepo.EventPublisher,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	opts ...QueueOption,
) *PipelineQueue {
	q := &PipelineQueue{
		signals:     signals,
		enrichments: enrichments,
		decisions:   decisions,
		enricher:    enricher,
		engine:      engine,
		executor:    executor,
		monitor:     monitor,
		events:      events,
		metrics:     metrics,
		l:           l,
		retryLimit:  defaultRetryLimit,
		wake:        make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a signal to the tail of the queue.
func (q *PipelineQueue) Enqueue(ctx context.Context, signalID string) error {
	if signalID == "" {
		return xhttp.BadRequestError("signal id is required")
	}
	if _, err := q.signals.GetSignal(ctx, signalID); err != nil {
		if errors.Is(err, domrepo.ErrNotFound) {
			return xhttp.NotFoundErrorf("signal %s not found", signalID)
		}
		return xhttp.DatabaseError(err)
	}

	q.push(&QueuedSignal{SignalID: signalID, QueuedAt: time.Now()})
	return nil
}

func (q *PipelineQueue) push(entry *QueuedSignal) {
	q.mu.Lock()
	q.queue = append(q.queue, entry)
	depth := len(q.queue)
	q.mu.Unlock()

	q.metrics.SetQueueDepth(depth)
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *PipelineQueue) pop() *QueuedSignal {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) == 0 {
		return nil
	}
	entry := q.queue[0]
	q.queue = q.queue[1:]
	q.metrics.SetQueueDepth(len(q.queue))
	return entry
}

// Status reports queue depth, worker activity, and a snapshot of pending
// entries.
func (q *PipelineQueue) Status() *QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := make([]QueuedSignal, 0, len(q.queue))
	for _, e := range q.queue {
		entries = append(entries, *e)
	}
	return &QueueStatus{
		Depth:      len(q.queue),
		Processing: q.processing,
		RetryLimit: q.retryLimit,
		Entries:    entries,
	}
}

// Clear discards all pending entries and returns how many were dropped.
func (q *PipelineQueue) Clear() int {
	q.mu.Lock()
	n := len(q.queue)
	q.queue = nil
	q.mu.Unlock()
	q.metrics.SetQueueDepth(0)
	return n
}

// Start launches the single drain worker.
func (q *PipelineQueue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			entry := q.pop()
			if entry == nil {
				select {
				case <-q.stopCh:
					return
				case <-ctx.Done():
					return
				case <-q.wake:
					continue
				}
			}

			q.mu.Lock()
			q.processing = true
			q.mu.Unlock()

			q.deliver(ctx, entry)

			q.mu.Lock()
			q.processing = false
			q.mu.Unlock()
		}
	}()
}

// Stop stops the worker after its current delivery finishes.
func (q *PipelineQueue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	q.mu.Unlock()
	close(q.stopCh)
	q.wg.Wait()
}

// deliver runs one attempt. On failure the entry is requeued at the tail
// until the delivery ceiling, then the signal is rejected and dead-lettered.
func (q *PipelineQueue) deliver(ctx context.Context, entry *QueuedSignal) {
	entry.Attempts++

	err := q.process(ctx, entry.SignalID)
	if err == nil {
		q.metrics.RecordSignal("completed")
		if q.failures != nil {
			q.failures.RecordSuccess(pipelineFailureSource)
		}
		return
	}

	if q.l != nil {
		q.l.Warn("pipeline attempt failed",
			applogger.String("signal", entry.SignalID),
			applogger.Int("attempt", entry.Attempts),
			applogger.Error(err),
		)
	}
	if q.failures != nil {
		q.failures.RecordFailure(ctx, pipelineFailureSource)
	}

	if entry.Attempts < q.retryLimit {
		q.push(entry)
		return
	}

	q.deadLetter(ctx, entry, err)
}

func (q *PipelineQueue) deadLetter(ctx context.Context, entry *QueuedSignal, cause error) {
	if err := q.signals.UpdateSignalStatus(ctx, entry.SignalID, models.SignalStatusRejected); err != nil {
		q.metrics.RecordError("signal_status")
		if q.l != nil {
			q.l.Error("reject status update failed", applogger.String("signal", entry.SignalID), applogger.Error(err))
		}
	}
	if err := q.events.PublishSignalDeadLetter(ctx, entry.SignalID, entry.Attempts, cause.Error()); err != nil {
		q.metrics.RecordError("event_publish")
		if q.l != nil {
			q.l.Warn("dead letter publish failed", applogger.String("signal", entry.SignalID), applogger.Error(err))
		}
	}
	q.metrics.RecordSignal("rejected")
	if q.l != nil {
		q.l.Error("signal dead lettered",
			applogger.String("signal", entry.SignalID),
			applogger.Int("attempts", entry.Attempts),
			applogger.Error(cause),
		)
	}
}

// process runs the full stage sequence for one signal. Stage bookkeeping is
// best effort; only pipeline work itself can fail an attempt.
func (q *PipelineQueue) process(ctx context.Context, signalID string) error {
	signal, err := q.signals.GetSignal(ctx, signalID)
	if err != nil {
		return fmt.Errorf("load signal: %w", err)
	}
	if err := q.signals.UpdateSignalStatus(ctx, signalID, models.SignalStatusProcessing); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	if err := q.runStage(ctx, signalID, models.StageReceived, func(context.Context) error {
		return nil
	}); err != nil {
		return err
	}

	if err := q.runStage(ctx, signalID, models.StageEnriching, func(ctx context.Context) error {
		res, err := q.enricher.Enrich(ctx, signalID)
		if err != nil {
			return err
		}
		return q.enrichments.SaveEnrichment(ctx, res)
	}); err != nil {
		return err
	}

	var decision *models.Decision
	if err := q.runStage(ctx, signalID, models.StageDeciding, func(ctx context.Context) error {
		enriched, err := q.enrichments.GetEnrichment(ctx, signalID)
		if err != nil && !errors.Is(err, domrepo.ErrNotFound) {
			return err
		}
		d, err := q.engine.Decide(ctx, signal, enriched, q.rules)
		if err != nil {
			return err
		}
		if err := q.decisions.CreateDecision(ctx, d); err != nil && !errors.Is(err, domrepo.ErrConflict) {
			return err
		}
		decision = d
		return nil
	}); err != nil {
		return err
	}

	if decision.Decision == models.DecisionTrade {
		if err := q.runStage(ctx, signalID, models.StageExecuting, func(ctx context.Context) error {
			_, err := q.executor.Execute(ctx, signal, decision)
			return err
		}); err != nil {
			return err
		}
	}

	if err := q.runStage(ctx, signalID, models.StageCompleted, func(context.Context) error {
		return q.signals.UpdateSignalStatus(ctx, signalID, models.SignalStatusCompleted)
	}); err != nil {
		return err
	}
	return nil
}

// runStage brackets one unit of pipeline work with stage tracking. A tracking
// failure is logged and swallowed; the work error is what propagates.
func (q *PipelineQueue) runStage(ctx context.Context, signalID, stage string, work func(context.Context) error) error {
	row, trackErr := q.monitor.StartProcessingStage(ctx, &StartStageInput{SignalID: signalID, Stage: stage})
	if trackErr != nil && q.l != nil {
		q.l.Debug("stage tracking unavailable",
			applogger.String("signal", signalID),
			applogger.String("stage", stage),
			applogger.Error(trackErr),
		)
	}

	err := work(ctx)

	if row != nil {
		status := models.StageStatusDone
		errMsg := ""
		if err != nil {
			status = models.StageStatusFail
			errMsg = err.Error()
		}
		if _, cErr := q.monitor.CompleteProcessingStage(ctx, row.ID, status, nil, errMsg); cErr != nil && q.l != nil {
			q.l.Debug("stage completion tracking failed",
				applogger.String("signal", signalID),
				applogger.String("stage", stage),
				applogger.Error(cErr),
			)
		}
	}

	if err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}
	return nil
}
