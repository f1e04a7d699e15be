package queue

import (
	"fmt"
	"sync"
	"time"

	"signal-relay/src/helpers"
	"signal-relay/src/interfaces"
	"signal-relay/src/logger"
	"signal-relay/src/metrics"
	"signal-relay/src/models"
	"signal-relay/src/utils"
)

// -----------------------------------------------------------------------------

// RetryQueue re-attempts signals whose processing failed transiently. One
// background worker drains the queue; items either succeed, expire past the
// staleness window, or exhaust their attempt budget. The queue is in-memory
// and best-effort: a restart loses whatever is waiting.
type RetryQueue struct {
	Config   *models.MConfig
	Executor interfaces.IRetryExecutor
	Reporter interfaces.IReporter
	Notifier interfaces.INotifier
	Logger   *logger.Logger

	items chan *models.MRetryItem
	done  chan struct{}

	mu      sync.Mutex
	started bool
}

// -----------------------------------------------------------------------------

func NewRetryQueue(cfg *models.MConfig, executor interfaces.IRetryExecutor, reporter interfaces.IReporter, notifier interfaces.INotifier, log *logger.Logger) *RetryQueue {
	capacity := cfg.Retry.QueueCapacity
	if capacity <= 0 {
		capacity = 1024
	}

	return &RetryQueue{
		Config:   cfg,
		Executor: executor,
		Reporter: reporter,
		Notifier: notifier,
		Logger:   log,
		items:    make(chan *models.MRetryItem, capacity),
	}
}

// -----------------------------------------------------------------------------

// Enqueue adds a failed signal for a retry attempt. Non-blocking: when the
// queue is full the signal is dropped and the caller gets false back.
func (rq *RetryQueue) Enqueue(env models.MEnvelope) bool {
	item := &models.MRetryItem{
		Data:       env,
		EnqueuedAt: time.Now().UTC(),
		Attempts:   1,
	}

	select {
	case rq.items <- item:
		rq.Logger.Info("Signal for %s added to retry queue.", env.Symbol())
		return true
	default:
		metrics.RetryDiscardsTotal.WithLabelValues("overflow").Inc()
		rq.Logger.Error("Retry queue full. Signal for %s discarded.", env.Symbol())
		return false
	}
}

// -----------------------------------------------------------------------------

// Depth reports how many items are currently waiting.
func (rq *RetryQueue) Depth() int {
	return len(rq.items)
}

// -----------------------------------------------------------------------------

// StartWorker launches the background worker. Calling it twice is a no-op.
func (rq *RetryQueue) StartWorker() {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if rq.started {
		return
	}
	rq.started = true
	rq.done = make(chan struct{})

	go rq.processQueue()
	rq.Logger.Info("Retry queue worker has been started.")
}

// -----------------------------------------------------------------------------

// StopWorker pushes a sentinel onto the queue and waits for the worker to
// drain it, so an item the worker is busy with always finishes its attempt
// before shutdown proceeds.
func (rq *RetryQueue) StopWorker() {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if !rq.started {
		return
	}

	rq.items <- nil
	<-rq.done
	rq.started = false
	rq.Logger.Info("Retry queue worker has been stopped.")
}

// -----------------------------------------------------------------------------

func (rq *RetryQueue) processQueue() {
	defer close(rq.done)

	for item := range rq.items {
		if item == nil { // Sentinel value to stop the loop
			return
		}
		rq.handle(item)
	}
}

// -----------------------------------------------------------------------------

func (rq *RetryQueue) handle(item *models.MRetryItem) {
	symbol := item.Data.Symbol()
	expiryMinutes := rq.Config.Retry.SignalExpiryMinutes

	// 1. Check if the signal is stale. Age counts from the original
	// failure, and is only evaluated here at dequeue time.
	if item.Age() > time.Duration(expiryMinutes)*time.Minute {
		rq.report(utils.ReportStaleSignal, fmt.Sprintf("Signal %v discarded as stale after %d minutes.", item.Data, expiryMinutes))
		rq.notify(fmt.Sprintf("A stale signal for %s was discarded. Use /reports to view details.", symbol))
		rq.Logger.Warning("Discarding stale signal for %s after %d minutes.", symbol, expiryMinutes)
		metrics.RetryDiscardsTotal.WithLabelValues("stale").Inc()
		return
	}

	// 2. Attempt to re-process the signal
	rq.Logger.Info("Retrying signal for %s (Attempt #%d).", symbol, item.Attempts)
	metrics.RetryAttemptsTotal.Inc()

	err := rq.Executor.Retry(item.Data)
	if err == nil {
		rq.Logger.Info("Successfully processed signal for %s from retry queue.", symbol)
		return
	}
	rq.Logger.Error("Retry attempt #%d failed for %s: %v", item.Attempts, symbol, err)

	// 3. If it fails again, decide whether to re-queue or discard
	if helpers.IsNonRetryable(err) {
		rq.report(utils.ReportRetryFailure, fmt.Sprintf("Signal %v discarded, not retryable: %v", item.Data, err))
		rq.Logger.Error("Discarding signal for %s, retrying cannot fix: %v", symbol, err)
		metrics.RetryDiscardsTotal.WithLabelValues("non_retryable").Inc()
		return
	}

	if item.Attempts >= rq.Config.Retry.MaxRetries {
		rq.report(utils.ReportRetryFailure, fmt.Sprintf("Signal %v discarded after %d failed retry attempts.", item.Data, rq.Config.Retry.MaxRetries))
		rq.notify("A signal failed to process after multiple retries. Use /reports to view details.")
		rq.Logger.Error("Discarding signal for %s after %d failed attempts.", symbol, rq.Config.Retry.MaxRetries)
		metrics.RetryDiscardsTotal.WithLabelValues("exhausted").Inc()
		return
	}

	// The delay blocks only this worker; new enqueues keep landing in the
	// channel meanwhile.
	item.Attempts++
	time.Sleep(time.Duration(rq.Config.Retry.RetryDelaySeconds) * time.Second)

	select {
	case rq.items <- item:
	default:
		rq.report(utils.ReportRetryFailure, fmt.Sprintf("Signal %v discarded, retry queue full on re-enqueue.", item.Data))
		rq.Logger.Error("Retry queue full. Signal for %s discarded.", symbol)
		metrics.RetryDiscardsTotal.WithLabelValues("overflow").Inc()
	}
}

// -----------------------------------------------------------------------------

func (rq *RetryQueue) report(reportType string, details string) {
	if rq.Reporter == nil {
		return
	}
	if err := rq.Reporter.CreateReport(reportType, details); err != nil {
		rq.Logger.Error("Could not write %s report: %v", reportType, err)
	}
}

// -----------------------------------------------------------------------------

func (rq *RetryQueue) notify(message string) {
	if rq.Notifier == nil {
		return
	}
	if err := rq.Notifier.Notify(message); err != nil {
		rq.Logger.Warning("Notification failed: %v", err)
	}
}
